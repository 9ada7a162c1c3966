package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/dermascan/internal/api/handlers"
	"github.com/your-org/dermascan/internal/api/ws"
	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/queue"
	"github.com/your-org/dermascan/internal/scanner"
	"github.com/your-org/dermascan/internal/storage"
	"github.com/your-org/dermascan/pkg/dto"
)

// ScanRecorder stores each settled scan as history and pushes it to
// WebSocket clients. It backs both the NATS consumer and the local publisher.
func ScanRecorder(store storage.Store, hub *ws.Hub) queue.ScanHandler {
	return func(ctx context.Context, rec *models.ScanRecord) error {
		if err := store.RecordScan(ctx, rec); err != nil {
			return fmt.Errorf("store scan %s: %w", rec.ID, err)
		}
		slog.Debug("scan recorded", "scan_id", rec.ID, "user_id", rec.UserID, "status", rec.Status)

		if hub != nil {
			resp := handlers.ScanToResponse(rec)
			hub.BroadcastEvent(&dto.WSEvent{Type: "scan_recorded", UserID: rec.UserID, Scan: &resp})
		}
		return nil
	}
}

// StateBroadcaster pushes flow phase changes to WebSocket clients.
func StateBroadcaster(hub *ws.Hub) func(scanner.State) {
	return func(st scanner.State) {
		resp := handlers.StateToResponse(st)
		hub.BroadcastEvent(&dto.WSEvent{Type: "scan_state", UserID: st.UserID, State: &resp})
	}
}

// StateGreeting sends a new WebSocket subscriber the signed-in user's scan
// state, unless the subscriber filters on someone else.
func StateGreeting(station *scanner.Station) ws.Greeting {
	return func(userID string) *dto.WSEvent {
		flow := station.Flow()
		if userID != "" && userID != flow.Identity().UserID {
			return nil
		}
		st := flow.State()
		resp := handlers.StateToResponse(st)
		return &dto.WSEvent{Type: "scan_state", UserID: st.UserID, State: &resp}
	}
}
