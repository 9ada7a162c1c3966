package queue

import (
	"context"

	"github.com/your-org/dermascan/internal/models"
)

// Local delivers scans straight to a handler, for stations running without
// NATS.
type Local struct {
	handler ScanHandler
}

func NewLocal(handler ScanHandler) *Local {
	return &Local{handler: handler}
}

func (l *Local) PublishScan(ctx context.Context, rec *models.ScanRecord) error {
	return l.handler(ctx, rec)
}
