package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/dermascan/internal/scanner"
	"github.com/your-org/dermascan/internal/storage"
	"github.com/your-org/dermascan/pkg/dto"
)

type HistoryHandler struct {
	store   storage.Store
	minio   *storage.MinIOStore
	station *scanner.Station
}

// NewHistoryHandler serves stored scans. minio may be nil when snapshots are
// not archived.
func NewHistoryHandler(store storage.Store, minio *storage.MinIOStore, station *scanner.Station) *HistoryHandler {
	return &HistoryHandler{store: store, minio: minio, station: station}
}

// List returns the newest scans of user_id, defaulting to the signed-in user.
func (h *HistoryHandler) List(c *gin.Context) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.UserID == "" {
		q.UserID = h.station.Flow().Identity().UserID
	}

	scans, err := h.store.ListScans(c.Request.Context(), q.UserID, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ScanResponse, 0, len(scans))
	for i := range scans {
		resp = append(resp, ScanToResponse(&scans[i]))
	}

	c.JSON(http.StatusOK, dto.ScanListResponse{Scans: resp, Total: len(resp)})
}

func (h *HistoryHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return
	}

	rec, err := h.store.GetScan(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}

	c.JSON(http.StatusOK, ScanToResponse(rec))
}

// Snapshot streams the frame a barcode was decoded from.
func (h *HistoryHandler) Snapshot(c *gin.Context) {
	if h.minio == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshots are not enabled"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return
	}

	rec, err := h.store.GetScan(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil || rec.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	data, err := h.minio.GetSnapshot(c.Request.Context(), rec.SnapshotKey)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
