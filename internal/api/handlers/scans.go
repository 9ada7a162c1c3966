package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/dermascan/internal/analysis"
	"github.com/your-org/dermascan/internal/capture"
	"github.com/your-org/dermascan/internal/scanner"
	"github.com/your-org/dermascan/pkg/dto"
)

type ScanHandler struct {
	station *scanner.Station
}

func NewScanHandler(station *scanner.Station) *ScanHandler {
	return &ScanHandler{station: station}
}

// Login switches the station to another user, releasing the camera and
// discarding any pending analysis of the previous one.
func (h *ScanHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flow, err := h.station.Login(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, StateToResponse(flow.State()))
}

func (h *ScanHandler) Start(c *gin.Context) {
	st, err := h.station.Flow().StartScan()
	if err != nil {
		writeFlowError(c, st, err)
		return
	}
	c.JSON(http.StatusAccepted, StateToResponse(st))
}

func (h *ScanHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, StateToResponse(h.station.Flow().State()))
}

func (h *ScanHandler) Stop(c *gin.Context) {
	c.JSON(http.StatusOK, StateToResponse(h.station.Flow().Cancel()))
}

// Analyze runs a pasted ingredient list through the analysis service and
// returns the settled state.
func (h *ScanHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.station.Flow().SubmitIngredients(req.Ingredients)
	if err != nil {
		writeFlowError(c, st, err)
		return
	}
	c.JSON(http.StatusOK, StateToResponse(st))
}

func writeFlowError(c *gin.Context, st scanner.State, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrBusy), errors.Is(err, scanner.ErrCanceled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": StateToResponse(st)})
	case errors.Is(err, scanner.ErrClosed), errors.Is(err, capture.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
