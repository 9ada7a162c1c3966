package handlers

import (
	"time"

	"github.com/your-org/dermascan/internal/analysis"
	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/scanner"
	"github.com/your-org/dermascan/pkg/dto"
)

// StateToResponse renders a flow state for HTTP and WebSocket clients.
func StateToResponse(st scanner.State) dto.ScanStateResponse {
	resp := dto.ScanStateResponse{
		Phase:     string(st.Phase),
		UserID:    st.UserID,
		SessionID: st.SessionID,
		Barcode:   st.Barcode,
		Format:    st.Format,
		Message:   st.Message,
		UpdatedAt: st.UpdatedAt.Format(time.RFC3339),
	}
	if st.Outcome != nil && st.Outcome.Kind == analysis.Success {
		resp.Result = outcomeToResult(st.Outcome)
	}
	return resp
}

func outcomeToResult(out *analysis.Outcome) *dto.AnalysisResult {
	res := &dto.AnalysisResult{IngredientsAnalyzed: out.Ingredients}
	if out.Result != nil {
		res.Safe = out.Result.Safe
		res.HarmfulCount = out.Result.HarmfulCount
		res.Analysis = out.Result.Raw
	}
	if p := out.Product; p != nil {
		res.Product = &dto.ProductInfo{Title: p.Title, Brand: p.Brand, Ingredients: p.Ingredients, Image: p.Image}
	}
	return res
}

// ScanToResponse renders a stored scan.
func ScanToResponse(rec *models.ScanRecord) dto.ScanResponse {
	resp := dto.ScanResponse{
		ID:           rec.ID,
		UserID:       rec.UserID,
		SessionID:    rec.SessionID,
		Source:       rec.Source,
		Barcode:      rec.Barcode,
		Format:       rec.Format,
		Status:       rec.Status,
		Safe:         rec.Safe,
		HarmfulCount: rec.HarmfulCount,
		ProductTitle: rec.ProductTitle,
		ProductBrand: rec.ProductBrand,
		Message:      rec.Message,
		Analysis:     rec.Analysis,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.SnapshotKey != "" {
		resp.SnapshotURL = "/v1/history/" + rec.ID.String() + "/snapshot"
	}
	return resp
}
