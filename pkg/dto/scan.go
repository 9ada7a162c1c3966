package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type LoginRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type AnalyzeRequest struct {
	Ingredients string `json:"ingredients" binding:"required"`
}

// ScanStateResponse is the current state of the signed-in user's scan flow.
type ScanStateResponse struct {
	Phase     string          `json:"phase"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id,omitempty"`
	Barcode   string          `json:"barcode,omitempty"`
	Format    string          `json:"format,omitempty"`
	Message   string          `json:"message,omitempty"`
	Result    *AnalysisResult `json:"result,omitempty"`
	UpdatedAt string          `json:"updated_at"`
}

// AnalysisResult mirrors what the analysis service returned. Analysis is the
// service's verdict payload, passed through untouched.
type AnalysisResult struct {
	Safe                bool            `json:"safe"`
	HarmfulCount        int             `json:"harmful_count"`
	Analysis            json.RawMessage `json:"analysis,omitempty"`
	Product             *ProductInfo    `json:"product_info,omitempty"`
	IngredientsAnalyzed []string        `json:"ingredients_analyzed,omitempty"`
}

type ProductInfo struct {
	Title       string `json:"title,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Ingredients string `json:"ingredients,omitempty"`
	Image       string `json:"image,omitempty"`
}

type ScanResponse struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id,omitempty"`
	Source       string          `json:"source"`
	Barcode      string          `json:"barcode,omitempty"`
	Format       string          `json:"format,omitempty"`
	Status       string          `json:"status"`
	Safe         *bool           `json:"safe,omitempty"`
	HarmfulCount int             `json:"harmful_count"`
	ProductTitle string          `json:"product_title,omitempty"`
	ProductBrand string          `json:"product_brand,omitempty"`
	Message      string          `json:"message,omitempty"`
	Analysis     json.RawMessage `json:"analysis,omitempty"`
	SnapshotURL  string          `json:"snapshot_url,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

type ScanListResponse struct {
	Scans []ScanResponse `json:"scans"`
	Total int            `json:"total"`
}

type HistoryQuery struct {
	UserID string `form:"user_id"`
	Limit  int    `form:"limit"`
}

type ProfileRequest struct {
	Age      string `json:"age" binding:"required"`
	Gender   string `json:"gender" binding:"required"`
	SkinType string `json:"skinType" binding:"required"`
}

type ProfileResponse struct {
	UserID   string `json:"user_id"`
	Age      string `json:"age"`
	Gender   string `json:"gender"`
	SkinType string `json:"skinType"`
}

// WSEvent is a WebSocket message for real-time scan updates.
type WSEvent struct {
	Type   string             `json:"type"` // scan_state, scan_recorded
	UserID string             `json:"user_id"`
	State  *ScanStateResponse `json:"state,omitempty"`
	Scan   *ScanResponse      `json:"scan,omitempty"`
}
