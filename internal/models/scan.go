package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SourceBarcode     = "barcode"
	SourceIngredients = "ingredients"
)

// ScanRecord is one finished scan or manual analysis. It is published to the
// queue when the flow settles and stored as scan history.
type ScanRecord struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	SessionID    string          `json:"session_id,omitempty" db:"session_id"`
	Source       string          `json:"source" db:"source"`
	Barcode      string          `json:"barcode,omitempty" db:"barcode"`
	Format       string          `json:"format,omitempty" db:"format"`
	Status       string          `json:"status" db:"status"` // result or error
	Safe         *bool           `json:"safe,omitempty" db:"safe"`
	HarmfulCount int             `json:"harmful_count" db:"harmful_count"`
	ProductTitle string          `json:"product_title,omitempty" db:"product_title"`
	ProductBrand string          `json:"product_brand,omitempty" db:"product_brand"`
	Message      string          `json:"message,omitempty" db:"message"`
	SnapshotKey  string          `json:"snapshot_key,omitempty" db:"snapshot_key"`
	Analysis     json.RawMessage `json:"analysis,omitempty" db:"analysis"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
