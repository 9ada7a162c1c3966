package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/profile"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Store keeps user profiles and scan history.
type Store interface {
	profile.Store
	RecordScan(ctx context.Context, rec *models.ScanRecord) error
	GetScan(ctx context.Context, id uuid.UUID) (*models.ScanRecord, error)
	ListScans(ctx context.Context, userID string, limit int) ([]models.ScanRecord, error)
	Ping(ctx context.Context) error
	Close()
}

// Open connects to the configured storage driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return NewPostgresStore(ctx, cfg.Database)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
