package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/profile"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if p != nil {
		t.Errorf("Expected no profile, got %+v", p)
	}

	want := profile.Profile{AgeGroup: profile.Age18To32, Gender: profile.GenderFemale, SkinType: profile.SkinDry}
	if err := s.SetProfile(ctx, "alice", want); err != nil {
		t.Fatalf("SetProfile failed: %v", err)
	}
	want.SkinType = profile.SkinCombination
	if err := s.SetProfile(ctx, "alice", want); err != nil {
		t.Fatalf("SetProfile update failed: %v", err)
	}

	got, err := s.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestSQLiteScans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	safe := true
	first := &models.ScanRecord{
		ID:           uuid.New(),
		UserID:       "alice",
		SessionID:    "s-1",
		Source:       models.SourceBarcode,
		Barcode:      "0123456789012",
		Format:       "ean_13",
		Status:       "result",
		Safe:         &safe,
		ProductTitle: "Gentle Cleanser",
		Analysis:     json.RawMessage(`{"safe":true}`),
		CreatedAt:    base,
	}
	second := &models.ScanRecord{
		UserID:    "alice",
		Source:    models.SourceIngredients,
		Status:    "error",
		Message:   "Analysis failed. Please try again.",
		CreatedAt: base.Add(time.Minute),
	}
	other := &models.ScanRecord{UserID: "bob", Source: models.SourceBarcode, Status: "result", CreatedAt: base}

	for _, rec := range []*models.ScanRecord{first, second, other} {
		if err := s.RecordScan(ctx, rec); err != nil {
			t.Fatalf("RecordScan failed: %v", err)
		}
	}
	// Redelivery is a no-op.
	if err := s.RecordScan(ctx, first); err != nil {
		t.Fatalf("RecordScan redelivery failed: %v", err)
	}
	if second.ID == uuid.Nil {
		t.Error("Expected RecordScan to assign an id")
	}

	list, err := s.ListScans(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 scans for alice, got %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("Expected newest first, got %s", list[0].ID)
	}
	if list[1].Safe == nil || !*list[1].Safe {
		t.Errorf("Expected safe flag to round trip, got %v", list[1].Safe)
	}
	if list[0].Safe != nil {
		t.Errorf("Expected no safe flag on the error record, got %v", *list[0].Safe)
	}

	got, err := s.GetScan(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if got == nil || got.Barcode != "0123456789012" || string(got.Analysis) != `{"safe":true}` {
		t.Errorf("Unexpected scan %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("Expected created_at %v, got %v", base, got.CreatedAt)
	}

	missing, err := s.GetScan(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for missing scan, got %+v, %v", missing, err)
	}

	limited, err := s.ListScans(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "open.db")

	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	cfg.Storage.Driver = "mongo"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("Expected an error for unknown driver, got nil")
	}
}

func TestSnapshotKey(t *testing.T) {
	if got := SnapshotKey("alice", "abc"); got != "snapshots/alice/abc.jpg" {
		t.Errorf("Expected 'snapshots/alice/abc.jpg', got '%s'", got)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, 50}, {-1, 50}, {10, 10}, {1000, 500}}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}
