package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/profile"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore is the single-station store.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between the consumer and HTTP handlers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	slog.Info("sqlite store ready", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		slog.Warn("close sqlite", "error", err)
	}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Profiles ---

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	p := &profile.Profile{}
	err := s.db.QueryRowContext(ctx,
		`SELECT age_group, gender, skin_type FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.AgeGroup, &p.Gender, &p.SkinType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) SetProfile(ctx context.Context, userID string, p profile.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, age_group, gender, skin_type, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			age_group = excluded.age_group,
			gender = excluded.gender,
			skin_type = excluded.skin_type,
			updated_at = excluded.updated_at`,
		userID, p.AgeGroup, p.Gender, p.SkinType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}

// --- Scans ---

const sqliteScanColumns = `id, user_id, session_id, source, barcode, format, status, safe, harmful_count,
	product_title, product_brand, message, snapshot_key, analysis, created_at`

func (s *SQLiteStore) RecordScan(ctx context.Context, rec *models.ScanRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var analysis sql.NullString
	if len(rec.Analysis) > 0 {
		analysis = sql.NullString{String: string(rec.Analysis), Valid: true}
	}
	var safe sql.NullBool
	if rec.Safe != nil {
		safe = sql.NullBool{Bool: *rec.Safe, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (`+sqliteScanColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID.String(), rec.UserID, rec.SessionID, rec.Source, rec.Barcode, rec.Format, rec.Status,
		safe, rec.HarmfulCount, rec.ProductTitle, rec.ProductBrand, rec.Message, rec.SnapshotKey,
		analysis, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetScan(ctx context.Context, id uuid.UUID) (*models.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteScanColumns+` FROM scans WHERE id = ?`, id.String())
	rec, err := scanSQLiteRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListScans(ctx context.Context, userID string, limit int) ([]models.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteScanColumns+` FROM scans WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []models.ScanRecord
	for rows.Next() {
		rec, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRow(row rowScanner) (*models.ScanRecord, error) {
	var (
		rec      models.ScanRecord
		id       string
		safe     sql.NullBool
		analysis sql.NullString
	)
	err := row.Scan(&id, &rec.UserID, &rec.SessionID, &rec.Source, &rec.Barcode, &rec.Format, &rec.Status,
		&safe, &rec.HarmfulCount, &rec.ProductTitle, &rec.ProductBrand, &rec.Message, &rec.SnapshotKey,
		&analysis, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse scan id %q: %w", id, err)
	}
	if safe.Valid {
		v := safe.Bool
		rec.Safe = &v
	}
	if analysis.Valid {
		rec.Analysis = []byte(analysis.String)
	}
	return &rec, nil
}
