package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/profile"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore backs a fleet of stations sharing profiles and history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	p := &profile.Profile{}
	err := s.pool.QueryRow(ctx,
		`SELECT age_group, gender, skin_type FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.AgeGroup, &p.Gender, &p.SkinType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SetProfile(ctx context.Context, userID string, p profile.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, age_group, gender, skin_type, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			age_group = EXCLUDED.age_group,
			gender = EXCLUDED.gender,
			skin_type = EXCLUDED.skin_type,
			updated_at = now()`,
		userID, string(p.AgeGroup), string(p.Gender), string(p.SkinType))
	if err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}

// --- Scans ---

const pgScanColumns = `id, user_id, session_id, source, barcode, format, status, safe, harmful_count,
	product_title, product_brand, message, snapshot_key, analysis, created_at`

func (s *PostgresStore) RecordScan(ctx context.Context, rec *models.ScanRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var analysis []byte
	if len(rec.Analysis) > 0 {
		analysis = rec.Analysis
	}

	// Redelivered queue messages carry the same id.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scans (`+pgScanColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.SessionID, rec.Source, rec.Barcode, rec.Format, rec.Status,
		rec.Safe, rec.HarmfulCount, rec.ProductTitle, rec.ProductBrand, rec.Message, rec.SnapshotKey,
		analysis, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScan(ctx context.Context, id uuid.UUID) (*models.ScanRecord, error) {
	rec, err := scanPGRow(s.pool.QueryRow(ctx,
		`SELECT `+pgScanColumns+` FROM scans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListScans(ctx context.Context, userID string, limit int) ([]models.ScanRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgScanColumns+` FROM scans WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []models.ScanRecord
	for rows.Next() {
		rec, err := scanPGRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanPGRow(row pgx.Row) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Source, &rec.Barcode, &rec.Format, &rec.Status,
		&rec.Safe, &rec.HarmfulCount, &rec.ProductTitle, &rec.ProductBrand, &rec.Message, &rec.SnapshotKey,
		&rec.Analysis, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
