package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tablelens/internal/domain"
)

// Compile-time check.
var _ domain.AnalysisCacheRepository = (*CacheRepo)(nil)

// CacheRepo stores the latest successful findings per table and category,
// backing the cached fallback strategy.
type CacheRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewCacheRepo creates a CacheRepo over the write and read pools.
func NewCacheRepo(write, read *sql.DB) *CacheRepo {
	return &CacheRepo{write: write, read: read}
}

// Put upserts the findings for one table and category.
func (r *CacheRepo) Put(ctx context.Context, tableID string, category domain.Category, findings []domain.Finding) error {
	payload, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	_, err = r.write.ExecContext(ctx, `
		INSERT INTO analysis_cache (table_id, category, findings, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (table_id, category) DO UPDATE SET
			findings = excluded.findings,
			updated_at = excluded.updated_at`,
		tableID, string(category), string(payload), time.Now().UTC(),
	)
	return mapDBError(err)
}

// Get returns the cached findings for one table and category, or a
// NotFoundError when nothing is cached.
func (r *CacheRepo) Get(ctx context.Context, tableID string, category domain.Category) ([]domain.Finding, error) {
	var payload string
	err := r.read.QueryRowContext(ctx, `
		SELECT findings FROM analysis_cache WHERE table_id = ? AND category = ?`,
		tableID, string(category),
	).Scan(&payload)
	if err != nil {
		return nil, mapDBError(err)
	}

	var findings []domain.Finding
	if err := json.Unmarshal([]byte(payload), &findings); err != nil {
		return nil, fmt.Errorf("decode cached findings: %w", err)
	}
	return findings, nil
}
