package repository

import (
	"context"
	"database/sql"

	"github.com/gatherly/event-payments/internal/model"
)

// FeeConfigRepo provides versioned access to fee_configs. Updates insert
// a new row; nothing is ever mutated, so historical orders can always be
// traced to the percentage in force when they were priced.
type FeeConfigRepo struct {
	db *sql.DB
}

// NewFeeConfigRepo returns a repo bound to the database.
func NewFeeConfigRepo(db *sql.DB) *FeeConfigRepo { return &FeeConfigRepo{db: db} }

// CurrentFeeConfig returns the newest fee config row. Returns
// sql.ErrNoRows on a fresh deployment with no config yet; callers fall
// back to their configured default.
func (r *FeeConfigRepo) CurrentFeeConfig(ctx context.Context) (*model.FeeConfig, error) {
	const q = `SELECT id, percent_bps, created_by, created_at FROM fee_configs ORDER BY id DESC LIMIT 1`
	var cfg model.FeeConfig
	if err := r.db.QueryRowContext(ctx, q).Scan(&cfg.ID, &cfg.PercentBps, &cfg.CreatedBy, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Create appends a new fee config version and populates the generated ID.
func (r *FeeConfigRepo) Create(ctx context.Context, cfg *model.FeeConfig) error {
	const q = `INSERT INTO fee_configs (percent_bps, created_by) VALUES (?, ?)`
	result, err := r.db.ExecContext(ctx, q, cfg.PercentBps, cfg.CreatedBy)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	cfg.ID = uint64(id)
	return nil
}
