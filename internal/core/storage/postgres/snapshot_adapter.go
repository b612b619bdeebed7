package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
)

// SnapshotAdapter implements storage.SnapshotStore using PostgreSQL.
// The latest record and its history entry are written in one transaction
// guarded by a row lock on the lane, so the stored checkpoint only moves
// forward from the value the writer computed from.
type SnapshotAdapter struct {
	db          *sql.DB
	keepHistory int
}

var (
	_ storage.SnapshotStore         = (*SnapshotAdapter)(nil)
	_ storage.SnapshotHistoryReader = (*SnapshotAdapter)(nil)
	_ storage.LaneLister            = (*SnapshotAdapter)(nil)
	_ storage.OwnerReader           = (*SnapshotAdapter)(nil)
)

// NewSnapshotAdapter creates a new SnapshotAdapter sharing the given connection.
// keepHistory is the number of checkpoints retained per lane for as-of-past
// reads; 0 disables history.
func NewSnapshotAdapter(db *sql.DB, keepHistory int) *SnapshotAdapter {
	if keepHistory < 0 {
		keepHistory = 0
	}
	return &SnapshotAdapter{db: db, keepHistory: keepHistory}
}

// Save stores rec if the lane's stored checkpoint equals expectedPrior.
func (a *SnapshotAdapter) Save(ctx context.Context, rec *snapshot.Record, expectedPrior int64) error {
	if rec == nil {
		return fmt.Errorf("snapshot save: nil record")
	}
	if rec.Checkpoint <= expectedPrior {
		return fmt.Errorf("%w: %s checkpoint %d does not advance %d",
			storage.ErrCheckpointConflict, rec.Lane, rec.Checkpoint, expectedPrior)
	}

	args, err := recordArgs(rec)
	if err != nil {
		return fmt.Errorf("snapshot save: %w", err)
	}
	key := laneArgs(rec.Lane)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot save: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Lock the lane row first; a missing row means no checkpoint yet.
	var stored int64
	exists := true
	err = tx.QueryRowContext(ctx, querySelectSnapshotCheckpointForUpdate, key...).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
		err = nil
	}
	if err != nil {
		return fmt.Errorf("snapshot save: read checkpoint for update: %w", err)
	}

	if stored != expectedPrior {
		slog.Warn("[SnapshotAdapter] Rejecting snapshot write from stale checkpoint",
			"lane", rec.Lane.String(),
			"expected_prior", expectedPrior,
			"stored", stored,
			"checkpoint", rec.Checkpoint)
		return fmt.Errorf("%w: %s stored checkpoint is %d, expected %d",
			storage.ErrCheckpointConflict, rec.Lane, stored, expectedPrior)
	}

	var result sql.Result
	if exists {
		result, err = tx.ExecContext(ctx, queryUpdateSnapshot, append(args, expectedPrior)...)
	} else {
		result, err = tx.ExecContext(ctx, queryInsertSnapshot, args...)
	}
	if err != nil {
		return fmt.Errorf("snapshot save: write %s: %w", rec.Lane, err)
	}

	// Zero rows: another writer created or advanced the lane first.
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("snapshot save: check write: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s was written concurrently", storage.ErrCheckpointConflict, rec.Lane)
	}

	if a.keepHistory > 0 {
		if _, err := tx.ExecContext(ctx, queryInsertSnapshotHistory, args...); err != nil {
			return fmt.Errorf("snapshot save: write history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryPruneSnapshotHistory, append(key, a.keepHistory)...); err != nil {
			return fmt.Errorf("snapshot save: prune history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot save: commit: %w", err)
	}

	slog.Debug("[SnapshotAdapter] Saved",
		"lane", rec.Lane.String(),
		"checkpoint", rec.Checkpoint,
		"expected_prior", expectedPrior,
	)
	return nil
}

// LoadLatest returns the latest record of lane, or nil when none exists.
func (a *SnapshotAdapter) LoadLatest(ctx context.Context, lane identity.Lane) (*snapshot.Record, error) {
	rec, err := scanSnapshotRow(a.db.QueryRowContext(ctx, queryLoadLatestSnapshot, laneArgs(lane)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", lane, err)
	}
	return rec, nil
}

// LoadAtOrBefore returns the newest retained record with checkpoint <= position.
func (a *SnapshotAdapter) LoadAtOrBefore(ctx context.Context, lane identity.Lane, position int64) (*snapshot.Record, error) {
	rec, err := scanSnapshotRow(a.db.QueryRowContext(ctx, queryLoadSnapshotAtOrBefore, append(laneArgs(lane), position)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot history %s at %d: %w", lane, position, err)
	}
	return rec, nil
}

// LoadByOwner returns the latest record of every lane owned by owner,
// the direct lane first.
func (a *SnapshotAdapter) LoadByOwner(ctx context.Context, owner identity.Identity) ([]*snapshot.Record, error) {
	rows, err := a.db.QueryContext(ctx, queryLoadSnapshotsByOwner, owner.Type, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots of %s: %w", owner, err)
	}
	defer rows.Close()

	var out []*snapshot.Record
	for rows.Next() {
		rec, err := scanSnapshotRow(rows)
		if err != nil {
			return nil, fmt.Errorf("load snapshots of %s: scan row: %w", owner, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshots of %s: iterate rows: %w", owner, err)
	}
	return out, nil
}

// ListLanes enumerates every lane with a stored record.
func (a *SnapshotAdapter) ListLanes(ctx context.Context) ([]identity.Lane, error) {
	rows, err := a.db.QueryContext(ctx, queryListSnapshotLanes)
	if err != nil {
		return nil, fmt.Errorf("list snapshot lanes: %w", err)
	}
	defer rows.Close()

	var lanes []identity.Lane
	for rows.Next() {
		var lane identity.Lane
		if err := rows.Scan(&lane.Owner.Type, &lane.Owner.ID, &lane.Source.Type, &lane.Source.ID); err != nil {
			return nil, fmt.Errorf("list snapshot lanes: scan row: %w", err)
		}
		lanes = append(lanes, lane)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshot lanes: iterate rows: %w", err)
	}

	slog.Debug("[SnapshotAdapter] Listed lanes", "count", len(lanes))
	return lanes, nil
}
