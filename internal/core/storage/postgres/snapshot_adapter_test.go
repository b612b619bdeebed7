package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/stretchr/testify/require"
)

var (
	report1  = identity.New("Report", "1")
	joinLane = identity.JoinLane(report1, order7)
)

func testRecord(checkpoint int64) *snapshot.Record {
	at := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	return &snapshot.Record{
		ID:          "01J0000000000000000000000" + string(rune('A'+checkpoint)),
		Lane:        joinLane,
		Checkpoint:  checkpoint,
		LastEventAt: at.Add(-time.Minute),
		Reverted:    []int64{1},
		State:       json.RawMessage(`{"metrics":{}}`),
		ComputedAt:  at,
	}
}

func recordMockArgs(rec *snapshot.Record) []driver.Value {
	return []driver.Value{
		"Report", "1", "Order", "7",
		rec.ID, rec.Checkpoint, rec.LastEventAt,
		[]byte(`[1]`), []byte(rec.State), rec.ComputedAt,
	}
}

func snapshotRowColumns() []string {
	return []string{
		"owner_type", "owner_id", "source_type", "source_id",
		"record_id", "checkpoint", "last_event_at", "reverted", "state", "computed_at",
	}
}

func TestSnapshotAdapter_SaveFirstRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 3)
	rec := testRecord(2)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(querySelectSnapshotCheckpointForUpdate)).
		WithArgs("Report", "1", "Order", "7").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(queryInsertSnapshot)).
		WithArgs(recordMockArgs(rec)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertSnapshotHistory)).
		WithArgs(recordMockArgs(rec)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryPruneSnapshotHistory)).
		WithArgs("Report", "1", "Order", "7", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, adapter.Save(context.Background(), rec, 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_SaveAdvancesFromExpectedPrior(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 0)
	rec := testRecord(5)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(querySelectSnapshotCheckpointForUpdate)).
		WithArgs("Report", "1", "Order", "7").
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint"}).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta(queryUpdateSnapshot)).
		WithArgs(append(recordMockArgs(rec), int64(2))...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, adapter.Save(context.Background(), rec, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_SaveRejectsStalePrior(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(querySelectSnapshotCheckpointForUpdate)).
		WithArgs("Report", "1", "Order", "7").
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint"}).AddRow(int64(4)))
	mock.ExpectRollback()

	err = adapter.Save(context.Background(), testRecord(5), 2)
	require.ErrorIs(t, err, storage.ErrCheckpointConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_SaveConcurrentFirstInsertConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 3)
	rec := testRecord(1)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(querySelectSnapshotCheckpointForUpdate)).
		WithArgs("Report", "1", "Order", "7").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(queryInsertSnapshot)).
		WithArgs(recordMockArgs(rec)...).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = adapter.Save(context.Background(), rec, 0)
	require.ErrorIs(t, err, storage.ErrCheckpointConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_SaveRejectsNonAdvancingCheckpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewSnapshotAdapter(db, 3).Save(context.Background(), testRecord(2), 2)
	require.ErrorIs(t, err, storage.ErrCheckpointConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_LoadLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 0)
	want := testRecord(3)

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadLatestSnapshot)).
		WithArgs("Report", "1", "Order", "7").
		WillReturnRows(sqlmock.NewRows(snapshotRowColumns()).AddRow(
			"Report", "1", "Order", "7",
			want.ID, want.Checkpoint, want.LastEventAt, []byte(`[1]`), []byte(want.State), want.ComputedAt,
		))
	mock.ExpectQuery(regexp.QuoteMeta(queryLoadLatestSnapshot)).
		WithArgs("Report", "1", "Order", "8").
		WillReturnError(sql.ErrNoRows)

	got, err := adapter.LoadLatest(context.Background(), joinLane)
	require.NoError(t, err)
	require.Equal(t, want, got)

	missing, err := adapter.LoadLatest(context.Background(), identity.JoinLane(report1, identity.New("Order", "8")))
	require.NoError(t, err)
	require.Nil(t, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_LoadAtOrBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 3)
	want := testRecord(2)

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadSnapshotAtOrBefore)).
		WithArgs("Report", "1", "Order", "7", int64(2)).
		WillReturnRows(sqlmock.NewRows(snapshotRowColumns()).AddRow(
			"Report", "1", "Order", "7",
			want.ID, want.Checkpoint, want.LastEventAt, []byte(`[1]`), []byte(want.State), want.ComputedAt,
		))
	mock.ExpectQuery(regexp.QuoteMeta(queryLoadSnapshotAtOrBefore)).
		WithArgs("Report", "1", "Order", "7", int64(1)).
		WillReturnError(sql.ErrNoRows)

	got, err := adapter.LoadAtOrBefore(context.Background(), joinLane, 2)
	require.NoError(t, err)
	require.Equal(t, want, got)

	none, err := adapter.LoadAtOrBefore(context.Background(), joinLane, 1)
	require.NoError(t, err)
	require.Nil(t, none)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAdapter_LoadByOwnerAndListLanes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewSnapshotAdapter(db, 0)
	at := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadSnapshotsByOwner)).
		WithArgs("Report", "1").
		WillReturnRows(sqlmock.NewRows(snapshotRowColumns()).
			AddRow("Report", "1", "Report", "1", "rec-a", int64(1), at, []byte(`[]`), []byte(`{}`), at).
			AddRow("Report", "1", "Order", "7", "rec-b", int64(2), at, []byte(`[]`), []byte(`{}`), at))
	mock.ExpectQuery(regexp.QuoteMeta(queryListSnapshotLanes)).
		WillReturnRows(sqlmock.NewRows([]string{"owner_type", "owner_id", "source_type", "source_id"}).
			AddRow("Report", "1", "Order", "7").
			AddRow("Report", "1", "Report", "1"))

	recs, err := adapter.LoadByOwner(context.Background(), report1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.False(t, recs[0].Lane.IsJoin())
	require.Equal(t, joinLane, recs[1].Lane)
	require.Nil(t, recs[1].Reverted)

	lanes, err := adapter.ListLanes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []identity.Lane{joinLane, identity.DirectLane(report1)}, lanes)
	require.NoError(t, mock.ExpectationsWereMet())
}
