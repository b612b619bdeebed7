package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/stretchr/testify/require"
)

var order7 = identity.New("Order", "7")

func TestAdapter_Append(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	occurredAt := now.Add(-time.Minute)

	newEvent := func(position int64) *v1.Event {
		return &v1.Event{
			ID:            "8f14e45f-ceea-467f-a0e6-2f0d8e3c1a10",
			AggregateType: "Order",
			AggregateID:   "7",
			Position:      position,
			Type:          "line_added",
			OccurredAt:    occurredAt,
			Metadata:      map[string]string{"source": "api"},
			Data:          map[string]interface{}{"amount": 3},
		}
	}

	expectLock := func(mock sqlmock.Sqlmock, last int64) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(queryInsertAggregate)).
			WithArgs("Order", "7", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(querySelectAggregateForUpdate)).
			WithArgs("Order", "7").
			WillReturnRows(sqlmock.NewRows([]string{"last_position"}).AddRow(last))
	}

	tests := []struct {
		name       string
		event      *v1.Event
		mockResult func(mock sqlmock.Sqlmock, event *v1.Event)
		assertions func(t *testing.T, event *v1.Event, err error)
	}{
		{
			name:  "success assigns next position",
			event: newEvent(0),
			mockResult: func(mock sqlmock.Sqlmock, event *v1.Event) {
				expectLock(mock, 4)
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertEvent)).
					WithArgs(
						event.ID,
						"Order",
						"7",
						int64(5),
						"line_added",
						false,
						int64(0),
						occurredAt,
						now,
						sqlmock.AnyArg(),
						sqlmock.AnyArg(),
					).
					WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(int64(5)))
				mock.ExpectExec(regexp.QuoteMeta(queryAdvanceAggregate)).
					WithArgs(int64(5), "Order", "7", int64(4)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			assertions: func(t *testing.T, event *v1.Event, err error) {
				require.NoError(t, err)
				require.Equal(t, int64(5), event.Position)
				require.Equal(t, now, event.RecordedAt)
			},
		},
		{
			name:  "taken position maps to ErrDuplicate",
			event: newEvent(3),
			mockResult: func(mock sqlmock.Sqlmock, _ *v1.Event) {
				expectLock(mock, 4)
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, event *v1.Event, err error) {
				require.ErrorIs(t, err, storage.ErrDuplicate)
				require.Equal(t, int64(3), event.Position)
			},
		},
		{
			name:  "position past the end is a gap",
			event: newEvent(7),
			mockResult: func(mock sqlmock.Sqlmock, _ *v1.Event) {
				expectLock(mock, 4)
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, _ *v1.Event, err error) {
				require.ErrorContains(t, err, "leaves a gap")
				require.False(t, errors.Is(err, storage.ErrDuplicate))
			},
		},
		{
			name:  "duplicate id maps to ErrDuplicate",
			event: newEvent(5),
			mockResult: func(mock sqlmock.Sqlmock, event *v1.Event) {
				expectLock(mock, 4)
				mock.ExpectQuery(regexp.QuoteMeta(queryInsertEvent)).
					WillReturnRows(sqlmock.NewRows([]string{"position"}))
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, event *v1.Event, err error) {
				require.ErrorIs(t, err, storage.ErrDuplicate)
				require.True(t, event.RecordedAt.IsZero())
			},
		},
		{
			name: "marshal error short-circuits",
			event: func() *v1.Event {
				evt := newEvent(0)
				evt.Data = map[string]interface{}{"value": math.NaN()}
				return evt
			}(),
			assertions: func(t *testing.T, _ *v1.Event, err error) {
				require.ErrorContains(t, err, "failed to marshal data")
			},
		},
		{
			name:  "invalid event is rejected before the database",
			event: &v1.Event{AggregateType: "Order", Type: "x", OccurredAt: occurredAt},
			assertions: func(t *testing.T, _ *v1.Event, err error) {
				require.ErrorIs(t, err, identity.ErrInvalidIdentity)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock, db := newMockAdapter(t)
			defer db.Close()
			adapter.nowFn = func() time.Time { return now }

			if tc.mockResult != nil {
				tc.mockResult(mock, tc.event)
			}

			err := adapter.Append(context.Background(), tc.event)
			tc.assertions(t, tc.event, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAdapter_EventsFor(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	occurredAt := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	recordedAt := occurredAt.Add(2 * time.Second)

	mock.ExpectQuery(regexp.QuoteMeta(queryEventsFor)).
		WithArgs("Order", "7", int64(2), int64(10), 2).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow(
				"evt-3", "Order", "7", int64(3), "line_added",
				false, int64(0), occurredAt, recordedAt,
				[]byte(`{"source":"api"}`), []byte(`{"amount":4,"cents":9007199254740993}`),
			).
			AddRow(
				"evt-4", "Order", "7", int64(4), "line_removed",
				true, int64(3), occurredAt.Add(time.Minute), recordedAt.Add(time.Minute),
				nil, []byte(`{}`),
			))

	events, err := adapter.EventsFor(context.Background(), order7, 2, 10, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, int64(3), events[0].Position)
	require.Equal(t, "api", events[0].Metadata["source"])
	require.Equal(t, json.Number("4"), events[0].Data["amount"])
	require.Equal(t, json.Number("9007199254740993"), events[0].Data["cents"])
	require.False(t, events[0].Revert)

	require.True(t, events[1].Revert)
	require.Equal(t, int64(3), events[1].RevertsPosition)
	require.Nil(t, events[1].Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_EventsForRejectsNonPositiveLimit(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	_, err := adapter.EventsFor(context.Background(), order7, 0, 10, 0)
	require.ErrorContains(t, err, "limit must be > 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_EventsForQueryError(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryEventsFor)).
		WithArgs("Order", "7", int64(0), int64(10), 5).
		WillReturnError(errors.New("connection reset"))

	_, err := adapter.EventsFor(context.Background(), order7, 0, 10, 5)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ResolveIdentity(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryResolveAggregate)).
		WithArgs("Order", "7").
		WillReturnRows(sqlmock.NewRows([]string{"type", "id"}).AddRow("Order", "7"))
	mock.ExpectQuery(regexp.QuoteMeta(queryResolveAggregate)).
		WithArgs("Order", "8").
		WillReturnError(sql.ErrNoRows)

	got, err := adapter.ResolveIdentity(context.Background(), order7)
	require.NoError(t, err)
	require.Equal(t, order7, got)

	_, err = adapter.ResolveIdentity(context.Background(), identity.New("Order", "8"))
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_MarkDeleted(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	adapter.nowFn = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(queryMarkAggregateDeleted)).
		WithArgs("Order", "7", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryMarkAggregateDeleted)).
		WithArgs("Order", "7", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.MarkDeleted(context.Background(), order7))
	require.ErrorIs(t, adapter.MarkDeleted(context.Background(), order7), storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateSchema_MissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").WithArgs("aggregates").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("events").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = validateSchema(db)
	require.ErrorContains(t, err, "events table does not exist")
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &Adapter{
		db:              db,
		stmtEventsFor:   mustPrepareStmt(t, db, mock, queryEventsFor),
		stmtResolve:     mustPrepareStmt(t, db, mock, queryResolveAggregate),
		stmtMarkDeleted: mustPrepareStmt(t, db, mock, queryMarkAggregateDeleted),
		nowFn:           func() time.Time { return time.Now().UTC() },
	}

	return adapter, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}

func eventRowColumns() []string {
	return []string{
		"id",
		"aggregate_type",
		"aggregate_id",
		"position",
		"type",
		"revert",
		"reverts_position",
		"occurred_at",
		"recorded_at",
		"metadata",
		"data",
	}
}
