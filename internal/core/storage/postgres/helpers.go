package postgres

import (
	"bytes"
	"encoding/json"
	"fmt"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
)

// marshalEventJSON marshals an event's metadata and data fields to JSON.
// Returns metadata and data as JSON bytes, handling nil metadata gracefully.
//
// Nil metadata produces nil (SQL NULL) rather than JSON "null" string.
func marshalEventJSON(event *v1.Event) (metadataJSON, dataJSON []byte, err error) {
	if len(event.Metadata) > 0 {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	data := event.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	dataJSON, err = json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	return metadataJSON, dataJSON, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a database row into an Event struct.
// Handles JSON unmarshalling for metadata and data fields.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var metadataJSON, dataJSON []byte

	err := row.Scan(
		&evt.ID,
		&evt.AggregateType,
		&evt.AggregateID,
		&evt.Position,
		&evt.Type,
		&evt.Revert,
		&evt.RevertsPosition,
		&evt.OccurredAt,
		&evt.RecordedAt,
		&metadataJSON,
		&dataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &evt.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if err := decodeEventData(dataJSON, &evt.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return &evt, nil
}

// decodeEventData keeps numbers as json.Number so amounts beyond float64
// precision reach the aggregation operators intact.
func decodeEventData(raw []byte, data *map[string]interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(data)
}

// laneArgs expands a lane into the four key columns shared by the snapshot tables.
func laneArgs(lane identity.Lane) []interface{} {
	return []interface{}{lane.Owner.Type, lane.Owner.ID, lane.Source.Type, lane.Source.ID}
}

// recordArgs returns the column values of rec in snapshot table order.
func recordArgs(rec *snapshot.Record) ([]interface{}, error) {
	reverted := rec.Reverted
	if reverted == nil {
		reverted = []int64{}
	}
	revertedJSON, err := json.Marshal(reverted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reverted positions: %w", err)
	}
	state := rec.State
	if len(state) == 0 {
		state = json.RawMessage("null")
	}

	return append(laneArgs(rec.Lane),
		rec.ID,
		rec.Checkpoint,
		rec.LastEventAt,
		revertedJSON,
		[]byte(state),
		rec.ComputedAt,
	), nil
}

// scanSnapshotRow scans a snapshots or snapshot_history row.
func scanSnapshotRow(row scanner) (*snapshot.Record, error) {
	var (
		rec                 snapshot.Record
		revertedJSON, state []byte
	)

	err := row.Scan(
		&rec.Lane.Owner.Type,
		&rec.Lane.Owner.ID,
		&rec.Lane.Source.Type,
		&rec.Lane.Source.ID,
		&rec.ID,
		&rec.Checkpoint,
		&rec.LastEventAt,
		&revertedJSON,
		&state,
		&rec.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(revertedJSON) > 0 {
		if err := json.Unmarshal(revertedJSON, &rec.Reverted); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reverted positions: %w", err)
		}
	}
	if len(rec.Reverted) == 0 {
		rec.Reverted = nil
	}
	rec.State = json.RawMessage(state)
	rec.LastEventAt = rec.LastEventAt.UTC()
	rec.ComputedAt = rec.ComputedAt.UTC()
	return &rec, nil
}
