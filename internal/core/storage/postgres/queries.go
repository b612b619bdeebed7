package postgres

// SQL queries for event streams and versioned snapshots

const (
	// queryInsertAggregate registers a stream on its first append.
	queryInsertAggregate = `
		INSERT INTO aggregates (type, id, last_position, created_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (type, id) DO NOTHING
	`

	// querySelectAggregateForUpdate locks the stream row so concurrent
	// appends to one stream serialize on position assignment.
	querySelectAggregateForUpdate = `
		SELECT last_position
		FROM aggregates
		WHERE type = $1 AND id = $2
		FOR UPDATE
	`

	// queryInsertEvent appends one event. ON CONFLICT DO NOTHING returns no
	// rows (sql.ErrNoRows) when the id or the position is already taken.
	queryInsertEvent = `
		INSERT INTO events (
			id, aggregate_type, aggregate_id, position, type,
			revert, reverts_position, occurred_at, recorded_at, metadata, data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING
		RETURNING position
	`

	queryAdvanceAggregate = `
		UPDATE aggregates
		SET last_position = $1
		WHERE type = $2 AND id = $3 AND last_position = $4
	`

	// queryEventsFor pages through one stream in position order.
	queryEventsFor = `
		SELECT
			id, aggregate_type, aggregate_id, position, type,
			revert, reverts_position, occurred_at, recorded_at, metadata, data
		FROM events
		WHERE aggregate_type = $1
		  AND aggregate_id = $2
		  AND position > $3
		  AND position <= $4
		ORDER BY position ASC
		LIMIT $5
	`

	// queryResolveAggregate matches live streams that hold at least one event.
	queryResolveAggregate = `
		SELECT type, id
		FROM aggregates
		WHERE type = $1 AND id = $2
		  AND deleted_at IS NULL
		  AND last_position > 0
	`

	queryMarkAggregateDeleted = `
		UPDATE aggregates
		SET deleted_at = $3
		WHERE type = $1 AND id = $2 AND deleted_at IS NULL
	`

	querySelectSnapshotCheckpointForUpdate = `
		SELECT checkpoint
		FROM snapshots
		WHERE owner_type = $1 AND owner_id = $2 AND source_type = $3 AND source_id = $4
		FOR UPDATE
	`

	queryInsertSnapshot = `
		INSERT INTO snapshots (
			owner_type, owner_id, source_type, source_id,
			record_id, checkpoint, last_event_at, reverted, state, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_type, owner_id, source_type, source_id) DO NOTHING
	`

	// queryUpdateSnapshot is the compare-and-set: it only matches the row
	// still holding the checkpoint the caller computed from.
	queryUpdateSnapshot = `
		UPDATE snapshots
		SET record_id = $5, checkpoint = $6, last_event_at = $7,
		    reverted = $8, state = $9, computed_at = $10
		WHERE owner_type = $1 AND owner_id = $2 AND source_type = $3 AND source_id = $4
		  AND checkpoint = $11
	`

	queryInsertSnapshotHistory = `
		INSERT INTO snapshot_history (
			owner_type, owner_id, source_type, source_id,
			record_id, checkpoint, last_event_at, reverted, state, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_type, owner_id, source_type, source_id, checkpoint) DO NOTHING
	`

	// queryPruneSnapshotHistory keeps the newest $5 checkpoints of a lane.
	queryPruneSnapshotHistory = `
		DELETE FROM snapshot_history
		WHERE owner_type = $1 AND owner_id = $2 AND source_type = $3 AND source_id = $4
		  AND checkpoint < (
			SELECT MIN(checkpoint) FROM (
				SELECT checkpoint FROM snapshot_history
				WHERE owner_type = $1 AND owner_id = $2 AND source_type = $3 AND source_id = $4
				ORDER BY checkpoint DESC
				LIMIT $5
			) AS kept
		  )
	`

	queryLoadLatestSnapshot = `
		SELECT
			owner_type, owner_id, source_type, source_id,
			record_id, checkpoint, last_event_at, reverted, state, computed_at
		FROM snapshots
		WHERE owner_type = $1 AND owner_id = $2 AND source_type = $3 AND source_id = $4
	`

	queryLoadSnapshotAtOrBefore = `
		SELECT
			owner_type, owner_id, source_type, source_id,
			record_id, checkpoint, last_event_at, reverted, state, computed_at
		FROM snapshot_history
		WHERE owner_type = $1 AND owner_id = $2 AND source_type = $3 AND source_id = $4
		  AND checkpoint <= $5
		ORDER BY checkpoint DESC
		LIMIT 1
	`

	// queryLoadSnapshotsByOwner returns the direct lane first, then join
	// lanes by source.
	queryLoadSnapshotsByOwner = `
		SELECT
			owner_type, owner_id, source_type, source_id,
			record_id, checkpoint, last_event_at, reverted, state, computed_at
		FROM snapshots
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY (source_type = owner_type AND source_id = owner_id) DESC, source_type ASC, source_id ASC
	`

	queryListSnapshotLanes = `
		SELECT owner_type, owner_id, source_type, source_id
		FROM snapshots
		ORDER BY owner_type, owner_id, source_type, source_id
	`
)
