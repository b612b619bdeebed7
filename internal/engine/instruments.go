package engine

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/aevon-lab/asof/internal/engine"

type instruments struct {
	eventsApplied      metric.Int64Counter
	snapshotsPersisted metric.Int64Counter
	conflicts          metric.Int64Counter
	rebuilds           metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider) (instruments, error) {
	meter := mp.Meter(instrumentationName)

	var (
		ins instruments
		err error
	)
	if ins.eventsApplied, err = meter.Int64Counter("asof.engine.events_applied",
		metric.WithDescription("Events folded into snapshots, reverts included")); err != nil {
		return ins, fmt.Errorf("events_applied counter: %w", err)
	}
	if ins.snapshotsPersisted, err = meter.Int64Counter("asof.engine.snapshots_persisted",
		metric.WithDescription("Checkpoint advances written to the snapshot store")); err != nil {
		return ins, fmt.Errorf("snapshots_persisted counter: %w", err)
	}
	if ins.conflicts, err = meter.Int64Counter("asof.engine.checkpoint_conflicts",
		metric.WithDescription("Saves rejected because another computation advanced the lane")); err != nil {
		return ins, fmt.Errorf("checkpoint_conflicts counter: %w", err)
	}
	if ins.rebuilds, err = meter.Int64Counter("asof.engine.revert_rebuilds",
		metric.WithDescription("Reverts handled by rebuilding state from the origin")); err != nil {
		return ins, fmt.Errorf("revert_rebuilds counter: %w", err)
	}
	return ins, nil
}
