package projection

import (
	"encoding/json"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/shopspring/decimal"
)

// Metric is the materialized value of one rule within a lane.
type Metric struct {
	Operator    string          `json:"operator"`
	Value       decimal.Decimal `json:"value"`
	EventCount  int64           `json:"event_count"`
	Fingerprint string          `json:"rule_fingerprint,omitempty"`
}

// State is the snapshot state produced by RuleReducer, keyed by rule name.
// A metric that no live event contributes to is absent.
type State struct {
	Metrics map[string]Metric `json:"metrics"`
}

// LaneView is one computed lane of a View.
type LaneView struct {
	Source      identity.Identity `json:"source"`
	Join        bool              `json:"join"`
	Checkpoint  int64             `json:"checkpoint"`
	Reverted    []int64           `json:"reverted,omitempty"`
	LastEventAt time.Time         `json:"last_event_at,omitempty"`
	Metrics     map[string]Metric `json:"metrics"`
}

// View is an owner's direct lane and join lanes computed at Latest, with
// the metrics of all lanes merged per rule.
type View struct {
	Owner   identity.Identity `json:"owner"`
	Metrics map[string]Metric `json:"metrics"`
	Lanes   []LaneView        `json:"lanes"`
}

// LaneRecord is the stored record of one lane as returned by the read API.
type LaneRecord struct {
	RecordID    string            `json:"record_id"`
	Source      identity.Identity `json:"source"`
	Join        bool              `json:"join"`
	Checkpoint  int64             `json:"checkpoint"`
	LastEventAt time.Time         `json:"last_event_at"`
	Reverted    []int64           `json:"reverted"`
	ComputedAt  time.Time         `json:"computed_at"`
	State       json.RawMessage   `json:"state"`
}

// OwnerSnapshots lists every stored lane of an owner. DependsOn holds the
// sources of the owner's join lanes.
type OwnerSnapshots struct {
	Owner     identity.Identity   `json:"owner"`
	Lanes     []LaneRecord        `json:"lanes"`
	DependsOn []identity.Identity `json:"depends_on"`
}
