package projection

import (
	"testing"
	"time"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	coreagg "github.com/aevon-lab/asof/internal/core/aggregation"
	"github.com/aevon-lab/asof/internal/engine"
	"github.com/stretchr/testify/require"
)

var ruleSet = []coreagg.AggregationRule{
	{Name: "line_total", AggregateType: "Order", SourceEvent: "line_added", Operator: coreagg.OpSum, Field: "amount", Fingerprint: "fp-total"},
	{Name: "line_count", AggregateType: "Order", SourceEvent: "line_added", Operator: coreagg.OpCount, Fingerprint: "fp-count"},
	{Name: "largest_line", AggregateType: "Order", SourceEvent: "line_added", Operator: coreagg.OpMax, Field: "amount", Fingerprint: "fp-max"},
}

func lineAdded(pos int64, amount int) *v1.Event {
	return &v1.Event{
		AggregateType: "Order",
		AggregateID:   "7",
		Position:      pos,
		Type:          "line_added",
		OccurredAt:    time.Date(2026, 2, 7, 10, int(pos), 0, 0, time.UTC),
		Data:          map[string]interface{}{"amount": amount},
	}
}

func requireMetric(t *testing.T, s State, name string, value string, count int64) {
	t.Helper()
	m, ok := s.Metrics[name]
	require.True(t, ok, "metric %s missing", name)
	require.Equal(t, value, m.Value.String(), name)
	require.Equal(t, count, m.EventCount, name)
}

func TestRuleReducer_Apply(t *testing.T) {
	r := NewRuleReducer(ruleSet)

	s0 := r.Empty()
	s1, err := r.Apply(s0, lineAdded(1, 4))
	require.NoError(t, err)
	s2, err := r.Apply(s1, lineAdded(2, 6))
	require.NoError(t, err)

	require.Empty(t, s0.Metrics, "empty state must not be mutated")
	requireMetric(t, s1, "line_total", "4", 1)
	requireMetric(t, s2, "line_total", "10", 2)
	requireMetric(t, s2, "line_count", "2", 2)
	requireMetric(t, s2, "largest_line", "6", 2)
	require.Equal(t, "fp-total", s2.Metrics["line_total"].Fingerprint)
}

func TestRuleReducer_ApplyIgnoresUnmatchedEvents(t *testing.T) {
	r := NewRuleReducer(ruleSet)
	s, err := r.Apply(r.Empty(), &v1.Event{Type: "order_placed"})
	require.NoError(t, err)
	require.Empty(t, s.Metrics)
}

func TestRuleReducer_RevertInvertibleOperators(t *testing.T) {
	r := NewRuleReducer(ruleSet[:2])

	s, err := r.Apply(r.Empty(), lineAdded(1, 4))
	require.NoError(t, err)
	s, err = r.Apply(s, lineAdded(2, 6))
	require.NoError(t, err)

	reverted, err := r.Revert(s, lineAdded(2, 6), nil)
	require.NoError(t, err)
	requireMetric(t, reverted, "line_total", "4", 1)
	requireMetric(t, reverted, "line_count", "1", 1)
	requireMetric(t, s, "line_total", "10", 2)
}

func TestRuleReducer_RevertLastContributionRemovesMetric(t *testing.T) {
	r := NewRuleReducer(ruleSet)

	s, err := r.Apply(r.Empty(), lineAdded(1, 4))
	require.NoError(t, err)
	reverted, err := r.Revert(s, lineAdded(1, 4), nil)
	require.NoError(t, err)
	require.Equal(t, r.Empty(), reverted)
}

func TestRuleReducer_RevertOfExtremeNeedsRebuild(t *testing.T) {
	r := NewRuleReducer(ruleSet)

	s, err := r.Apply(r.Empty(), lineAdded(1, 4))
	require.NoError(t, err)
	s, err = r.Apply(s, lineAdded(2, 6))
	require.NoError(t, err)

	_, err = r.Revert(s, lineAdded(2, 6), nil)
	require.ErrorIs(t, err, engine.ErrRevertUnsupported)
	require.ErrorIs(t, err, coreagg.ErrNotInvertible)

	// Reverting a non-extreme value keeps max in place.
	reverted, err := r.Revert(s, lineAdded(1, 4), nil)
	require.NoError(t, err)
	requireMetric(t, reverted, "largest_line", "6", 1)
}

func TestMergeMetrics(t *testing.T) {
	r := NewRuleReducer(ruleSet)
	a, err := r.Apply(r.Empty(), lineAdded(1, 4))
	require.NoError(t, err)
	b, err := r.Apply(r.Empty(), lineAdded(1, 9))
	require.NoError(t, err)

	merged := map[string]Metric{}
	mergeMetrics(merged, a.Metrics)
	mergeMetrics(merged, b.Metrics)

	require.Equal(t, "13", merged["line_total"].Value.String())
	require.Equal(t, "2", merged["line_count"].Value.String())
	require.Equal(t, "9", merged["largest_line"].Value.String())
	require.Equal(t, int64(2), merged["line_total"].EventCount)
}
