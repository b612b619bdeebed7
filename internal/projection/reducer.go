package projection

import (
	"errors"
	"fmt"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	coreagg "github.com/aevon-lab/asof/internal/core/aggregation"
	"github.com/aevon-lab/asof/internal/engine"
	"github.com/shopspring/decimal"
)

// RuleReducer folds events into per-rule metrics. It implements
// engine.Reducer[State]. States are never mutated in place.
type RuleReducer struct {
	rules []coreagg.AggregationRule
}

var _ engine.Reducer[State] = (*RuleReducer)(nil)

// NewRuleReducer returns a reducer applying rules to every event whose type
// matches a rule's source event.
func NewRuleReducer(rules []coreagg.AggregationRule) *RuleReducer {
	return &RuleReducer{rules: append([]coreagg.AggregationRule(nil), rules...)}
}

// Rules returns the rules the reducer applies.
func (r *RuleReducer) Rules() []coreagg.AggregationRule {
	return append([]coreagg.AggregationRule(nil), r.rules...)
}

func (r *RuleReducer) Empty() State {
	return State{Metrics: map[string]Metric{}}
}

func (r *RuleReducer) Apply(s State, evt *v1.Event) (State, error) {
	var next map[string]Metric
	for _, rule := range r.rules {
		if rule.SourceEvent != evt.Type {
			continue
		}
		agg, ok := coreagg.Operators[rule.Operator]
		if !ok {
			return s, fmt.Errorf("rule %q: unsupported operator %q", rule.Name, rule.Operator)
		}
		if next == nil {
			next = cloneMetrics(s.Metrics)
		}

		value := coreagg.ExtractDecimal(evt.Data, rule.Field)
		m, exists := next[rule.Name]
		if !exists {
			next[rule.Name] = Metric{
				Operator:    rule.Operator,
				Value:       coreagg.Canonical(agg.Initial(value)),
				EventCount:  1,
				Fingerprint: rule.Fingerprint,
			}
			continue
		}
		m.Value = coreagg.Canonical(agg.Apply(m.Value, value))
		m.EventCount++
		m.Fingerprint = rule.Fingerprint
		next[rule.Name] = m
	}
	if next == nil {
		return s, nil
	}
	return State{Metrics: next}, nil
}

// Revert removes target's contribution. Operators that cannot remove a
// value yield engine.ErrRevertUnsupported so the engine rebuilds instead.
func (r *RuleReducer) Revert(s State, target, _ *v1.Event) (State, error) {
	var next map[string]Metric
	for _, rule := range r.rules {
		if rule.SourceEvent != target.Type {
			continue
		}
		agg, ok := coreagg.Operators[rule.Operator]
		if !ok {
			return s, fmt.Errorf("rule %q: unsupported operator %q", rule.Name, rule.Operator)
		}
		if next == nil {
			next = cloneMetrics(s.Metrics)
		}

		m, exists := next[rule.Name]
		if !exists || m.EventCount <= 0 {
			return s, fmt.Errorf("%w: metric %s has no contribution to remove", engine.ErrRevertUnsupported, rule.Name)
		}
		if m.EventCount == 1 {
			delete(next, rule.Name)
			continue
		}

		value, err := agg.Revert(m.Value, coreagg.ExtractDecimal(target.Data, rule.Field))
		if errors.Is(err, coreagg.ErrNotInvertible) {
			return s, fmt.Errorf("%w: metric %s: %w", engine.ErrRevertUnsupported, rule.Name, err)
		}
		if err != nil {
			return s, fmt.Errorf("revert metric %s: %w", rule.Name, err)
		}
		m.Value = coreagg.Canonical(value)
		m.EventCount--
		next[rule.Name] = m
	}
	if next == nil {
		return s, nil
	}
	return State{Metrics: next}, nil
}

func cloneMetrics(in map[string]Metric) map[string]Metric {
	out := make(map[string]Metric, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// mergeMetrics folds src into dst per rule, combining values by operator.
func mergeMetrics(dst, src map[string]Metric) {
	for name, incoming := range src {
		current, exists := dst[name]
		if !exists {
			dst[name] = incoming
			continue
		}
		current.Value = coreagg.Canonical(mergeAggregateValue(current.Operator, current.Value, incoming.Value))
		current.EventCount += incoming.EventCount
		dst[name] = current
	}
}

func mergeAggregateValue(operator string, current, incoming decimal.Decimal) decimal.Decimal {
	switch operator {
	case coreagg.OpCount, coreagg.OpSum:
		return current.Add(incoming)
	case coreagg.OpMin:
		if incoming.LessThan(current) {
			return incoming
		}
		return current
	case coreagg.OpMax:
		if incoming.GreaterThan(current) {
			return incoming
		}
		return current
	default:
		return incoming
	}
}
