package aggregation

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotInvertible is returned by Revert for operators whose result cannot be
// recomputed without the other contributing values.
var ErrNotInvertible = errors.New("operator is not invertible")

// Aggregator defines the reduce semantics of an aggregation operator.
// To add a new operator: implement this interface and register it in Operators.
type Aggregator interface {
	// Initial returns the aggregate value after the very first event for a metric.
	// count → 1; sum/min/max → the incoming value itself.
	Initial(incoming decimal.Decimal) decimal.Decimal

	// Apply folds an incoming value into an existing aggregate.
	Apply(current, incoming decimal.Decimal) decimal.Decimal

	// Revert removes one previously applied value from an aggregate that
	// still has other contributors, or returns ErrNotInvertible.
	Revert(current, outgoing decimal.Decimal) (decimal.Decimal, error)
}

// Operators is the registry of all supported aggregation operators.
var Operators = map[string]Aggregator{
	OpCount: countAgg{},
	OpSum:   sumAgg{},
	OpMin:   minAgg{},
	OpMax:   maxAgg{},
}

// ValidOperator reports whether op is a registered aggregation operator.
func ValidOperator(op string) bool {
	_, ok := Operators[op]
	return ok
}

// countAgg increments by 1 per event. The incoming value is ignored.
type countAgg struct{}

func (countAgg) Initial(_ decimal.Decimal) decimal.Decimal    { return decimal.NewFromInt(1) }
func (countAgg) Apply(cur, _ decimal.Decimal) decimal.Decimal { return cur.Add(decimal.NewFromInt(1)) }
func (countAgg) Revert(cur, _ decimal.Decimal) (decimal.Decimal, error) {
	return cur.Sub(decimal.NewFromInt(1)), nil
}

// sumAgg accumulates the sum of incoming values.
type sumAgg struct{}

func (sumAgg) Initial(v decimal.Decimal) decimal.Decimal      { return v }
func (sumAgg) Apply(cur, inc decimal.Decimal) decimal.Decimal { return cur.Add(inc) }
func (sumAgg) Revert(cur, out decimal.Decimal) (decimal.Decimal, error) {
	return cur.Sub(out), nil
}

// minAgg tracks the minimum value seen.
type minAgg struct{}

func (minAgg) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (minAgg) Apply(cur, inc decimal.Decimal) decimal.Decimal {
	if inc.LessThan(cur) {
		return inc
	}
	return cur
}

// Removing a value above the minimum leaves it unchanged; removing the
// minimum itself needs the remaining values.
func (minAgg) Revert(cur, out decimal.Decimal) (decimal.Decimal, error) {
	if out.GreaterThan(cur) {
		return cur, nil
	}
	return cur, ErrNotInvertible
}

// maxAgg tracks the maximum value seen.
type maxAgg struct{}

func (maxAgg) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (maxAgg) Apply(cur, inc decimal.Decimal) decimal.Decimal {
	if inc.GreaterThan(cur) {
		return inc
	}
	return cur
}

func (maxAgg) Revert(cur, out decimal.Decimal) (decimal.Decimal, error) {
	if out.LessThan(cur) {
		return cur, nil
	}
	return cur, ErrNotInvertible
}
