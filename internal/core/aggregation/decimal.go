package aggregation

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ExtractDecimal reads the numeric field of an event's data.
//
// Events appended in process carry Go numbers; events read back from
// PostgreSQL carry json.Number, which holds integers beyond 2^53 exactly.
// Decimal strings are accepted as well. Anything else counts as zero.
func ExtractDecimal(data map[string]interface{}, field string) decimal.Decimal {
	if field == "" {
		return decimal.Zero
	}
	v, ok := data[field]
	if !ok {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch val := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case float64:
		d = decimal.NewFromFloat(val)
	case float32:
		d = decimal.NewFromFloat32(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case int64:
		d = decimal.NewFromInt(val)
	case int32:
		d = decimal.NewFromInt32(val)
	case uint64:
		d = decimal.NewFromUint64(val)
	default:
		return decimal.Zero
	}
	return Canonical(d)
}

// Canonical returns d in the representation it decodes to after a JSON
// round trip: trailing fractional zeros trimmed and a non-negative exponent
// folded into the coefficient. Metric values are kept canonical so a state
// resumed from a stored snapshot is identical to one replayed in memory.
func Canonical(d decimal.Decimal) decimal.Decimal {
	return decimal.RequireFromString(d.String())
}
