package aggregation

// Supported aggregation operators.
// avg and last are deferred: they require composite state (sum+count, value+timestamp).
const (
	OpCount = "count"
	OpSum   = "sum"
	OpMin   = "min"
	OpMax   = "max"
)
