package partition

import "github.com/cespare/xxhash/v2"

// Count is the default number of lock stripes.
const Count = 256

// For returns the stripe for key out of Count.
// Stable and deterministic: the same key always maps to the same stripe.
func For(key string) int {
	return ForN(key, Count)
}

// ForN returns the stripe for key out of n (n <= 0 is treated as 1).
func ForN(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
