package engine

import (
	"context"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/partition"
	"golang.org/x/sync/semaphore"
)

// laneLocks is a striped lock keyed by lane. Two lanes may share a stripe;
// that only costs parallelism, never correctness.
type laneLocks struct {
	stripes []*semaphore.Weighted
}

func newLaneLocks(n int) *laneLocks {
	stripes := make([]*semaphore.Weighted, n)
	for i := range stripes {
		stripes[i] = semaphore.NewWeighted(1)
	}
	return &laneLocks{stripes: stripes}
}

// lock blocks until lane's stripe is free or ctx is done.
func (l *laneLocks) lock(ctx context.Context, lane identity.Lane) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	stripe := l.stripes[partition.ForN(lane.Key(), len(l.stripes))]
	if err := stripe.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { stripe.Release(1) }, nil
}
