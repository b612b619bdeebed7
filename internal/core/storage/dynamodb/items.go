package dynamodb

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Latest records live under the owner's partition, one item per source,
// so an owner's lanes come back from a single query. History records get a
// partition per lane, sorted by zero-padded checkpoint.
const (
	attrPKey        = "pkey"
	attrSKey        = "skey"
	attrOwnerType   = "owner_type"
	attrOwnerID     = "owner_id"
	attrSourceType  = "source_type"
	attrSourceID    = "source_id"
	attrRecordID    = "record_id"
	attrCheckpoint  = "checkpoint"
	attrLastEventAt = "last_event_at"
	attrReverted    = "reverted"
	attrState       = "state"
	attrComputedAt  = "computed_at"

	ownerPrefix   = "O#"
	latestPrefix  = "L#"
	historyPrefix = "H#"
)

func ownerPKey(owner identity.Identity) string {
	return ownerPrefix + owner.String()
}

func latestKey(lane identity.Lane) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPKey: &types.AttributeValueMemberS{Value: ownerPKey(lane.Owner)},
		attrSKey: &types.AttributeValueMemberS{Value: latestPrefix + lane.Source.String()},
	}
}

func historyPKey(lane identity.Lane) string {
	return historyPrefix + lane.Key()
}

func checkpointSKey(checkpoint int64) string {
	return fmt.Sprintf("%020d", checkpoint)
}

func historyKey(lane identity.Lane, checkpoint int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPKey: &types.AttributeValueMemberS{Value: historyPKey(lane)},
		attrSKey: &types.AttributeValueMemberS{Value: checkpointSKey(checkpoint)},
	}
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// encodeItem returns the item storing rec under key.
func encodeItem(key map[string]types.AttributeValue, rec *snapshot.Record) map[string]types.AttributeValue {
	reverted := make([]types.AttributeValue, 0, len(rec.Reverted))
	for _, pos := range rec.Reverted {
		reverted = append(reverted, numberAttr(pos))
	}

	item := map[string]types.AttributeValue{
		attrOwnerType:   &types.AttributeValueMemberS{Value: rec.Lane.Owner.Type},
		attrOwnerID:     &types.AttributeValueMemberS{Value: rec.Lane.Owner.ID},
		attrSourceType:  &types.AttributeValueMemberS{Value: rec.Lane.Source.Type},
		attrSourceID:    &types.AttributeValueMemberS{Value: rec.Lane.Source.ID},
		attrRecordID:    &types.AttributeValueMemberS{Value: rec.ID},
		attrCheckpoint:  numberAttr(rec.Checkpoint),
		attrLastEventAt: &types.AttributeValueMemberS{Value: rec.LastEventAt.UTC().Format(time.RFC3339Nano)},
		attrReverted:    &types.AttributeValueMemberL{Value: reverted},
		attrState:       &types.AttributeValueMemberB{Value: rec.State},
		attrComputedAt:  &types.AttributeValueMemberS{Value: rec.ComputedAt.UTC().Format(time.RFC3339Nano)},
	}
	for k, v := range key {
		item[k] = v
	}
	return item
}

func decodeItem(item map[string]types.AttributeValue) (*snapshot.Record, error) {
	lane, err := decodeLane(item)
	if err != nil {
		return nil, err
	}

	rec := &snapshot.Record{Lane: lane}
	if rec.ID, err = getString(item, attrRecordID); err != nil {
		return nil, err
	}
	if rec.Checkpoint, err = getNumber(item, attrCheckpoint); err != nil {
		return nil, err
	}
	if rec.LastEventAt, err = getTime(item, attrLastEventAt); err != nil {
		return nil, err
	}
	if rec.ComputedAt, err = getTime(item, attrComputedAt); err != nil {
		return nil, err
	}

	state, err := getAttr[*types.AttributeValueMemberB](item, attrState)
	if err != nil {
		return nil, err
	}
	rec.State = state.Value

	reverted, err := getAttr[*types.AttributeValueMemberL](item, attrReverted)
	if err != nil {
		return nil, err
	}
	for _, v := range reverted.Value {
		n, ok := v.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("item is corrupt: %q holds a non-number element", attrReverted)
		}
		pos, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("item is corrupt: %q: %w", attrReverted, err)
		}
		rec.Reverted = append(rec.Reverted, pos)
	}
	return rec, nil
}

func decodeLane(item map[string]types.AttributeValue) (identity.Lane, error) {
	var (
		lane identity.Lane
		err  error
	)
	if lane.Owner.Type, err = getString(item, attrOwnerType); err != nil {
		return lane, err
	}
	if lane.Owner.ID, err = getString(item, attrOwnerID); err != nil {
		return lane, err
	}
	if lane.Source.Type, err = getString(item, attrSourceType); err != nil {
		return lane, err
	}
	if lane.Source.ID, err = getString(item, attrSourceID); err != nil {
		return lane, err
	}
	return lane, nil
}

func getAttr[T types.AttributeValue](item map[string]types.AttributeValue, name string) (v T, err error) {
	a, ok := item[name]
	if !ok {
		return v, fmt.Errorf("item is corrupt: missing %q attribute", name)
	}

	v, ok = a.(T)
	if !ok {
		return v, fmt.Errorf(
			"item is corrupt: %q attribute should be %s not %s",
			name,
			reflect.TypeOf(v).Elem().Name(),
			reflect.TypeOf(a).Elem().Name(),
		)
	}
	return v, nil
}

func getString(item map[string]types.AttributeValue, name string) (string, error) {
	v, err := getAttr[*types.AttributeValueMemberS](item, name)
	if err != nil {
		return "", err
	}
	return v.Value, nil
}

func getNumber(item map[string]types.AttributeValue, name string) (int64, error) {
	v, err := getAttr[*types.AttributeValueMemberN](item, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("item is corrupt: %q: %w", name, err)
	}
	return n, nil
}

func getTime(item map[string]types.AttributeValue, name string) (time.Time, error) {
	s, err := getString(item, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("item is corrupt: %q: %w", name, err)
	}
	return t.UTC(), nil
}
