package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// batchWriteLimit is the maximum number of requests in one BatchWriteItem call.
const batchWriteLimit = 25

// tableReadyTimeout bounds how long EnsureTable waits for a new table.
const tableReadyTimeout = 2 * time.Minute

// SnapshotStore implements storage.SnapshotStore on a single DynamoDB table.
// The latest record and its history item are written in one transaction
// conditioned on the stored checkpoint.
type SnapshotStore struct {
	client      Client
	table       string
	keepHistory int
}

var (
	_ storage.SnapshotStore         = (*SnapshotStore)(nil)
	_ storage.SnapshotHistoryReader = (*SnapshotStore)(nil)
	_ storage.LaneLister            = (*SnapshotStore)(nil)
	_ storage.OwnerReader           = (*SnapshotStore)(nil)
)

// NewSnapshotStore returns a store over table. keepHistory is the number of
// checkpoints retained per lane; 0 disables history.
func NewSnapshotStore(client Client, table string, keepHistory int) *SnapshotStore {
	if keepHistory < 0 {
		keepHistory = 0
	}
	return &SnapshotStore{client: client, table: table, keepHistory: keepHistory}
}

// Save stores rec if the lane's stored checkpoint equals expectedPrior.
func (s *SnapshotStore) Save(ctx context.Context, rec *snapshot.Record, expectedPrior int64) error {
	if rec == nil {
		return fmt.Errorf("snapshot save: nil record")
	}
	if rec.Checkpoint <= expectedPrior {
		return fmt.Errorf("%w: %s checkpoint %d does not advance %d",
			storage.ErrCheckpointConflict, rec.Lane, rec.Checkpoint, expectedPrior)
	}

	latest := &types.Put{
		TableName: aws.String(s.table),
		Item:      encodeItem(latestKey(rec.Lane), rec),
	}
	if expectedPrior == 0 {
		latest.ConditionExpression = aws.String("attribute_not_exists(pkey) AND attribute_not_exists(skey)")
	} else {
		latest.ConditionExpression = aws.String("#checkpoint = :expected")
		latest.ExpressionAttributeNames = map[string]string{"#checkpoint": attrCheckpoint}
		latest.ExpressionAttributeValues = map[string]types.AttributeValue{":expected": numberAttr(expectedPrior)}
	}

	items := []types.TransactWriteItem{{Put: latest}}
	if s.keepHistory > 0 {
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(s.table),
			Item:      encodeItem(historyKey(rec.Lane, rec.Checkpoint), rec),
		}})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					slog.Warn("[DynamoDB] Rejecting snapshot write from stale checkpoint",
						"lane", rec.Lane.String(),
						"expected_prior", expectedPrior,
						"checkpoint", rec.Checkpoint)
					return fmt.Errorf("%w: %s stored checkpoint is not %d",
						storage.ErrCheckpointConflict, rec.Lane, expectedPrior)
				}
			}
		}
		return fmt.Errorf("snapshot save: write %s: %w", rec.Lane, err)
	}

	// Pruning is outside the transaction; a failure leaves extra history
	// that the next save removes.
	if s.keepHistory > 0 {
		if err := s.pruneHistory(ctx, rec.Lane); err != nil {
			slog.Warn("[DynamoDB] Failed to prune snapshot history",
				"lane", rec.Lane.String(),
				"error", err)
		}
	}

	slog.Debug("[DynamoDB] Saved",
		"lane", rec.Lane.String(),
		"checkpoint", rec.Checkpoint,
		"expected_prior", expectedPrior,
	)
	return nil
}

func (s *SnapshotStore) pruneHistory(ctx context.Context, lane identity.Lane) error {
	in := &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pkey = :pkey"),
		ProjectionExpression:     aws.String("#pkey, #skey"),
		ExpressionAttributeNames: map[string]string{"#pkey": attrPKey, "#skey": attrSKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pkey": &types.AttributeValueMemberS{Value: historyPKey(lane)},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var (
		seen    int
		deletes []types.WriteRequest
	)
	err := s.query(ctx, in, func(item map[string]types.AttributeValue) error {
		seen++
		if seen > s.keepHistory {
			deletes = append(deletes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{attrPKey: item[attrPKey], attrSKey: item[attrSKey]},
			}})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(deletes); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(deletes))
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: deletes[start:end]},
		})
		if err != nil {
			return fmt.Errorf("delete history of %s: %w", lane, err)
		}
		if n := len(out.UnprocessedItems[s.table]); n > 0 {
			slog.Debug("[DynamoDB] History deletes left unprocessed", "lane", lane.String(), "count", n)
		}
	}
	return nil
}

// LoadLatest returns the latest record of lane, or nil when none exists.
func (s *SnapshotStore) LoadLatest(ctx context.Context, lane identity.Lane) (*snapshot.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            latestKey(lane),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", lane, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	rec, err := decodeItem(out.Item)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", lane, err)
	}
	return rec, nil
}

// LoadAtOrBefore returns the newest retained record with checkpoint <= position.
func (s *SnapshotStore) LoadAtOrBefore(ctx context.Context, lane identity.Lane, position int64) (*snapshot.Record, error) {
	if position < 0 || s.keepHistory == 0 {
		return nil, nil
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pkey = :pkey AND #skey <= :skey"),
		ExpressionAttributeNames: map[string]string{"#pkey": attrPKey, "#skey": attrSKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pkey": &types.AttributeValueMemberS{Value: historyPKey(lane)},
			":skey": &types.AttributeValueMemberS{Value: checkpointSKey(position)},
		},
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(true),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot history %s at %d: %w", lane, position, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	rec, err := decodeItem(out.Items[0])
	if err != nil {
		return nil, fmt.Errorf("load snapshot history %s at %d: %w", lane, position, err)
	}
	return rec, nil
}

// LoadByOwner returns the latest record of every lane owned by owner,
// the direct lane first.
func (s *SnapshotStore) LoadByOwner(ctx context.Context, owner identity.Identity) ([]*snapshot.Record, error) {
	in := &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pkey = :pkey AND begins_with(#skey, :latest)"),
		ExpressionAttributeNames: map[string]string{"#pkey": attrPKey, "#skey": attrSKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pkey":   &types.AttributeValueMemberS{Value: ownerPKey(owner)},
			":latest": &types.AttributeValueMemberS{Value: latestPrefix},
		},
		ConsistentRead: aws.Bool(true),
	}

	var out []*snapshot.Record
	err := s.query(ctx, in, func(item map[string]types.AttributeValue) error {
		rec, err := decodeItem(item)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshots of %s: %w", owner, err)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Lane, out[j].Lane
		if a.IsJoin() != b.IsJoin() {
			return !a.IsJoin()
		}
		return a.Source.String() < b.Source.String()
	})
	return out, nil
}

// ListLanes enumerates every lane with a stored record.
func (s *SnapshotStore) ListLanes(ctx context.Context) ([]identity.Lane, error) {
	in := &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		FilterExpression:     aws.String("begins_with(#pkey, :owner)"),
		ProjectionExpression: aws.String("#owner_type, #owner_id, #source_type, #source_id"),
		ExpressionAttributeNames: map[string]string{
			"#pkey":        attrPKey,
			"#owner_type":  attrOwnerType,
			"#owner_id":    attrOwnerID,
			"#source_type": attrSourceType,
			"#source_id":   attrSourceID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: ownerPrefix},
		},
	}

	var lanes []identity.Lane
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list snapshot lanes: %w", err)
		}
		for _, item := range out.Items {
			lane, err := decodeLane(item)
			if err != nil {
				return nil, fmt.Errorf("list snapshot lanes: %w", err)
			}
			lanes = append(lanes, lane)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(lanes, func(i, j int) bool { return lanes[i].Key() < lanes[j].Key() })
	slog.Debug("[DynamoDB] Listed lanes", "count", len(lanes))
	return lanes, nil
}

// query runs in page by page, calling fn for every item.
func (s *SnapshotStore) query(ctx context.Context, in *dynamodb.QueryInput, fn func(map[string]types.AttributeValue) error) error {
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Ping checks that the table is reachable.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}

// EnsureTable creates the table if it does not exist and waits until it is active.
func (s *SnapshotStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSKey), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil && !errors.As(err, new(*types.ResourceInUseException)) {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableReadyTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", s.table, err)
	}

	slog.Info("[DynamoDB] Table ready", "table", s.table)
	return nil
}
