package inventory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/linyucheng/seatbook-backend/pkg/logger"
)

const (
	transactBatchLimit = 100
	releaseAttempts    = 4
)

// dynamoAPI is the DynamoDB surface the store depends on, narrowed for tests.
type dynamoAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore keeps one item per table, each carrying a version counter.
// Seat adjustments ride DynamoDB condition expressions; snapshot writes
// condition every touched item on the version captured at read time.
type DynamoStore struct {
	client dynamoAPI
	table  string
	logg   *logger.Logger
}

// NewDynamoStore binds the store to the tables table.
func NewDynamoStore(client dynamoAPI, table string, logg *logger.Logger) *DynamoStore {
	return &DynamoStore{client: client, table: table, logg: logg}
}

type tableItem struct {
	TableID   int    `dynamodbav:"table_id"`
	Name      string `dynamodbav:"name"`
	Total     int    `dynamodbav:"total"`
	SeatsLeft int    `dynamodbav:"seats_left"`
	Version   int64  `dynamodbav:"version"`
}

func (i tableItem) state() TableState {
	return TableState{ID: i.TableID, Name: i.Name, Total: i.Total, SeatsLeft: i.SeatsLeft}
}

// versionEntry is what the opaque snapshot token captures per item: the
// CAS counter plus the state observed at read time, so WriteAll can
// write only the items the caller actually changed.
type versionEntry struct {
	Version   int64  `json:"v"`
	Name      string `json:"n"`
	Total     int    `json:"t"`
	SeatsLeft int    `json:"l"`
}

func (s *DynamoStore) ReadAll(ctx context.Context) (Snapshot, error) {
	tables := map[int]TableState{}
	versions := map[int]versionEntry{}

	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return Snapshot{}, fmt.Errorf("scan tables: %w", err)
		}
		for _, raw := range out.Items {
			var item tableItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return Snapshot{}, fmt.Errorf("decode table item: %w", err)
			}
			tables[item.TableID] = item.state()
			versions[item.TableID] = versionEntry{
				Version:   item.Version,
				Name:      item.Name,
				Total:     item.Total,
				SeatsLeft: item.SeatsLeft,
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	token, err := encodeVersionToken(versions)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Tables: tables, Version: token}, nil
}

// WriteAll conditionally replaces every item whose desired state differs
// from the state captured in the version token. All touched items go
// through one TransactWriteItems call (chunked at the service limit), so
// a stale version on any item fails the whole write.
func (s *DynamoStore) WriteAll(ctx context.Context, tables map[int]TableState, expectedVersion string) error {
	versions, err := decodeVersionToken(expectedVersion)
	if err != nil {
		return err
	}

	var writes []ddbtypes.TransactWriteItem
	for id, desired := range tables {
		captured, seen := versions[id]
		if seen && captured.SeatsLeft == desired.SeatsLeft && captured.Total == desired.Total && captured.Name == desired.Name {
			continue
		}

		item := tableItem{
			TableID:   id,
			Name:      desired.Name,
			Total:     desired.Total,
			SeatsLeft: desired.SeatsLeft,
			Version:   captured.Version + 1,
		}
		raw, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("encode table item: %w", err)
		}

		put := &ddbtypes.Put{
			TableName: aws.String(s.table),
			Item:      raw,
		}
		if seen {
			put.ConditionExpression = aws.String("version = :v")
			put.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
				":v": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", captured.Version)},
			}
		} else {
			put.ConditionExpression = aws.String("attribute_not_exists(table_id)")
		}
		writes = append(writes, ddbtypes.TransactWriteItem{Put: put})
	}

	for start := 0; start < len(writes); start += transactBatchLimit {
		end := start + transactBatchLimit
		if end > len(writes) {
			end = len(writes)
		}
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: writes[start:end],
		})
		if err != nil {
			if isTransactionConflict(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("transact inventory write: %w", err)
		}
	}
	return nil
}

// AdjustSeats applies the delta through a condition expression, the
// native equivalent of the CAS loop.
func (s *DynamoStore) AdjustSeats(ctx context.Context, tableID, delta int) error {
	if delta == 0 {
		return nil
	}

	key, err := attributevalue.MarshalMap(map[string]int{"table_id": tableID})
	if err != nil {
		return err
	}

	if delta < 0 {
		take := -delta
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.table),
			Key:                 key,
			UpdateExpression:    aws.String("SET seats_left = seats_left - :n, version = version + :one"),
			ConditionExpression: aws.String("attribute_exists(table_id) AND seats_left >= :n"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":n":   &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", take)},
				":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
			},
		})
		if err != nil {
			if isConditionalCheckFailed(err) {
				return s.classifyRejection(ctx, key)
			}
			return fmt.Errorf("reserve seats: %w", err)
		}
		return nil
	}

	// Release. The clamp write is conditioned on the version observed
	// after the failed increment so a reserve landing in between is
	// never overwritten.
	for attempt := 0; attempt < releaseAttempts; attempt++ {
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.table),
			Key:                 key,
			UpdateExpression:    aws.String("SET seats_left = seats_left + :n, version = version + :one"),
			ConditionExpression: aws.String("attribute_exists(table_id) AND seats_left <= total - :n"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":n":   &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta)},
				":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
			},
		})
		if err == nil {
			return nil
		}
		if !isConditionalCheckFailed(err) {
			return fmt.Errorf("release seats: %w", err)
		}

		out, getErr := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key:       key,
		})
		if getErr != nil {
			return getErr
		}
		if len(out.Item) == 0 {
			return ErrTableNotFound
		}
		var item tableItem
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return fmt.Errorf("decode table item: %w", err)
		}
		if item.SeatsLeft+delta <= item.Total {
			// a concurrent reserve made room, retry the plain increment
			continue
		}

		// Increment would overshoot total: clamp. Indicates a double release.
		if s.logg != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{"table_id": tableID, "delta": delta})
			s.logg.Warn(lctx, "seat release clamped at table capacity")
		}
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.table),
			Key:                 key,
			UpdateExpression:    aws.String("SET seats_left = total, version = version + :one"),
			ConditionExpression: aws.String("attribute_exists(table_id) AND version = :v"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
				":v":   &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.Version)},
			},
		})
		if err == nil {
			return nil
		}
		if !isConditionalCheckFailed(err) {
			return fmt.Errorf("clamp seats: %w", err)
		}
		// version moved under the clamp, re-evaluate
	}
	return ErrVersionConflict
}

func (s *DynamoStore) classifyRejection(ctx context.Context, key map[string]ddbtypes.AttributeValue) error {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	})
	if err != nil {
		return err
	}
	if len(out.Item) == 0 {
		return ErrTableNotFound
	}
	return ErrInsufficientSeats
}

// Seed batch-writes the bootstrap items when the table is empty.
func (s *DynamoStore) Seed(ctx context.Context, tableCount, seatsPerTable int) (bool, error) {
	probe, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Limit:     aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("probe tables: %w", err)
	}
	if len(probe.Items) > 0 {
		return false, nil
	}

	var requests []ddbtypes.WriteRequest
	for _, state := range SeedTables(tableCount, seatsPerTable) {
		raw, err := attributevalue.MarshalMap(tableItem{
			TableID:   state.ID,
			Name:      state.Name,
			Total:     state.Total,
			SeatsLeft: state.SeatsLeft,
			Version:   1,
		})
		if err != nil {
			return false, err
		}
		requests = append(requests, ddbtypes.WriteRequest{
			PutRequest: &ddbtypes.PutRequest{Item: raw},
		})
	}

	// BatchWriteItem caps at 25 requests per call.
	for start := 0; start < len(requests); start += 25 {
		end := start + 25
		if end > len(requests) {
			end = len(requests)
		}
		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]ddbtypes.WriteRequest{
				s.table: requests[start:end],
			},
		})
		if err != nil {
			return false, fmt.Errorf("seed tables: %w", err)
		}
	}
	return true, nil
}

func encodeVersionToken(versions map[int]versionEntry) (string, error) {
	payload, err := json.Marshal(versions)
	if err != nil {
		return "", fmt.Errorf("encode version token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

func decodeVersionToken(token string) (map[int]versionEntry, error) {
	if token == "" {
		return map[int]versionEntry{}, nil
	}
	payload, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode version token: %w", err)
	}
	var versions map[int]versionEntry
	if err := json.Unmarshal(payload, &versions); err != nil {
		return nil, fmt.Errorf("decode version token: %w", err)
	}
	return versions, nil
}

func isConditionalCheckFailed(err error) bool {
	var cond *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &cond)
}

func isTransactionConflict(err error) bool {
	var canceled *ddbtypes.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	var conflict *ddbtypes.TransactionConflictException
	return errors.As(err, &conflict)
}
