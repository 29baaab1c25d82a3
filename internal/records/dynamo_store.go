package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const loginIndexName = "login-id-index"

// dynamoAPI is the DynamoDB surface the store depends on, narrowed for tests.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps one item per reservation, keyed by id, with a
// global secondary index on the lowercased login id for the uniqueness
// check.
type DynamoStore struct {
	client dynamoAPI
	table  string
}

// NewDynamoStore binds the store to the reservations table.
func NewDynamoStore(client dynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

type reservationItem struct {
	ID          string    `dynamodbav:"id"`
	TableID     int       `dynamodbav:"table_id"`
	SeatsTaken  int       `dynamodbav:"seats_taken"`
	HolderName  string    `dynamodbav:"holder_name"`
	LoginID     string    `dynamodbav:"login_id"`
	LoginIDLC   string    `dynamodbav:"login_id_lc"`
	BookingDate string    `dynamodbav:"booking_date"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

func itemFrom(rec *Reservation) reservationItem {
	return reservationItem{
		ID:          rec.ID,
		TableID:     rec.TableID,
		SeatsTaken:  rec.SeatsTaken,
		HolderName:  rec.HolderName,
		LoginID:     rec.LoginID,
		LoginIDLC:   NormalizeLogin(rec.LoginID),
		BookingDate: rec.BookingDate,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (i reservationItem) record() Reservation {
	return Reservation{
		ID:          i.ID,
		TableID:     i.TableID,
		SeatsTaken:  i.SeatsTaken,
		HolderName:  i.HolderName,
		LoginID:     i.LoginID,
		BookingDate: i.BookingDate,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func (s *DynamoStore) keyFor(id string) (map[string]ddbtypes.AttributeValue, error) {
	return attributevalue.MarshalMap(map[string]string{"id": id})
}

func (s *DynamoStore) Create(ctx context.Context, rec *Reservation) error {
	raw, err := attributevalue.MarshalMap(itemFrom(rec))
	if err != nil {
		return fmt.Errorf("encode reservation item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                raw,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("put reservation item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*Reservation, error) {
	key, err := s.keyFor(id)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get reservation item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var item reservationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode reservation item: %w", err)
	}
	rec := item.record()
	return &rec, nil
}

func (s *DynamoStore) Update(ctx context.Context, rec *Reservation) error {
	raw, err := attributevalue.MarshalMap(itemFrom(rec))
	if err != nil {
		return fmt.Errorf("encode reservation item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                raw,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update reservation item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, rec *Reservation) error {
	key, err := s.keyFor(rec.ID)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 key,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete reservation item: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListAll(ctx context.Context) ([]Reservation, error) {
	var out []Reservation
	var startKey map[string]ddbtypes.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan reservation items: %w", err)
		}
		for _, raw := range page.Items {
			var item reservationItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("decode reservation item: %w", err)
			}
			out = append(out, item.record())
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}

// ExistsLogin queries the login index instead of scanning the table.
func (s *DynamoStore) ExistsLogin(ctx context.Context, loginID string) (bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(loginIndexName),
		KeyConditionExpression: aws.String("login_id_lc = :login"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":login": &ddbtypes.AttributeValueMemberS{Value: NormalizeLogin(loginID)},
		},
		Limit:  aws.Int32(1),
		Select: ddbtypes.SelectCount,
	})
	if err != nil {
		return false, fmt.Errorf("query login index: %w", err)
	}
	return out.Count > 0, nil
}

func isConditionalCheckFailed(err error) bool {
	var cond *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &cond)
}
