package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// Dynamo stores orders in a DynamoDB table, one item per order, using a
// conditional write on the version attribute for optimistic concurrency.
type Dynamo struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoOrder is the DynamoDB item structure. The full aggregate is kept as a
// JSON document; the top-level attributes exist for filtering.
type dynamoOrder struct {
	ID        string `dynamodbav:"id"`
	Organizer string `dynamodbav:"organizer"`
	Status    string `dynamodbav:"status"`
	Category  string `dynamodbav:"category"`
	City      string `dynamodbav:"city"`
	Area      string `dynamodbav:"area"`
	Version   int    `dynamodbav:"version"`
	CreatedAt string `dynamodbav:"created_at"`
	Data      string `dynamodbav:"data"`
}

func NewDynamo(client *dynamodb.Client, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName}
}

func (s *Dynamo) Get(ctx context.Context, id string) (*order.Order, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return unmarshalItem(out.Item)
}

func (s *Dynamo) Save(ctx context.Context, o *order.Order, expectedVersion int) (*order.Order, error) {
	saved := o.Clone()
	saved.Version = expectedVersion + 1

	data, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	item := dynamoOrder{
		ID:        saved.ID,
		Organizer: saved.Organizer,
		Status:    string(saved.Status),
		Category:  saved.Category,
		City:      saved.Location.City,
		Area:      saved.Location.Area,
		Version:   saved.Version,
		CreatedAt: saved.CreatedAt.Format(time.RFC3339Nano),
		Data:      string(data),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(id)")
	} else {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("put order: %w", err)
	}
	return saved, nil
}

func (s *Dynamo) Delete(ctx context.Context, id string) error {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if out.Attributes == nil {
		return ErrNotFound
	}
	return nil
}

// Query scans the table and applies filter, sort, and pagination in memory.
// Order volume is neighborhood-scale; a scan keeps the table free of GSI
// bookkeeping for every filter combination.
func (s *Dynamo) Query(ctx context.Context, f Filter, srt Sort, p Page) ([]*order.Order, int, error) {
	var matched []*order.Order
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("scan orders: %w", err)
		}
		for _, item := range out.Items {
			o, err := unmarshalItem(item)
			if err != nil {
				return nil, 0, err
			}
			if f.Matches(o) {
				matched = append(matched, o)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sortOrders(matched, srt)

	total := len(matched)
	p = p.Normalize()
	start := (p.Number - 1) * p.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func unmarshalItem(item map[string]types.AttributeValue) (*order.Order, error) {
	var rec dynamoOrder
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	var o order.Order
	if err := json.Unmarshal([]byte(rec.Data), &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}
