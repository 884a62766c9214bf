package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoItem is the persisted shape. ExpiresAt is unix milliseconds; TTL is
// unix seconds for DynamoDB's own expiry sweeper.
type dynamoItem struct {
	ConversationID string `dynamodbav:"conversationId"`
	SessionID      string `dynamodbav:"sessionId"`
	OriginAddress  string `dynamodbav:"originAddress,omitempty"`
	ExpiresAt      int64  `dynamodbav:"expiresAt"`
	TTL            int64  `dynamodbav:"ttl"`
}

// DynamoStore persists records in a DynamoDB table keyed by conversationId.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	tracer    trace.Tracer
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		tracer:    otel.Tracer("chatbotproxy.internal.session.dynamodb"),
	}
}

func (s *DynamoStore) Get(ctx context.Context, conversationID string) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.get")
	defer span.End()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(conversationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("session: dynamodb get: %w", err)
	}
	if out.Item == nil {
		return Record{}, ErrNotFound
	}
	return decodeDynamoItem(out.Item)
}

func (s *DynamoStore) Put(ctx context.Context, rec Record) error {
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.put")
	defer span.End()

	item, err := attributevalue.MarshalMap(dynamoItem{
		ConversationID: rec.ConversationID,
		SessionID:      rec.SessionID,
		OriginAddress:  rec.OriginAddress,
		ExpiresAt:      rec.ExpiresAt.UnixMilli(),
		TTL:            rec.ExpiresAt.Add(time.Hour).Unix(),
	})
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: dynamodb put: %w", err)
	}
	return nil
}

func (s *DynamoStore) Touch(ctx context.Context, conversationID string, expiresAt time.Time) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.touch")
	defer span.End()

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 dynamoKey(conversationID),
		ConditionExpression: aws.String("attribute_exists(conversationId)"),
		UpdateExpression:    aws.String("SET expiresAt = :expires, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expires": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)},
			":ttl":     &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Add(time.Hour).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return Record{}, ErrNotFound
		}
		span.RecordError(err)
		return Record{}, fmt.Errorf("session: dynamodb touch: %w", err)
	}
	return decodeDynamoItem(out.Attributes)
}

func (s *DynamoStore) Delete(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.delete")
	defer span.End()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(conversationID),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: dynamodb delete: %w", err)
	}
	return nil
}

func dynamoKey(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
	}
}

func decodeDynamoItem(item map[string]types.AttributeValue) (Record, error) {
	var stored dynamoItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return Record{}, fmt.Errorf("session: decode record: %w", err)
	}
	return Record{
		ConversationID: stored.ConversationID,
		SessionID:      stored.SessionID,
		OriginAddress:  stored.OriginAddress,
		ExpiresAt:      time.UnixMilli(stored.ExpiresAt),
	}, nil
}
