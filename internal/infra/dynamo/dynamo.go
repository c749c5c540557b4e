// Package dynamo stores substrate records in a DynamoDB table keyed by "key".
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/infra/resilience"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("dynamo")

// DefaultTable is used when no table name is configured.
const DefaultTable = "burger_place_kv"

// API is the subset of the DynamoDB client the substrate needs.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// ClientConfig holds the connection settings.
type ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds a DynamoDB client. Static credentials are used when an
// access key is set, which is what DynamoDB Local expects; otherwise the
// default AWS credential chain applies.
func NewClient(ctx context.Context, cc ClientConfig) (*dynamodb.Client, error) {
	region := cc.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cc.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cc.AccessKeyID, cc.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cc.Endpoint != "" {
			o.BaseEndpoint = aws.String(cc.Endpoint)
		}
	}), nil
}

type item struct {
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Store is a substrate backed by one DynamoDB table with a string
// partition key named "key".
type Store struct {
	ddb   API
	table string
	guard *resilience.Guard
}

// NewStore creates the substrate.
func NewStore(ddb API, table string, guard *resilience.Guard) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{ddb: ddb, table: table, guard: guard}
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

// GetItem reads key with a consistent read.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "Dynamo.GetItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	var (
		value string
		found bool
	)
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            keyAttr(key),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return err
		}
		if len(out.Item) == 0 {
			found = false
			return nil
		}
		var it item
		if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
			return resilience.Permanent(err)
		}
		value, found = it.Value, true
		return nil
	})
	return value, found, err
}

// SetItem puts the item for key, replacing any previous one.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Dynamo.SetItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key), attribute.Int("kv.bytes", len(value)))

	av, err := attributevalue.MarshalMap(item{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      av,
		})
		return err
	})
}

// RemoveItem deletes the item for key. Missing items are not an error.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Dynamo.RemoveItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       keyAttr(key),
		})
		return err
	})
}

// Ping checks the table exists.
func (s *Store) Ping(ctx context.Context) error {
	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.ddb.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
		return err
	})
}
