package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vecshard/vecshard/blobstore"
)

// CurrentStore resolves the current artifact generation per shard key through
// DynamoDB. Index rebuilds upload artifacts under versioned object names
// ("<key>-<gen>.index") and then publish the new generation with a DynamoDB
// conditional write, which supplies the compare-and-swap semantics S3 lacks.
// Readers resolving through the pointer always see a complete artifact.
//
// Table schema:
//   - Partition key: shard_key (string)
//   - Sort key: generation (number) - monotonically increasing
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vecshard-generations \
//	  --attribute-definitions AttributeName=shard_key,AttributeType=S AttributeName=generation,AttributeType=N \
//	  --key-schema AttributeName=shard_key,KeyType=HASH AttributeName=generation,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CurrentStore struct {
	store     *Store
	ddbClient DDBClient
	tableName string
}

// DDBClient is the interface for the DynamoDB operations CurrentStore needs.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentPublish is returned when another writer published the same
// generation first.
var ErrConcurrentPublish = errors.New("concurrent artifact publish detected")

// NewCurrentStore creates a generation-pointer store over an s3 Store.
func NewCurrentStore(store *Store, ddbClient DDBClient, tableName string) *CurrentStore {
	return &CurrentStore{
		store:     store,
		ddbClient: ddbClient,
		tableName: tableName,
	}
}

// CurrentArtifact returns the object name of the newest published generation
// for shardKey, or blobstore.ErrNotFound when nothing was ever published.
func (s *CurrentStore) CurrentArtifact(ctx context.Context, shardKey string) (string, error) {
	gen, name, err := s.latestGeneration(ctx, shardKey)
	if err != nil {
		return "", err
	}
	if gen == 0 {
		return "", blobstore.ErrNotFound
	}
	return name, nil
}

// Publish uploads data as the next generation of shardKey and flips the
// pointer. The returned name is the versioned object name.
func (s *CurrentStore) Publish(ctx context.Context, shardKey string, data []byte) (string, error) {
	gen, _, err := s.latestGeneration(ctx, shardKey)
	if err != nil {
		return "", err
	}
	next := gen + 1
	name := fmt.Sprintf("%s-%d.index", shardKey, next)

	if err := s.store.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", name, err)
	}

	// Conditional put: only succeed if this generation doesn't exist yet.
	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"shard_key":  &types.AttributeValueMemberS{Value: shardKey},
			"generation": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", next)},
			"artifact":   &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(generation)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return "", ErrConcurrentPublish
		}
		return "", fmt.Errorf("publish generation %d: %w", next, err)
	}

	return name, nil
}

// Open resolves shardKey's current artifact and opens it from S3.
func (s *CurrentStore) Open(ctx context.Context, shardKey string) (blobstore.Blob, error) {
	name, err := s.CurrentArtifact(ctx, shardKey)
	if err != nil {
		return nil, err
	}
	return s.store.Open(ctx, name)
}

func (s *CurrentStore) latestGeneration(ctx context.Context, shardKey string) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("shard_key = :key"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: shardKey},
		},
		ScanIndexForward: aws.Bool(false), // newest generation first
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query generations: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	genAttr, ok := item["generation"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid generation attribute in DynamoDB")
	}
	nameAttr, ok := item["artifact"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid artifact attribute in DynamoDB")
	}

	var gen uint64
	if _, err := fmt.Sscanf(genAttr.Value, "%d", &gen); err != nil {
		return 0, "", fmt.Errorf("failed to parse generation: %w", err)
	}

	return gen, nameAttr.Value, nil
}
