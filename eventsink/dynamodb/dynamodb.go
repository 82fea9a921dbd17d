// Package dynamodb implements eventsink.EventSink over an append-only
// DynamoDB table. The partition key is category, the sort key is
// event_id (a UUIDv7, so insertion order equals sort order), satisfying
// "monotonic per producer" without a global sequence counter.
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// dynamoDBAPI defines the DynamoDB operations used by Sink.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Sink implements eventsink.EventSink using AWS DynamoDB.
//
// Table schema assumptions (created externally):
//   - Partition key: category (String)
//   - Sort key: event_id (String)
//
// Tags are stored as a comma-joined "tags_joined" attribute; Query
// applies the tag filter in memory to the items of the category query.
type Sink struct {
	client    dynamoDBAPI
	tableName string
}

// New creates a Sink using the provided AWS configuration.
func New(cfg aws.Config, tableName string) *Sink {
	return &Sink{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newWithClient(client dynamoDBAPI, tableName string) *Sink {
	return &Sink{client: client, tableName: tableName}
}

type dynamoItem struct {
	Category   string `dynamodbav:"category"`
	EventID    string `dynamodbav:"event_id"`
	TagsJoined string `dynamodbav:"tags_joined"`
	Content    string `dynamodbav:"content"` // JSON-marshaled Event
	Timestamp  string `dynamodbav:"timestamp"`
}

func (s *Sink) Append(ctx context.Context, category string, tags []string, content *eventsink.Event) (string, error) {
	payload, err := json.Marshal(content)
	if err != nil {
		return "", err
	}

	item := dynamoItem{
		Category:   category,
		EventID:    content.EventID,
		TagsJoined: joinTags(tags),
		Content:    string(payload),
		Timestamp:  content.Timestamp.Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return "", vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return content.EventID, nil
}

func (s *Sink) Query(ctx context.Context, category string, tags []string, since time.Time, limit int) ([]eventsink.StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	keyCond := "category = :c"
	values := map[string]types.AttributeValue{
		":c": &types.AttributeValueMemberS{Value: category},
	}
	if !since.IsZero() {
		// A UUIDv7's leading 48 bits are its Unix-millisecond timestamp,
		// so this prefix bounds event_id at millisecond precision.
		ms := uint64(since.UnixMilli())
		keyCond += " AND event_id > :s"
		values[":s"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("%08x-%04x", ms>>16, ms&0xffff)}
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "Query")
	}

	results := make([]eventsink.StoredEvent, 0, len(out.Items))
	for _, raw := range out.Items {
		var item dynamoItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, err
		}
		if len(tags) > 0 && !containsAllTags(item.TagsJoined, tags) {
			continue
		}
		var evt eventsink.Event
		if err := json.Unmarshal([]byte(item.Content), &evt); err != nil {
			return nil, err
		}
		results = append(results, eventsink.StoredEvent{EventID: item.EventID, Content: &evt})
	}
	return results, nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func containsAllTags(joined string, want []string) bool {
	have := map[string]struct{}{}
	start := 0
	for i := 0; i <= len(joined); i++ {
		if i == len(joined) || joined[i] == ',' {
			if i > start {
				have[joined[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	for _, w := range want {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}
