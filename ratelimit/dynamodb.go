package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// DynamoDBAPI is the narrow DynamoDB surface the limiter needs,
// mockable in tests.
type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBLimiter is the distributed SubmissionLimiter: Orchestrator
// replicas share one fixed-window counter per (identity, kind, window)
// through an atomic ADD.
//
// The window start is part of the sort key, so a window rollover simply
// lands on a fresh item and stale windows age out via the table's TTL
// attribute — there is no conditional write or reset path to race on.
//
// Table schema:
//   - PK (S):          "THROTTLE#" + identity_id
//   - SK (S):          operation_kind + "#" + window start, RFC3339
//   - Submissions (N): submissions charged in this window
//   - ExpiresAt (N):   TTL, one hour past window end
type DynamoDBLimiter struct {
	client    DynamoDBAPI
	tableName string
	config    Config

	clock func() time.Time
}

// NewDynamoDBLimiter validates cfg and binds a limiter to tableName,
// which must have string PK/SK keys and TTL enabled on ExpiresAt.
func NewDynamoDBLimiter(client DynamoDBAPI, tableName string, cfg Config) (*DynamoDBLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("ratelimit: DynamoDB client cannot be nil")
	}
	if tableName == "" {
		return nil, errors.New("ratelimit: tableName cannot be empty")
	}
	return &DynamoDBLimiter{
		client:    client,
		tableName: tableName,
		config:    cfg,
		clock:     time.Now,
	}, nil
}

// Allow atomically charges one submission against the identity's
// current window for operationKind. A denied submission still counts
// toward the window: a client hammering past its budget does not earn
// a fresh budget any sooner.
//
// A DynamoDB failure is returned as an upstream error without a
// decision; the caller chooses whether to fail the operation or retry.
func (l *DynamoDBLimiter) Allow(ctx context.Context, identityID, operationKind string) (Decision, error) {
	tier := l.config.TierFor(operationKind)
	now := l.clock()
	windowStart := now.Truncate(tier.Window)
	windowEnd := windowStart.Add(tier.Window)

	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "THROTTLE#" + identityID},
			"SK": &types.AttributeValueMemberS{Value: operationKind + "#" + windowStart.UTC().Format(time.RFC3339)},
		},
		UpdateExpression: aws.String("ADD Submissions :one SET ExpiresAt = if_not_exists(ExpiresAt, :ttl)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(windowEnd.Add(time.Hour).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return Decision{}, vaulterrors.WrapUpstreamError(err, "dynamodb", "UpdateItem")
	}

	charged := attributeCount(out.Attributes["Submissions"])
	if charged > tier.Submissions {
		retryAfter := windowEnd.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{RetryAfter: retryAfter, ResetAt: windowEnd}, nil
	}

	return Decision{
		Allowed:   true,
		Remaining: tier.Submissions - charged,
		ResetAt:   windowEnd,
	}, nil
}

// attributeCount reads a numeric attribute, treating anything
// unparseable as zero.
func attributeCount(attr types.AttributeValue) int {
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0
	}
	return v
}

var _ SubmissionLimiter = (*DynamoDBLimiter)(nil)
