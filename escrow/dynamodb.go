package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// GSI name constants, shared by the credential and recovery stores.
const (
	GSICredentialStatus = "gsi-status"
	GSICredentialOwner  = "gsi-owner"
	GSIRecoveryStatus   = "gsi-status"
	GSIRecoveryEscrow   = "gsi-escrow-id"
)

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBCredentialStore implements CredentialStore on a table keyed
// by escrow_id, with GSIs by status and owner.
type DynamoDBCredentialStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBCredentialStore builds a DynamoDBCredentialStore using cfg.
func NewDynamoDBCredentialStore(cfg aws.Config, tableName string) *DynamoDBCredentialStore {
	return &DynamoDBCredentialStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBCredentialStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBCredentialStore {
	return &DynamoDBCredentialStore{client: client, tableName: tableName}
}

type credentialItem struct {
	EscrowID      string   `dynamodbav:"escrow_id"`
	CredentialID  string   `dynamodbav:"credential_id"`
	Owner         string   `dynamodbav:"owner"`
	Class         string   `dynamodbav:"class"`
	Justification string   `dynamodbav:"justification"`
	Contacts      []string `dynamodbav:"contacts"`

	Ciphertext []byte `dynamodbav:"ciphertext"`
	KeyHandle  string `dynamodbav:"key_handle"`

	PolicyJSON string `dynamodbav:"policy"`

	Status    string `dynamodbav:"status"`
	CreatedAt string `dynamodbav:"created_at"`
	ExpiresAt string `dynamodbav:"expires_at"`
	TTL       int64  `dynamodbav:"ttl"`

	RecoveredByRecoveryID string `dynamodbav:"recovered_by_recovery_id"`

	Version int `dynamodbav:"version"`
}

func credentialToItem(c *EscrowedCredential) (*credentialItem, error) {
	policyJSON, err := marshalEscrowPolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	return &credentialItem{
		EscrowID:              c.EscrowID,
		CredentialID:          c.CredentialID,
		Owner:                 c.Owner,
		Class:                 string(c.Class),
		Justification:         c.Justification,
		Contacts:              c.Contacts,
		Ciphertext:            c.Ciphertext,
		KeyHandle:             string(c.KeyHandle),
		PolicyJSON:            policyJSON,
		Status:                string(c.Status),
		CreatedAt:             c.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt:             c.ExpiresAt.Format(time.RFC3339Nano),
		TTL:                   c.ExpiresAt.Unix(),
		RecoveredByRecoveryID: c.RecoveredByRecoveryID,
		Version:               c.Version,
	}, nil
}

func itemToCredential(item *credentialItem) (*EscrowedCredential, error) {
	policy, err := unmarshalEscrowPolicy(item.PolicyJSON)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, item.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &EscrowedCredential{
		EscrowID:              item.EscrowID,
		CredentialID:          item.CredentialID,
		Owner:                 item.Owner,
		Class:                 EscrowClass(item.Class),
		Justification:         item.Justification,
		Contacts:              item.Contacts,
		Ciphertext:            item.Ciphertext,
		KeyHandle:             keyoracleHandle(item.KeyHandle),
		Policy:                policy,
		Status:                EscrowStatus(item.Status),
		CreatedAt:             createdAt,
		ExpiresAt:             expiresAt,
		RecoveredByRecoveryID: item.RecoveredByRecoveryID,
		Version:               item.Version,
	}, nil
}

func (s *DynamoDBCredentialStore) Create(ctx context.Context, c *EscrowedCredential) error {
	c.Version = 1
	item, err := credentialToItem(c)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(escrow_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrEscrowExists
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBCredentialStore) Get(ctx context.Context, escrowID string) (*EscrowedCredential, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"escrow_id": &types.AttributeValueMemberS{Value: escrowID}},
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "GetItem")
	}
	if out.Item == nil {
		return nil, ErrEscrowNotFound
	}
	var item credentialItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return itemToCredential(&item)
}

func (s *DynamoDBCredentialStore) Update(ctx context.Context, c *EscrowedCredential) error {
	priorVersion := c.Version
	c.Version++
	item, err := credentialToItem(c)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(escrow_id) AND version = :prior_version"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prior_version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", priorVersion)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			c.Version = priorVersion
			if _, getErr := s.Get(ctx, c.EscrowID); errors.Is(getErr, ErrEscrowNotFound) {
				return ErrEscrowNotFound
			}
			return ErrConcurrentModification
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBCredentialStore) ListByStatus(ctx context.Context, status EscrowStatus, limit int) ([]*EscrowedCredential, error) {
	return s.query(ctx, GSICredentialStatus, "status", string(status), limit)
}

func (s *DynamoDBCredentialStore) ListByOwner(ctx context.Context, owner string, limit int) ([]*EscrowedCredential, error) {
	return s.query(ctx, GSICredentialOwner, "owner", owner, limit)
}

func (s *DynamoDBCredentialStore) query(ctx context.Context, indexName, keyAttr, keyValue string, limit int) ([]*EscrowedCredential, error) {
	limit = clampLimit(limit)
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", keyAttr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: keyValue},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "Query:"+indexName)
	}
	results := make([]*EscrowedCredential, 0, len(out.Items))
	for _, av := range out.Items {
		var item credentialItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal credential: %w", err)
		}
		c, err := itemToCredential(&item)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, nil
}

// DynamoDBRecoveryStore implements RecoveryStore on a table keyed by
// recovery_id, with GSIs by status and escrow_id.
type DynamoDBRecoveryStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBRecoveryStore builds a DynamoDBRecoveryStore using cfg.
func NewDynamoDBRecoveryStore(cfg aws.Config, tableName string) *DynamoDBRecoveryStore {
	return &DynamoDBRecoveryStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBRecoveryStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBRecoveryStore {
	return &DynamoDBRecoveryStore{client: client, tableName: tableName}
}

type recoveryItem struct {
	RecoveryID          string   `dynamodbav:"recovery_id"`
	EscrowID            string   `dynamodbav:"escrow_id"`
	RequesterID         string   `dynamodbav:"requester_id"`
	Reason              string   `dynamodbav:"reason"`
	Justification       string   `dynamodbav:"justification"`
	EmergencyOverride   bool     `dynamodbav:"emergency_override"`
	RequiredApprovals   int      `dynamodbav:"required_approvals"`
	EligibleApproverIDs []string `dynamodbav:"eligible_approver_ids"`
	ApprovalsJSON       string   `dynamodbav:"approvals"`
	Status              string   `dynamodbav:"status"`
	CreatedAt           string   `dynamodbav:"created_at"`
	ExpiresAt           string   `dynamodbav:"expires_at"`
	TTL                 int64    `dynamodbav:"ttl"`
	CompletedAt         string   `dynamodbav:"completed_at"`
	FetchedAt           string   `dynamodbav:"fetched_at"`
	Version             int      `dynamodbav:"version"`
}

func recoveryToItem(r *RecoveryRequest) (*recoveryItem, error) {
	approvalsJSON, err := marshalApprovals(r.Approvals)
	if err != nil {
		return nil, err
	}
	item := &recoveryItem{
		RecoveryID:          r.RecoveryID,
		EscrowID:            r.EscrowID,
		RequesterID:         r.RequesterID,
		Reason:              r.Reason,
		Justification:       r.Justification,
		EmergencyOverride:   r.EmergencyOverride,
		RequiredApprovals:   r.RequiredApprovals,
		EligibleApproverIDs: r.EligibleApproverIDs,
		ApprovalsJSON:       approvalsJSON,
		Status:              string(r.Status),
		CreatedAt:           r.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt:           r.ExpiresAt.Format(time.RFC3339Nano),
		TTL:                 r.ExpiresAt.Unix(),
		Version:             r.Version,
	}
	if !r.CompletedAt.IsZero() {
		item.CompletedAt = r.CompletedAt.Format(time.RFC3339Nano)
	}
	if !r.FetchedAt.IsZero() {
		item.FetchedAt = r.FetchedAt.Format(time.RFC3339Nano)
	}
	return item, nil
}

func itemToRecovery(item *recoveryItem) (*RecoveryRequest, error) {
	approvals, err := unmarshalApprovals(item.ApprovalsJSON)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, item.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	var completedAt, fetchedAt time.Time
	if item.CompletedAt != "" {
		completedAt, err = time.Parse(time.RFC3339Nano, item.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}
	if item.FetchedAt != "" {
		fetchedAt, err = time.Parse(time.RFC3339Nano, item.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parse fetched_at: %w", err)
		}
	}
	return &RecoveryRequest{
		RecoveryID:          item.RecoveryID,
		EscrowID:            item.EscrowID,
		RequesterID:         item.RequesterID,
		Reason:              item.Reason,
		Justification:       item.Justification,
		EmergencyOverride:   item.EmergencyOverride,
		RequiredApprovals:   item.RequiredApprovals,
		EligibleApproverIDs: item.EligibleApproverIDs,
		Approvals:           approvals,
		Status:              RecoveryStatus(item.Status),
		CreatedAt:           createdAt,
		ExpiresAt:           expiresAt,
		CompletedAt:         completedAt,
		FetchedAt:           fetchedAt,
		Version:             item.Version,
	}, nil
}

func (s *DynamoDBRecoveryStore) Create(ctx context.Context, r *RecoveryRequest) error {
	r.Version = 1
	item, err := recoveryToItem(r)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal recovery: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(recovery_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrRecoveryExists
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBRecoveryStore) Get(ctx context.Context, recoveryID string) (*RecoveryRequest, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"recovery_id": &types.AttributeValueMemberS{Value: recoveryID}},
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "GetItem")
	}
	if out.Item == nil {
		return nil, ErrRecoveryNotFound
	}
	var item recoveryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal recovery: %w", err)
	}
	return itemToRecovery(&item)
}

func (s *DynamoDBRecoveryStore) Update(ctx context.Context, r *RecoveryRequest) error {
	priorVersion := r.Version
	r.Version++
	item, err := recoveryToItem(r)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal recovery: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(recovery_id) AND version = :prior_version"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prior_version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", priorVersion)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			r.Version = priorVersion
			if _, getErr := s.Get(ctx, r.RecoveryID); errors.Is(getErr, ErrRecoveryNotFound) {
				return ErrRecoveryNotFound
			}
			return ErrConcurrentModification
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBRecoveryStore) ListByStatus(ctx context.Context, status RecoveryStatus, limit int) ([]*RecoveryRequest, error) {
	return s.query(ctx, GSIRecoveryStatus, "status", string(status), limit)
}

func (s *DynamoDBRecoveryStore) ListByEscrow(ctx context.Context, escrowID string, limit int) ([]*RecoveryRequest, error) {
	return s.query(ctx, GSIRecoveryEscrow, "escrow_id", escrowID, limit)
}

func (s *DynamoDBRecoveryStore) query(ctx context.Context, indexName, keyAttr, keyValue string, limit int) ([]*RecoveryRequest, error) {
	limit = clampLimit(limit)
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", keyAttr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: keyValue},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "Query:"+indexName)
	}
	results := make([]*RecoveryRequest, 0, len(out.Items))
	for _, av := range out.Items {
		var item recoveryItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal recovery: %w", err)
		}
		r, err := itemToRecovery(&item)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
