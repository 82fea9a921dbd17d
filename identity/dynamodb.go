package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// GSI name constants for the identities table. Created externally via
// Terraform; DynamoDBStore only assumes they exist.
const (
	GSIFingerprint = "gsi-fingerprint"
	GSIAgentID     = "gsi-agent-id"
	GSIStatus      = "gsi-status"
	GSIMachine     = "gsi-machine"
)

// dynamoDBAPI is the narrow set of DynamoDB operations DynamoDBStore needs,
// so tests can substitute a mock client.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore implements Store on top of a DynamoDB table keyed by
// identity_id, with GSIs for fingerprint, agent_id, status, and machine_id
// lookups.
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBStore builds a DynamoDBStore using the given AWS configuration.
func NewDynamoDBStore(cfg aws.Config, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

type identityItem struct {
	IdentityID string `dynamodbav:"identity_id"`
	AgentID    string `dynamodbav:"agent_id"`
	MachineID  string `dynamodbav:"machine_id"`

	SigningPublicKey  string `dynamodbav:"signing_public_key"`  // hex
	ExchangePublicKey string `dynamodbav:"exchange_public_key"` // hex
	SigningAlgorithm  string `dynamodbav:"signing_algorithm"`

	KeyFingerprint string `dynamodbav:"key_fingerprint"`
	MachineBinding string `dynamodbav:"machine_binding"`

	Status string `dynamodbav:"status"`

	ApproverID string `dynamodbav:"approver_id"`
	ApprovedAt string `dynamodbav:"approved_at"` // RFC3339Nano, may be zero

	Tags         []string `dynamodbav:"tags"`
	Capabilities []string `dynamodbav:"capabilities"`

	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func setToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sliceToSet(s []string) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}

func identityToItem(id *Identity) *identityItem {
	item := &identityItem{
		IdentityID:        id.IdentityID,
		AgentID:           id.AgentID,
		MachineID:         id.MachineID,
		SigningPublicKey:  hex.EncodeToString(id.SigningPublicKey),
		ExchangePublicKey: hex.EncodeToString(id.ExchangePublicKey),
		SigningAlgorithm:  id.SigningAlgorithm,
		KeyFingerprint:    id.KeyFingerprint,
		MachineBinding:    id.MachineBinding,
		Status:            string(id.Status),
		ApproverID:        id.ApproverID,
		Tags:              setToSlice(id.Tags),
		Capabilities:      setToSlice(id.Capabilities),
		CreatedAt:         id.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:         id.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !id.ApprovedAt.IsZero() {
		item.ApprovedAt = id.ApprovedAt.Format(time.RFC3339Nano)
	}
	return item
}

func itemToIdentity(item *identityItem) (*Identity, error) {
	signingPub, err := hex.DecodeString(item.SigningPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing_public_key: %w", err)
	}
	exchangePub, err := hex.DecodeString(item.ExchangePublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode exchange_public_key: %w", err)
	}
	status, err := ParseStatus(item.Status)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	var approvedAt time.Time
	if item.ApprovedAt != "" {
		approvedAt, err = time.Parse(time.RFC3339Nano, item.ApprovedAt)
		if err != nil {
			return nil, fmt.Errorf("parse approved_at: %w", err)
		}
	}

	return &Identity{
		IdentityID:        item.IdentityID,
		AgentID:           item.AgentID,
		MachineID:         item.MachineID,
		SigningPublicKey:  signingPub,
		ExchangePublicKey: exchangePub,
		SigningAlgorithm:  item.SigningAlgorithm,
		KeyFingerprint:    item.KeyFingerprint,
		MachineBinding:    item.MachineBinding,
		Status:            status,
		ApproverID:        item.ApproverID,
		ApprovedAt:        approvedAt,
		Tags:              sliceToSet(item.Tags),
		Capabilities:      sliceToSet(item.Capabilities),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

func (s *DynamoDBStore) Create(ctx context.Context, id *Identity) error {
	av, err := attributevalue.MarshalMap(identityToItem(id))
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(identity_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", id.IdentityID, ErrIdentityExists)
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, identityID string) (*Identity, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"identity_id": &types.AttributeValueMemberS{Value: identityID}},
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", identityID, ErrIdentityNotFound)
	}

	var item identityItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	return itemToIdentity(&item)
}

func (s *DynamoDBStore) GetByFingerprint(ctx context.Context, fingerprint string) (*Identity, error) {
	return s.getUniqueByIndex(ctx, GSIFingerprint, "key_fingerprint", fingerprint)
}

func (s *DynamoDBStore) GetByAgentID(ctx context.Context, agentID string) (*Identity, error) {
	return s.getUniqueByIndex(ctx, GSIAgentID, "agent_id", agentID)
}

func (s *DynamoDBStore) getUniqueByIndex(ctx context.Context, indexName, keyAttr, keyValue string) (*Identity, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", keyAttr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: keyValue},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", fmt.Sprintf("Query:%s", indexName))
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%s: %w", keyValue, ErrIdentityNotFound)
	}

	var item identityItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	return itemToIdentity(&item)
}

func (s *DynamoDBStore) Update(ctx context.Context, id *Identity) error {
	previousUpdatedAt := id.UpdatedAt
	id.UpdatedAt = time.Now().UTC()

	av, err := attributevalue.MarshalMap(identityToItem(id))
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(identity_id) AND updated_at = :old_updated_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":old_updated_at": &types.AttributeValueMemberS{Value: previousUpdatedAt.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if _, getErr := s.Get(ctx, id.IdentityID); errors.Is(getErr, ErrIdentityNotFound) {
				return fmt.Errorf("%s: %w", id.IdentityID, ErrIdentityNotFound)
			}
			return fmt.Errorf("%s: %w", id.IdentityID, ErrConcurrentModification)
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, identityID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"identity_id": &types.AttributeValueMemberS{Value: identityID}},
	})
	if err != nil {
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "DeleteItem")
	}
	return nil
}

func (s *DynamoDBStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Identity, error) {
	return s.queryByIndex(ctx, GSIStatus, "status", string(status), limit)
}

func (s *DynamoDBStore) ListByMachine(ctx context.Context, machineID string, limit int) ([]*Identity, error) {
	return s.queryByIndex(ctx, GSIMachine, "machine_id", machineID, limit)
}

func (s *DynamoDBStore) queryByIndex(ctx context.Context, indexName, keyAttr, keyValue string, limit int) ([]*Identity, error) {
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
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", fmt.Sprintf("Query:%s", indexName))
	}

	identities := make([]*Identity, 0, len(out.Items))
	for _, av := range out.Items {
		var item identityItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal identity: %w", err)
		}
		id, err := itemToIdentity(&item)
		if err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, nil
}

// --- Pre-auth tokens ---

// DynamoDBPreAuthStore implements PreAuthStore on a DynamoDB table keyed by
// token_hash. Use increments are done via PutItem with a condition on the
// prior uses count so the uses<max_uses check is linearizable with the write.
type DynamoDBPreAuthStore struct {
	client    dynamoDBAPI
	tableName string
}

func NewDynamoDBPreAuthStore(cfg aws.Config, tableName string) *DynamoDBPreAuthStore {
	return &DynamoDBPreAuthStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBPreAuthStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBPreAuthStore {
	return &DynamoDBPreAuthStore{client: client, tableName: tableName}
}

type preAuthItem struct {
	TokenID   string `dynamodbav:"token_id"`
	TokenHash string `dynamodbav:"token_hash"`
	Prefix    string `dynamodbav:"prefix"`
	IssuerID  string `dynamodbav:"issuer_id"`

	CreatedAt string `dynamodbav:"created_at"`
	ExpiresAt string `dynamodbav:"expires_at"` // empty means no expiry
	TTL       int64  `dynamodbav:"ttl,omitempty"`

	MaxUses int `dynamodbav:"max_uses"`
	Uses    int `dynamodbav:"uses"`

	Tags         []string `dynamodbav:"tags"`
	Capabilities []string `dynamodbav:"capabilities"`

	PreApproved bool `dynamodbav:"pre_approved"`
	Ephemeral   bool `dynamodbav:"ephemeral"`
	Reusable    bool `dynamodbav:"reusable"`
	Revoked     bool `dynamodbav:"revoked"`
}

func preAuthToItem(t *PreAuthToken) *preAuthItem {
	item := &preAuthItem{
		TokenID:      t.TokenID,
		TokenHash:    t.TokenHash,
		Prefix:       t.Prefix,
		IssuerID:     t.IssuerID,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339Nano),
		MaxUses:      t.MaxUses,
		Uses:         t.Uses,
		Tags:         append([]string(nil), t.Tags...),
		Capabilities: append([]string(nil), t.Capabilities...),
		PreApproved:  t.PreApproved,
		Ephemeral:    t.Ephemeral,
		Reusable:     t.Reusable,
		Revoked:      t.Revoked,
	}
	if !t.ExpiresAt.IsZero() {
		item.ExpiresAt = t.ExpiresAt.Format(time.RFC3339Nano)
		item.TTL = t.ExpiresAt.Unix()
	}
	return item
}

func itemToPreAuth(item *preAuthItem) (*PreAuthToken, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	var expiresAt time.Time
	if item.ExpiresAt != "" {
		expiresAt, err = time.Parse(time.RFC3339Nano, item.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
	}

	return &PreAuthToken{
		TokenID:      item.TokenID,
		TokenHash:    item.TokenHash,
		Prefix:       item.Prefix,
		IssuerID:     item.IssuerID,
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		MaxUses:      item.MaxUses,
		Uses:         item.Uses,
		Tags:         item.Tags,
		Capabilities: item.Capabilities,
		PreApproved:  item.PreApproved,
		Ephemeral:    item.Ephemeral,
		Reusable:     item.Reusable,
		Revoked:      item.Revoked,
	}, nil
}

func (s *DynamoDBPreAuthStore) Create(ctx context.Context, token *PreAuthToken) error {
	av, err := attributevalue.MarshalMap(preAuthToItem(token))
	if err != nil {
		return fmt.Errorf("marshal pre-auth token: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(token_hash)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrPreAuthExists
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBPreAuthStore) GetByHash(ctx context.Context, tokenHash string) (*PreAuthToken, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"token_hash": &types.AttributeValueMemberS{Value: tokenHash}},
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "GetItem")
	}
	if out.Item == nil {
		return nil, ErrPreAuthNotFound
	}

	var item preAuthItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal pre-auth token: %w", err)
	}
	return itemToPreAuth(&item)
}

// IncrementUses re-reads the token, validates it, and writes uses+1 guarded
// by a condition on the prior uses count, so concurrent redemptions cannot
// both succeed past max_uses.
func (s *DynamoDBPreAuthStore) IncrementUses(ctx context.Context, tokenHash string) (*PreAuthToken, error) {
	token, err := s.GetByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if !token.IsValid(time.Now().UTC()) {
		return nil, ErrPreAuthExhausted
	}

	token.Uses++
	av, err := attributevalue.MarshalMap(preAuthToItem(token))
	if err != nil {
		return nil, fmt.Errorf("marshal pre-auth token: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("uses = :prior_uses"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prior_uses": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", token.Uses-1)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrPreAuthExhausted
		}
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return token, nil
}

func (s *DynamoDBPreAuthStore) Revoke(ctx context.Context, tokenHash string) error {
	token, err := s.GetByHash(ctx, tokenHash)
	if err != nil {
		return err
	}
	token.Revoked = true
	av, err := attributevalue.MarshalMap(preAuthToItem(token))
	if err != nil {
		return fmt.Errorf("marshal pre-auth token: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av})
	if err != nil {
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

// --- Sessions ---

// GSISessionIdentity indexes sessions by identity_id with created_at sort key.
const GSISessionIdentity = "gsi-identity"

// DynamoDBSessionStore implements SessionStore on a DynamoDB table keyed by
// session_id, with a GSI on token_hash for login-time lookups and a GSI on
// identity_id for revocation cascades.
type DynamoDBSessionStore struct {
	client    dynamoDBAPI
	tableName string
}

func NewDynamoDBSessionStore(cfg aws.Config, tableName string) *DynamoDBSessionStore {
	return &DynamoDBSessionStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBSessionStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBSessionStore {
	return &DynamoDBSessionStore{client: client, tableName: tableName}
}

// GSITokenHash indexes sessions by token_hash, the lookup path used on
// every authenticated request.
const GSITokenHash = "gsi-token-hash"

type sessionItem struct {
	SessionID  string `dynamodbav:"session_id"`
	TokenHash  string `dynamodbav:"token_hash"`
	IdentityID string `dynamodbav:"identity_id"`
	MachineID  string `dynamodbav:"machine_id"`
	SourceIP   string `dynamodbav:"source_ip"`
	Status     string `dynamodbav:"status"`

	IssuedAt  string `dynamodbav:"issued_at"`
	ExpiresAt string `dynamodbav:"expires_at"`
	TTL       int64  `dynamodbav:"ttl"`

	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`

	RevokedBy     string `dynamodbav:"revoked_by"`
	RevokedReason string `dynamodbav:"revoked_reason"`
}

func sessionToItem(sess *Session) *sessionItem {
	return &sessionItem{
		SessionID:     sess.SessionID,
		TokenHash:     sess.TokenHash,
		IdentityID:    sess.IdentityID,
		MachineID:     sess.MachineID,
		SourceIP:      sess.SourceIP,
		Status:        string(sess.Status),
		IssuedAt:      sess.IssuedAt.Format(time.RFC3339Nano),
		ExpiresAt:     sess.ExpiresAt.Format(time.RFC3339Nano),
		TTL:           sess.ExpiresAt.Unix(),
		CreatedAt:     sess.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     sess.UpdatedAt.Format(time.RFC3339Nano),
		RevokedBy:     sess.RevokedBy,
		RevokedReason: sess.RevokedReason,
	}
}

func itemToSession(item *sessionItem) (*Session, error) {
	issuedAt, err := time.Parse(time.RFC3339Nano, item.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, item.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &Session{
		SessionID:     item.SessionID,
		TokenHash:     item.TokenHash,
		IdentityID:    item.IdentityID,
		MachineID:     item.MachineID,
		SourceIP:      item.SourceIP,
		Status:        SessionStatus(item.Status),
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		RevokedBy:     item.RevokedBy,
		RevokedReason: item.RevokedReason,
	}, nil
}

func (s *DynamoDBSessionStore) Create(ctx context.Context, sess *Session) error {
	av, err := attributevalue.MarshalMap(sessionToItem(sess))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(session_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrSessionExists
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBSessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"session_id": &types.AttributeValueMemberS{Value: sessionID}},
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "GetItem")
	}
	if out.Item == nil {
		return nil, ErrSessionNotFound
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return itemToSession(&item)
}

func (s *DynamoDBSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(GSITokenHash),
		KeyConditionExpression: aws.String("token_hash = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: tokenHash},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "Query:"+GSITokenHash)
	}
	if len(out.Items) == 0 {
		return nil, ErrSessionNotFound
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return itemToSession(&item)
}

func (s *DynamoDBSessionStore) Update(ctx context.Context, sess *Session) error {
	av, err := attributevalue.MarshalMap(sessionToItem(sess))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(session_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrSessionNotFound
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBSessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"session_id": &types.AttributeValueMemberS{Value: sessionID}},
	})
	if err != nil {
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "DeleteItem")
	}
	return nil
}

func (s *DynamoDBSessionStore) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*Session, error) {
	limit = clampLimit(limit)

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(GSISessionIdentity),
		KeyConditionExpression: aws.String("identity_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: identityID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "Query:"+GSISessionIdentity)
	}

	sessions := make([]*Session, 0, len(out.Items))
	for _, item := range out.Items {
		var si sessionItem
		if err := attributevalue.UnmarshalMap(item, &si); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sess, err := itemToSession(&si)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
