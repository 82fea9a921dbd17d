package approval

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// GSI name constants for the approval requests table.
const (
	GSIStatus     = "gsi-status"
	GSIRequester  = "gsi-requester"
	GSIOperation  = "gsi-operation-type"
)

// dynamoDBAPI is the narrow set of DynamoDB operations DynamoDBStore needs.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore implements Store on a table keyed by request_id, with GSIs
// by status, requester, and operation_type. Votes are embedded as a JSON
// blob per item rather than a child table; uniqueness on (request_id,
// signer_id) is enforced at the Engine layer before Update is called.
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

type requestItem struct {
	RequestID        string `dynamodbav:"request_id"`
	OperationType    string `dynamodbav:"operation_type"`
	OperationPayload string `dynamodbav:"operation_payload"` // JSON-encoded Payload
	RequesterID      string `dynamodbav:"requester_id"`

	PolicyJSON string `dynamodbav:"policy"`

	RequiredApprovals   int      `dynamodbav:"required_approvals"`
	TotalEligible       int      `dynamodbav:"total_eligible"`
	EligibleApproverIDs []string `dynamodbav:"eligible_approver_ids"`

	ApprovalsJSON  string `dynamodbav:"approvals"`
	RejectionsJSON string `dynamodbav:"rejections"`

	CreatedAt   string `dynamodbav:"created_at"`
	CreatedAtNS int64  `dynamodbav:"created_at_ns"`
	ExpiresAt   string `dynamodbav:"expires_at"`
	TTL         int64  `dynamodbav:"ttl"`

	Status string `dynamodbav:"status"`

	EmergencyOverride bool `dynamodbav:"emergency_override"`

	ExecutedAt      string `dynamodbav:"executed_at"`
	ExecutionResult string `dynamodbav:"execution_result"`

	Version int `dynamodbav:"version"`
}

// payloadJSON and signatureJSON are wire shapes for JSON marshaling,
// since PayloadValue/ApprovalSignature carry unexported fields.
type payloadJSON struct {
	Str   string `json:"str,omitempty"`
	Num   int64  `json:"num,omitempty"`
	IsInt bool   `json:"is_int,omitempty"`
}

func payloadToJSON(p Payload) map[string]payloadJSON {
	out := make(map[string]payloadJSON, len(p))
	for k, v := range p {
		n, isInt := v.Int()
		out[k] = payloadJSON{Str: v.String(), Num: n, IsInt: isInt}
	}
	return out
}

func payloadFromJSON(m map[string]payloadJSON) Payload {
	out := make(Payload, len(m))
	for k, v := range m {
		if v.IsInt {
			out[k] = IntValue(v.Num)
		} else {
			out[k] = StringValue(v.Str)
		}
	}
	return out
}

type signatureJSON struct {
	SignerID          string    `json:"signer_id"`
	SignatureBytes    string    `json:"signature_bytes"` // hex
	SignerPublicKey   string    `json:"signer_public_key"` // hex
	Algorithm         Algorithm `json:"algorithm"`
	SignedMessageHash string    `json:"signed_message_hash"` // hex
	Timestamp         time.Time `json:"timestamp"`
}

func sigToJSON(s ApprovalSignature) signatureJSON {
	return signatureJSON{
		SignerID:          s.SignerID,
		SignatureBytes:    hex.EncodeToString(s.SignatureBytes),
		SignerPublicKey:   hex.EncodeToString(s.SignerPublicKey),
		Algorithm:         s.Algorithm,
		SignedMessageHash: hex.EncodeToString(s.SignedMessageHash),
		Timestamp:         s.Timestamp,
	}
}

func sigFromJSON(j signatureJSON) (ApprovalSignature, error) {
	sigBytes, err := hex.DecodeString(j.SignatureBytes)
	if err != nil {
		return ApprovalSignature{}, fmt.Errorf("decode signature_bytes: %w", err)
	}
	pub, err := hex.DecodeString(j.SignerPublicKey)
	if err != nil {
		return ApprovalSignature{}, fmt.Errorf("decode signer_public_key: %w", err)
	}
	hash, err := hex.DecodeString(j.SignedMessageHash)
	if err != nil {
		return ApprovalSignature{}, fmt.Errorf("decode signed_message_hash: %w", err)
	}
	return ApprovalSignature{
		SignerID:          j.SignerID,
		SignatureBytes:    sigBytes,
		SignerPublicKey:   pub,
		Algorithm:         j.Algorithm,
		SignedMessageHash: hash,
		Timestamp:         j.Timestamp,
	}, nil
}

func requestToItem(r *Request) (*requestItem, error) {
	payloadJSON, err := json.Marshal(payloadToJSON(r.OperationPayload))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	policyJSON, err := json.Marshal(r.Policy)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}

	approvalsJSON, err := marshalSignatures(r.Approvals)
	if err != nil {
		return nil, err
	}
	rejectionsJSON, err := marshalSignatures(r.Rejections)
	if err != nil {
		return nil, err
	}

	item := &requestItem{
		RequestID:           r.RequestID,
		OperationType:       r.OperationType,
		OperationPayload:    string(payloadJSON),
		RequesterID:         r.RequesterID,
		PolicyJSON:          string(policyJSON),
		RequiredApprovals:   r.RequiredApprovals,
		TotalEligible:       r.TotalEligible,
		EligibleApproverIDs: append([]string(nil), r.EligibleApproverIDs...),
		ApprovalsJSON:       approvalsJSON,
		RejectionsJSON:      rejectionsJSON,
		CreatedAt:           r.CreatedAt.Format(time.RFC3339Nano),
		CreatedAtNS:         r.CreatedAtNS,
		ExpiresAt:           r.ExpiresAt.Format(time.RFC3339Nano),
		TTL:                 r.ExpiresAt.Unix(),
		Status:              string(r.Status),
		EmergencyOverride:   r.EmergencyOverride,
		ExecutionResult:     r.ExecutionResult,
		Version:             r.Version,
	}
	if !r.ExecutedAt.IsZero() {
		item.ExecutedAt = r.ExecutedAt.Format(time.RFC3339Nano)
	}
	return item, nil
}

func marshalSignatures(sigs []ApprovalSignature) (string, error) {
	wire := make([]signatureJSON, len(sigs))
	for i, s := range sigs {
		wire[i] = sigToJSON(s)
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal signatures: %w", err)
	}
	return string(b), nil
}

func unmarshalSignatures(raw string) ([]ApprovalSignature, error) {
	if raw == "" {
		return nil, nil
	}
	var wire []signatureJSON
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal signatures: %w", err)
	}
	out := make([]ApprovalSignature, len(wire))
	for i, j := range wire {
		sig, err := sigFromJSON(j)
		if err != nil {
			return nil, err
		}
		out[i] = sig
	}
	return out, nil
}

func itemToRequest(item *requestItem) (*Request, error) {
	var payloadWire map[string]payloadJSON
	if err := json.Unmarshal([]byte(item.OperationPayload), &payloadWire); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	var snapshot PolicySnapshot
	if err := json.Unmarshal([]byte(item.PolicyJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	approvals, err := unmarshalSignatures(item.ApprovalsJSON)
	if err != nil {
		return nil, err
	}
	rejections, err := unmarshalSignatures(item.RejectionsJSON)
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
	if !Status(item.Status).IsValid() {
		return nil, fmt.Errorf("%s: %w", item.Status, errUnknownStatus)
	}

	var executedAt time.Time
	if item.ExecutedAt != "" {
		executedAt, err = time.Parse(time.RFC3339Nano, item.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("parse executed_at: %w", err)
		}
	}

	return &Request{
		RequestID:           item.RequestID,
		OperationType:       item.OperationType,
		OperationPayload:    payloadFromJSON(payloadWire),
		RequesterID:         item.RequesterID,
		Policy:              snapshot,
		RequiredApprovals:   item.RequiredApprovals,
		TotalEligible:       item.TotalEligible,
		EligibleApproverIDs: item.EligibleApproverIDs,
		Approvals:           approvals,
		Rejections:          rejections,
		CreatedAt:           createdAt,
		CreatedAtNS:         item.CreatedAtNS,
		ExpiresAt:           expiresAt,
		Status:              Status(item.Status),
		EmergencyOverride:   item.EmergencyOverride,
		ExecutedAt:          executedAt,
		ExecutionResult:     item.ExecutionResult,
		Version:             item.Version,
	}, nil
}

var errUnknownStatus = errors.New("approval: unknown status value")

func (s *DynamoDBStore) Create(ctx context.Context, r *Request) error {
	r.Version = 1
	item, err := requestToItem(r)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(request_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrRequestExists
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, requestID string) (*Request, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"request_id": &types.AttributeValueMemberS{Value: requestID}},
	})
	if err != nil {
		return nil, vaulterrors.WrapUpstreamError(err, "dynamodb", "GetItem")
	}
	if out.Item == nil {
		return nil, ErrRequestNotFound
	}

	var item requestItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return itemToRequest(&item)
}

func (s *DynamoDBStore) Update(ctx context.Context, r *Request) error {
	priorVersion := r.Version
	r.Version++
	item, err := requestToItem(r)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(request_id) AND version = :prior_version"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prior_version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", priorVersion)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			r.Version = priorVersion
			if _, getErr := s.Get(ctx, r.RequestID); errors.Is(getErr, ErrRequestNotFound) {
				return ErrRequestNotFound
			}
			return ErrConcurrentModification
		}
		return vaulterrors.WrapUpstreamError(err, "dynamodb", "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error) {
	return s.queryByIndex(ctx, GSIStatus, "status", string(status), limit)
}

func (s *DynamoDBStore) ListByRequester(ctx context.Context, requesterID string, limit int) ([]*Request, error) {
	return s.queryByIndex(ctx, GSIRequester, "requester_id", requesterID, limit)
}

func (s *DynamoDBStore) queryByIndex(ctx context.Context, indexName, keyAttr, keyValue string, limit int) ([]*Request, error) {
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

	requests := make([]*Request, 0, len(out.Items))
	for _, av := range out.Items {
		var item requestItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}
		r, err := itemToRequest(&item)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, nil
}
