package threat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Broadcaster publishes high-risk insights (risk ≥ BroadcastRiskThreshold)
// to external subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, insight *Insight) error
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSBroadcaster publishes insights to an SNS topic as JSON, with a
// "kind" message attribute for subscription filtering.
type SNSBroadcaster struct {
	client   snsAPI
	topicARN string
}

// NewSNSBroadcaster constructs an SNSBroadcaster from an AWS config.
func NewSNSBroadcaster(cfg aws.Config, topicARN string) *SNSBroadcaster {
	return &SNSBroadcaster{client: sns.NewFromConfig(cfg), topicARN: topicARN}
}

func newSNSBroadcasterWithClient(client snsAPI, topicARN string) *SNSBroadcaster {
	return &SNSBroadcaster{client: client, topicARN: topicARN}
}

func (b *SNSBroadcaster) Broadcast(ctx context.Context, insight *Insight) error {
	payload, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("threat: marshal insight: %w", err)
	}

	_, err = b.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(b.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(insight.Kind)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("threat: sns publish: %w", err)
	}
	return nil
}
