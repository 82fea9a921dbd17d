// Package sns broadcasts high-severity security events to an SNS topic for
// external subscribers (SIEM forwarders, paging systems). Only events
// meeting a severity threshold are published; everything else stays in
// the durable EventSink.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// snsAPI defines the SNS operations used by Broadcaster.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Broadcaster publishes high-risk security events to an AWS SNS topic.
// Messages carry a "severity" MessageAttribute so subscribers can filter
// subscriptions (e.g. only page on critical).
type Broadcaster struct {
	client    snsAPI
	topicARN  string
	Threshold eventsink.Severity
}

// New creates a Broadcaster using the provided AWS configuration. Events
// below Threshold (default high) are not published.
func New(cfg aws.Config, topicARN string) *Broadcaster {
	return &Broadcaster{client: sns.NewFromConfig(cfg), topicARN: topicARN, Threshold: eventsink.SeverityHigh}
}

func newWithClient(client snsAPI, topicARN string) *Broadcaster {
	return &Broadcaster{client: client, topicARN: topicARN, Threshold: eventsink.SeverityHigh}
}

// Broadcast publishes evt if its severity meets Threshold. It is a no-op
// otherwise, returning (false, nil).
func (b *Broadcaster) Broadcast(ctx context.Context, evt *eventsink.Event) (published bool, err error) {
	if !evt.Severity.AtLeast(b.Threshold) {
		return false, nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	_, err = b.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(b.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"severity": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.Severity)),
			},
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(evt.Kind),
			},
		},
	})
	if err != nil {
		return false, vaulterrors.WrapUpstreamError(err, "sns", "Publish")
	}
	return true, nil
}
