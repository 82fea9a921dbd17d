// Loader fetches the configuration Document from AWS SSM Parameter
// Store using a decrypt-enabled GetParameter call through a seam
// interface for testing, wrapping not-found responses distinctly.
package policystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// ErrDocumentNotFound is returned when the requested parameter does not
// exist in SSM Parameter Store.
var ErrDocumentNotFound = errors.New("policystore: document not found")

// SSMAPI defines the SSM operations used by Loader, narrow enough to
// substitute a mock in tests.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Loader fetches the configuration Document from SSM Parameter Store.
type Loader struct {
	client SSMAPI
}

// NewLoader builds a Loader from an AWS config.
func NewLoader(cfg aws.Config) *Loader {
	return &Loader{client: ssm.NewFromConfig(cfg)}
}

// NewLoaderWithClient builds a Loader over a custom (e.g. mock) client.
func NewLoaderWithClient(client SSMAPI) *Loader {
	return &Loader{client: client}
}

// Load fetches and parses the configuration Document stored at
// parameterName.
func (l *Loader) Load(ctx context.Context, parameterName string) (*Document, error) {
	out, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(parameterName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", parameterName, ErrDocumentNotFound)
		}
		return nil, vaulterrors.WrapUpstreamError(err, "ssm", "GetParameter:"+parameterName)
	}
	return ParseDocument([]byte(*out.Parameter.Value))
}
