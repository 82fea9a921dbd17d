package vaulterrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// Suggestions holds the default actionable suggestion for each error code.
var Suggestions = map[string]string{
	ErrCodeThresholdOutOfRange:    "Threshold must satisfy 1 <= threshold <= total_shares <= 255.",
	ErrCodeSecretTooWide:          "Secrets wider than 32 bytes are rejected; wrap a symmetric data key with the secret instead of splitting the payload directly.",
	ErrCodeRateLimited:            "The requester has exceeded the submission rate limit. Wait for the reported retry-after interval before resubmitting.",
	ErrCodeAuthRequired:           "Include a valid pre-auth token or session token with the request.",
	ErrCodeAuthFailed:             "Verify the agent's signing key and machine binding match the registered identity.",
	ErrCodePreAuthTokenInvalid:    "Request a fresh pre-auth token; the supplied token does not match any issued token.",
	ErrCodePreAuthTokenExpired:    "The pre-auth token has expired or used up its allowed uses; request a new one.",
	ErrCodeMachineBindingMismatch: "This identity is bound to a different host. Re-register the identity from the current machine or rotate its binding.",
	ErrCodeSessionExpired:         "Establish a new session; the prior session's expiry has passed.",
	ErrCodeSessionRevoked:         "This session was explicitly revoked. Establish a new session if the identity is still in good standing.",
	ErrCodeIdentitySuspended:      "The identity is suspended. An administrator must reinstate it before further operations.",
	ErrCodeIdentityRevoked:        "The identity was revoked and cannot be reinstated. Register a new identity.",
	ErrCodePolicyNotConfigured:    "No policy document is configured for this operation kind. Publish one via the policy store.",
	ErrCodeCapabilityMissing:      "The identity lacks a capability required for this operation.",
	ErrCodeApproverIneligible:     "This identity is not in the eligible approver set frozen at request creation time.",
	ErrCodeQuorumNotMet:           "Collect additional approval signatures until the policy threshold is met.",
	ErrCodeSelfApprovalBarred:     "A requester may not approve their own request.",
	ErrCodeRequestTerminal:        "The request has already reached a terminal state and cannot accept further votes.",
	ErrCodeDuplicateVote:          "This approver has already voted on this request.",
	ErrCodeOptimisticLock:         "The record was modified concurrently. Reload and retry the update.",
	ErrCodeSignatureInvalid:       "Verify the signing algorithm and public key match what was registered for this identity.",
	ErrCodeCiphertextTampered:     "Authenticated decryption failed. The ciphertext or its associated data was altered.",
	ErrCodeReconstructFailed:      "Reconstruction requires at least threshold shares, all referencing the same secret_id.",
	ErrCodeKeyOracleFailure:       "The key oracle rejected the operation. Check key handle validity and oracle availability.",
	ErrCodeUpstreamUnavailable:    "A dependency (storage, cache, or key oracle) is unavailable. Retry with backoff.",
	ErrCodeUpstreamTimeout:        "A dependency call exceeded its deadline. Retry with backoff.",
	ErrCodeUpstreamThrottled:      "A dependency throttled the request. Retry after a delay.",
}

// GetSuggestion returns the default suggestion for a code, or "" if none is defined.
func GetSuggestion(code string) string {
	return Suggestions[code]
}

// WrapUpstreamError classifies an AWS SDK (or other smithy-typed) error into
// a VaultError, preferring the SDK's typed error codes over string matching.
func WrapUpstreamError(err error, service, operation string) VaultError {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	var code, message, suggestion string

	switch {
	case errors.As(err, &apiErr):
		switch {
		case isThrottleCode(apiErr.ErrorCode()):
			code = ErrCodeUpstreamThrottled
		case isNotFoundCode(apiErr.ErrorCode()):
			code = ErrCodeNotFound
		default:
			code = ErrCodeUpstreamUnavailable
		}
		message = fmt.Sprintf("%s %s failed: %s", service, operation, apiErr.ErrorMessage())
	default:
		code = ErrCodeUpstreamUnavailable
		message = fmt.Sprintf("%s %s failed: %v", service, operation, err)
	}

	suggestion = Suggestions[code]
	if suggestion == "" {
		suggestion = "Check connectivity and credentials for " + service + "."
	}

	ve := New(code, message, suggestion, err)
	ve = WithContext(ve, "service", service)
	return WithContext(ve, "operation", operation)
}

func isThrottleCode(code string) bool {
	lc := strings.ToLower(code)
	return strings.Contains(lc, "throttl") || strings.Contains(lc, "toomanyrequests") || strings.Contains(lc, "limitexceeded")
}

func isNotFoundCode(code string) bool {
	lc := strings.ToLower(code)
	return strings.Contains(lc, "notfound") || strings.Contains(lc, "nosuchentity") || strings.Contains(lc, "resourcenotfound")
}
