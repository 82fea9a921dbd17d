package vaulterrors

import (
	"errors"
	"testing"
)

func TestVaultErrorInterface(t *testing.T) {
	var _ VaultError = &vaultError{}
}

func TestVaultError_Error(t *testing.T) {
	err := &vaultError{
		code:       ErrCodeAuthFailed,
		message:    "signature verification failed",
		suggestion: "check the registered public key",
		context:    map[string]string{"identity_id": "agt-1"},
		cause:      errors.New("underlying error"),
	}

	if got := err.Error(); got != "signature verification failed" {
		t.Errorf("Error() = %q, want %q", got, "signature verification failed")
	}
}

func TestVaultError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := &vaultError{code: ErrCodeAuthFailed, message: "failed", cause: cause}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestVaultError_Unwrap_Nil(t *testing.T) {
	err := &vaultError{code: ErrCodeAuthFailed, message: "failed"}

	if got := err.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestVaultError_Code(t *testing.T) {
	err := &vaultError{code: ErrCodeRequestNotFound, message: "not found"}

	if got := err.Code(); got != ErrCodeRequestNotFound {
		t.Errorf("Code() = %q, want %q", got, ErrCodeRequestNotFound)
	}
}

func TestVaultError_Suggestion(t *testing.T) {
	suggestion := "request a new pre-auth token"
	err := &vaultError{code: ErrCodePreAuthTokenExpired, message: "expired", suggestion: suggestion}

	if got := err.Suggestion(); got != suggestion {
		t.Errorf("Suggestion() = %q, want %q", got, suggestion)
	}
}

func TestVaultError_Context(t *testing.T) {
	ctx := map[string]string{
		"request_id": "req-1",
		"operation":  "approve",
	}
	err := &vaultError{code: ErrCodeQuorumNotMet, message: "quorum not met", context: ctx}

	got := err.Context()
	if len(got) != 2 {
		t.Errorf("Context() has %d entries, want 2", len(got))
	}
	if got["request_id"] != "req-1" {
		t.Errorf("Context()[\"request_id\"] = %q, want %q", got["request_id"], "req-1")
	}
}

func TestNew(t *testing.T) {
	cause := errors.New("original")
	err := New(ErrCodeAuthFailed, "auth failed", "check signing key", cause)

	if err.Code() != ErrCodeAuthFailed {
		t.Errorf("Code() = %q, want %q", err.Code(), ErrCodeAuthFailed)
	}
	if err.Error() != "auth failed" {
		t.Errorf("Error() = %q, want %q", err.Error(), "auth failed")
	}
	if err.Suggestion() != "check signing key" {
		t.Errorf("Suggestion() = %q, want %q", err.Suggestion(), "check signing key")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if err.Context() == nil {
		t.Error("Context() is nil, want initialized map")
	}
}

func TestNew_NilCause(t *testing.T) {
	err := New(ErrCodePolicyNotConfigured, "policy missing", "publish a policy", nil)

	if err.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", err.Unwrap())
	}
}

func TestWithContext(t *testing.T) {
	original := New(ErrCodeAuthFailed, "auth failed", "check signing key", nil)
	withCtx := WithContext(original, "identity_id", "agt-1")

	ctx := withCtx.Context()
	if ctx["identity_id"] != "agt-1" {
		t.Errorf("Context()[\"identity_id\"] = %q, want %q", ctx["identity_id"], "agt-1")
	}

	if len(original.Context()) != 0 {
		t.Errorf("Original Context() has %d entries, want 0", len(original.Context()))
	}
}

func TestWithContext_PreservesExisting(t *testing.T) {
	original := New(ErrCodeAuthFailed, "auth failed", "check signing key", nil)
	withFirst := WithContext(original, "key1", "value1")
	withSecond := WithContext(withFirst, "key2", "value2")

	ctx := withSecond.Context()
	if len(ctx) != 2 {
		t.Errorf("Context() has %d entries, want 2", len(ctx))
	}
	if ctx["key1"] != "value1" || ctx["key2"] != "value2" {
		t.Errorf("Context() = %v, want key1/key2 set", ctx)
	}
}

func TestWithContext_PreservesOtherFields(t *testing.T) {
	cause := errors.New("cause")
	original := New(ErrCodeAuthFailed, "auth failed", "check signing key", cause)
	withCtx := WithContext(original, "key", "value")

	if withCtx.Code() != ErrCodeAuthFailed {
		t.Errorf("Code() = %q, want %q", withCtx.Code(), ErrCodeAuthFailed)
	}
	if withCtx.Error() != "auth failed" {
		t.Errorf("Error() = %q, want %q", withCtx.Error(), "auth failed")
	}
	if withCtx.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", withCtx.Unwrap(), cause)
	}
}

func TestAs_VaultError(t *testing.T) {
	err := New(ErrCodeAuthFailed, "auth failed", "check signing key", nil)

	got, ok := As(err)
	if !ok {
		t.Error("As() = false, want true")
	}
	if got == nil || got.Code() != ErrCodeAuthFailed {
		t.Errorf("As() = %v, want code %q", got, ErrCodeAuthFailed)
	}
}

func TestAs_RegularError(t *testing.T) {
	err := errors.New("regular error")

	got, ok := As(err)
	if ok || got != nil {
		t.Errorf("As() = (%v, %v), want (nil, false)", got, ok)
	}
}

func TestAs_NilError(t *testing.T) {
	got, ok := As(nil)
	if ok || got != nil {
		t.Errorf("As(nil) = (%v, %v), want (nil, false)", got, ok)
	}
}

func TestCode_RegularError(t *testing.T) {
	if got := Code(errors.New("regular")); got != "" {
		t.Errorf("Code() = %q, want empty string", got)
	}
}

func TestCode_NilError(t *testing.T) {
	if got := Code(nil); got != "" {
		t.Errorf("Code(nil) = %q, want empty string", got)
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeQuorumNotMet, "quorum not met", "", nil)
	if !Is(err, ErrCodeQuorumNotMet) {
		t.Error("Is() = false, want true")
	}
	if Is(err, ErrCodeAuthFailed) {
		t.Error("Is() = true, want false")
	}
}
