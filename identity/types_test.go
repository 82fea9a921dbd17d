package identity

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    Status
		wantErr bool
	}{
		{name: "pending", in: "PENDING", want: StatusPending},
		{name: "approved", in: "APPROVED", want: StatusApproved},
		{name: "active", in: "ACTIVE", want: StatusActive},
		{name: "suspended", in: "SUSPENDED", want: StatusSuspended},
		{name: "revoked", in: "REVOKED", want: StatusRevoked},
		{name: "lowercase is unknown", in: "active", wantErr: true},
		{name: "empty is unknown", in: "", wantErr: true},
		{name: "garbage is unknown", in: "DELETED", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStatus(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownStatus) {
					t.Fatalf("ParseStatus(%q) error = %v, want ErrUnknownStatus", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	testCases := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusApproved, false},
		{StatusActive, false},
		{StatusSuspended, false},
		{StatusRevoked, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			if got := tc.status.IsTerminal(); got != tc.terminal {
				t.Errorf("Status(%q).IsTerminal() = %v, want %v", tc.status, got, tc.terminal)
			}
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	signingPub, exchangePub, _, err := GenerateKeyMaterial()
	if err != nil {
		t.Fatalf("GenerateKeyMaterial() error = %v", err)
	}

	a := Fingerprint(signingPub, exchangePub)
	b := Fingerprint(signingPub, exchangePub)
	if a != b {
		t.Errorf("Fingerprint() not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Fingerprint() length = %d, want 64 (hex SHA-256)", len(a))
	}
}

func TestFingerprint_DifferentKeysDifferentFingerprint(t *testing.T) {
	pub1, exch1, _, err := GenerateKeyMaterial()
	if err != nil {
		t.Fatalf("GenerateKeyMaterial() error = %v", err)
	}
	pub2, exch2, _, err := GenerateKeyMaterial()
	if err != nil {
		t.Fatalf("GenerateKeyMaterial() error = %v", err)
	}

	if Fingerprint(pub1, exch1) == Fingerprint(pub2, exch2) {
		t.Error("Fingerprint() collided across two independently generated keypairs")
	}
}

func TestMachineBinding_VerifyMachineBinding(t *testing.T) {
	fingerprint := "deadbeef"
	binding := MachineBinding("host-1", fingerprint)

	if !VerifyMachineBinding("host-1", fingerprint, binding) {
		t.Error("VerifyMachineBinding() = false for matching machine/fingerprint, want true")
	}
	if VerifyMachineBinding("host-2", fingerprint, binding) {
		t.Error("VerifyMachineBinding() = true for mismatched machine, want false")
	}
	if VerifyMachineBinding("host-1", "cafebabe", binding) {
		t.Error("VerifyMachineBinding() = true for mismatched fingerprint, want false")
	}
}

func TestGenerateKeyMaterial(t *testing.T) {
	signingPub, exchangePub, keyMaterial, err := GenerateKeyMaterial()
	if err != nil {
		t.Fatalf("GenerateKeyMaterial() error = %v", err)
	}
	if len(signingPub) == 0 {
		t.Error("GenerateKeyMaterial() signing public key is empty")
	}
	if len(exchangePub) != 32 {
		t.Errorf("GenerateKeyMaterial() exchange public key length = %d, want 32", len(exchangePub))
	}
	if len(keyMaterial.ExchangePrivateKey) != 32 {
		t.Errorf("GenerateKeyMaterial() exchange private key length = %d, want 32", len(keyMaterial.ExchangePrivateKey))
	}
	if len(keyMaterial.SigningPrivateKey) == 0 {
		t.Error("GenerateKeyMaterial() signing private key is empty")
	}
}

func TestNewIdentityID_Unique(t *testing.T) {
	const count = 500
	seen := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		id := NewIdentityID()
		if len(id) != identityIDLength {
			t.Fatalf("NewIdentityID() length = %d, want %d", len(id), identityIDLength)
		}
		if seen[id] {
			t.Fatalf("collision detected: %q generated more than once in %d iterations", id, i+1)
		}
		seen[id] = true
	}
}

func TestNewAgentID(t *testing.T) {
	got := NewAgentID("host-42", "worker", 1765036800)
	want := "host-42/worker/1765036800"
	if got != want {
		t.Errorf("NewAgentID() = %q, want %q", got, want)
	}
}

func TestUnionStrings(t *testing.T) {
	got := UnionStrings([]string{"a", "b"}, []string{"b", "c"})
	want := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	if len(got) != len(want) {
		t.Fatalf("UnionStrings() = %v, want %v", got, want)
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			t.Errorf("UnionStrings() missing key %q", k)
		}
	}
}

func TestIdentity_HasCapabilityHasTag(t *testing.T) {
	id := &Identity{
		Tags:         map[string]struct{}{"prod": {}},
		Capabilities: map[string]struct{}{"read_secret": {}},
	}

	if !id.HasTag("prod") {
		t.Error("HasTag(\"prod\") = false, want true")
	}
	if id.HasTag("staging") {
		t.Error("HasTag(\"staging\") = true, want false")
	}
	if !id.HasCapability("read_secret") {
		t.Error("HasCapability(\"read_secret\") = false, want true")
	}
	if id.HasCapability("write_secret") {
		t.Error("HasCapability(\"write_secret\") = true, want false")
	}
}

func TestIdentity_IsUsable(t *testing.T) {
	testCases := []struct {
		status Status
		usable bool
	}{
		{StatusPending, false},
		{StatusApproved, false},
		{StatusActive, true},
		{StatusSuspended, false},
		{StatusRevoked, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			id := &Identity{Status: tc.status}
			if got := id.IsUsable(); got != tc.usable {
				t.Errorf("Identity{Status: %q}.IsUsable() = %v, want %v", tc.status, got, tc.usable)
			}
		})
	}
}
