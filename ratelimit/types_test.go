package ratelimit

import (
	"testing"
	"time"
)

func TestTierValidate(t *testing.T) {
	tests := []struct {
		name    string
		tier    Tier
		wantErr bool
	}{
		{"valid", Tier{Submissions: 10, Window: time.Minute}, false},
		{"zero submissions", Tier{Submissions: 0, Window: time.Minute}, true},
		{"negative submissions", Tier{Submissions: -1, Window: time.Minute}, true},
		{"zero window", Tier{Submissions: 10, Window: 0}, true},
		{"negative window", Tier{Submissions: 10, Window: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tier.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Tier{Submissions: 10, Window: time.Minute}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default only", Config{Default: valid}, false},
		{
			"with overrides",
			Config{Default: valid, Kinds: map[string]Tier{
				"emergency_revoke": {Submissions: 2, Window: time.Hour},
			}},
			false,
		},
		{"invalid default", Config{Default: Tier{}}, true},
		{
			"invalid override",
			Config{Default: valid, Kinds: map[string]Tier{
				"hsm_op": {Submissions: 5, Window: 0},
			}},
			true,
		},
		{
			"empty kind",
			Config{Default: valid, Kinds: map[string]Tier{"": valid}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigTierFor(t *testing.T) {
	cfg := Config{
		Default: Tier{Submissions: 120, Window: time.Minute},
		Kinds: map[string]Tier{
			"emergency_revoke": {Submissions: 2, Window: time.Hour},
			"backup_restore":   {Submissions: 5, Window: time.Hour},
		},
	}

	if got := cfg.TierFor("emergency_revoke"); got.Submissions != 2 || got.Window != time.Hour {
		t.Errorf("TierFor(emergency_revoke) = %+v, want the override tier", got)
	}
	if got := cfg.TierFor("credential_access"); got != cfg.Default {
		t.Errorf("TierFor(credential_access) = %+v, want the default tier", got)
	}
	if got := cfg.TierFor(""); got != cfg.Default {
		t.Errorf("TierFor(\"\") = %+v, want the default tier", got)
	}
}
