package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/escrow"
	"github.com/trustfabric/vaultcore/identity"
	"github.com/trustfabric/vaultcore/keyoracle"
	"github.com/trustfabric/vaultcore/keyoracle/scopedkey"
	"github.com/trustfabric/vaultcore/orchestrator"
	"github.com/trustfabric/vaultcore/shamir"
	"github.com/trustfabric/vaultcore/vaultconfig"
)

// registerExecutors binds every OperationKind the Orchestrator recognizes
// to the engine call that actually performs it. credential_access/
// _update/_delete have no dedicated live-secret store in this module
// (EscrowEngine models encrypted backup and recovery, not day-to-day
// secret serving) so they resolve to an audited confirmation rather than
// a storage mutation; callers needing the plaintext back use
// share_recover instead.
func registerExecutors(orch *orchestrator.Orchestrator, identities *identity.Manager, escrowEngine *escrow.Engine, oracle keyoracle.KeyOracle) {
	orch.RegisterExecutor(orchestrator.OpCredentialAccess, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		return "authorized:" + payload["credential_id"].String(), nil
	})

	orch.RegisterExecutor(orchestrator.OpCredentialCreate, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		class := escrow.EscrowClass(payload["escrow_class"].String())
		ec, err := escrowEngine.Escrow(ctx, payload["credential_id"].String(), []byte(payload["secret"].String()), requesterID, class, payload["justification"].String(), nil)
		if err != nil {
			return "", err
		}
		return ec.EscrowID, nil
	})

	orch.RegisterExecutor(orchestrator.OpCredentialUpdate, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		return "acknowledged:" + payload["credential_id"].String(), nil
	})

	orch.RegisterExecutor(orchestrator.OpCredentialDelete, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		if escrowID := payload["escrow_id"].String(); escrowID != "" {
			if _, err := escrowEngine.Revoke(ctx, escrowID, requesterID, payload["reason"].String()); err != nil {
				return "", err
			}
			return "revoked:" + escrowID, nil
		}
		return "acknowledged:" + payload["credential_id"].String(), nil
	})

	orch.RegisterExecutor(orchestrator.OpVaultConfigure, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		configType := vaultconfig.ConfigType(payload["config_type"].String())
		if !configType.IsValid() {
			return "", fmt.Errorf("unknown config type %q", configType)
		}
		result := vaultconfig.Validate(configType, []byte(payload["content"].String()), "operation payload")
		if !result.Valid {
			return "", fmt.Errorf("configuration rejected: %s: %s", result.Issues[0].Location, result.Issues[0].Message)
		}
		return "validated:" + configType.String(), nil
	})

	orch.RegisterExecutor(orchestrator.OpBackupRestore, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		threshold, ok := payload["threshold"].Int()
		if !ok {
			return "", fmt.Errorf("backup_restore payload missing integer threshold")
		}

		// Custodian shares arrive as share_<index> fields holding the
		// hex-encoded 32-byte share value.
		var shares []shamir.Share
		for name, value := range payload {
			suffix, found := strings.CutPrefix(name, "share_")
			if !found {
				continue
			}
			index, err := strconv.Atoi(suffix)
			if err != nil {
				return "", fmt.Errorf("malformed share field %q: %w", name, err)
			}
			raw, err := hex.DecodeString(value.String())
			if err != nil {
				return "", fmt.Errorf("malformed share value in %q: %w", name, err)
			}
			shares = append(shares, shamir.ShareFromBytes(index, raw))
		}

		secret, err := shamir.Combine(shares, int(threshold))
		if err != nil {
			return "", err
		}
		buf := scopedkey.New(secret)
		defer buf.Release()
		for i := range secret {
			secret[i] = 0
		}

		ec, err := escrowEngine.Escrow(ctx, payload["credential_id"].String(), buf.Bytes(), requesterID, escrow.ClassEmergency, "master secret reconstructed from custodian shares", nil)
		if err != nil {
			return "", err
		}
		return "restored:" + ec.EscrowID, nil
	})

	orch.RegisterExecutor(orchestrator.OpUserManage, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		id, err := identities.Approve(ctx, payload["agent_id"].String(), requesterID, nil, nil)
		if err != nil {
			return "", err
		}
		return id.IdentityID, nil
	})

	orch.RegisterExecutor(orchestrator.OpEmergencyRevoke, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		id, err := identities.Revoke(ctx, payload["agent_id"].String(), requesterID, payload["reason"].String())
		if err != nil {
			return "", err
		}
		return id.IdentityID, nil
	})

	orch.RegisterExecutor(orchestrator.OpShareRecover, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		plaintext, err := escrowEngine.FetchRecovered(ctx, payload["recovery_id"].String(), requesterID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("recovered:%d bytes", len(plaintext)), nil
	})

	orch.RegisterExecutor(orchestrator.OpHSMOp, func(ctx context.Context, payload approval.Payload, requesterID string) (string, error) {
		meta, err := oracle.Describe(ctx, keyoracle.Handle(payload["key_handle"].String()))
		if err != nil {
			return "", err
		}
		return string(meta.Handle), nil
	})
}
