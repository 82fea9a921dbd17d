// Package main wires the five core engines behind a single Orchestrator
// and exposes its Prometheus metrics. It is configured through
// environment variables rather than flags.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/escrow"
	"github.com/trustfabric/vaultcore/eventsink"
	eventsinkdynamodb "github.com/trustfabric/vaultcore/eventsink/dynamodb"
	eventsinklogging "github.com/trustfabric/vaultcore/eventsink/logging"
	eventsinksns "github.com/trustfabric/vaultcore/eventsink/sns"
	"github.com/trustfabric/vaultcore/identity"
	keyoraclekms "github.com/trustfabric/vaultcore/keyoracle/kms"
	"github.com/trustfabric/vaultcore/orchestrator"
	"github.com/trustfabric/vaultcore/policystore"
	"github.com/trustfabric/vaultcore/ratelimit"
	"github.com/trustfabric/vaultcore/threat"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	durable := eventsinkdynamodb.New(cfg, envOrDefault("VAULTCORE_EVENT_TABLE", "vaultcore-events"))

	var auditLogger eventsinklogging.Logger = eventsinklogging.NewJSONLogger(os.Stdout)
	if key := os.Getenv("VAULTCORE_AUDIT_SIGNING_KEY"); key != "" {
		auditLogger = eventsinklogging.NewSignedLogger(os.Stdout, &eventsinklogging.SignatureConfig{
			KeyID:     envOrDefault("VAULTCORE_AUDIT_SIGNING_KEY_ID", "audit-v1"),
			SecretKey: []byte(key),
		})
	}

	var eventBroadcaster eventsink.EventBroadcaster
	if topicARN := os.Getenv("VAULTCORE_EVENT_BROADCAST_TOPIC_ARN"); topicARN != "" {
		eventBroadcaster = eventsinksns.New(cfg, topicARN)
	}

	sink := eventsink.NewFanoutSink(durable, auditLogger, eventBroadcaster)
	oracle := keyoraclekms.New(cfg)
	policies := policystore.NewResolver(
		policystore.NewCachedLoader(policystore.NewLoader(cfg), 5*time.Minute),
		envOrDefault("VAULTCORE_POLICY_PARAMETER", "/vaultcore/policy/document"),
	)

	identities := identity.NewManager(
		identity.NewDynamoDBStore(cfg, envOrDefault("VAULTCORE_IDENTITY_TABLE", "vaultcore-identities")),
		identity.NewDynamoDBPreAuthStore(cfg, envOrDefault("VAULTCORE_PREAUTH_TABLE", "vaultcore-preauth")),
		identity.NewDynamoDBSessionStore(cfg, envOrDefault("VAULTCORE_SESSION_TABLE", "vaultcore-sessions")),
		sink,
	)

	approverSource := orchestrator.NewIdentityApproverSource(identities)
	approvalStore := approval.NewDynamoDBStore(cfg, envOrDefault("VAULTCORE_APPROVAL_TABLE", "vaultcore-approvals"))
	approvals := approval.NewEngine(approvalStore, policies, approverSource, sink)

	approvalExpiry := approval.NewExpirySweeper(approvalStore, sink, time.Minute, 0)
	approvalExpiry.Start()
	defer approvalExpiry.Stop()

	escrowEngine := escrow.NewEngine(
		escrow.NewDynamoDBCredentialStore(cfg, envOrDefault("VAULTCORE_ESCROW_CREDENTIAL_TABLE", "vaultcore-escrow-credentials")),
		escrow.NewDynamoDBRecoveryStore(cfg, envOrDefault("VAULTCORE_ESCROW_RECOVERY_TABLE", "vaultcore-escrow-recoveries")),
		policies,
		approverSource,
		oracle,
		sink,
	)

	escrowSweep := escrowEngine.Sweeper(time.Hour, 0)
	escrowSweep.Start()
	defer escrowSweep.Stop()

	var broadcaster threat.Broadcaster
	if topicARN := os.Getenv("VAULTCORE_THREAT_BROADCAST_TOPIC_ARN"); topicARN != "" {
		broadcaster = threat.NewSNSBroadcaster(cfg, topicARN)
	}
	buffer := threat.NewMemoryBuffer()
	defer buffer.Stop()
	baselines := threat.NewMemoryBaselineStore()
	threatMetrics := threat.NewMetrics()
	threatEngine := threat.NewEngine(buffer, baselines, sink, broadcaster, threatMetrics)
	defer func() {
		if cerr := threatEngine.Close(); cerr != nil {
			log.Printf("threat engine close: %v", cerr)
		}
	}()

	// Hourly baseline refresh, cancellable between entities.
	analyzer := threat.NewBatchAnalyzer(buffer, baselines, threatMetrics, buffer.Entities)
	batchCtx, cancelBatch := context.WithCancel(ctx)
	defer cancelBatch()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-batchCtx.Done():
				return
			case <-ticker.C:
				if _, err := analyzer.Run(batchCtx); err != nil {
					log.Printf("baseline batch: %v", err)
				}
			}
		}
	}()

	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Config{
		Default: ratelimit.Tier{Submissions: 120, Window: time.Minute},
		Kinds: map[string]ratelimit.Tier{
			string(orchestrator.OpEmergencyRevoke): {Submissions: 5, Window: time.Hour},
			string(orchestrator.OpBackupRestore):   {Submissions: 5, Window: time.Hour},
			string(orchestrator.OpVaultConfigure):  {Submissions: 10, Window: time.Hour},
			string(orchestrator.OpHSMOp):           {Submissions: 30, Window: time.Minute},
		},
	})
	if err != nil {
		log.Fatalf("construct rate limiter: %v", err)
	}
	defer func() {
		if cerr := limiter.Close(); cerr != nil {
			log.Printf("rate limiter close: %v", cerr)
		}
	}()

	orch := orchestrator.New(identities, approvals, policies, threatEngine, sink, orchestrator.NewMetrics(), limiter)
	registerExecutors(orch, identities, escrowEngine, oracle)

	log.Printf("vaultcored %s starting", Version)
	http.Handle("/metrics", promhttp.Handler())
	addr := envOrDefault("VAULTCORE_LISTEN_ADDR", ":8443")
	log.Fatal(http.ListenAndServe(addr, nil))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
