package vaultconfig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trustfabric/vaultcore/policystore"
)

// Validate validates a single configuration fragment's YAML content
// against the structural rules for configType, returning every issue
// found (errors block publication; warnings do not).
func Validate(configType ConfigType, content []byte, source string) ValidationResult {
	result := ValidationResult{ConfigType: configType, Source: source, Valid: true}

	if len(content) == 0 {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Message:    "empty configuration",
			Suggestion: "provide valid YAML content",
		})
		return result
	}

	switch configType {
	case ConfigTypeApprovalPolicy:
		validateApprovalPolicy(content, &result)
	case ConfigTypeEscrowPolicy:
		validateEscrowPolicy(content, &result)
	case ConfigTypeThreatThreshold:
		validateThreatThreshold(content, &result)
	case ConfigTypeBaselineParameters:
		validateBaselineParameters(content, &result)
	default:
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Message:    fmt.Sprintf("unknown config type: %s", configType),
			Suggestion: fmt.Sprintf("use one of: %s", strings.Join(configTypeStrings(), ", ")),
		})
	}

	return result
}

// ValidateFile reads a local YAML file and validates it as configType.
func ValidateFile(path string, configType ConfigType) (ValidationResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ValidationResult{ConfigType: configType, Source: path, Valid: false}, fmt.Errorf("vaultconfig: read %s: %w", path, err)
	}
	return Validate(configType, content, path), nil
}

func configTypeStrings() []string {
	types := AllConfigTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func validateApprovalPolicy(content []byte, result *ValidationResult) {
	var doc policystore.ApprovalPolicyDoc
	if err := yaml.Unmarshal(content, &doc); err != nil {
		addError(result, "", fmt.Sprintf("invalid YAML: %v", err), "check indentation and field names")
		return
	}
	if doc.RequiredApprovals < 1 {
		addError(result, "required_approvals", "must be >= 1", "set required_approvals to at least 1")
	}
	if len(doc.EligibleRoles) == 0 {
		addError(result, "eligible_roles", "must name at least one eligible role", "list at least one role in eligible_roles")
	}
	if doc.RequiredApprovals > len(doc.EligibleRoles) {
		addWarning(result, "required_approvals", "exceeds the number of named eligible roles; quorum may be unreachable")
	}
	if doc.Timeout <= 0 {
		addError(result, "timeout", "must be a positive, explicit duration", "set an explicit timeout, e.g. \"24h\"")
	}
}

func validateEscrowPolicy(content []byte, result *ValidationResult) {
	var doc policystore.EscrowPolicyDoc
	if err := yaml.Unmarshal(content, &doc); err != nil {
		addError(result, "", fmt.Sprintf("invalid YAML: %v", err), "check indentation and field names")
		return
	}
	if doc.RequiredApprovers < 0 {
		addError(result, "required_approvers", "must be >= 0", "set required_approvers to 0 or more")
	}
	if doc.RequiredApprovers == 0 && !doc.EmergencyBypass {
		addWarning(result, "required_approvers", "is 0 but emergency_bypass is false; recovery can never reach quorum")
	}
	if doc.Retention <= 0 {
		addError(result, "retention", "must be a positive, explicit duration", "set an explicit retention, e.g. \"2160h\"")
	}
	if len(doc.EligibleRoles) == 0 && doc.RequiredApprovers > 0 {
		addError(result, "eligible_roles", "must name at least one eligible role when required_approvers > 0", "list at least one authorized role")
	}
}

func validateThreatThreshold(content []byte, result *ValidationResult) {
	var doc policystore.ThreatThresholdDoc
	if err := yaml.Unmarshal(content, &doc); err != nil {
		addError(result, "", fmt.Sprintf("invalid YAML: %v", err), "check indentation and field names")
		return
	}
	if doc.OffBaselineStdDevMultiplier <= 0 {
		addError(result, "off_baseline_stddev_multiplier", "must be > 0", "set to the documented default, 2.5, unless tuning for a specific population")
	}
	if doc.RapidFireCount <= 0 {
		addError(result, "rapid_fire_count", "must be > 0", "set to the documented default, 10")
	}
	if doc.RapidFireWindow <= 0 {
		addError(result, "rapid_fire_window", "must be a positive, explicit duration", "set an explicit window, e.g. \"5m\"")
	}
	if doc.HighRiskThreshold <= 0 || doc.HighRiskThreshold > 1 {
		addError(result, "high_risk_threshold", "must be in (0, 1]", "set to the documented default, 0.5")
	}
	if doc.BroadcastRiskThreshold < doc.HighRiskThreshold {
		addError(result, "broadcast_risk_threshold", "must be >= high_risk_threshold", "set to the documented default, 0.7")
	}
}

func validateBaselineParameters(content []byte, result *ValidationResult) {
	var doc policystore.BaselineParamDoc
	if err := yaml.Unmarshal(content, &doc); err != nil {
		addError(result, "", fmt.Sprintf("invalid YAML: %v", err), "check indentation and field names")
		return
	}
	if doc.MinSamples < 1 {
		addError(result, "min_samples", "must be >= 1", "set to the documented default, 50")
	}
	if doc.RefreshCadence <= 0 {
		addError(result, "refresh_cadence", "must be a positive, explicit duration", "set an explicit cadence, e.g. \"1h\"")
	}
	if doc.IdleInvalidation <= 0 {
		addError(result, "idle_invalidation", "must be a positive, explicit duration", "set an explicit idle window")
	}
	if doc.RecentIPCapacity < 0 {
		addError(result, "recent_ip_capacity", "must be >= 0", "set to the documented default, 50")
	}
}

func addError(result *ValidationResult, location, message, suggestion string) {
	result.Valid = false
	result.Issues = append(result.Issues, ValidationIssue{Severity: SeverityError, Location: location, Message: message, Suggestion: suggestion})
}

func addWarning(result *ValidationResult, location, message string) {
	result.Issues = append(result.Issues, ValidationIssue{Severity: SeverityWarning, Location: location, Message: message})
}
