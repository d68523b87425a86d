package model

import "time"

// Severity ranks a risk.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities; lower is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() < 4
}

// RiskCategory groups risks by the kind of harm they describe.
type RiskCategory string

const (
	RiskDataCorruption RiskCategory = "data-corruption"
	RiskBreakingChange RiskCategory = "breaking-change"
	RiskSecurity       RiskCategory = "security"
	RiskPerformance    RiskCategory = "performance"
	RiskTesting        RiskCategory = "testing"
	RiskCompatibility  RiskCategory = "compatibility"
	RiskOther          RiskCategory = "other"
)

// Valid reports whether c is a known risk category.
func (c RiskCategory) Valid() bool {
	switch c {
	case RiskDataCorruption, RiskBreakingChange, RiskSecurity, RiskPerformance,
		RiskTesting, RiskCompatibility, RiskOther:
		return true
	}
	return false
}

// IdentifiedRisk is a rule that matched a change.
type IdentifiedRisk struct {
	ID                string       `json:"id"`
	RuleID            string       `json:"rule_id"`
	Name              string       `json:"name"`
	Category          RiskCategory `json:"category"`
	Severity          Severity     `json:"severity"`
	Description       string       `json:"description"`
	AffectedAreas     []string     `json:"affected_areas"`
	Mitigation        string       `json:"mitigation"`
	IsBlocking        bool         `json:"is_blocking"`
	MitigationApplied bool         `json:"mitigation_applied"`
}

// RiskID is the stable id of the risk produced by a rule.
func RiskID(ruleID string) string {
	return "risk:" + ruleID
}

// ValidationCategory is the kind of check a validation item asks for.
type ValidationCategory string

const (
	ValidationUnitTest        ValidationCategory = "unit-test"
	ValidationIntegrationTest ValidationCategory = "integration-test"
	ValidationManualReview    ValidationCategory = "manual-review"
	ValidationSecurityReview  ValidationCategory = "security-review"
	ValidationDataIntegrity   ValidationCategory = "data-integrity"
	ValidationPerformance     ValidationCategory = "performance"
	ValidationAPIContract     ValidationCategory = "api-contract"
	ValidationMigration       ValidationCategory = "migration"
)

// ValidationStatus tracks a validation item through execution.
type ValidationStatus string

const (
	StatusPending ValidationStatus = "pending"
	StatusRunning ValidationStatus = "running"
	StatusPassed  ValidationStatus = "passed"
	StatusFailed  ValidationStatus = "failed"
	StatusSkipped ValidationStatus = "skipped"
)

// Valid reports whether s is a known status.
func (s ValidationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPassed, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ValidationItem is one entry of the validation checklist.
type ValidationItem struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Category       ValidationCategory `json:"category"`
	Status         ValidationStatus   `json:"status"`
	IsBlocking     bool               `json:"is_blocking"`
	AutoVerifiable bool               `json:"auto_verifiable"`
	VerifyCommand  string             `json:"verify_command,omitempty"`
	Result         string             `json:"result,omitempty"`
	Source         string             `json:"source,omitempty"`
}

// GateStatus is the aggregate go/no-go decision.
type GateStatus string

const (
	GateBlocked GateStatus = "blocked"
	GateWarning GateStatus = "warning"
	GateClear   GateStatus = "clear"
)

// Blocker source types.
const (
	BlockerRisk       = "risk"
	BlockerValidation = "validation"
	BlockerCriteria   = "criteria"
)

// Blocker is an unresolved item that prevents implementation.
type Blocker struct {
	ItemID   string   `json:"item_id"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity,omitempty"`
}

// Warning is an advisory that does not block implementation.
type Warning struct {
	ItemID  string `json:"item_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GateApproval records who approved which blockers.
type GateApproval struct {
	Approver         string    `json:"approver"`
	ApprovedAt       time.Time `json:"approved_at"`
	Reason           string    `json:"reason"`
	ApprovedBlockers []string  `json:"approved_blockers"`
	// Bypassed lists the approved blockers that were cleared by a force
	// override rather than approved one by one.
	Bypassed []string `json:"bypassed,omitempty"`
}

// Approves reports whether the approval covers blocker id.
func (a *GateApproval) Approves(id string) bool {
	if a == nil {
		return false
	}
	for _, b := range a.ApprovedBlockers {
		if b == id {
			return true
		}
	}
	return false
}

// Bypasses reports whether blocker id was cleared by a force override.
func (a *GateApproval) Bypasses(id string) bool {
	if a == nil {
		return false
	}
	for _, b := range a.Bypassed {
		if b == id {
			return true
		}
	}
	return false
}

// ImplementationGate is the gate decision for one analysis.
type ImplementationGate struct {
	Status      GateStatus    `json:"status"`
	Blockers    []Blocker     `json:"blockers"`
	Warnings    []Warning     `json:"warnings"`
	Approval    *GateApproval `json:"approval,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Audit actions.
const (
	AuditForceOverride  = "force_override"
	AuditApprove        = "approve"
	AuditRevokeApproval = "revoke_approval"
)

// GateAuditLog is an auditable record of a gate transition.
type GateAuditLog struct {
	ID               string     `json:"id"`
	AnalysisID       string     `json:"analysis_id,omitempty"`
	Action           string     `json:"action"`
	Approver         string     `json:"approver"`
	Reason           string     `json:"reason"`
	BlockersBypassed []string   `json:"blockers_bypassed"`
	PreviousStatus   GateStatus `json:"previous_status"`
	NewStatus        GateStatus `json:"new_status"`
	Timestamp        time.Time  `json:"timestamp"`
}
