// Package model defines the core data types shared across impactgate.
package model

import "time"

// ChangeType is the category of a planned change.
type ChangeType string

const (
	ChangeFeature       ChangeType = "feature"
	ChangeBugfix        ChangeType = "bugfix"
	ChangeEnhancement   ChangeType = "enhancement"
	ChangeRefactor      ChangeType = "refactor"
	ChangeMigration     ChangeType = "migration"
	ChangeDeletion      ChangeType = "deletion"
	ChangeSecurity      ChangeType = "security"
	ChangePerformance   ChangeType = "performance"
	ChangeConfiguration ChangeType = "configuration"
	ChangeDocumentation ChangeType = "documentation"
)

// ChangeTypes lists every category in a fixed order.
var ChangeTypes = []ChangeType{
	ChangeFeature,
	ChangeBugfix,
	ChangeEnhancement,
	ChangeRefactor,
	ChangeMigration,
	ChangeDeletion,
	ChangeSecurity,
	ChangePerformance,
	ChangeConfiguration,
	ChangeDocumentation,
}

// Valid reports whether c is a known category.
func (c ChangeType) Valid() bool {
	for _, t := range ChangeTypes {
		if t == c {
			return true
		}
	}
	return false
}

// OperationType is the kind of edit an operation performs.
type OperationType string

const (
	OpAdd      OperationType = "add"
	OpModify   OperationType = "modify"
	OpDelete   OperationType = "delete"
	OpRefactor OperationType = "refactor"
	OpMigrate  OperationType = "migrate"
)

// ChangeInput is the raw request to analyze a planned change.
type ChangeInput struct {
	Description   string     `json:"description"`
	TargetFiles   []string   `json:"target_files,omitempty"`
	TargetModules []string   `json:"target_modules,omitempty"`
	SpecID        string     `json:"spec_id,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
	ChangeType    ChangeType `json:"change_type,omitempty"` // empty means infer
}

// ParsedOperation is one verb/target pair extracted from a description.
type ParsedOperation struct {
	Type        OperationType `json:"type"`
	Target      string        `json:"target"`
	Description string        `json:"description"`
	Inferred    bool          `json:"inferred,omitempty"`
}

// ParsedChange is the structured signal extracted from a ChangeInput.
type ParsedChange struct {
	Entities   []string          `json:"entities"`
	Operations []ParsedOperation `json:"operations"`
	Keywords   []string          `json:"keywords"`
	ChangeType ChangeType        `json:"change_type"`
	Confidence float64           `json:"confidence"`
}

// HasOperation reports whether any operation has type t.
func (p ParsedChange) HasOperation(t OperationType) bool {
	for _, op := range p.Operations {
		if op.Type == t {
			return true
		}
	}
	return false
}

// ImpactLevel classifies how tightly an item is coupled to a change.
type ImpactLevel string

const (
	ImpactDirect   ImpactLevel = "direct"
	ImpactIndirect ImpactLevel = "indirect"
	ImpactCascade  ImpactLevel = "cascade"
)

// ImpactForDepth maps a BFS depth to an impact level.
func ImpactForDepth(depth int) ImpactLevel {
	switch {
	case depth <= 1:
		return ImpactDirect
	case depth == 2:
		return ImpactIndirect
	default:
		return ImpactCascade
	}
}

// AffectedItem is a module or file reached from the primary set.
type AffectedItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ImpactLevel ImpactLevel `json:"impact_level"`
	Depth       int         `json:"depth"`
	Path        []string    `json:"path"`
	Reason      string      `json:"reason"`
}

// ChangeScope is the computed blast radius of a change.
type ChangeScope struct {
	PrimaryModules   []string       `json:"primary_modules"`
	PrimaryFiles     []string       `json:"primary_files"`
	DependentModules []AffectedItem `json:"dependent_modules"`
	AffectedFiles    []AffectedItem `json:"affected_files"`
	AffectedEntities []string       `json:"affected_entities"`
	Depth            int            `json:"depth"`
}

// IsPrimaryModule reports whether id is in the primary module set.
func (s *ChangeScope) IsPrimaryModule(id string) bool {
	for _, m := range s.PrimaryModules {
		if m == id {
			return true
		}
	}
	return false
}

// DependentIDs returns the ids of all dependent modules.
func (s *ChangeScope) DependentIDs() []string {
	ids := make([]string, 0, len(s.DependentModules))
	for _, d := range s.DependentModules {
		ids = append(ids, d.ID)
	}
	return ids
}

// AllFiles returns primary files followed by affected file ids.
func (s *ChangeScope) AllFiles() []string {
	files := make([]string, 0, len(s.PrimaryFiles)+len(s.AffectedFiles))
	files = append(files, s.PrimaryFiles...)
	for _, f := range s.AffectedFiles {
		files = append(files, f.ID)
	}
	return files
}

// FlowType is the direction of data movement along a flow.
type FlowType string

const (
	FlowRead          FlowType = "read"
	FlowWrite         FlowType = "write"
	FlowBidirectional FlowType = "bidirectional"
)

// FlowStrength is how essential a flow is.
type FlowStrength string

const (
	StrengthCritical  FlowStrength = "critical"
	StrengthImportant FlowStrength = "important"
	StrengthOptional  FlowStrength = "optional"
)

// DataFlow is a raw data-flow edge between two modules.
type DataFlow struct {
	ID            string       `json:"id" yaml:"id"`
	From          string       `json:"from" yaml:"from"`
	To            string       `json:"to" yaml:"to"`
	Entities      []string     `json:"entities" yaml:"entities"`
	FlowType      FlowType     `json:"flow_type" yaml:"flow_type"`
	Strength      FlowStrength `json:"strength" yaml:"strength"`
	Relationships []string     `json:"relationships,omitempty" yaml:"relationships"`
}

// ImpactDataFlow is a DataFlow annotated with its impact on a change.
type ImpactDataFlow struct {
	DataFlow
	ImpactLevel        ImpactLevel `json:"impact_level"`
	AffectedOperations []string    `json:"affected_operations"`
	ValidationRequired bool        `json:"validation_required"`
	SuggestedTests     []string    `json:"suggested_tests"`
}

// ImpactAnalysis is the full result of running the pipeline once.
type ImpactAnalysis struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	Input       ChangeInput        `json:"input"`
	Parsed      ParsedChange       `json:"parsed"`
	Scope       ChangeScope        `json:"scope"`
	DataFlows   []ImpactDataFlow   `json:"data_flows"`
	Risks       []IdentifiedRisk   `json:"risks"`
	Validations []ValidationItem   `json:"validations"`
	Gate        ImplementationGate `json:"gate"`
}
