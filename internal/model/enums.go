package model

import (
	"fmt"
	"strings"
)

// InterfaceKind enumerates the kinds of capability an intent can provide or require.
type InterfaceKind string

const (
	KindFunction  InterfaceKind = "function"
	KindClass     InterfaceKind = "class"
	KindModel     InterfaceKind = "model"
	KindEndpoint  InterfaceKind = "endpoint"
	KindMigration InterfaceKind = "migration"
	KindConfig    InterfaceKind = "config"
)

// InterfaceKinds lists every valid InterfaceKind in declaration order.
var InterfaceKinds = []InterfaceKind{
	KindFunction, KindClass, KindModel, KindEndpoint, KindMigration, KindConfig,
}

// Severity is how strongly a constraint binds other agents.
type Severity string

const (
	// SeverityPreferred: other agents should consider it but may ignore it.
	SeverityPreferred Severity = "preferred"
	// SeverityRequired: violating it causes integration failures.
	SeverityRequired Severity = "required"
	// SeverityCritical: violating it causes data loss or security issues.
	SeverityCritical Severity = "critical"
)

// Severities lists every valid Severity.
var Severities = []Severity{SeverityPreferred, SeverityRequired, SeverityCritical}

// EvidenceKind enumerates the signals that move an intent's computed stability.
type EvidenceKind string

const (
	EvidenceTestPass        EvidenceKind = "test_pass"
	EvidenceTestFail        EvidenceKind = "test_fail"
	EvidenceCodeCommitted   EvidenceKind = "code_committed"
	EvidenceConsumedByOther EvidenceKind = "consumed_by_other"
	EvidenceConflict        EvidenceKind = "conflict"
	EvidenceManualApproval  EvidenceKind = "manual_approval"
)

// EvidenceKinds lists every valid EvidenceKind.
var EvidenceKinds = []EvidenceKind{
	EvidenceTestPass, EvidenceTestFail, EvidenceCodeCommitted,
	EvidenceConsumedByOther, EvidenceConflict, EvidenceManualApproval,
}

// AdjustmentKind enumerates the actions resolution can recommend.
type AdjustmentKind string

const (
	AdjustConsumeInstead  AdjustmentKind = "consume_instead"
	AdjustAdoptConstraint AdjustmentKind = "adopt_constraint"
	AdjustYieldTo         AdjustmentKind = "yield_to"
	AdjustAdaptSignature  AdjustmentKind = "adapt_signature"
)

// AdjustmentKinds lists every valid AdjustmentKind.
var AdjustmentKinds = []AdjustmentKind{
	AdjustConsumeInstead, AdjustAdoptConstraint, AdjustYieldTo, AdjustAdaptSignature,
}

// EnumError reports a string that is not a member of a closed enumeration.
type EnumError struct {
	Kind  string
	Value string
	Valid []string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("model: invalid %s %q (valid: %s)", e.Kind, e.Value, strings.Join(e.Valid, ", "))
}

// ParseInterfaceKind converts s to an InterfaceKind. Matching is case-insensitive
// so "Function" and "function" are equivalent; anything else is rejected.
func ParseInterfaceKind(s string) (InterfaceKind, error) {
	return parseEnum("interface kind", s, InterfaceKinds)
}

// ParseSeverity converts s to a Severity.
func ParseSeverity(s string) (Severity, error) {
	return parseEnum("constraint severity", s, Severities)
}

// ParseEvidenceKind converts s to an EvidenceKind.
func ParseEvidenceKind(s string) (EvidenceKind, error) {
	return parseEnum("evidence kind", s, EvidenceKinds)
}

// ParseAdjustmentKind converts s to an AdjustmentKind.
func ParseAdjustmentKind(s string) (AdjustmentKind, error) {
	return parseEnum("adjustment kind", s, AdjustmentKinds)
}

// Valid reports whether k is a member of InterfaceKinds.
func (k InterfaceKind) Valid() bool { return contains(InterfaceKinds, k) }

// Valid reports whether s is a member of Severities.
func (s Severity) Valid() bool { return contains(Severities, s) }

// Valid reports whether k is a member of EvidenceKinds.
func (k EvidenceKind) Valid() bool { return contains(EvidenceKinds, k) }

// Valid reports whether k is a member of AdjustmentKinds.
func (k AdjustmentKind) Valid() bool { return contains(AdjustmentKinds, k) }

// parseEnum matches s against valid ignoring case and surrounding space and
// returns the canonical lowercase member, never s itself.
func parseEnum[T ~string](kind, s string, valid []T) (T, error) {
	folded := strings.ToLower(strings.TrimSpace(s))
	for _, v := range valid {
		if string(v) == folded {
			return v, nil
		}
	}
	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = string(v)
	}
	return "", &EnumError{Kind: kind, Value: s, Valid: names}
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
