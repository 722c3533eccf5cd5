package matching

import "github.com/ashita-ai/convergent/internal/model"

// minSharedTags is how many distinct tags two specs must share to overlap
// when their names do not.
const minSharedTags = 2

// StructurallyOverlaps reports whether two interface specs describe the same
// capability: their names overlap, or they share at least two distinct tags.
func StructurallyOverlaps(a, b model.InterfaceSpec) bool {
	if NamesOverlap(a.Name, b.Name) {
		return true
	}
	return SharedTagCount(a.Tags, b.Tags) >= minSharedTags
}

// SharedTagCount counts distinct tags present in both lists.
func SharedTagCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inB := make(map[string]struct{}, len(b))
	for _, t := range b {
		inB[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	n := 0
	for _, t := range a {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := inB[t]; ok {
			n++
		}
	}
	return n
}

// ConstraintAppliesTo reports whether any of the constraint's affected tags
// appears among the tags of the intent's provided or required specs.
func ConstraintAppliesTo(c model.Constraint, n model.IntentNode) bool {
	if len(c.AffectsTags) == 0 {
		return false
	}
	tags := make(map[string]struct{})
	for _, t := range n.Tags() {
		tags[t] = struct{}{}
	}
	for _, t := range c.AffectsTags {
		if _, ok := tags[t]; ok {
			return true
		}
	}
	return false
}

// ConstraintsConflict reports whether two constraints target the same thing
// with different requirements.
func ConstraintsConflict(a, b model.Constraint) bool {
	return NormalizeConstraintTarget(a.Target) == NormalizeConstraintTarget(b.Target) &&
		a.Requirement != b.Requirement
}

// SpecOverlapsIntent reports whether spec overlaps any provided or required
// spec of n.
func SpecOverlapsIntent(spec model.InterfaceSpec, n model.IntentNode) bool {
	for _, theirs := range n.Specs() {
		if StructurallyOverlaps(spec, theirs) {
			return true
		}
	}
	return false
}

// IntentsOverlap reports whether any spec of a overlaps any spec of b.
func IntentsOverlap(a, b model.IntentNode) bool {
	for _, mine := range a.Specs() {
		if SpecOverlapsIntent(mine, b) {
			return true
		}
	}
	return false
}
