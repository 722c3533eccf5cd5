// Package matching provides deterministic structural comparison of interface
// names, type signatures and constraint targets. No embeddings, no network.
package matching

import (
	"strings"
	"unicode"
)

// nameSuffixes are stripped from interface names before comparison. Only the
// first matching suffix is removed, and never when it is the whole name.
var nameSuffixes = []string{"Model", "Service", "Handler", "Controller", "Spec", "Interface"}

// NormalizeName reduces an interface name to lowercase space-separated tokens
// with a known role suffix removed: "MealPlanService" becomes "meal plan".
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}

	stripped := name
	for _, suffix := range nameSuffixes {
		if strings.HasSuffix(stripped, suffix) && len(stripped) > len(suffix) {
			stripped = strings.TrimSuffix(stripped, suffix)
			break
		}
	}

	tokens := splitCamelCase(stripped)
	for i, tok := range tokens {
		tokens[i] = strings.ToLower(tok)
	}
	return strings.Join(tokens, " ")
}

// splitCamelCase starts a new token at an uppercase rune when the previous rune
// is lowercase or the next one is, so "HTTPServer" splits as "HTTP", "Server".
func splitCamelCase(s string) []string {
	runes := []rune(s)
	var tokens []string
	var current []rune

	for i, r := range runes {
		if unicode.IsUpper(r) && len(current) > 0 {
			prevLower := unicode.IsLower(current[len(current)-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				tokens = append(tokens, string(current))
				current = current[:0]
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		tokens = append(tokens, string(current))
	}
	return tokens
}

// NamesOverlap reports whether two interface names refer to the same concept:
// their normalized forms are equal, one is a prefix of the other, or one
// contains the other. Empty names never overlap.
func NamesOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na) {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// typeAliases maps spellings from common languages onto one canonical name.
var typeAliases = map[string]string{
	"UUID": "uuid", "uuid": "uuid", "Uuid": "uuid",

	"str": "str", "String": "str", "string": "str", "&str": "str",

	"int": "int", "integer": "int", "Integer": "int", "long": "int",
	"i8": "int", "i16": "int", "i32": "int", "i64": "int", "i128": "int", "isize": "int",
	"u8": "int", "u16": "int", "u32": "int", "u64": "int", "u128": "int", "usize": "int",
	"int8": "int", "int16": "int", "int32": "int", "int64": "int",
	"uint": "int", "uint8": "int", "uint16": "int", "uint32": "int", "uint64": "int",

	"float": "float", "double": "float", "f32": "float", "f64": "float",
	"float32": "float", "float64": "float",

	"bool": "bool", "boolean": "bool", "Boolean": "bool",
}

// NormalizeType canonicalizes a type spelling so that "Optional[String]",
// "str | None" and "string" all compare equal.
func NormalizeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}

	if strings.HasPrefix(t, "Optional[") && strings.HasSuffix(t, "]") {
		t = strings.TrimSpace(t[len("Optional[") : len(t)-1])
	}

	if strings.Contains(t, " | ") {
		kept := ""
		for _, part := range strings.Split(t, " | ") {
			part = strings.TrimSpace(part)
			if part != "None" && part != "" {
				kept = part
				break
			}
		}
		if kept == "" {
			return ""
		}
		t = kept
	}

	if inner, ok := containerInner(t); ok {
		return "list[" + NormalizeType(inner) + "]"
	}

	if canon, ok := typeAliases[t]; ok {
		return canon
	}
	return strings.ToLower(t)
}

func containerInner(t string) (string, bool) {
	for _, open := range []string{"list[", "List["} {
		if strings.HasPrefix(t, open) && strings.HasSuffix(t, "]") {
			return strings.TrimSpace(t[len(open) : len(t)-1]), true
		}
	}
	if strings.HasPrefix(t, "Vec<") && strings.HasSuffix(t, ">") {
		return strings.TrimSpace(t[len("Vec<") : len(t)-1]), true
	}
	if strings.HasPrefix(t, "[]") && len(t) > 2 {
		return t[2:], true
	}
	return "", false
}

// Field is one "name: type" entry of a signature.
type Field struct {
	Name string
	Type string
}

// ParseSignature splits "field: type, field: type" into fields. Segments
// without a colon are dropped.
func ParseSignature(sig string) []Field {
	if strings.TrimSpace(sig) == "" {
		return nil
	}
	var fields []Field
	for _, part := range strings.Split(sig, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		fields = append(fields, Field{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
	}
	return fields
}

// SignaturesCompatible reports whether b's shape satisfies every field a
// declares, comparing types after NormalizeType. An empty a is satisfied by anything.
func SignaturesCompatible(a, b string) bool {
	want := ParseSignature(a)
	if len(want) == 0 {
		return true
	}
	have := ParseSignature(b)

	for _, w := range want {
		found := false
		for _, h := range have {
			if h.Name != w.Name {
				continue
			}
			if NormalizeType(h.Type) != NormalizeType(w.Type) {
				return false
			}
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

// NormalizeConstraintTarget lowercases a constraint target, turns underscores
// and hyphens into spaces, collapses whitespace and drops a trailing
// " model" or " service".
func NormalizeConstraintTarget(target string) string {
	if target == "" {
		return ""
	}
	t := strings.ToLower(target)
	t = strings.NewReplacer("_", " ", "-", " ").Replace(t)
	t = strings.Join(strings.Fields(t), " ")

	for _, suffix := range []string{" model", " service"} {
		t = strings.TrimSuffix(t, suffix)
	}
	return strings.TrimSpace(t)
}
