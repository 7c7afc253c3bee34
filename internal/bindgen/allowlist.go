package bindgen

import "strings"

// Pattern is a symbol-name rule. A trailing '*' makes it a prefix match,
// otherwise the name must match exactly. Matching is case-sensitive.
type Pattern string

// Match reports whether name satisfies p.
func (p Pattern) Match(name string) bool {
	if prefix, ok := strings.CutSuffix(string(p), "*"); ok {
		return strings.HasPrefix(name, prefix) && len(name) > len(prefix)
	}
	return name == string(p)
}

// AllowList is a set of patterns; a name is allowed if any pattern matches.
type AllowList []Pattern

// DefaultAllowList restricts bindings to the Galois-field and erasure-code APIs.
var DefaultAllowList = AllowList{"gf_*", "ec_*"}

// Allows reports whether name matches at least one pattern.
func (l AllowList) Allows(name string) bool {
	for _, p := range l {
		if p.Match(name) {
			return true
		}
	}
	return false
}
