package model

import "strings"

var normalizeReplacer = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "")

// Normalize canonicalizes a display name for identity comparison.
// Two names that normalize identically are the same identity.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	return normalizeReplacer.Replace(strings.ToLower(name))
}
