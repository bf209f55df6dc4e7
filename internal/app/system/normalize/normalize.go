// Package normalize provides canonical forms for user-supplied identifiers
// so that stores and handlers compare the same bytes.
package normalize

import "strings"

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace. Case is preserved.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Code trims and uppercases a team invite code.
func Code(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
