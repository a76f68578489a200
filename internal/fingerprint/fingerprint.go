// Package fingerprint produces stable deduplication keys for errors.
// Transient values embedded in messages (IDs, timestamps, addresses) are
// masked before hashing so that repeated occurrences of the same conceptual
// error always map to the same fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"errmon/internal/events"
)

// Length is the number of hex characters in a fingerprint.
const Length = 16

// maxStableFrames is how many stack frames participate in the fingerprint.
const maxStableFrames = 3

// separator joins the fingerprint components before hashing. It must not
// occur in normalized messages.
const separator = "||"

type replacement struct {
	pattern *regexp.Regexp
	token   string
}

// Masking order matters: longer, more specific patterns run before the ones
// they could partially overlap (hex hashes before UUIDs would eat them).
var replacements = []replacement{
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<uuid>"},
	{regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`), "<hash>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), "<timestamp>"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "<ip>"},
	{regexp.MustCompile(`\b\d{17,19}\b`), "<id>"},
	{regexp.MustCompile(`:\d{2,5}\b`), ":<port>"},
	{regexp.MustCompile(`\bid=\d+\b`), "id=<n>"},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize masks transient values in an error message and canonicalizes it
// for hashing: placeholders for IDs/timestamps/addresses, lowercased,
// whitespace collapsed.
func Normalize(message string) string {
	normalized := message
	for _, r := range replacements {
		normalized = r.pattern.ReplaceAllString(normalized, r.token)
	}
	normalized = strings.ToLower(normalized)
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Fingerprint computes the stable dedup key for an error. Identical
// conceptual errors at different times/IDs/ports fingerprint identically;
// the same message at different stable stack locations fingerprints
// differently.
func Fingerprint(message, stackTrace, errorName string, category events.Category) string {
	parts := []string{Normalize(message)}

	if frames := ExtractStableFrames(stackTrace, maxStableFrames); len(frames) > 0 {
		parts = append(parts, strings.Join(frames, "->"))
	}
	if errorName != "" {
		parts = append(parts, strings.ToLower(errorName))
	}
	parts = append(parts, string(category))

	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])[:Length]
}
