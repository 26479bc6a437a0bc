package proto

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxParticipantIDLen bounds participant ids and attributions, in bytes.
const MaxParticipantIDLen = 64

// NormalizeParticipantID returns the NFC-normalised, trimmed form of a
// client-supplied identity and whether it is usable. Empty, oversized or
// non-printable ids are rejected so the coordinator assigns a fresh one.
func NormalizeParticipantID(s string) (string, bool) {
	normalized := norm.NFC.String(strings.TrimSpace(s))
	if normalized == "" || len(normalized) > MaxParticipantIDLen {
		return "", false
	}
	for _, r := range normalized {
		if !unicode.IsPrint(r) {
			return "", false
		}
	}
	return normalized, true
}
