package proto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeParticipantID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", "alice", "alice", true},
		{"trimmed", "  bob\t", "bob", true},
		{"nfc", "cafe\u0301", "caf\u00e9", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"control", "a\x00b", "", false},
		{"too long", strings.Repeat("x", MaxParticipantIDLen+1), "", false},
		{"at limit", strings.Repeat("x", MaxParticipantIDLen), strings.Repeat("x", MaxParticipantIDLen), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeParticipantID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeParticipantID_EquivalentFormsCollapse(t *testing.T) {
	composed, ok1 := NormalizeParticipantID("\u00c5ngstr\u00f6m")
	decomposed, ok2 := NormalizeParticipantID("A\u030angstro\u0308m")
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, composed, decomposed)
}
