package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceKeepsItsVariant(t *testing.T) {
	tests := []struct {
		name string
		in   Evidence
	}{
		{"facial", FacialEvidence{Distance: 0.35, Confidence: 65}},
		{"context", ContextEvidence{NameSimilarity: 1, LocationSimilarity: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalEvidence(tt.in)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"type":"`+string(tt.in.Method())+`"`)

			out, err := UnmarshalEvidence(data)
			require.NoError(t, err)
			assert.Equal(t, tt.in, out)
		})
	}
}

func TestUnmarshalEvidenceRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalEvidence([]byte(`{"type":"dna","detail":{}}`))
	assert.Error(t, err)

	ev, err := UnmarshalEvidence(nil)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestMatchKeyTreatsMissingCandidateAsZero(t *testing.T) {
	id := int64(7)
	assert.Equal(t, "1/7/facial", NewMatchKey(1, &id, MatchMethodFacial).String())
	assert.Equal(t, "1/0/context", NewMatchKey(1, nil, MatchMethodContext).String())
}

func TestParseMatchStatus(t *testing.T) {
	st, err := ParseMatchStatus("Under Review")
	require.NoError(t, err)
	assert.Equal(t, MatchStatusUnderReview, st)

	_, err = ParseMatchStatus("closed")
	assert.Error(t, err)
}
