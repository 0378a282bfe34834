package models

import (
	"encoding/json"
	"fmt"
)

// Evidence is the method-specific detail stored with a match fact.
// Implementations are FacialEvidence and ContextEvidence.
type Evidence interface {
	Method() MatchMethod
}

type FacialEvidence struct {
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

func (FacialEvidence) Method() MatchMethod { return MatchMethodFacial }

type ContextEvidence struct {
	NameSimilarity     float64 `json:"name_similarity"`
	LocationSimilarity float64 `json:"location_similarity"`
	AgeSimilarity      float64 `json:"age_similarity"`
}

func (ContextEvidence) Method() MatchMethod { return MatchMethodContext }

type evidenceEnvelope struct {
	Type   MatchMethod     `json:"type"`
	Detail json.RawMessage `json:"detail"`
}

// MarshalEvidence encodes evidence as {"type": <method>, "detail": {...}}.
func MarshalEvidence(e Evidence) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	detail, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence detail: %w", err)
	}
	return json.Marshal(evidenceEnvelope{Type: e.Method(), Detail: detail})
}

// UnmarshalEvidence decodes the output of MarshalEvidence.
func UnmarshalEvidence(data []byte) (Evidence, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env evidenceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	switch env.Type {
	case MatchMethodFacial:
		var fe FacialEvidence
		if err := json.Unmarshal(env.Detail, &fe); err != nil {
			return nil, fmt.Errorf("unmarshal facial evidence: %w", err)
		}
		return fe, nil
	case MatchMethodContext:
		var ce ContextEvidence
		if err := json.Unmarshal(env.Detail, &ce); err != nil {
			return nil, fmt.Errorf("unmarshal context evidence: %w", err)
		}
		return ce, nil
	default:
		return nil, fmt.Errorf("unknown evidence type %q", env.Type)
	}
}
