// Package coding resolves free-text medical mentions to standard vocabulary codes
// (ICD-10-CM for conditions, RxNorm for drugs).
package coding

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// Vocabulary identifies a coding system.
type Vocabulary string

const (
	VocabularyICD10CM Vocabulary = "ICD10CM"
	VocabularyRxNorm  Vocabulary = "RxNorm"
)

// ParseVocabulary accepts the vocabulary name case-insensitively.
func ParseVocabulary(s string) (Vocabulary, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ICD10CM", "ICD-10-CM", "ICD10":
		return VocabularyICD10CM, nil
	case "RXNORM":
		return VocabularyRxNorm, nil
	default:
		return "", fmt.Errorf("unknown vocabulary %q", s)
	}
}

// Client looks up the concepts matching an entity's surface text.
// Results are ranked best first. An empty result is not an error.
type Client interface {
	Lookup(ctx context.Context, vocabulary Vocabulary, text string) ([]models.Option, error)
}

// MockClient is a test double whose behavior is set per test.
type MockClient struct {
	LookupFunc func(ctx context.Context, vocabulary Vocabulary, text string) ([]models.Option, error)
}

var _ Client = (*MockClient)(nil)

// Lookup delegates to LookupFunc.
func (m *MockClient) Lookup(ctx context.Context, vocabulary Vocabulary, text string) ([]models.Option, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, vocabulary, text)
	}
	return nil, nil
}
