package translate

import (
	"context"
	"sync"
)

// MockTranslator is a configurable Translator for tests.
type MockTranslator struct {
	TranslateFunc func(ctx context.Context, question string) (string, error)

	mu        sync.Mutex
	Questions []string
}

var _ Translator = (*MockTranslator)(nil)

// NewMockTranslator returns a mock that always answers skeleton.
func NewMockTranslator(skeleton string) *MockTranslator {
	return &MockTranslator{
		TranslateFunc: func(ctx context.Context, question string) (string, error) {
			return skeleton, nil
		},
	}
}

func (m *MockTranslator) Translate(ctx context.Context, question string) (string, error) {
	m.mu.Lock()
	m.Questions = append(m.Questions, question)
	m.mu.Unlock()

	if m.TranslateFunc != nil {
		return m.TranslateFunc(ctx, question)
	}
	return "", nil
}
