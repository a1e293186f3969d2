// Package ner provides medical named-entity recognizers that feed the entity normalizer.
package ner

import (
	"context"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// Detector finds medical entity mentions in a question.
// Detections use the recognizer's own (Category, Type) taxonomy, e.g. MEDICATION / GENERIC_NAME.
type Detector interface {
	Detect(ctx context.Context, text string) ([]models.Detection, error)
}

// Closer is implemented by detectors that hold resources such as a loaded model.
type Closer interface {
	Close() error
}

// NoopDetector detects nothing. With it, only the built-in pattern matchers populate the
// entity table.
type NoopDetector struct{}

var _ Detector = NoopDetector{}

// Detect returns no detections.
func (NoopDetector) Detect(context.Context, string) ([]models.Detection, error) {
	return nil, nil
}

// MockDetector is a test double whose behavior is set per test.
type MockDetector struct {
	DetectFunc func(ctx context.Context, text string) ([]models.Detection, error)
	Calls      []string
}

var _ Detector = (*MockDetector)(nil)

// Detect records the call and delegates to DetectFunc.
func (m *MockDetector) Detect(ctx context.Context, text string) ([]models.Detection, error) {
	m.Calls = append(m.Calls, text)
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, text)
	}
	return nil, nil
}
