package ner

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// DefaultLabelMap maps common biomedical token-classification labels onto the
// (Category, Type) pairs the entity normalizer understands.
var DefaultLabelMap = map[string]string{
	"CHEMICAL":   "MEDICATION/GENERIC_NAME",
	"DRUG":       "MEDICATION/GENERIC_NAME",
	"MEDICATION": "MEDICATION/GENERIC_NAME",
	"DISEASE":    "MEDICAL_CONDITION/DX_NAME",
	"PROBLEM":    "MEDICAL_CONDITION/DX_NAME",
	"DURATION":   "MEDICATION/DURATION",
	"DATE":       "PROTECTED_HEALTH_INFORMATION/DATE",
	"AGE":        "PROTECTED_HEALTH_INFORMATION/AGE",
	"LOC":        "PROTECTED_HEALTH_INFORMATION/ADDRESS",
	"LOCATION":   "PROTECTED_HEALTH_INFORMATION/ADDRESS",
}

// HugotConfig configures a local ONNX token-classification model.
type HugotConfig struct {
	ModelPath string
	// LabelMap maps a model label (BIO prefix removed, upper-cased) to "CATEGORY/TYPE".
	// Labels absent from the map are dropped.
	LabelMap map[string]string
}

type runFunc func(text string) ([]models.Detection, error)

// HugotDetector runs a token-classification model in-process through hugot's pure Go backend.
type HugotDetector struct {
	run     runFunc
	destroy func() error
	logger  *zap.Logger
}

var (
	_ Detector = (*HugotDetector)(nil)
	_ Closer   = (*HugotDetector)(nil)
)

// NewHugotDetector loads the model at cfg.ModelPath.
func NewHugotDetector(cfg HugotConfig, logger *zap.Logger) (*HugotDetector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("hugot detector requires a model path")
	}
	labels := cfg.LabelMap
	if len(labels) == 0 {
		labels = DefaultLabelMap
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: cfg.ModelPath,
		Name:      "nlq-ner",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	mapper := newLabelMapper(labels)
	run := func(text string) ([]models.Detection, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}
		if len(result.Entities) == 0 {
			return nil, nil
		}
		return mapper.detections(text, result.Entities[0]), nil
	}

	logger.Named("ner-hugot").Info("Loaded NER model", zap.String("model_path", cfg.ModelPath))

	return &HugotDetector{
		run:     run,
		destroy: session.Destroy,
		logger:  logger.Named("ner-hugot"),
	}, nil
}

// Detect runs the model over text. The pipeline is synchronous; ctx is only checked before
// the run starts.
func (d *HugotDetector) Detect(ctx context.Context, text string) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detections, err := d.run(text)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("NER model finished", zap.Int("detections", len(detections)))
	return detections, nil
}

// Close releases the hugot session.
func (d *HugotDetector) Close() error {
	return d.destroy()
}

type labelMapper struct {
	labels map[string][2]string
}

func newLabelMapper(labels map[string]string) labelMapper {
	m := labelMapper{labels: make(map[string][2]string, len(labels))}
	for label, target := range labels {
		category, typ, ok := strings.Cut(target, "/")
		if !ok {
			continue
		}
		m.labels[strings.ToUpper(label)] = [2]string{category, typ}
	}
	return m
}

// detections converts the model's entities over text, dropping unmapped labels. Text is
// cut from the input at the reported offsets rather than taken from the tokenizer's word.
func (m labelMapper) detections(text string, entities []pipelines.Entity) []models.Detection {
	var detections []models.Detection
	for _, entity := range entities {
		category, typ, ok := m.lookup(entity.Entity)
		if !ok {
			continue
		}
		begin, end, surface := inputSpan(text, int(entity.Start), int(entity.End), entity.Word)
		if surface == "" {
			continue
		}
		detections = append(detections, models.Detection{
			BeginOffset: begin,
			EndOffset:   end,
			Text:        surface,
			Category:    category,
			Type:        typ,
			Score:       float64(entity.Score),
		})
	}
	return detections
}

// inputSpan returns text[begin:end] with surrounding whitespace trimmed and the offsets
// moved to match. Offsets outside text fall back to the trimmed word.
func inputSpan(text string, begin, end int, word string) (int, int, string) {
	if begin < 0 || end > len(text) || begin >= end {
		return begin, end, strings.TrimSpace(word)
	}
	for begin < end && isSpace(text[begin]) {
		begin++
	}
	for end > begin && isSpace(text[end-1]) {
		end--
	}
	return begin, end, text[begin:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// lookup maps a model label such as "B-Chemical" to its (Category, Type) pair.
func (m labelMapper) lookup(label string) (string, string, bool) {
	label = strings.ToUpper(label)
	label = strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
	target, ok := m.labels[label]
	if !ok {
		return "", "", false
	}
	return target[0], target[1], true
}
