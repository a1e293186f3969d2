// Package extraction turns raw NER detections and built-in pattern matches into the
// categorized entity table the rest of the pipeline works on.
package extraction

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/ner"
)

// NER taxonomy used by the category map.
const (
	nerMedication = "MEDICATION"
	nerCondition  = "MEDICAL_CONDITION"
	nerPHI        = "PROTECTED_HEALTH_INFORMATION"
)

// complementTypes are attribute relationships merged into their parent's text rather than
// emitted on their own.
var complementTypes = map[string]bool{
	"DOSAGE":   true,
	"STRENGTH": true,
	"ACUITY":   true,
}

var digitsPattern = regexp.MustCompile(`\d+`)

// Thresholds are the minimum confidences a detection must exceed to be kept.
type Thresholds struct {
	EntityScore       float64
	RelationshipScore float64
}

// DefaultThresholds returns 0.7 for both scores.
func DefaultThresholds() Thresholds {
	return Thresholds{EntityScore: 0.7, RelationshipScore: 0.7}
}

// CategoryFor maps a recognizer (category, type) pair onto a pipeline category.
func CategoryFor(nerCategory, nerType string) (models.Category, bool) {
	switch {
	case nerCategory == nerMedication && nerType == "DURATION":
		return models.CategoryTimeDays, true
	case nerCategory == nerMedication && (nerType == "GENERIC_NAME" || nerType == "BRAND_NAME"):
		return models.CategoryDrug, true
	case nerCategory == nerPHI && nerType == "DATE":
		return models.CategoryTimeYears, true
	case nerCategory == nerPHI && nerType == "AGE":
		return models.CategoryAge, true
	case nerCategory == nerPHI && nerType == "ADDRESS":
		return models.CategoryState, true
	case nerCategory == nerCondition:
		return models.CategoryCondition, true
	default:
		return "", false
	}
}

// Normalizer detects entities in a question with an NER collaborator and the built-in
// pattern matchers.
type Normalizer struct {
	detector   ner.Detector
	thresholds Thresholds
	logger     *zap.Logger
}

// NewNormalizer creates a normalizer. A nil detector behaves like ner.NoopDetector.
func NewNormalizer(detector ner.Detector, thresholds Thresholds, logger *zap.Logger) *Normalizer {
	if detector == nil {
		detector = ner.NoopDetector{}
	}
	return &Normalizer{
		detector:   detector,
		thresholds: thresholds,
		logger:     logger.Named("normalizer"),
	}
}

// Detect runs NER over the question and normalizes the result.
func (n *Normalizer) Detect(ctx context.Context, question string) (models.EntityTable, error) {
	detections, err := n.detector.Detect(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDetectorFailed, err)
	}

	table := Normalize(question, detections, n.thresholds)

	n.logger.Debug("Entities detected",
		zap.Int("raw_detections", len(detections)),
		zap.Int("entities", table.Len()),
	)
	return table, nil
}

// tableBuilder accumulates entities while enforcing first-writer-wins on exact text.
type tableBuilder struct {
	table models.EntityTable
	seen  map[string]bool
}

func (b *tableBuilder) add(category models.Category, e *models.Entity) {
	if b.seen[e.Text] {
		return
	}
	b.table[category] = append(b.table[category], e)
	b.seen[e.Text] = true
}

// Normalize converts raw detections into an entity table, then runs the pattern matchers
// over the question.
//
// NER-driven categories appear only when they hold at least one entity. GENDER, RACE and
// ETHNICITY are always present. The same exact text is never recorded twice, across all
// categories; the first writer wins.
func Normalize(question string, detections []models.Detection, th Thresholds) models.EntityTable {
	b := &tableBuilder{
		table: models.EntityTable{},
		seen:  make(map[string]bool),
	}

	for _, d := range detections {
		var complement *models.Attribute

		for i := range d.Attributes {
			attr := d.Attributes[i]
			if attr.Score <= th.EntityScore || attr.RelationshipScore <= th.RelationshipScore {
				continue
			}
			if complementTypes[attr.RelationshipType] {
				if complement == nil {
					complement = &attr
				}
				continue
			}
			b.addDetection(attr.AsDetection(d.Category))
		}

		if d.Score <= th.EntityScore {
			continue
		}
		if complement != nil {
			d = mergeComplement(d, *complement)
		}
		b.addDetection(d)
	}

	for _, m := range builtinMatchers {
		b.table[m.category] = []*models.Entity{}
		for _, e := range m.find(question) {
			b.add(m.category, e)
		}
	}

	return b.table
}

func (b *tableBuilder) addDetection(d models.Detection) {
	category, ok := CategoryFor(d.Category, d.Type)
	if !ok || d.Text == "" || b.seen[d.Text] {
		return
	}

	e := &models.Entity{
		BeginOffset: d.BeginOffset,
		EndOffset:   d.EndOffset,
		Text:        d.Text,
	}

	// "24 days" is recorded as "24"; the full string still counts as seen.
	if category == models.CategoryTimeDays {
		if digits := digitsPattern.FindString(d.Text); digits != "" && digits != d.Text {
			b.seen[d.Text] = true
			e.Text = digits
		}
	}

	b.add(category, e)
}

// mergeComplement folds an attribute such as a dosage into its parent's text, in reading
// order, widening the offsets to cover both.
func mergeComplement(d models.Detection, attr models.Attribute) models.Detection {
	if attr.BeginOffset < d.BeginOffset {
		d.Text = attr.Text + " " + d.Text
		d.BeginOffset = attr.BeginOffset
	} else {
		d.Text = d.Text + " " + attr.Text
		d.EndOffset = attr.EndOffset
	}
	d.Attributes = nil
	return d
}
