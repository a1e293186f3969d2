package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/placeholder"
	"github.com/ekaya-inc/nlq2sql/pkg/rewrite"
)

// CorrectionService applies human corrections to a processed entity table.
// Every method works on a copy; the table passed in is never modified.
//
// start is the running map of next free ordinals per category for the question being
// corrected. AddEntity and RemoveEntity return it advanced past every ordinal they have
// seen; passing it back on the next correction keeps a removed entity's token retired.
// A nil start is derived from the table alone.
type CorrectionService interface {
	// AddEntity records every whole-word occurrence of text in question as an entity of
	// category, disambiguates the new entities and numbers them after the existing ones.
	AddEntity(ctx context.Context, question string, table models.EntityTable, start map[models.Category]int, category models.Category, text string) (models.EntityTable, map[models.Category]int, error)

	// RemoveEntity drops the first entity, in canonical category order, whose text matches.
	RemoveEntity(table models.EntityTable, start map[models.Category]int, text string) (models.EntityTable, map[models.Category]int, error)

	// OverrideQueryArg replaces the query argument of the entity holding token.
	OverrideQueryArg(table models.EntityTable, token string, queryArg string) (models.EntityTable, error)
}

type correctionService struct {
	resolver EntityResolver
	logger   *zap.Logger
}

// NewCorrectionService creates a correction service that disambiguates added entities
// with resolver.
func NewCorrectionService(resolver EntityResolver, logger *zap.Logger) CorrectionService {
	return &correctionService{
		resolver: resolver,
		logger:   logger.Named("corrections"),
	}
}

var _ CorrectionService = (*correctionService)(nil)

func (s *correctionService) AddEntity(ctx context.Context, question string, table models.EntityTable, start map[models.Category]int, category models.Category, text string) (models.EntityTable, map[models.Category]int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, fmt.Errorf("%w: entity text is empty", apperrors.ErrInvalidInput)
	}
	if !category.IsKnown() {
		return nil, nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, category)
	}
	if existing, ok := findByText(table, text); ok {
		return nil, nil, fmt.Errorf("%w: %q is already an entity (%s)", apperrors.ErrInvalidInput, text, existing.Placeholder)
	}

	matches := rewrite.MentionPattern(text).FindAllStringIndex(question, -1)
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("%w: %q does not occur in the question", apperrors.ErrNotFound, text)
	}

	added := make([]*models.Entity, 0, len(matches))
	for _, m := range matches {
		added = append(added, &models.Entity{
			BeginOffset: m[0],
			EndOffset:   m[1],
			Text:        question[m[0]:m[1]],
		})
	}

	fresh := models.EntityTable{category: added}
	if err := s.resolver.Disambiguate(ctx, fresh); err != nil {
		return nil, nil, fmt.Errorf("failed to disambiguate added entity: %w", err)
	}

	out := table.Clone()
	if out == nil {
		out = models.EntityTable{}
	}
	placeholder.Assign(fresh, placeholder.Advance(start, placeholder.NextOrdinals(out)))
	out[category] = append(out[category], fresh[category]...)

	s.logger.Debug("Added entity",
		zap.String("category", string(category)),
		zap.String("text", text),
		zap.Int("occurrences", len(added)))
	return out, placeholder.Advance(start, placeholder.NextOrdinals(out)), nil
}

func (s *correctionService) RemoveEntity(table models.EntityTable, start map[models.Category]int, text string) (models.EntityTable, map[models.Category]int, error) {
	out := table.Clone()
	// Taken before removal so the dropped entity's ordinal stays retired.
	next := placeholder.Advance(start, placeholder.NextOrdinals(out))
	for _, category := range out.Categories() {
		for i, e := range out[category] {
			if !strings.EqualFold(e.Text, text) {
				continue
			}
			out[category] = append(out[category][:i], out[category][i+1:]...)
			s.logger.Debug("Removed entity",
				zap.String("category", string(category)),
				zap.String("placeholder", e.Placeholder))
			return out, next, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no entity with text %q", apperrors.ErrNotFound, text)
}

func (s *correctionService) OverrideQueryArg(table models.EntityTable, token string, queryArg string) (models.EntityTable, error) {
	category, ordinal, err := placeholder.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if queryArg == "" {
		return nil, fmt.Errorf("%w: query argument is empty", apperrors.ErrInvalidInput)
	}

	out := table.Clone()
	e, ok := out.Lookup(category, ordinal)
	if !ok {
		return nil, fmt.Errorf("%w: no entity holds %s", apperrors.ErrNotFound, token)
	}
	e.QueryArg = queryArg

	s.logger.Debug("Overrode query argument", zap.String("placeholder", token))
	return out, nil
}

func findByText(table models.EntityTable, text string) (*models.Entity, bool) {
	for _, category := range table.Categories() {
		for _, e := range table[category] {
			if e != nil && strings.EqualFold(e.Text, text) {
				return e, true
			}
		}
	}
	return nil, false
}
