package sql

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// RenderStats counts what a render call expanded and what it had to leave in place.
type RenderStats struct {
	Schema         int
	TemplatedArgs  int
	Args           int
	TemplatesOnly  int
	Unregistered   int
	RemainingMacro []string
}

// Renderer expands the macros of a SQL skeleton into executable SQL.
// A Renderer holds only immutable configuration and is safe for concurrent use.
type Renderer struct {
	templates *Templates
	logger    *zap.Logger
}

// NewRenderer creates a renderer over a template configuration.
func NewRenderer(templates *Templates, logger *zap.Logger) *Renderer {
	return &Renderer{
		templates: templates,
		logger:    logger.Named("renderer"),
	}
}

// Templates returns the renderer's configuration.
func (r *Renderer) Templates() *Templates {
	return r.templates
}

// Render expands every macro of skeleton against the entity table.
//
// Passes run in a fixed order and each drains its own family before the next starts:
// <SCHEMA>, then <T-TEMPLATE><ARG-C><n>, then <ARG-C><n>, then <T-TEMPLATE>.
// Macros whose template type has no generator are left in place. A macro referencing an
// entity that is not in the table fails the render with apperrors.ErrMacroUnresolved.
func (r *Renderer) Render(skeleton string, table models.EntityTable) (string, error) {
	out, _, err := r.RenderWithStats(skeleton, table)
	return out, err
}

// RenderWithStats is Render, also reporting what was expanded.
func (r *Renderer) RenderWithStats(skeleton string, table models.EntityTable) (string, RenderStats, error) {
	var stats RenderStats

	stats.Schema = strings.Count(skeleton, SchemaMacro)
	s := strings.ReplaceAll(skeleton, SchemaMacro, r.templates.Schema())

	s, err := r.expandTemplatedArgs(s, table, &stats)
	if err != nil {
		return "", stats, err
	}

	s, err = r.expandArgs(s, table, &stats)
	if err != nil {
		return "", stats, err
	}

	s = r.expandTemplatesOnly(s, &stats)

	stats.RemainingMacro = UnexpandedMacros(s)
	if len(stats.RemainingMacro) > 0 {
		r.logger.Warn("Rendered SQL still contains macros",
			zap.Strings("macros", stats.RemainingMacro))
	}

	return s, stats, nil
}

func (r *Renderer) expandTemplatedArgs(s string, table models.EntityTable, stats *RenderStats) (string, error) {
	pos := 0
	for {
		ref, ok := findTemplatedArg(s, pos)
		if !ok {
			return s, nil
		}

		generate, registered := r.templates.WithArgument(ref.Template)
		if !registered || ref.Ordinal < 0 {
			r.logger.Warn("No generator registered for template macro",
				zap.String("template", ref.Template))
			stats.Unregistered++
			pos = ref.End
			continue
		}

		entity, err := resolve(table, ref)
		if err != nil {
			return "", err
		}

		fragment := generate(r.templates.Schema(), entity.QueryArg)
		s = s[:ref.Start] + fragment + s[ref.End:]
		pos = ref.Start + len(fragment)
		stats.TemplatedArgs++
	}
}

func (r *Renderer) expandArgs(s string, table models.EntityTable, stats *RenderStats) (string, error) {
	pos := 0
	for {
		ref, ok := findArg(s, pos)
		if !ok {
			return s, nil
		}

		// Left behind by an unregistered templated-argument macro.
		if strings.HasSuffix(s[:ref.Start], templateSuffix) || ref.Ordinal < 0 {
			pos = ref.End
			continue
		}

		entity, err := resolve(table, ref)
		if err != nil {
			return "", err
		}

		s = s[:ref.Start] + entity.QueryArg + s[ref.End:]
		pos = ref.Start + len(entity.QueryArg)
		stats.Args++
	}
}

func (r *Renderer) expandTemplatesOnly(s string, stats *RenderStats) string {
	pos := 0
	for {
		ref, ok := findTemplateOnly(s, pos)
		if !ok {
			return s
		}

		if strings.HasPrefix(s[ref.End:], argPrefix) {
			pos = ref.End
			continue
		}

		fragment, registered := r.templates.WithoutArgument(ref.Template)
		if !registered {
			r.logger.Warn("No parameterless generator registered for template macro",
				zap.String("template", ref.Template))
			stats.Unregistered++
			pos = ref.End
			continue
		}

		s = s[:ref.Start] + fragment + s[ref.End:]
		pos = ref.Start + len(fragment)
		stats.TemplatesOnly++
	}
}

func resolve(table models.EntityTable, ref MacroRef) (*models.Entity, error) {
	entity, ok := table.Lookup(models.Category(ref.Category), ref.Ordinal)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrMacroUnresolved,
			models.PlaceholderToken(models.Category(ref.Category), ref.Ordinal))
	}
	return entity, nil
}
