// Package disambiguation maps entity surface texts to the canonical codes the SQL
// templates expect.
package disambiguation

import (
	"context"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/nlq2sql/pkg/coding"
	"github.com/ekaya-inc/nlq2sql/pkg/metrics"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// Canonical ethnicity values, as named in the OMOP Ethnicity domain.
const (
	EthnicityHispanic    = "Hispanic or Latino"
	EthnicityNotHispanic = "Not Hispanic or Latino"
)

var negationPattern = regexp.MustCompile(`(?i)\b(not)\b`)

// resolveFunc produces the ranked options and the query argument for one entity.
type resolveFunc func(ctx context.Context, category models.Category, e *models.Entity) ([]models.Option, string)

// Disambiguator annotates entities with Options and a QueryArg. Strategies are fixed per
// category when it is built.
type Disambiguator struct {
	canonicalizer *Canonicalizer
	coding        coding.Client
	concurrency   int
	strategies    map[models.Category]resolveFunc
	logger        *zap.Logger
}

// Option configures a Disambiguator.
type Option func(*Disambiguator)

// WithConcurrency runs up to n entity lookups of a category at once. The default is 1.
func WithConcurrency(n int) Option {
	return func(d *Disambiguator) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a disambiguator. codingClient may be nil, in which case every condition and
// drug resolves to the sentinel option.
func New(canonicalizer *Canonicalizer, codingClient coding.Client, logger *zap.Logger, opts ...Option) *Disambiguator {
	d := &Disambiguator{
		canonicalizer: canonicalizer,
		coding:        codingClient,
		concurrency:   1,
		logger:        logger.Named("disambiguator"),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.strategies = map[models.Category]resolveFunc{
		models.CategoryGender:    d.canonical,
		models.CategoryRace:      d.canonical,
		models.CategoryState:     d.canonical,
		models.CategoryEthnicity: ethnicity,
		models.CategoryCondition: d.lookup(coding.VocabularyICD10CM),
		models.CategoryDrug:      d.lookup(coding.VocabularyRxNorm),
		models.CategoryTimeDays:  identity,
		models.CategoryTimeYears: identity,
		models.CategoryAge:       identity,
	}
	return d
}

// Disambiguate annotates every entity of the table in place, category by category.
// Lookup failures never surface here; only context cancellation does.
func (d *Disambiguator) Disambiguate(ctx context.Context, table models.EntityTable) error {
	for _, category := range table.Categories() {
		if err := d.DisambiguateCategory(ctx, category, table[category]); err != nil {
			return err
		}
	}
	return nil
}

// DisambiguateCategory annotates one category's entities in place. Categories without a
// strategy use the identity mapping.
func (d *Disambiguator) DisambiguateCategory(ctx context.Context, category models.Category, entities []*models.Entity) error {
	resolve, ok := d.strategies[category]
	if !ok {
		resolve = identity
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, e := range entities {
		if e == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			options, queryArg := resolve(gctx, category, e)
			e.Options = options
			e.QueryArg = queryArg
			return nil
		})
	}
	return g.Wait()
}

// Resolve computes the options and query argument an entity of category would receive,
// without modifying it.
func (d *Disambiguator) Resolve(ctx context.Context, category models.Category, e *models.Entity) ([]models.Option, string) {
	resolve, ok := d.strategies[category]
	if !ok {
		resolve = identity
	}
	return resolve(ctx, category, e)
}

func (d *Disambiguator) canonical(_ context.Context, category models.Category, e *models.Entity) ([]models.Option, string) {
	code, found := d.canonicalizer.Canonicalize(category, e.Text)
	if !found {
		metrics.RecordCanonicalMiss(string(category))
		d.logger.Debug("No canonical form", zap.String("category", string(category)))
	}
	return []models.Option{{Code: code}}, code
}

func (d *Disambiguator) lookup(vocabulary coding.Vocabulary) resolveFunc {
	return func(ctx context.Context, category models.Category, e *models.Entity) ([]models.Option, string) {
		if d.coding == nil {
			return sentinel()
		}

		options, err := d.coding.Lookup(ctx, vocabulary, e.Text)
		switch {
		case err != nil:
			metrics.RecordCodingLookup(string(vocabulary), metrics.LookupError)
			d.logger.Warn("Coding lookup failed, using sentinel",
				zap.String("category", string(category)),
				zap.String("vocabulary", string(vocabulary)),
				zap.Error(err))
			return sentinel()
		case len(options) == 0:
			metrics.RecordCodingLookup(string(vocabulary), metrics.LookupEmpty)
			return sentinel()
		default:
			metrics.RecordCodingLookup(string(vocabulary), metrics.LookupHit)
			return options, options[0].Code
		}
	}
}

func sentinel() ([]models.Option, string) {
	return []models.Option{models.SentinelOption}, models.SentinelQueryArg
}

// EthnicityOf applies the two-value ethnicity rule: a standalone "not" means not Hispanic.
func EthnicityOf(text string) string {
	if negationPattern.MatchString(text) {
		return EthnicityNotHispanic
	}
	return EthnicityHispanic
}

func ethnicity(_ context.Context, _ models.Category, e *models.Entity) ([]models.Option, string) {
	code := EthnicityOf(e.Text)
	return []models.Option{{Code: code}}, code
}

func identity(_ context.Context, _ models.Category, e *models.Entity) ([]models.Option, string) {
	return []models.Option{{Code: e.Text}}, e.Text
}
