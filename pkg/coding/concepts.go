package coding

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// Querier is the subset of *pgxpool.Pool the concept client needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ConceptClient resolves mentions against the OMOP vocabulary tables directly, matching
// concept names. Exact names rank first, then shorter names.
type ConceptClient struct {
	db     Querier
	query  string
	limit  int
	logger *zap.Logger
}

var _ Client = (*ConceptClient)(nil)

// NewConceptClient creates a client over the concept table of schema.
func NewConceptClient(db Querier, schema string, limit int, logger *zap.Logger) (*ConceptClient, error) {
	if !identifierPattern.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	if limit <= 0 {
		limit = 5
	}
	return &ConceptClient{
		db:     db,
		query:  conceptLookupQuery(schema),
		limit:  limit,
		logger: logger.Named("coding-concepts"),
	}, nil
}

func conceptLookupQuery(schema string) string {
	return fmt.Sprintf(`
		SELECT concept_code, concept_name,
			CASE WHEN lower(concept_name) = lower($2) THEN 1.0
			     ELSE 1.0 / (1 + length(concept_name) - length($2)) END AS score
		FROM %s.concept
		WHERE vocabulary_id = $1
		  AND concept_name ILIKE '%%' || $2 || '%%'
		ORDER BY score DESC, concept_code
		LIMIT $3`, schema)
}

// Lookup returns up to limit concepts whose name contains text.
func (c *ConceptClient) Lookup(ctx context.Context, vocabulary Vocabulary, text string) ([]models.Option, error) {
	rows, err := c.db.Query(ctx, c.query, string(vocabulary), text, c.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	var options []models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.Code, &o.Description, &o.Score); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concepts: %w", err)
	}

	c.logger.Debug("Concept lookup",
		zap.String("vocabulary", string(vocabulary)),
		zap.Int("matches", len(options)))
	return options, nil
}
