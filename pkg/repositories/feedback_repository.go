package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

const (
	defaultFeedbackListLimit = 50
	maxFeedbackListLimit     = 500
)

// FeedbackRepository stores verdicts on translated questions.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *models.Feedback) error
	Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error)
	List(ctx context.Context, filter models.FeedbackFilter) ([]*models.Feedback, error)
}

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type feedbackRepository struct {
	db Querier
}

// NewFeedbackRepository returns a repository over the nlq_feedback table.
func NewFeedbackRepository(db Querier) FeedbackRepository {
	return &feedbackRepository{db: db}
}

var _ FeedbackRepository = (*feedbackRepository)(nil)

func (r *feedbackRepository) Create(ctx context.Context, feedback *models.Feedback) error {
	prepareFeedback(feedback)

	original, err := marshalEntityTable(feedback.OriginalEntities)
	if err != nil {
		return fmt.Errorf("failed to marshal original_entities: %w", err)
	}
	corrected, err := marshalEntityTable(feedback.CorrectedEntities)
	if err != nil {
		return fmt.Errorf("failed to marshal corrected_entities: %w", err)
	}

	query := `
		INSERT INTO nlq_feedback (
			id, created_at, question, generalized_question,
			original_entities, corrected_entities,
			sql_skeleton, rendered_sql, correct
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		feedback.ID,
		feedback.CreatedAt,
		feedback.Question,
		feedback.GeneralizedQuestion,
		original,
		corrected,
		feedback.SQLSkeleton,
		feedback.RenderedSQL,
		feedback.Correct,
	)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

const feedbackColumns = `id, created_at, question, generalized_question,
		       original_entities, corrected_entities,
		       sql_skeleton, rendered_sql, correct`

func (r *feedbackRepository) Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	row := r.db.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM nlq_feedback WHERE id = $1`, id)

	feedback, err := scanFeedback(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("feedback %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return feedback, nil
}

func (r *feedbackRepository) List(ctx context.Context, filter models.FeedbackFilter) ([]*models.Feedback, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Correct != nil {
		conditions = append(conditions, fmt.Sprintf("correct = $%d", argIdx))
		args = append(args, *filter.Correct)
		argIdx++
	}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.Since)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM nlq_feedback
		%s
		ORDER BY created_at DESC
		LIMIT $%d`, feedbackColumns, where, argIdx)
	args = append(args, feedbackListLimit(filter.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var result []*models.Feedback
	for rows.Next() {
		feedback, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		result = append(result, feedback)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}
	return result, nil
}

func scanFeedback(row pgx.Row) (*models.Feedback, error) {
	var f models.Feedback
	var original, corrected []byte
	err := row.Scan(
		&f.ID,
		&f.CreatedAt,
		&f.Question,
		&f.GeneralizedQuestion,
		&original,
		&corrected,
		&f.SQLSkeleton,
		&f.RenderedSQL,
		&f.Correct,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(original, &f.OriginalEntities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original_entities: %w", err)
	}
	if err := json.Unmarshal(corrected, &f.CorrectedEntities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal corrected_entities: %w", err)
	}
	return &f, nil
}

// prepareFeedback fills the ID and timestamp of a new record.
func prepareFeedback(feedback *models.Feedback) {
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
}

func marshalEntityTable(table models.EntityTable) ([]byte, error) {
	if table == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(table)
}

func feedbackListLimit(limit int) int {
	if limit <= 0 {
		return defaultFeedbackListLimit
	}
	if limit > maxFeedbackListLimit {
		return maxFeedbackListLimit
	}
	return limit
}
