package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

type mockDetector struct {
	DetectFunc func(ctx context.Context, question string) (models.EntityTable, error)
}

func (m *mockDetector) Detect(ctx context.Context, question string) (models.EntityTable, error) {
	return m.DetectFunc(ctx, question)
}

// mockResolver selects the upper-cased text as query argument, or the code in codes.
type mockResolver struct {
	codes map[string]string
	err   error
	calls int
}

func (m *mockResolver) Disambiguate(ctx context.Context, table models.EntityTable) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	for _, entities := range table {
		for _, e := range entities {
			code, ok := m.codes[e.Text]
			if !ok {
				code = e.Text
			}
			e.SetOptions([]models.Option{{Code: code, Score: 1}})
		}
	}
	return nil
}

type mockExecutor struct {
	QueryFunc func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error)
	queries   []string
	limits    []int
}

func (m *mockExecutor) TestConnection(ctx context.Context) error { return nil }
func (m *mockExecutor) Close() error                             { return nil }

func (m *mockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	m.queries = append(m.queries, sqlQuery)
	m.limits = append(m.limits, limit)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sqlQuery, limit)
	}
	return &datasource.QueryExecutionResult{
		Columns:  []datasource.ColumnInfo{{Name: "count", Type: "INT8"}},
		Rows:     []map[string]any{{"count": int64(42)}},
		RowCount: 1,
	}, nil
}

type mockFeedbackRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Feedback
	err     error
}

func newMockFeedbackRepository() *mockFeedbackRepository {
	return &mockFeedbackRepository{records: make(map[uuid.UUID]*models.Feedback)}
}

func (m *mockFeedbackRepository) Create(ctx context.Context, feedback *models.Feedback) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	m.records[feedback.ID] = feedback
	return nil
}

func (m *mockFeedbackRepository) Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return f, nil
}

func (m *mockFeedbackRepository) List(ctx context.Context, filter models.FeedbackFilter) ([]*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Feedback
	for _, f := range m.records {
		if filter.Correct != nil && f.Correct != *filter.Correct {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
