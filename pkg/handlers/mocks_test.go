package handlers

import (
	"context"
	"strings"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

type mockDetector struct {
	table models.EntityTable
	err   error
}

func (m *mockDetector) Detect(ctx context.Context, question string) (models.EntityTable, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.table.Clone(), nil
}

// mockResolver uses the upper-cased surface text as the only option.
type mockResolver struct{}

func (m *mockResolver) Disambiguate(ctx context.Context, table models.EntityTable) error {
	for _, entities := range table {
		for _, e := range entities {
			e.SetOptions([]models.Option{{Code: strings.ToUpper(e.Text), Score: 1}})
		}
	}
	return nil
}

type mockExecutor struct {
	connErr error
	queries []string
}

func (m *mockExecutor) TestConnection(ctx context.Context) error { return m.connErr }
func (m *mockExecutor) Close() error                             { return nil }

func (m *mockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	m.queries = append(m.queries, sqlQuery)
	return &datasource.QueryExecutionResult{
		Columns:  []datasource.ColumnInfo{{Name: "count", Type: "INT8"}},
		Rows:     []map[string]any{{"count": 7}},
		RowCount: 1,
	}, nil
}
