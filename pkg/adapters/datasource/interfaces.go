package datasource

import "context"

// MaxQueryLimit is the hard cap on rows returned by Query.
const MaxQueryLimit = 1000

// QueryExecutor runs rendered SQL against the clinical database.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Query runs a SELECT statement and returns bounded results. The query is always
	// wrapped with a dialect-specific limit:
	//   - PostgreSQL, Redshift: SELECT * FROM (query) AS _limited LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
	//
	// limit <= 0 or above MaxQueryLimit uses MaxQueryLimit.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// Close releases the database connection.
	Close() error
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// EffectiveLimit clamps limit to (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
