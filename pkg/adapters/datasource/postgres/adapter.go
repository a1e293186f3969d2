package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
)

// pool is the subset of *pgxpool.Pool the executor uses.
type pool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// QueryExecutor runs rendered queries against a PostgreSQL OMOP database.
type QueryExecutor struct {
	database string
	pool     pool
	typeMap  *pgtype.Map
}

// NewQueryExecutor connects to the database described by cfg.
func NewQueryExecutor(ctx context.Context, cfg datasource.Config) (*QueryExecutor, error) {
	connStr, err := ConnectionString(cfg)
	if err != nil {
		return nil, err
	}

	p, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &QueryExecutor{
		database: cfg.Database,
		pool:     p,
		typeMap:  pgtype.NewMap(),
	}, nil
}

// Pool returns the underlying pool when the executor owns a *pgxpool.Pool, so other
// components (e.g. vocabulary lookups) can share the connection.
func (e *QueryExecutor) Pool() (*pgxpool.Pool, bool) {
	p, ok := e.pool.(*pgxpool.Pool)
	return p, ok
}

// TestConnection verifies the database is reachable and is the configured database.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := e.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	// Case-insensitive to match SQL Server behavior.
	if !strings.EqualFold(currentDB, e.database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", e.database, currentDB)
	}
	return nil
}

// Query runs sqlQuery wrapped with a row limit.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := LimitQuery(sqlQuery, datasource.EffectiveLimit(limit))

	rows, err := e.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns := e.columns(rows.FieldDescriptions())

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func (e *QueryExecutor) columns(fields []pgconn.FieldDescription) []datasource.ColumnInfo {
	columns := make([]datasource.ColumnInfo, len(fields))
	for i, fd := range fields {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: typeName(e.typeMap, fd.DataTypeOID),
		}
	}
	return columns
}

// typeName maps a PostgreSQL type OID to an upper-case type name; unknown types
// return "UNKNOWN".
func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

// LimitQuery wraps sqlQuery so at most limit rows are returned.
func LimitQuery(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)
}

// Close releases the connection pool.
func (e *QueryExecutor) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}
	return nil
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
