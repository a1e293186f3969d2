package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// QueryExecutor runs rendered queries against an OMOP database on SQL Server using SQL
// authentication.
type QueryExecutor struct {
	database string
	db       *sql.DB
}

// ConnectionString builds a sqlserver:// URL for SQL authentication.
func ConnectionString(cfg datasource.Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("database is required")
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.SSLMode == "disable" {
		query.Add("encrypt", "false")
	} else {
		query.Add("encrypt", "true")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		port,
		query.Encode(),
	), nil
}

// NewQueryExecutor opens a connection to the database described by cfg.
func NewQueryExecutor(ctx context.Context, cfg datasource.Config) (*QueryExecutor, error) {
	connStr, err := ConnectionString(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}
	return NewQueryExecutorWithDB(db, cfg.Database), nil
}

// NewQueryExecutorWithDB wraps an open handle.
func NewQueryExecutorWithDB(db *sql.DB, database string) *QueryExecutor {
	return &QueryExecutor{database: database, db: db}
}

// TestConnection verifies the server is reachable and the configured database is current.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := e.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB, e.database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", e.database, currentDB)
	}
	return nil
}

// Query runs sqlQuery bounded with SQL Server's TOP clause.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	rows, err := e.db.QueryContext(ctx, LimitQuery(sqlQuery, datasource.EffectiveLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows, mapSQLServerType, isStringType)
}

// LimitQuery wraps sqlQuery so at most limit rows are returned.
func LimitQuery(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, sqlQuery)
}

// Close releases the connection.
func (e *QueryExecutor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
