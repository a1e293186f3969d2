// Package redshift executes rendered queries on Amazon Redshift through the PostgreSQL wire
// protocol. Redshift rejects some startup parameters pgx sends, so lib/pq is used instead.
package redshift

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
)

// DefaultPort returns the default Redshift port.
func DefaultPort() int {
	return 5439
}

// QueryExecutor runs rendered queries against an OMOP database on Redshift.
type QueryExecutor struct {
	database string
	db       *sql.DB
}

// ConnectionString builds a lib/pq URL for cfg.
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
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		port,
		url.QueryEscape(cfg.Database),
		url.QueryEscape(sslMode),
	), nil
}

// NewQueryExecutor opens a connection to the cluster described by cfg.
func NewQueryExecutor(ctx context.Context, cfg datasource.Config) (*QueryExecutor, error) {
	connStr, err := ConnectionString(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open redshift connection: %w", err)
	}
	return NewQueryExecutorWithDB(db, cfg.Database), nil
}

// NewQueryExecutorWithDB wraps an open handle.
func NewQueryExecutorWithDB(db *sql.DB, database string) *QueryExecutor {
	return &QueryExecutor{database: database, db: db}
}

// TestConnection verifies the cluster is reachable and the configured database is current.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := e.db.QueryRowContext(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB, e.database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", e.database, currentDB)
	}
	return nil
}

// Query runs sqlQuery wrapped with a row limit.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	rows, err := e.db.QueryContext(ctx, LimitQuery(sqlQuery, datasource.EffectiveLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows, strings.ToUpper, isText)
}

// LimitQuery wraps sqlQuery so at most limit rows are returned.
func LimitQuery(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)
}

func isText(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "TEXT", "VARCHAR", "BPCHAR", "CHAR", "NAME":
		return true
	}
	return false
}

// Close releases the connection.
func (e *QueryExecutor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
