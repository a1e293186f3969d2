package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
)

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// ConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so special characters in passwords
// (e.g., @, /, #, ?) don't break URL parsing.
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
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		port,
		url.QueryEscape(cfg.Database),
		url.QueryEscape(sslMode),
	), nil
}
