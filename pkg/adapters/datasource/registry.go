package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
)

// Config holds the connection settings shared by every adapter. Adapters ignore fields
// their dialect does not use.
type Config struct {
	Type                   string
	Host                   string
	Port                   int
	User                   string
	Password               string
	Database               string
	SSLMode                string
	TrustServerCertificate bool
}

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "redshift", "sqlserver"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Amazon Redshift"
	Description string `json:"description"`
}

// DatasourceAdapterRegistration contains info + factory for creating executors.
type DatasourceAdapterRegistration struct {
	Info    DatasourceAdapterInfo
	Factory func(ctx context.Context, cfg Config) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// NewQueryExecutor creates an executor for cfg.Type.
func NewQueryExecutor(ctx context.Context, cfg Config) (QueryExecutor, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unsupported datasource type %q", apperrors.ErrNoDatasource, cfg.Type)
	}
	return reg.Factory(ctx, cfg)
}
