package postgres

import (
	"context"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "OMOP CDM on PostgreSQL 12+ or Aurora PostgreSQL",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
