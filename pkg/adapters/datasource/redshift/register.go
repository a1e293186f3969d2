package redshift

import (
	"context"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "redshift",
			DisplayName: "Amazon Redshift",
			Description: "OMOP CDM on Amazon Redshift",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
