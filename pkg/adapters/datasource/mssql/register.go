package mssql

import (
	"context"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "OMOP CDM on SQL Server 2019+ or Azure SQL Database",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
