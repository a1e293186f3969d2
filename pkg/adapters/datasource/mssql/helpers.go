package mssql

import "strings"

// mapSQLServerType normalizes SQL Server type names to the names reported in ColumnInfo.
func mapSQLServerType(sqlServerType string) string {
	switch t := strings.ToUpper(sqlServerType); t {
	case "INT":
		return "INT4"
	case "BIGINT":
		return "INT8"
	case "SMALLINT", "TINYINT":
		return "INT2"
	case "BIT":
		return "BOOL"
	case "REAL":
		return "FLOAT4"
	case "FLOAT":
		return "FLOAT8"
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return "NUMERIC"
	case "CHAR", "NCHAR":
		return "BPCHAR"
	case "VARCHAR", "NVARCHAR":
		return "VARCHAR"
	case "TEXT", "NTEXT":
		return "TEXT"
	case "DATE":
		return "DATE"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMPTZ"
	case "UNIQUEIDENTIFIER":
		return "UUID"
	case "":
		return "UNKNOWN"
	default:
		return t
	}
}

// isStringType reports whether values of sqlType should be returned as strings.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "VARCHAR", "TEXT", "NCHAR", "NVARCHAR", "NTEXT", "XML":
		return true
	}
	return false
}
