package datasource

import (
	"database/sql"
	"fmt"
)

// ScanRows collects database/sql rows into a QueryExecutionResult. typeName maps the
// driver's type name to the one reported in ColumnInfo; byte slices from columns it
// reports as text are converted to strings.
func ScanRows(rows *sql.Rows, typeName func(dbType string) string, isText func(dbType string) bool) (*QueryExecutionResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		columns[i] = ColumnInfo{
			Name: name,
			Type: typeName(columnTypes[i].DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			if b, ok := val.([]byte); ok && isText(columnTypes[i].DatabaseTypeName()) {
				val = string(b)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
