// Package sql renders translated SQL skeletons into executable queries and checks the
// result before it reaches a datasource.
package sql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
)

// ErrMultipleStatements indicates the rendered query holds more than one statement.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the query, strips one trailing semicolon and rejects any
// semicolon left outside string literals.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// PrepareForExecution normalizes rendered SQL and rejects anything a datasource should not
// receive: an empty query, multiple statements, or macros the renderer left unexpanded.
func PrepareForExecution(sqlQuery string) (string, error) {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return "", result.Error
	}
	if result.NormalizedSQL == "" {
		return "", fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}
	if leftovers := UnexpandedMacros(result.NormalizedSQL); len(leftovers) > 0 {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnexpandedMacro, strings.Join(leftovers, ", "))
	}
	return result.NormalizedSQL, nil
}

// hasSemicolonOutsideStrings scans for a semicolon outside single- or double-quoted
// literals. A doubled quote ('') leaves and re-enters the literal, which keeps the state right.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	var quote rune
	var prev rune

	for _, c := range sqlQuery {
		switch {
		case quote == 0 && c == ';':
			return true
		case quote == 0 && (c == '\'' || c == '"'):
			quote = c
		case quote != 0 && c == quote && prev != '\\':
			quote = 0
		}
		prev = c
	}
	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if trimmed, ok := strings.CutSuffix(sqlQuery, ";"); ok {
		return strings.TrimRight(trimmed, " \t\n\r")
	}
	return sqlQuery
}
