package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// InjectionCheckResult describes a query argument that libinjection flagged.
type InjectionCheckResult struct {
	Category    models.Category
	Placeholder string
	QueryArg    string
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValue runs libinjection over a single value. It returns the fingerprint and true
// when the value looks like SQL injection.
func CheckValue(value string) (string, bool) {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return "", false
	}
	return string(fingerprint), true
}

// CheckQueryArgs scans every query argument of the table. Bare argument macros are spliced
// into SQL verbatim. Results follow canonical category order.
func CheckQueryArgs(table models.EntityTable) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, category := range table.Categories() {
		for _, e := range table[category] {
			if e == nil || e.QueryArg == "" {
				continue
			}
			if fingerprint, flagged := CheckValue(e.QueryArg); flagged {
				results = append(results, &InjectionCheckResult{
					Category:    category,
					Placeholder: e.Placeholder,
					QueryArg:    e.QueryArg,
					Fingerprint: fingerprint,
				})
			}
		}
	}
	return results
}
