// Package migrations holds the feedback store schema.
package migrations

import "embed"

// FS contains the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
