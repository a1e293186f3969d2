// Package placeholder stamps entities with typed placeholder tokens.
package placeholder

import (
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// Token returns the placeholder token for a category and ordinal, e.g. <ARG-DRUG><1>.
func Token(category models.Category, ordinal int) string {
	return models.PlaceholderToken(category, ordinal)
}

// Parse extracts the category and ordinal from a placeholder token.
func Parse(token string) (models.Category, int, error) {
	return models.ParsePlaceholderToken(token)
}

// Assign stamps every entity in the table with <ARG-{CATEGORY}><{ordinal}>.
//
// Ordinals enumerate each category's list in its current order, starting at
// start[category] (0 when absent). Supplying a start offset lets a caller add a corrected
// entity without renumbering the existing ones. The table is modified in place and returned.
func Assign(table models.EntityTable, start map[models.Category]int) models.EntityTable {
	for category, entities := range table {
		offset := start[category]
		for i, e := range entities {
			if e != nil {
				e.Placeholder = Token(category, offset+i)
			}
		}
	}
	return table
}

// NextOrdinals returns, per category, one past the highest ordinal already stamped.
// A gap left by a removed entity is never refilled. A removed highest ordinal is only
// remembered when the caller carries the result forward through Advance.
func NextOrdinals(table models.EntityTable) map[models.Category]int {
	next := make(map[models.Category]int, len(table))
	for category, entities := range table {
		n := 0
		for _, e := range entities {
			if e == nil {
				continue
			}
			c, ordinal, err := Parse(e.Placeholder)
			if err != nil || c != category {
				continue
			}
			if ordinal+1 > n {
				n = ordinal + 1
			}
		}
		next[category] = n
	}
	return next
}

// Advance merges observed next ordinals into a running start map, keeping the larger
// value per category.
func Advance(start map[models.Category]int, observed map[models.Category]int) map[models.Category]int {
	out := make(map[models.Category]int, len(start)+len(observed))
	for c, n := range start {
		out[c] = n
	}
	for c, n := range observed {
		if n > out[c] {
			out[c] = n
		}
	}
	return out
}
