// Package rewrite generalizes a question by replacing entity mentions with their
// placeholder tokens.
package rewrite

import (
	"regexp"
	"sort"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// segment is a run of question text. Placeholders already inserted are protected and
// never matched again.
type segment struct {
	text      string
	protected bool
}

type substitution struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rewrite replaces every case-insensitive, whole-word occurrence of each entity's Text with
// its Placeholder. Entities without a placeholder or text are ignored.
//
// Longer texts are substituted first across all categories, so "type 2 diabetes" wins
// over "diabetes" regardless of table iteration order. Ties fall back to canonical category
// order, then list order.
func Rewrite(question string, table models.EntityTable) string {
	segments := []segment{{text: question}}
	for _, sub := range substitutions(table) {
		segments = apply(segments, sub)
	}

	out := make([]byte, 0, len(question))
	for _, s := range segments {
		out = append(out, s.text...)
	}
	return string(out)
}

// Order returns the entities in the order Rewrite substitutes them.
func Order(table models.EntityTable) []*models.Entity {
	type ranked struct {
		entity   *models.Entity
		category models.Category
		index    int
	}

	var all []ranked
	for _, category := range table.Categories() {
		for i, e := range table[category] {
			if e == nil || e.Text == "" || e.Placeholder == "" {
				continue
			}
			all = append(all, ranked{entity: e, category: category, index: i})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if len(a.entity.Text) != len(b.entity.Text) {
			return len(a.entity.Text) > len(b.entity.Text)
		}
		if c := models.CompareCategories(a.category, b.category); c != 0 {
			return c < 0
		}
		return a.index < b.index
	})

	ordered := make([]*models.Entity, len(all))
	for i, r := range all {
		ordered[i] = r.entity
	}
	return ordered
}

func substitutions(table models.EntityTable) []substitution {
	entities := Order(table)
	subs := make([]substitution, 0, len(entities))
	for _, e := range entities {
		subs = append(subs, substitution{
			pattern:     MentionPattern(e.Text),
			placeholder: e.Placeholder,
		})
	}
	return subs
}

// MentionPattern compiles the case-insensitive pattern matching text as a whole word.
// A word boundary is only required on an edge where text itself starts or ends with a word
// character, so mentions such as "30g" or "(R)" still match.
func MentionPattern(text string) *regexp.Regexp {
	expr := "(?i)"
	if isWordByte(text[0]) {
		expr += `\b`
	}
	expr += regexp.QuoteMeta(text)
	if isWordByte(text[len(text)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func apply(segments []segment, sub substitution) []segment {
	out := make([]segment, 0, len(segments))
	for _, s := range segments {
		if s.protected {
			out = append(out, s)
			continue
		}

		matches := sub.pattern.FindAllStringIndex(s.text, -1)
		if matches == nil {
			out = append(out, s)
			continue
		}

		pos := 0
		for _, m := range matches {
			if m[0] > pos {
				out = append(out, segment{text: s.text[pos:m[0]]})
			}
			out = append(out, segment{text: sub.placeholder, protected: true})
			pos = m[1]
		}
		if pos < len(s.text) {
			out = append(out, segment{text: s.text[pos:]})
		}
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' ||
		('0' <= b && b <= '9') ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z')
}
