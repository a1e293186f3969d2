package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Option is one candidate canonical code for an entity, as returned by disambiguation.
type Option struct {
	Code        string  `json:"Code"`
	Description string  `json:"Description,omitempty"`
	Score       float64 `json:"Score"`
}

// SentinelOption is the single option recorded when a coding lookup yields nothing.
var SentinelOption = Option{Score: -1.0, Code: "-1", Description: "N/A"}

// SentinelQueryArg is the query argument paired with SentinelOption.
const SentinelQueryArg = "N/A"

// Entity is a detected mention of a domain concept within a question.
//
// Offsets refer to the question as it was at detection time and are kept for
// visualization and audit only. Rewriting always works on Text.
type Entity struct {
	BeginOffset int      `json:"BeginOffset"`
	EndOffset   int      `json:"EndOffset"`
	Text        string   `json:"Text"`
	Placeholder string   `json:"Placeholder,omitempty"`
	Options     []Option `json:"Options,omitempty"`
	QueryArg    string   `json:"Query-arg,omitempty"`
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Options != nil {
		c.Options = make([]Option, len(e.Options))
		copy(c.Options, e.Options)
	}
	return &c
}

// SetOptions records the ranked options and selects the top one as query argument.
func (e *Entity) SetOptions(options []Option) {
	e.Options = options
	if len(options) > 0 {
		e.QueryArg = options[0].Code
	}
}

// IsDisambiguated reports whether the entity carries options and a query argument.
func (e *Entity) IsDisambiguated() bool {
	return len(e.Options) > 0 && e.QueryArg != ""
}

// EntityTable maps a category to its entities in detection order.
type EntityTable map[Category][]*Entity

// Categories returns the table's categories in canonical order.
func (t EntityTable) Categories() []Category {
	categories := make([]Category, 0, len(t))
	for c := range t {
		categories = append(categories, c)
	}
	SortCategories(categories)
	return categories
}

// Len returns the number of entities across all categories.
func (t EntityTable) Len() int {
	n := 0
	for _, entities := range t {
		n += len(entities)
	}
	return n
}

// Clone deep-copies the table, dropping nil entries. Callers that correct entities must
// clone first so the original snapshot stays intact for feedback logging.
func (t EntityTable) Clone() EntityTable {
	if t == nil {
		return nil
	}
	out := make(EntityTable, len(t))
	for c, entities := range t {
		copied := make([]*Entity, 0, len(entities))
		for _, e := range entities {
			if e != nil {
				copied = append(copied, e.Clone())
			}
		}
		out[c] = copied
	}
	return out
}

// HasNil reports whether any category holds a nil entry, as a JSON null decodes to.
func (t EntityTable) HasNil() bool {
	for _, entities := range t {
		for _, e := range entities {
			if e == nil {
				return true
			}
		}
	}
	return false
}

// Lookup finds the entity stamped with the given category and ordinal.
func (t EntityTable) Lookup(category Category, ordinal int) (*Entity, bool) {
	want := PlaceholderToken(category, ordinal)
	for _, e := range t[category] {
		if e != nil && e.Placeholder == want {
			return e, true
		}
	}
	return nil, false
}

// Texts returns the surface texts of a category's entities.
func (t EntityTable) Texts(category Category) []string {
	texts := make([]string, 0, len(t[category]))
	for _, e := range t[category] {
		if e == nil {
			continue
		}
		texts = append(texts, e.Text)
	}
	return texts
}

const (
	placeholderArgPrefix = "<ARG-"
)

// PlaceholderToken formats the placeholder token for a category and ordinal.
func PlaceholderToken(category Category, ordinal int) string {
	return fmt.Sprintf("%s%s><%d>", placeholderArgPrefix, category, ordinal)
}

// ParsePlaceholderToken splits a token of the form <ARG-{CATEGORY}><{ordinal}>.
func ParsePlaceholderToken(token string) (Category, int, error) {
	rest, ok := strings.CutPrefix(token, placeholderArgPrefix)
	if !ok {
		return "", 0, fmt.Errorf("invalid placeholder %q", token)
	}
	name, ordinal, ok := strings.Cut(rest, "><")
	if !ok || name == "" || !strings.HasSuffix(ordinal, ">") {
		return "", 0, fmt.Errorf("invalid placeholder %q", token)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(ordinal, ">"))
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("invalid placeholder ordinal in %q", token)
	}
	return Category(name), n, nil
}
