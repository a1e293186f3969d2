package models

import (
	"fmt"
	"sort"
	"strings"
)

// Category is the tool-level classification of a detected entity.
// Category names appear verbatim inside placeholder tokens (<ARG-GENDER><0>).
type Category string

const (
	CategoryGender    Category = "GENDER"
	CategoryRace      Category = "RACE"
	CategoryEthnicity Category = "ETHNICITY"
	CategoryState     Category = "STATE"
	CategoryDrug      Category = "DRUG"
	CategoryCondition Category = "CONDITION"
	CategoryTimeDays  Category = "TIMEDAYS"
	CategoryTimeYears Category = "TIMEYEARS"
	CategoryAge       Category = "AGE"
)

// CategoryOrder is the canonical iteration order over categories.
var CategoryOrder = []Category{
	CategoryGender,
	CategoryRace,
	CategoryEthnicity,
	CategoryState,
	CategoryDrug,
	CategoryCondition,
	CategoryTimeDays,
	CategoryTimeYears,
	CategoryAge,
}

var categoryRank = func() map[Category]int {
	ranks := make(map[Category]int, len(CategoryOrder))
	for i, c := range CategoryOrder {
		ranks[c] = i
	}
	return ranks
}()

// IsKnown reports whether c is one of the built-in categories.
func (c Category) IsKnown() bool {
	_, ok := categoryRank[c]
	return ok
}

// ParseCategory normalizes a category name (case-insensitive) and validates it.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsKnown() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// lessCategory orders known categories by CategoryOrder, then unknown ones alphabetically.
func lessCategory(a, b Category) bool {
	ra, aKnown := categoryRank[a]
	rb, bKnown := categoryRank[b]
	switch {
	case aKnown && bKnown:
		return ra < rb
	case aKnown != bKnown:
		return aKnown
	default:
		return a < b
	}
}

// SortCategories sorts categories in canonical order in place.
func SortCategories(categories []Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		return lessCategory(categories[i], categories[j])
	})
}

// CompareCategories returns -1, 0 or 1 following canonical category order.
func CompareCategories(a, b Category) int {
	switch {
	case a == b:
		return 0
	case lessCategory(a, b):
		return -1
	default:
		return 1
	}
}
