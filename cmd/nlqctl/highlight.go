package main

import (
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

var categoryColors = map[models.Category]*color.Color{
	models.CategoryGender:    color.New(color.FgMagenta, color.Bold),
	models.CategoryRace:      color.New(color.FgYellow, color.Bold),
	models.CategoryEthnicity: color.New(color.FgYellow),
	models.CategoryState:     color.New(color.FgBlue, color.Bold),
	models.CategoryDrug:      color.New(color.FgGreen, color.Bold),
	models.CategoryCondition: color.New(color.FgRed, color.Bold),
	models.CategoryTimeDays:  color.New(color.FgCyan),
	models.CategoryTimeYears: color.New(color.FgCyan),
	models.CategoryAge:       color.New(color.FgCyan, color.Bold),
}

func colorFor(category models.Category) *color.Color {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	return color.New(color.Underline)
}

type span struct {
	begin, end int
	category   models.Category
}

// spans locates every entity in question. Recorded offsets are used when they still
// point at the entity text, otherwise the first unclaimed occurrence is used.
// Overlapping spans keep the earliest, longest one.
func spans(question string, table models.EntityTable) []span {
	var found []span
	for _, category := range table.Categories() {
		for _, e := range table[category] {
			if e.Text == "" {
				continue
			}
			b, end := e.BeginOffset, e.EndOffset
			if b < 0 || end > len(question) || b >= end || question[b:end] != e.Text {
				b = strings.Index(question, e.Text)
				if b < 0 {
					continue
				}
				end = b + len(e.Text)
			}
			found = append(found, span{begin: b, end: end, category: category})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].begin != found[j].begin {
			return found[i].begin < found[j].begin
		}
		return found[i].end > found[j].end
	})

	out := found[:0]
	last := 0
	for _, s := range found {
		if s.begin < last {
			continue
		}
		out = append(out, s)
		last = s.end
	}
	return out
}

// highlight renders question with every entity colored by category and tagged with it.
func highlight(question string, table models.EntityTable) string {
	var b strings.Builder
	pos := 0
	for _, s := range spans(question, table) {
		b.WriteString(question[pos:s.begin])
		b.WriteString(colorFor(s.category).Sprintf("[%s]", question[s.begin:s.end]))
		b.WriteString(color.New(color.Faint).Sprintf("/%s", s.category))
		pos = s.end
	}
	b.WriteString(question[pos:])
	return b.String()
}
