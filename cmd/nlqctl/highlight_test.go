package main

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

func TestHighlight(t *testing.T) {
	color.NoColor = true

	question := "female patients on aspirin"
	table := models.EntityTable{
		models.CategoryGender: {{BeginOffset: 0, EndOffset: 6, Text: "female"}},
		models.CategoryDrug:   {{BeginOffset: 19, EndOffset: 26, Text: "aspirin"}},
	}

	assert.Equal(t, "[female]/GENDER patients on [aspirin]/DRUG", highlight(question, table))
}

func TestSpans_FallsBackToTextSearch(t *testing.T) {
	question := "How many women take metformin?"
	table := models.EntityTable{
		// offsets from an earlier revision of the question
		models.CategoryDrug: {{BeginOffset: 3, EndOffset: 12, Text: "metformin"}},
	}

	got := spans(question, table)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "metformin", question[got[0].begin:got[0].end])
	}
}

func TestSpans_DropsOverlapsAndMissingText(t *testing.T) {
	question := "type 2 diabetes and diabetes"
	table := models.EntityTable{
		models.CategoryCondition: {
			{BeginOffset: 0, EndOffset: 15, Text: "type 2 diabetes"},
			{BeginOffset: 7, EndOffset: 15, Text: "diabetes"},
			{Text: "asthma"},
		},
	}

	got := spans(question, table)
	if assert.Len(t, got, 1) {
		assert.Equal(t, span{begin: 0, end: 15, category: models.CategoryCondition}, got[0])
	}
}

func TestHighlight_NoEntities(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "How many patients?", highlight("How many patients?", nil))
}
