package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		flagged bool
	}{
		{name: "gender code", value: "FEMALE", flagged: false},
		{name: "drug name", value: "aspirin", flagged: false},
		{name: "state acronym", value: "TX", flagged: false},
		{name: "number", value: "1950", flagged: false},
		{name: "classic tautology", value: "' OR '1'='1", flagged: true},
		{name: "stacked drop", value: "'; DROP TABLE users--", flagged: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", flagged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fingerprint, flagged := CheckValue(tt.value)
			assert.Equal(t, tt.flagged, flagged)
			if tt.flagged {
				assert.NotEmpty(t, fingerprint)
			}
		})
	}
}

func TestCheckQueryArgs(t *testing.T) {
	table := models.EntityTable{
		models.CategoryGender: {{Text: "female", Placeholder: "<ARG-GENDER><0>", QueryArg: "FEMALE"}},
		models.CategoryAge: {
			{Text: "40", Placeholder: "<ARG-AGE><0>", QueryArg: "40"},
			{Text: "x", Placeholder: "<ARG-AGE><1>", QueryArg: "' OR '1'='1"},
		},
		models.CategoryDrug: {{Text: "aspirin", Placeholder: "<ARG-DRUG><0>"}},
	}

	results := CheckQueryArgs(table)
	require.Len(t, results, 1)
	assert.Equal(t, models.CategoryAge, results[0].Category)
	assert.Equal(t, "<ARG-AGE><1>", results[0].Placeholder)
	assert.NotEmpty(t, results[0].Fingerprint)
}

func TestCheckQueryArgs_SkipsNilEntities(t *testing.T) {
	table := models.EntityTable{
		models.CategoryAge: {nil, {Text: "x", Placeholder: "<ARG-AGE><1>", QueryArg: "' OR '1'='1"}},
	}

	results := CheckQueryArgs(table)
	require.Len(t, results, 1)
	assert.Equal(t, "<ARG-AGE><1>", results[0].Placeholder)
}
