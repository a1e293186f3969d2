package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholderToken(t *testing.T) {
	assert.Equal(t, "<ARG-GENDER><0>", PlaceholderToken(CategoryGender, 0))
	assert.Equal(t, "<ARG-TIMEDAYS><12>", PlaceholderToken(CategoryTimeDays, 12))
}

func TestParsePlaceholderToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		category Category
		ordinal  int
		wantErr  bool
	}{
		{name: "gender", token: "<ARG-GENDER><0>", category: CategoryGender, ordinal: 0},
		{name: "multi digit", token: "<ARG-DRUG><10>", category: CategoryDrug, ordinal: 10},
		{name: "missing prefix", token: "<GENDER><0>", wantErr: true},
		{name: "missing ordinal", token: "<ARG-GENDER>", wantErr: true},
		{name: "non numeric ordinal", token: "<ARG-GENDER><x>", wantErr: true},
		{name: "empty category", token: "<ARG-><1>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, ordinal, err := ParsePlaceholderToken(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.ordinal, ordinal)
		})
	}
}

func TestEntityTable_Categories(t *testing.T) {
	table := EntityTable{
		CategoryAge:       nil,
		Category("ZZZ"):   nil,
		CategoryDrug:      nil,
		CategoryGender:    nil,
		Category("AAA"):   nil,
		CategoryCondition: nil,
	}

	assert.Equal(t,
		[]Category{CategoryGender, CategoryDrug, CategoryCondition, CategoryAge, "AAA", "ZZZ"},
		table.Categories())
}

func TestEntityTable_CloneIsDeep(t *testing.T) {
	original := EntityTable{
		CategoryDrug: {{
			Text:        "aspirin",
			Placeholder: "<ARG-DRUG><0>",
			Options:     []Option{{Code: "1191", Score: 0.9}},
			QueryArg:    "1191",
		}},
	}

	clone := original.Clone()
	clone[CategoryDrug][0].QueryArg = "243670"
	clone[CategoryDrug][0].Options[0].Code = "243670"
	clone[CategoryDrug] = append(clone[CategoryDrug], &Entity{Text: "ibuprofen"})

	assert.Equal(t, "1191", original[CategoryDrug][0].QueryArg)
	assert.Equal(t, "1191", original[CategoryDrug][0].Options[0].Code)
	assert.Len(t, original[CategoryDrug], 1)
}

func TestEntityTable_Lookup(t *testing.T) {
	table := EntityTable{
		CategoryDrug: {
			{Text: "aspirin", Placeholder: "<ARG-DRUG><0>"},
			{Text: "ibuprofen", Placeholder: "<ARG-DRUG><2>"},
		},
	}

	e, ok := table.Lookup(CategoryDrug, 2)
	require.True(t, ok)
	assert.Equal(t, "ibuprofen", e.Text)

	_, ok = table.Lookup(CategoryDrug, 1)
	assert.False(t, ok)

	_, ok = table.Lookup(CategoryCondition, 0)
	assert.False(t, ok)
}

func TestEntityTable_NilEntries(t *testing.T) {
	table := EntityTable{
		CategoryDrug: {nil, {Text: "aspirin", Placeholder: "<ARG-DRUG><0>"}},
	}

	assert.True(t, table.HasNil())
	assert.Equal(t, []string{"aspirin"}, table.Texts(CategoryDrug))

	e, ok := table.Lookup(CategoryDrug, 0)
	require.True(t, ok)
	assert.Equal(t, "aspirin", e.Text)

	clone := table.Clone()
	assert.False(t, clone.HasNil())
	assert.Len(t, clone[CategoryDrug], 1)
}

func TestEntity_SetOptions(t *testing.T) {
	e := &Entity{Text: "female"}
	e.SetOptions([]Option{{Code: "FEMALE"}})

	assert.Equal(t, "FEMALE", e.QueryArg)
	assert.True(t, e.IsDisambiguated())
}

func TestEntity_JSONFieldNames(t *testing.T) {
	e := Entity{BeginOffset: 6, EndOffset: 12, Text: "female", Placeholder: "<ARG-GENDER><0>", QueryArg: "FEMALE"}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FEMALE", raw["Query-arg"])
	assert.Equal(t, "<ARG-GENDER><0>", raw["Placeholder"])
	assert.NotContains(t, raw, "Options")
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" drug ")
	require.NoError(t, err)
	assert.Equal(t, CategoryDrug, c)

	_, err = ParseCategory("DOSAGE")
	assert.Error(t, err)
}
