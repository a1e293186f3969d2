package models

// Detection is a raw mention returned by a medical named-entity recognizer.
// Category and Type follow the recognizer's own taxonomy (e.g. MEDICATION / GENERIC_NAME).
type Detection struct {
	BeginOffset int         `json:"BeginOffset"`
	EndOffset   int         `json:"EndOffset"`
	Text        string      `json:"Text"`
	Category    string      `json:"Category"`
	Type        string      `json:"Type"`
	Score       float64     `json:"Score"`
	Attributes  []Attribute `json:"Attributes,omitempty"`
}

// Attribute is a detection linked to a parent detection, such as the dosage of a drug.
type Attribute struct {
	BeginOffset       int     `json:"BeginOffset"`
	EndOffset         int     `json:"EndOffset"`
	Text              string  `json:"Text"`
	Category          string  `json:"Category,omitempty"`
	Type              string  `json:"Type"`
	Score             float64 `json:"Score"`
	RelationshipType  string  `json:"RelationshipType"`
	RelationshipScore float64 `json:"RelationshipScore"`
}

// AsDetection converts the attribute into a standalone detection. Attributes inherit
// the parent's category when they don't carry their own.
func (a Attribute) AsDetection(parentCategory string) Detection {
	category := a.Category
	if category == "" {
		category = parentCategory
	}
	return Detection{
		BeginOffset: a.BeginOffset,
		EndOffset:   a.EndOffset,
		Text:        a.Text,
		Category:    category,
		Type:        a.Type,
		Score:       a.Score,
	}
}
