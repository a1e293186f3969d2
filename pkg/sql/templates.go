package sql

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultSchema is the OMOP schema the translation model was trained against.
const DefaultSchema = "cmsdesynpuf23m"

// OMOP domain identifiers used by the concept sub-queries.
const (
	DomainGender    = "Gender"
	DomainRace      = "Race"
	DomainEthnicity = "Ethnicity"
)

// Vocabulary identifiers used when resolving descendant concepts.
const (
	VocabularyICD10CM = "ICD10CM"
	VocabularyRxNorm  = "RxNorm"
)

// SubQueryFunc builds a parenthesized sub-query for one canonical code.
type SubQueryFunc func(schema, arg string) string

// FragmentFunc builds a parameterless fragment. It runs once, when Templates is built.
type FragmentFunc func(schema string) string

// quoteLiteral escapes a value for use inside a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// UniqueConcept selects the standard concept with the given name in a domain.
// The sub-query yields a single concept_id column.
func UniqueConcept(schema, domain, name string) string {
	return fmt.Sprintf(
		" ( SELECT concept_id FROM %s.concept WHERE concept_name='%s' AND domain_id='%s' AND standard_concept='S' ) ",
		schema, quoteLiteral(name), quoteLiteral(domain))
}

// ConceptNames lists every standard concept of a domain together with its name,
// aliased after the lower-cased domain (e.g. "gender").
func ConceptNames(schema, domain string) string {
	return fmt.Sprintf(
		" ( SELECT concept_id, concept_name AS %s FROM %s.concept WHERE domain_id='%s' AND standard_concept='S' ) ",
		strings.ToLower(domain), schema, quoteLiteral(domain))
}

// StateLocation selects the locations in a state, given its two-letter acronym.
func StateLocation(schema, acronym string) string {
	return fmt.Sprintf(" ( SELECT location_id FROM %s.location WHERE state='%s' ) ", schema, quoteLiteral(acronym))
}

// StateNames lists every location together with its state.
func StateNames(schema string) string {
	return fmt.Sprintf(" ( SELECT location_id, state FROM %s.location ) ", schema)
}

// DescendantConcepts resolves source vocabulary codes to standard concepts through the
// "Maps to" relationship, then expands them to all their descendants.
//
// codes may hold several codes separated by semicolons; they become a disjunction of
// concept_code predicates. The sub-query yields a single concept_id column.
func DescendantConcepts(schema, vocabulary, codes string) string {
	return fmt.Sprintf(
		"( SELECT descendant_concept_id AS concept_id FROM "+
			"(SELECT * FROM (SELECT concept_id_2 FROM ( "+
			"(SELECT concept_id FROM %[1]s.concept WHERE vocabulary_id='%[2]s' AND %[3]s) "+
			"JOIN ( SELECT concept_id_1, concept_id_2 FROM %[1]s.concept_relationship WHERE relationship_id='Maps to' ) "+
			"ON concept_id=concept_id_1) ) JOIN %[1]s.concept ON concept_id_2=concept_id) "+
			"JOIN %[1]s.concept_ancestor ON concept_id=ancestor_concept_id ) ",
		schema, quoteLiteral(vocabulary), codeDisjunction(codes))
}

// codeDisjunction turns "A97;G47.00" into "( concept_code='A97' OR concept_code='G47.00' )".
func codeDisjunction(codes string) string {
	var predicates []string
	for _, code := range strings.Split(codes, ";") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		predicates = append(predicates, fmt.Sprintf("concept_code='%s'", quoteLiteral(code)))
	}
	if len(predicates) == 0 {
		predicates = append(predicates, "concept_code=''")
	}
	return "( " + strings.Join(predicates, " OR ") + " )"
}

// Templates is the renderer configuration: the schema name and the generator tables keyed by
// exact template token (e.g. "<GENDER-TEMPLATE>"). It is immutable once built and may be shared
// by concurrent renders.
type Templates struct {
	schema     string
	withArg    map[string]SubQueryFunc
	withoutArg map[string]string
}

// NewTemplates builds a template configuration. Parameterless generators are evaluated here,
// once, against the schema.
func NewTemplates(schema string, withArg map[string]SubQueryFunc, withoutArg map[string]FragmentFunc) *Templates {
	t := &Templates{
		schema:     schema,
		withArg:    make(map[string]SubQueryFunc, len(withArg)),
		withoutArg: make(map[string]string, len(withoutArg)),
	}
	for token, fn := range withArg {
		t.withArg[token] = fn
	}
	for token, fn := range withoutArg {
		t.withoutArg[token] = fn(schema)
	}
	return t
}

// DefaultTemplates registers the OMOP generators for the template types the translation
// model emits.
func DefaultTemplates(schema string) *Templates {
	if schema == "" {
		schema = DefaultSchema
	}

	withArg := map[string]SubQueryFunc{
		"<GENDER-TEMPLATE>": func(schema, arg string) string {
			return UniqueConcept(schema, DomainGender, arg)
		},
		"<RACE-TEMPLATE>": func(schema, arg string) string {
			return UniqueConcept(schema, DomainRace, arg)
		},
		"<ETHNICITY-TEMPLATE>": func(schema, arg string) string {
			return UniqueConcept(schema, DomainEthnicity, arg)
		},
		"<STATEID-TEMPLATE>":   StateLocation,
		"<STATENAME-TEMPLATE>": StateLocation,
		"<CONDITION-TEMPLATE>": func(schema, arg string) string {
			return DescendantConcepts(schema, VocabularyICD10CM, arg)
		},
		"<DRUG-TEMPLATE>": func(schema, arg string) string {
			return DescendantConcepts(schema, VocabularyRxNorm, arg)
		},
	}

	withoutArg := map[string]FragmentFunc{
		"<GENDER-TEMPLATE>": func(schema string) string {
			return ConceptNames(schema, DomainGender)
		},
		"<RACE-TEMPLATE>": func(schema string) string {
			return ConceptNames(schema, DomainRace)
		},
		"<ETHNICITY-TEMPLATE>": func(schema string) string {
			return ConceptNames(schema, DomainEthnicity)
		},
		"<STATENAME-TEMPLATE>": StateNames,
	}

	return NewTemplates(schema, withArg, withoutArg)
}

// Schema returns the configured schema name.
func (t *Templates) Schema() string {
	return t.schema
}

// WithArgument returns the generator registered for a templated-argument macro.
func (t *Templates) WithArgument(token string) (SubQueryFunc, bool) {
	fn, ok := t.withArg[token]
	return fn, ok
}

// WithoutArgument returns the pre-rendered fragment for a template-only macro.
func (t *Templates) WithoutArgument(token string) (string, bool) {
	fragment, ok := t.withoutArg[token]
	return fragment, ok
}

// TemplateTypes returns every registered template token, with and without argument.
func (t *Templates) TemplateTypes() (withArg, withoutArg []string) {
	for token := range t.withArg {
		withArg = append(withArg, token)
	}
	for token := range t.withoutArg {
		withoutArg = append(withoutArg, token)
	}
	sort.Strings(withArg)
	sort.Strings(withoutArg)
	return withArg, withoutArg
}
