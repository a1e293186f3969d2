package sql

import (
	"regexp"
	"strconv"
)

// SchemaMacro is replaced by the configured schema name.
const SchemaMacro = "<SCHEMA>"

const (
	templateSuffix = "-TEMPLATE>"
	argPrefix      = "<ARG-"
)

var (
	// <DRUG-TEMPLATE><ARG-DRUG><0>
	templatedArgPattern = regexp.MustCompile(`<(\w*)-TEMPLATE><ARG-(\w*)><(\d+)>`)

	// <ARG-DRUG><0>
	argPattern = regexp.MustCompile(`<ARG-(\w*)><(\d+)>`)

	// <GENDER-TEMPLATE>
	templateOnlyPattern = regexp.MustCompile(`<(\w*)-TEMPLATE>`)

	anyMacroPattern = regexp.MustCompile(`<SCHEMA>|<\w*-TEMPLATE>(?:<ARG-\w*><\d+>)?|<ARG-\w*><\d+>`)
)

// MacroRef is a macro that references an entity by category and placeholder ordinal.
type MacroRef struct {
	Template string // template token such as "<DRUG-TEMPLATE>"; empty for bare argument macros
	Category string
	Ordinal  int
	Start    int
	End      int
}

// templateToken rebuilds the exact template token from its captured type name.
func templateToken(templateType string) string {
	return "<" + templateType + templateSuffix
}

func findTemplatedArg(s string, from int) (MacroRef, bool) {
	loc := templatedArgPattern.FindStringSubmatchIndex(s[from:])
	if loc == nil {
		return MacroRef{}, false
	}
	ordinal, err := strconv.Atoi(s[from+loc[6] : from+loc[7]])
	if err != nil {
		// \d+ overflowing int; treat the text as literal
		return MacroRef{Start: from + loc[0], End: from + loc[1], Ordinal: -1}, true
	}
	return MacroRef{
		Template: templateToken(s[from+loc[2] : from+loc[3]]),
		Category: s[from+loc[4] : from+loc[5]],
		Ordinal:  ordinal,
		Start:    from + loc[0],
		End:      from + loc[1],
	}, true
}

func findArg(s string, from int) (MacroRef, bool) {
	loc := argPattern.FindStringSubmatchIndex(s[from:])
	if loc == nil {
		return MacroRef{}, false
	}
	ordinal, err := strconv.Atoi(s[from+loc[4] : from+loc[5]])
	if err != nil {
		return MacroRef{Start: from + loc[0], End: from + loc[1], Ordinal: -1}, true
	}
	return MacroRef{
		Category: s[from+loc[2] : from+loc[3]],
		Ordinal:  ordinal,
		Start:    from + loc[0],
		End:      from + loc[1],
	}, true
}

func findTemplateOnly(s string, from int) (MacroRef, bool) {
	loc := templateOnlyPattern.FindStringSubmatchIndex(s[from:])
	if loc == nil {
		return MacroRef{}, false
	}
	return MacroRef{
		Template: templateToken(s[from+loc[2] : from+loc[3]]),
		Start:    from + loc[0],
		End:      from + loc[1],
	}, true
}

// UnexpandedMacros returns every macro still present in sql, in order of appearance.
func UnexpandedMacros(sql string) []string {
	return anyMacroPattern.FindAllString(sql, -1)
}

// ContainsMacros reports whether sql still holds any macro.
func ContainsMacros(sql string) bool {
	return anyMacroPattern.MatchString(sql)
}
