package disambiguation

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

//go:embed patterns/*.yaml
var patternFS embed.FS

// NotFoundPrefix marks a surface text no pattern recognized. The original text follows it
// so a human can correct the entity later.
const NotFoundPrefix = "[NOT FOUND]-"

// patternFile is the YAML layout of a canonicalization table.
type patternFile struct {
	Category string `yaml:"category"`
	Patterns []struct {
		Code    string `yaml:"code"`
		Pattern string `yaml:"pattern"`
	} `yaml:"patterns"`
}

type canonicalPattern struct {
	code    string
	pattern *regexp.Regexp
}

// Canonicalizer maps surface texts to canonical codes through ordered pattern tables.
// Tables are compiled once and read-only afterwards.
type Canonicalizer struct {
	tables map[models.Category][]canonicalPattern
}

// LoadCanonicalizer compiles every pattern table in fsys (files matching *.yaml at its root).
func LoadCanonicalizer(fsys fs.FS) (*Canonicalizer, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern files: %w", err)
	}

	c := &Canonicalizer{tables: make(map[models.Category][]canonicalPattern)}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := c.add(name, data); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCanonicalizer loads the built-in gender, race and state tables.
func DefaultCanonicalizer() (*Canonicalizer, error) {
	sub, err := fs.Sub(patternFS, "patterns")
	if err != nil {
		return nil, err
	}
	return LoadCanonicalizer(sub)
}

func (c *Canonicalizer) add(name string, data []byte) error {
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}

	category, err := models.ParseCategory(file.Category)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	for i, p := range file.Patterns {
		if p.Code == "" {
			return fmt.Errorf("%s: pattern %d has no code", name, i)
		}
		// Patterns only match at the start of the entity text.
		re, err := regexp.Compile(`^(?:` + p.Pattern + `)`)
		if err != nil {
			return fmt.Errorf("%s: invalid pattern for %s: %w", name, p.Code, err)
		}
		c.tables[category] = append(c.tables[category], canonicalPattern{code: p.Code, pattern: re})
	}
	return nil
}

// Categories reports which categories have a pattern table.
func (c *Canonicalizer) Categories() []models.Category {
	categories := make([]models.Category, 0, len(c.tables))
	for category := range c.tables {
		categories = append(categories, category)
	}
	models.SortCategories(categories)
	return categories
}

// Handles reports whether category has a pattern table.
func (c *Canonicalizer) Handles(category models.Category) bool {
	_, ok := c.tables[category]
	return ok
}

// Canonicalize returns the code of the first pattern matching text. When none matches, the
// singular form of text is tried; if that fails too the result is NotFoundPrefix+text and
// found is false.
func (c *Canonicalizer) Canonicalize(category models.Category, text string) (code string, found bool) {
	table := c.tables[category]
	if code, ok := match(table, text); ok {
		return code, true
	}
	if singular := inflection.Singular(text); singular != text {
		if code, ok := match(table, singular); ok {
			return code, true
		}
	}
	return NotFoundPrefix + text, false
}

func match(table []canonicalPattern, text string) (string, bool) {
	for _, p := range table {
		if p.pattern.MatchString(text) {
			return p.code, true
		}
	}
	return "", false
}
