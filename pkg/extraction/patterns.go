package extraction

import (
	"regexp"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// matcher finds mentions of one category directly in the question text.
type matcher struct {
	category models.Category
	pattern  *regexp.Regexp
}

var (
	genderPattern = regexp.MustCompile(`(?i)\b((fe)?males?|(wo)?m(a|e)n)\b`)

	racePattern = regexp.MustCompile(`(?i)\b(black or african americans?|african americans?|blacks?|whites?)\b`)

	// "non" is optional so plain "hispanic" and "latinos" are detected too.
	ethnicityPattern = regexp.MustCompile(`(?i)\b((not? +)?(non ?-?)?(hispanics? +or +latinos?|hispanics?|latinos?))\b`)
)

// builtinMatchers run after NER, in this order, sharing its seen set.
var builtinMatchers = []matcher{
	{category: models.CategoryGender, pattern: genderPattern},
	{category: models.CategoryRace, pattern: racePattern},
	{category: models.CategoryEthnicity, pattern: ethnicityPattern},
}

// PatternCategories are always present in a normalized table, possibly empty.
func PatternCategories() []models.Category {
	categories := make([]models.Category, len(builtinMatchers))
	for i, m := range builtinMatchers {
		categories[i] = m.category
	}
	return categories
}

func (m matcher) find(question string) []*models.Entity {
	var entities []*models.Entity
	for _, loc := range m.pattern.FindAllStringIndex(question, -1) {
		entities = append(entities, &models.Entity{
			BeginOffset: loc[0],
			EndOffset:   loc[1],
			Text:        question[loc[0]:loc[1]],
		})
	}
	return entities
}
