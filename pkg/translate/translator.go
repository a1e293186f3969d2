// Package translate turns a generalized question into a SQL skeleton using an external
// sequence-to-sequence or chat model.
package translate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/retry"
)

// Translator maps a generalized question (placeholders instead of entity names) to a SQL
// skeleton that uses the template macro grammar.
type Translator interface {
	Translate(ctx context.Context, question string) (string, error)
}

// Default sequence lengths of the fine-tuned seq2seq model.
const (
	DefaultInputMaxLength  = 256
	DefaultOutputMaxLength = 750
)

// Config selects and configures a translator provider.
type Config struct {
	Provider        string // http, openai, anthropic
	Endpoint        string
	Model           string
	APIKey          string
	InputMaxLength  int
	OutputMaxLength int
	Retry           *retry.Config
}

const (
	ProviderHTTP      = "http"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// New creates the translator named by cfg.Provider.
func New(cfg Config, logger *zap.Logger) (Translator, error) {
	if cfg.InputMaxLength <= 0 {
		cfg.InputMaxLength = DefaultInputMaxLength
	}
	if cfg.OutputMaxLength <= 0 {
		cfg.OutputMaxLength = DefaultOutputMaxLength
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderHTTP, "":
		return NewHTTPTranslator(cfg, logger)
	case ProviderOpenAI:
		return NewOpenAITranslator(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicTranslator(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown translator provider %q", apperrors.ErrInvalidInput, cfg.Provider)
	}
}

var (
	padPattern   = regexp.MustCompile(`<pad> |</s>`)
	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// EncodeInput prepares a generalized question for the seq2seq model, whose vocabulary
// spells macro brackets as square brackets.
func EncodeInput(question string) string {
	question = strings.NewReplacer("<", "[", ">", "]").Replace(question)
	return "translate English to SQL: " + question + " </s>"
}

// CleanOutput strips decoder padding and end tokens from seq2seq output and restores angle
// brackets.
func CleanOutput(output string) string {
	output = padPattern.ReplaceAllString(output, "")
	output = strings.NewReplacer("[", "<", "]", ">").Replace(output)
	return strings.TrimSpace(output)
}

// StripCodeFence removes a markdown code fence around chat model output.
func StripCodeFence(output string) string {
	output = strings.TrimSpace(output)
	if m := fencePattern.FindStringSubmatch(output); m != nil {
		output = m[1]
	}
	return strings.TrimSpace(output)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// SystemPrompt instructs chat models to emit a skeleton in the macro grammar.
const SystemPrompt = `You translate questions about an OMOP CDM database into a single PostgreSQL query.
The question contains placeholders of the form <ARG-CATEGORY><n>. Never replace them with values.
Write the query using these macros:
- <SCHEMA> for the schema name, e.g. <SCHEMA>.person
- <GENDER-TEMPLATE><ARG-GENDER><n>, <RACE-TEMPLATE><ARG-RACE><n>, <ETHNICITY-TEMPLATE><ARG-ETHNICITY><n>,
  <CONDITION-TEMPLATE><ARG-CONDITION><n>, <DRUG-TEMPLATE><ARG-DRUG><n> for a concept_id sub-query
- <STATEID-TEMPLATE><ARG-STATE><n> for a location_id sub-query
- <ARG-TIMEDAYS><n>, <ARG-TIMEYEARS><n>, <ARG-AGE><n> for literal numbers
- <GENDER-TEMPLATE>, <RACE-TEMPLATE>, <ETHNICITY-TEMPLATE>, <STATENAME-TEMPLATE> to list all values
Reply with the SQL only.`
