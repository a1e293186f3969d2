// Package logging holds helpers for keeping credentials and oversized SQL out of logs.
package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength is the maximum number of runes of SQL to log.
	MaxQueryLogLength = 200
	// MaxQuestionLogLength is the maximum number of runes of a generalized question to log.
	MaxQuestionLogLength = 120
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens sent to the NER, coding and translation collaborators
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/-]+=*`)

	// Anthropic and OpenAI keys echoed back in provider errors
	providerKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s?]+`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeConnectionString removes credentials from a datasource or feedback-store URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError removes credentials from errors returned by databases and model providers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeQuery flattens rendered SQL onto one line and truncates it for logging.
// Generated subqueries span many lines and can be several kilobytes.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := strings.TrimSpace(whitespacePattern.ReplaceAllString(query, " "))
	sanitized = TruncateString(sanitized, MaxQueryLogLength)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// SanitizeQuestion truncates a generalized question for Info-level logs. Raw questions
// are never passed here; they are logged at Debug only.
func SanitizeQuestion(question string) string {
	return TruncateString(strings.TrimSpace(question), MaxQuestionLogLength)
}

// TruncateString truncates s to maxLen runes and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
