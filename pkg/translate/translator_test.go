package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "pad and end tokens",
			output: "<pad> SELECT COUNT(*) FROM [SCHEMA].person</s>",
			want:   "SELECT COUNT(*) FROM <SCHEMA>.person",
		},
		{
			name:   "templated argument",
			output: "<pad> WHERE gender_concept_id=[GENDER-TEMPLATE][ARG-GENDER][0] </s>",
			want:   "WHERE gender_concept_id=<GENDER-TEMPLATE><ARG-GENDER><0>",
		},
		{
			name:   "already clean",
			output: "SELECT 1",
			want:   "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOutput(tt.output))
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripCodeFence("```sql\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", StripCodeFence("```\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", StripCodeFence("  SELECT 1  "))
}

func TestEncodeInput(t *testing.T) {
	assert.Equal(t,
		"translate English to SQL: Count [ARG-GENDER][0] patients </s>",
		EncodeInput("Count <ARG-GENDER><0> patients"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abc", truncate("abc", 0))
	assert.Equal(t, "né", truncate("néon", 2))
}

func TestHTTPTranslator_Translate(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"generated_text":"<pad> SELECT COUNT(DISTINCT person_id) FROM [SCHEMA].person WHERE gender_concept_id=[GENDER-TEMPLATE][ARG-GENDER][0]</s>"}]`))
	}))
	defer server.Close()

	tr, err := New(Config{Provider: ProviderHTTP, Endpoint: server.URL, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	skeleton, err := tr.Translate(context.Background(), "Count <ARG-GENDER><0> patients")
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(DISTINCT person_id) FROM <SCHEMA>.person WHERE gender_concept_id=<GENDER-TEMPLATE><ARG-GENDER><0>", skeleton)
	assert.Equal(t, "translate English to SQL: Count [ARG-GENDER][0] patients </s>", got.Inputs)
	assert.Equal(t, DefaultOutputMaxLength, got.Parameters.MaxLength)
}

func TestHTTPTranslator_TruncatesInput(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"generated_text":"SELECT 1"}]`))
	}))
	defer server.Close()

	tr, err := New(Config{Endpoint: server.URL, InputMaxLength: 5, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	_, err = tr.Translate(context.Background(), strings.Repeat("x", 50))
	require.NoError(t, err)
	assert.Equal(t, "translate English to SQL: xxxxx </s>", got.Inputs)
}

func TestHTTPTranslator_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"generated_text":"SELECT 1"}]`))
	}))
	defer server.Close()

	tr, err := NewHTTPTranslator(Config{Endpoint: server.URL, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	skeleton, err := tr.Translate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", skeleton)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPTranslator_DecodesTextPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(`[{"generated_text":"<pad> SELECT COUNT(*) FROM t</s>"}]`))
	}))
	defer server.Close()

	tr, err := NewHTTPTranslator(Config{Endpoint: server.URL, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	skeleton, err := tr.Translate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM t", skeleton)
}

func TestHTTPTranslator_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr, err := NewHTTPTranslator(Config{Endpoint: server.URL, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	_, err = tr.Translate(context.Background(), "q")
	require.Error(t, err)

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrorTypeAuth, tErr.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPTranslator_EmptyGeneration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	tr, err := NewHTTPTranslator(Config{Endpoint: server.URL, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	_, err = tr.Translate(context.Background(), "q")
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrorTypeOutput, tErr.Type)
}

func TestOpenAITranslator_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sql-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"` + "```sql\\nSELECT <ARG-AGE><0>\\n```" + `"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer server.Close()

	tr, err := New(Config{Provider: ProviderOpenAI, Endpoint: server.URL, Model: "sql-model", APIKey: "k", Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	skeleton, err := tr.Translate(context.Background(), "patients older than <ARG-AGE><0>")
	require.NoError(t, err)
	assert.Equal(t, "SELECT <ARG-AGE><0>", skeleton)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Provider: "bard"}, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = New(Config{Provider: ProviderHTTP}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderOpenAI}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderAnthropic, Model: "m"}, zap.NewNop())
	assert.Error(t, err)

	tr, err := New(Config{Provider: ProviderAnthropic, Model: "m", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &AnthropicTranslator{}, tr)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{errors.New("status 401 Unauthorized"), ErrorTypeAuth, false},
		{errors.New("model gpt-9 does not exist"), ErrorTypeModel, false},
		{errors.New("status 404"), ErrorTypeEndpoint, false},
		{errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{errors.New("status 429"), ErrorTypeUnknown, true},
		{errors.New("status 503"), ErrorTypeEndpoint, true},
		{errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := ClassifyError("http", tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(got))
			assert.Equal(t, tt.retryable, retry.IsRetryable(got))
		})
	}

	assert.Nil(t, ClassifyError("http", nil))
}

func TestMockTranslator(t *testing.T) {
	m := NewMockTranslator("SELECT 1")
	got, err := m.Translate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
	assert.Equal(t, []string{"q"}, m.Questions)
}
