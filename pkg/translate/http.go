package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/retry"
)

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxLength         int     `json:"max_length"`
	NumBeams          int     `json:"num_beams"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	LengthPenalty     float64 `json:"length_penalty"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// HTTPTranslator calls a hosted seq2seq model through a text-generation endpoint.
type HTTPTranslator struct {
	client          *resty.Client
	endpoint        string
	inputMaxLength  int
	outputMaxLength int
	retryCfg        *retry.Config
	logger          *zap.Logger
}

var _ Translator = (*HTTPTranslator)(nil)

// NewHTTPTranslator creates a translator for the model served at cfg.Endpoint.
func NewHTTPTranslator(cfg Config, logger *zap.Logger) (*HTTPTranslator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	client := resty.New().
		SetTimeout(60*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPTranslator{
		client:          client,
		endpoint:        cfg.Endpoint,
		inputMaxLength:  cfg.InputMaxLength,
		outputMaxLength: cfg.OutputMaxLength,
		retryCfg:        cfg.Retry,
		logger:          logger.Named("translate-http"),
	}, nil
}

// Translate returns the cleaned skeleton generated for question.
func (t *HTTPTranslator) Translate(ctx context.Context, question string) (string, error) {
	input := EncodeInput(truncate(question, t.inputMaxLength))
	start := time.Now()

	output, err := retry.DoIfRetryableWithResult(ctx, t.retryCfg, func() (string, error) {
		return t.generate(ctx, input)
	})
	if err != nil {
		t.logger.Error("Translation failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	t.logger.Debug("Translation completed",
		zap.Int("output_len", len(output)),
		zap.Duration("elapsed", time.Since(start)))
	return CleanOutput(output), nil
}

func (t *HTTPTranslator) generate(ctx context.Context, input string) (string, error) {
	var result []generateResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Inputs: input,
			Parameters: generateParameters{
				MaxLength:         t.outputMaxLength,
				NumBeams:          2,
				RepetitionPenalty: 2.5,
				LengthPenalty:     1.0,
			},
		}).
		SetResult(&result).
		ForceContentType("application/json").
		Post(t.endpoint)
	if err != nil {
		return "", ClassifyError(ProviderHTTP, err)
	}
	if resp.IsError() {
		return "", ClassifyError(ProviderHTTP, fmt.Errorf("model service error: status %d", resp.StatusCode()))
	}
	if len(result) == 0 {
		return "", NewError(ErrorTypeOutput, "empty generation", false, nil)
	}
	return result[0].GeneratedText, nil
}
