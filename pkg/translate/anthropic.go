package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/retry"
)

// AnthropicTranslator prompts a Claude model for the skeleton.
type AnthropicTranslator struct {
	client          *anthropic.Client
	model           string
	inputMaxLength  int
	outputMaxLength int
	retryCfg        *retry.Config
	logger          *zap.Logger
}

var _ Translator = (*AnthropicTranslator)(nil)

// NewAnthropicTranslator creates a Messages API translator.
func NewAnthropicTranslator(cfg Config, logger *zap.Logger) (*AnthropicTranslator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	return &AnthropicTranslator{
		client:          anthropic.NewClient(cfg.APIKey, opts...),
		model:           cfg.Model,
		inputMaxLength:  cfg.InputMaxLength,
		outputMaxLength: cfg.OutputMaxLength,
		retryCfg:        cfg.Retry,
		logger:          logger.Named("translate-anthropic"),
	}, nil
}

// Translate returns the skeleton the model produced for question.
func (t *AnthropicTranslator) Translate(ctx context.Context, question string) (string, error) {
	question = truncate(question, t.inputMaxLength)
	start := time.Now()

	resp, err := retry.DoIfRetryableWithResult(ctx, t.retryCfg, func() (anthropic.MessagesResponse, error) {
		resp, err := t.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(t.model),
			System:    SystemPrompt,
			MaxTokens: t.outputMaxLength,
			Messages: []anthropic.Message{
				{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
					{Type: "text", Text: &question},
				}},
			},
		})
		if err != nil {
			return resp, ClassifyError(ProviderAnthropic, err)
		}
		return resp, nil
	})
	if err != nil {
		t.logger.Error("Translation failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			t.logger.Info("Translation completed",
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
				zap.Duration("elapsed", time.Since(start)))
			return StripCodeFence(*block.Text), nil
		}
	}
	return "", NewError(ErrorTypeOutput, "no text in response", false, nil)
}
