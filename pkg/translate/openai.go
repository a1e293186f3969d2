package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/retry"
)

// OpenAITranslator prompts an OpenAI-compatible chat endpoint for the skeleton.
type OpenAITranslator struct {
	client          *openai.Client
	model           string
	inputMaxLength  int
	outputMaxLength int
	retryCfg        *retry.Config
	logger          *zap.Logger
}

var _ Translator = (*OpenAITranslator)(nil)

// NewOpenAITranslator creates a chat translator. Endpoint may be empty for the public API.
func NewOpenAITranslator(cfg Config, logger *zap.Logger) (*OpenAITranslator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &OpenAITranslator{
		client:          openai.NewClientWithConfig(clientConfig),
		model:           cfg.Model,
		inputMaxLength:  cfg.InputMaxLength,
		outputMaxLength: cfg.OutputMaxLength,
		retryCfg:        cfg.Retry,
		logger:          logger.Named("translate-openai"),
	}, nil
}

// Translate returns the skeleton the chat model produced for question.
func (t *OpenAITranslator) Translate(ctx context.Context, question string) (string, error) {
	question = truncate(question, t.inputMaxLength)
	start := time.Now()

	resp, err := retry.DoIfRetryableWithResult(ctx, t.retryCfg, func() (openai.ChatCompletionResponse, error) {
		resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: t.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: question},
			},
			MaxTokens:   t.outputMaxLength,
			Temperature: 0,
		})
		if err != nil {
			return resp, ClassifyError(ProviderOpenAI, err)
		}
		return resp, nil
	})
	if err != nil {
		t.logger.Error("Translation failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeOutput, "no choices in response", false, nil)
	}

	t.logger.Info("Translation completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return StripCodeFence(resp.Choices[0].Message.Content), nil
}
