package coding

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/jsonutil"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/retry"
)

// HTTPConfig configures a remote coding service.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Retry   *retry.Config
}

type lookupRequest struct {
	Text       string     `json:"Text"`
	Vocabulary Vocabulary `json:"Vocabulary"`
}

// lookupResponse follows the InferICD10CM / InferRxNorm shape: each entity carries
// its ranked concepts.
type lookupResponse struct {
	Entities []struct {
		Text     string    `json:"Text"`
		Concepts []concept `json:"Concepts"`
	} `json:"Entities"`
}

type concept struct {
	Code        json.RawMessage `json:"Code"`
	Description string          `json:"Description"`
	Score       float64         `json:"Score"`
}

// HTTPClient calls a coding service over HTTP. Transient failures are retried with backoff;
// anything else is returned to the caller.
type HTTPClient struct {
	client   *resty.Client
	endpoint string
	retryCfg *retry.Config
	logger   *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service at cfg.URL.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPClient{
		client:   client,
		endpoint: cfg.URL,
		retryCfg: cfg.Retry,
		logger:   logger.Named("coding-http"),
	}
}

// Lookup returns the concepts of the first entity the service found in text, best first.
func (c *HTTPClient) Lookup(ctx context.Context, vocabulary Vocabulary, text string) ([]models.Option, error) {
	response, err := retry.DoIfRetryableWithResult(ctx, c.retryCfg, func() (*lookupResponse, error) {
		return c.post(ctx, vocabulary, text)
	})
	if err != nil {
		c.logger.Warn("Coding lookup failed",
			zap.String("vocabulary", string(vocabulary)),
			zap.Error(err))
		return nil, err
	}

	if len(response.Entities) == 0 {
		return nil, nil
	}
	concepts := response.Entities[0].Concepts
	options := make([]models.Option, 0, len(concepts))
	for _, c := range concepts {
		code := jsonutil.CodeString(c.Code)
		if code == "" {
			continue
		}
		options = append(options, models.Option{Code: code, Description: c.Description, Score: c.Score})
	}
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Score > options[j].Score
	})
	return options, nil
}

func (c *HTTPClient) post(ctx context.Context, vocabulary Vocabulary, text string) (*lookupResponse, error) {
	var response lookupResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(lookupRequest{Text: text, Vocabulary: vocabulary}).
		SetResult(&response).
		ForceContentType("application/json").
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call coding service: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("coding service error: status %d", resp.StatusCode())
	}
	return &response, nil
}
