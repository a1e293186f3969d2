package ner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// HTTPConfig configures a remote medical NER service.
type HTTPConfig struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

type detectRequest struct {
	Text string `json:"Text"`
}

type detectResponse struct {
	Entities []models.Detection `json:"Entities"`
}

// HTTPDetector calls a remote NER service that answers in the DetectEntities shape:
// {"Entities": [{BeginOffset, EndOffset, Text, Category, Type, Score, Attributes}]}.
type HTTPDetector struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
}

var _ Detector = (*HTTPDetector)(nil)

// NewHTTPDetector creates a detector for the service at cfg.URL.
func NewHTTPDetector(cfg HTTPConfig, logger *zap.Logger) *HTTPDetector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPDetector{
		client:   client,
		endpoint: cfg.URL,
		logger:   logger.Named("ner-http"),
	}
}

// Detect posts the text and returns the service's detections unfiltered.
func (d *HTTPDetector) Detect(ctx context.Context, text string) ([]models.Detection, error) {
	var response detectResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(detectRequest{Text: text}).
		SetResult(&response).
		ForceContentType("application/json").
		Post(d.endpoint)
	if err != nil {
		d.logger.Error("NER service call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call NER service: %w", err)
	}

	if resp.IsError() {
		d.logger.Error("NER service returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 200)),
		)
		return nil, fmt.Errorf("NER service error: status %d", resp.StatusCode())
	}

	d.logger.Debug("NER service responded",
		zap.Int("detections", len(response.Entities)),
		zap.Duration("elapsed", resp.Time()),
	)

	return response.Entities, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
