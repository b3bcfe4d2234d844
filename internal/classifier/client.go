// Package classifier provides a client for the remote intent classifier.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cinechat/cinechat/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Class is one ranked intent candidate.
type Class struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// Result holds the ranked classes for one utterance. The service normally
// returns at least two entries, but callers must not assume that.
type Result struct {
	Text     string  `json:"text,omitempty"`
	TopClass string  `json:"top_class,omitempty"`
	Classes  []Class `json:"classes"`
}

// Client is an intent classifier API client.
type Client struct {
	baseURL      string
	classifierID string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewClient creates a classifier client.
func NewClient(baseURL, classifierID string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:      baseURL,
		classifierID: classifierID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// ClassifierID reports the classifier handle this client talks to.
func (c *Client) ClassifierID() string {
	return c.classifierID
}

// Classify ranks intents for the given text.
func (c *Client) Classify(ctx context.Context, text string) (*Result, error) {
	endpoint := fmt.Sprintf("%s/v1/classifiers/%s/classify", c.baseURL, c.classifierID)

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("classifier: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("classifier: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier: classify failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("classifier: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classifier: unexpected status %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("classifier: failed to decode response: %w", err)
	}

	c.logger.Debug("classified utterance",
		"top_class", result.TopClass,
		"candidates", len(result.Classes),
	)
	return &result, nil
}
