// Package dialog provides a client for the remote dialog-management service.
// The service owns all conversation state on its side; we only carry the
// identifiers and the last reply between turns.
package dialog

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

// Conversation is one dialog thread as the service reports it. The zero value
// submitted to Converse asks the service to allocate a fresh thread.
type Conversation struct {
	ClientID       string   `json:"client_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Input          string   `json:"input,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	Response       []string `json:"response,omitempty"`
}

// NameValue is a single profile variable for the dialog engine.
type NameValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ProfileUpdate injects side-channel facts into the dialog engine's profile
// ahead of the next Converse call.
type ProfileUpdate struct {
	ClientID   string      `json:"client_id"`
	NameValues []NameValue `json:"name_values"`
}

// Client is a dialog service API client.
type Client struct {
	baseURL    string
	dialogID   string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a dialog service client.
func NewClient(baseURL, dialogID string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:  baseURL,
		dialogID: dialogID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DialogID reports the dialog handle this client talks to.
func (c *Client) DialogID() string {
	return c.dialogID
}

// Converse submits the conversation and returns the service's updated view of
// it. An empty Conversation allocates a new thread.
func (c *Client) Converse(ctx context.Context, conv *Conversation) (*Conversation, error) {
	if conv == nil {
		conv = &Conversation{}
	}

	endpoint := fmt.Sprintf("%s/v1/dialogs/%s/conversation", c.baseURL, c.dialogID)

	var out Conversation
	if err := c.postJSON(ctx, endpoint, conv, &out); err != nil {
		return nil, fmt.Errorf("dialog: converse failed: %w", err)
	}

	c.logger.Debug("dialog converse completed",
		"client_id", out.ClientID,
		"conversation_id", out.ConversationID,
		"lines", len(out.Response),
	)
	return &out, nil
}

// UpdateProfile pushes profile variables for a client. Ordering matters to the
// engine: the variables must land before the Converse call that reads them.
func (c *Client) UpdateProfile(ctx context.Context, profile ProfileUpdate) error {
	if profile.ClientID == "" {
		return fmt.Errorf("dialog: profile update requires client_id")
	}

	endpoint := fmt.Sprintf("%s/v1/dialogs/%s/profile", c.baseURL, c.dialogID)

	body, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("dialog: failed to encode profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dialog: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dialog: profile update failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dialog: profile update returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, 256))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
