package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

// ChatRequest is the body posted to the workflow webhook for one turn.
type ChatRequest struct {
	UserQuery  string `json:"userQuery"`
	SessionID  string `json:"sessionId"`
	IsTestChat bool   `json:"isTestChat"`
	Model      string `json:"model"`
	Image      string `json:"image,omitempty"`
}

type chatResponse struct {
	Success  *bool     `json:"success"`
	Messages []Message `json:"messages"`
	Error    string    `json:"error,omitempty"`
}

// WebhookClient calls the external chat workflow.
type WebhookClient struct {
	BaseURL      string
	APIKeyHeader string
	APIKey       string
	Client       *http.Client
	log          *logger.Logger
}

func NewWebhookClient(baseURL, apiKeyHeader, apiKey string, timeout time.Duration, log *logger.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WebhookClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKeyHeader: apiKeyHeader,
		APIKey:       apiKey,
		Client:       &http.Client{Timeout: timeout},
		log:          log.With("component", "WebhookClient"),
	}
}

// Chat runs a non-streaming turn and returns the messages the workflow produced.
func (c *WebhookClient) Chat(ctx context.Context, req ChatRequest) ([]Message, error) {
	const op = "webhook.chat"

	httpReq, err := c.newRequest(ctx, c.BaseURL, req)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(op, resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.Protocol(op, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Success != nil && !*decoded.Success {
		msg := decoded.Error
		if msg == "" {
			msg = "workflow reported failure"
		}
		return nil, apperr.Protocol(op, errors.New(msg))
	}
	if decoded.Messages == nil {
		return nil, apperr.Protocol(op, errors.New("response has no messages"))
	}
	for i, m := range decoded.Messages {
		if err := m.Validate(); err != nil {
			return nil, apperr.Protocol(op, fmt.Errorf("message %d: %w", i, err))
		}
	}
	return decoded.Messages, nil
}

// Stream opens a streamed turn. On a non-200 status or transport failure no decoder is
// returned. The caller owns the decoder and must drain or Close it.
func (c *WebhookClient) Stream(ctx context.Context, req ChatRequest) (*Decoder, error) {
	const op = "webhook.stream"

	httpReq, err := c.newRequest(ctx, c.BaseURL+"/stream", req)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// no global timeout for streams; ctx controls it
	streamClient := *c.Client
	streamClient.Timeout = 0

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError(op, resp)
	}
	return NewDecoder(resp.Body, c.log), nil
}

func (c *WebhookClient) newRequest(ctx context.Context, url string, body ChatRequest) (*http.Request, error) {
	if c.Client == nil {
		return nil, errors.New("webhook: http client is nil")
	}
	if c.BaseURL == "" {
		return nil, errors.New("webhook: url is required")
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	c.log.Debug("calling workflow", "url", url, "session_id", body.SessionID, "with_image", body.Image != "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKeyHeader != "" && c.APIKey != "" {
		req.Header.Set(c.APIKeyHeader, c.APIKey)
	}
	return req, nil
}

func (c *WebhookClient) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 100 {
		snippet = snippet[:100]
	}
	c.log.Warn("workflow returned non-200", "status", resp.StatusCode, "snippet", snippet)
	return apperr.Protocol(op, fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
}
