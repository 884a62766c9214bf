package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultVersion   = "2021-11-27"
	defaultUserAgent = "chatbot-proxy/0.1"
)

// Config controls how the assistant client behaves.
type Config struct {
	BaseURL     string
	AssistantID string
	APIKey      string
	Version     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
	UserAgent   string
}

// Client wraps the assistant v2 session and message endpoints.
type Client struct {
	baseURL     string
	assistantID string
	apiKey      string
	version     string
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	tracer      trace.Tracer
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("assistant: base URL is required")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, errors.New("assistant: assistant id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = defaultVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:     baseURL,
		assistantID: cfg.AssistantID,
		apiKey:      cfg.APIKey,
		version:     version,
		httpClient:  httpClient,
		logger:      logger,
		userAgent:   userAgent,
		tracer:      otel.Tracer("chatbotproxy.internal.assistant"),
	}, nil
}

// CreateSession allocates a new assistant session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.create_session")
	defer span.End()

	data, err := c.invoke(ctx, http.MethodPost, c.sessionsPath(), []byte("{}"))
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("assistant: decode session response: %w", err)
	}
	if resp.SessionID == "" {
		return "", errors.New("assistant: empty session id in response")
	}
	span.SetAttributes(attribute.String("chatbotproxy.assistant.session_id", resp.SessionID))
	return resp.SessionID, nil
}

// DeleteSession ends an assistant session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("assistant: session id required")
	}
	ctx, span := c.tracer.Start(ctx, "assistant.delete_session")
	defer span.End()

	if _, err := c.invoke(ctx, http.MethodDelete, c.sessionsPath()+"/"+url.PathEscape(sessionID), nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Message sends user text on an existing session.
func (c *Client) Message(ctx context.Context, sessionID, text string) (*MessageResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("assistant: session id required")
	}
	ctx, span := c.tracer.Start(ctx, "assistant.message")
	defer span.End()

	body, err := json.Marshal(map[string]any{
		"input": map[string]string{
			"message_type": "text",
			"text":         text,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: marshal message: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, c.sessionsPath()+"/"+url.PathEscape(sessionID)+"/message", body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result, err := DecodeMessageResult(sessionID, data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("chatbotproxy.assistant.items", len(result.Items)))
	return result, nil
}

func (c *Client) sessionsPath() string {
	return "/v2/assistants/" + url.PathEscape(c.assistantID) + "/sessions"
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	q := url.Values{}
	q.Set("version", c.version)
	fullURL := c.baseURL + path + "?" + q.Encode()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("assistant: build request: %w", err)
	}
	if c.apiKey != "" {
		req.SetBasicAuth("apikey", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Watson-Learning-Opt-Out", "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("assistant: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assistant: read response: %w", err)
	}
	c.logger.Debug("assistant response", "method", method, "path", path, "status", resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, decodeAPIError(resp.StatusCode, data)
}

// APIError is a non-2xx response from the assistant backend.
type APIError struct {
	StatusCode int    `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant: %s (status=%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("assistant: http status %d", e.StatusCode)
}

// IsSessionNotFound reports whether err means the backend no longer knows the session.
func IsSessionNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	parsed.StatusCode = status
	return &parsed
}
