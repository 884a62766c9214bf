package ccaas

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

const defaultUserAgent = "chatbot-proxy/0.1"

// Config controls how the Conversations API client behaves.
type Config struct {
	BaseURL string
	// Authorization is sent verbatim as the Authorization header.
	Authorization string
	// DebugRouting sends messages, tags and routes to DebugWebhookURL
	// without credentials instead of the real API.
	DebugRouting    bool
	DebugWebhookURL string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
	UserAgent       string
}

// Client wraps the CCaaS Conversations endpoints used by an external bot.
type Client struct {
	baseURL       string
	authorization string
	debugRouting  bool
	debugURL      string
	httpClient    *http.Client
	logger        *slog.Logger
	userAgent     string
	tracer        trace.Tracer
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ccaas: base URL is required")
	}
	debugURL := strings.TrimRight(strings.TrimSpace(cfg.DebugWebhookURL), "/")
	if cfg.DebugRouting && debugURL == "" {
		return nil, errors.New("ccaas: debug routing requires a debug webhook URL")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
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
		baseURL:       baseURL,
		authorization: cfg.Authorization,
		debugRouting:  cfg.DebugRouting,
		debugURL:      debugURL,
		httpClient:    httpClient,
		logger:        logger,
		userAgent:     userAgent,
		tracer:        otel.Tracer("chatbotproxy.internal.ccaas"),
	}, nil
}

// Bot is an external bot registered in the Conversations account.
type Bot struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// ListBots returns the bots visible to the configured credential.
// It always targets the real API, even with debug routing enabled.
func (c *Client) ListBots(ctx context.Context) ([]Bot, error) {
	ctx, span := c.tracer.Start(ctx, "ccaas.list_bots")
	defer span.End()

	data, err := c.invoke(ctx, http.MethodGet, c.baseURL+"/ccaas/1/bots", "", nil, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var resp struct {
		Bots []Bot `json:"bots"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("ccaas: decode bots: %w", err)
	}
	return resp.Bots, nil
}

// SendMessage posts one outbound message on the message's conversation.
func (c *Client) SendMessage(ctx context.Context, agentID string, msg OutboundMessage) error {
	if strings.TrimSpace(msg.ConversationID) == "" {
		return errors.New("ccaas: conversation id required")
	}
	ctx, span := c.tracer.Start(ctx, "ccaas.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("chatbotproxy.conversation_id", msg.ConversationID),
		attribute.String("chatbotproxy.content_type", string(msg.ContentType)),
	)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ccaas: marshal message: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPost, c.conversationURL(msg.ConversationID, "messages"), agentID, body, !c.debugRouting)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// AddTag assigns tagName to the conversation.
func (c *Client) AddTag(ctx context.Context, agentID, conversationID, tagName string) error {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(tagName) == "" {
		return errors.New("ccaas: conversation id and tag name required")
	}
	ctx, span := c.tracer.Start(ctx, "ccaas.add_tag")
	defer span.End()

	body, err := json.Marshal(map[string]string{"tagName": tagName})
	if err != nil {
		return fmt.Errorf("ccaas: marshal tag: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPost, c.conversationURL(conversationID, "tags"), agentID, body, !c.debugRouting)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Route hands the conversation over to the human agent queue.
func (c *Client) Route(ctx context.Context, agentID, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("ccaas: conversation id required")
	}
	ctx, span := c.tracer.Start(ctx, "ccaas.route")
	defer span.End()

	_, err := c.invoke(ctx, http.MethodPost, c.conversationURL(conversationID, "route"), agentID, []byte("{}"), !c.debugRouting)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Client) conversationURL(conversationID, resource string) string {
	path := "/conversations/" + url.PathEscape(conversationID) + "/" + resource
	if c.debugRouting {
		return c.debugURL + path
	}
	return c.baseURL + "/ccaas/1" + path
}

func (c *Client) invoke(ctx context.Context, method, fullURL, agentID string, body []byte, withAuth bool) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("ccaas: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if withAuth && c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	if agentID != "" {
		req.Header.Set("x-agent-id", agentID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("ccaas request", "method", method, "url", fullURL, "debug_routing", c.debugRouting)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ccaas: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ccaas: read response: %w", err)
	}
	c.logger.Debug("ccaas response", "method", method, "url", fullURL, "status", resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

// APIError is a non-2xx response from the Conversations API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("ccaas: http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("ccaas: http status %d", e.StatusCode)
}
