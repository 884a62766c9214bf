// Package bridge connects inbound Conversations API events to the assistant
// and delivers the resulting reply scenario.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/assistant"
	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/flow"
	"github.com/wolfman30/chatbot-proxy/internal/observability/metrics"
	"github.com/wolfman30/chatbot-proxy/internal/scenario"
	"github.com/wolfman30/chatbot-proxy/internal/session"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// SessionLookup reads the session attached to a conversation.
type SessionLookup interface {
	Lookup(ctx context.Context, conversationID string) (session.Record, session.Status, error)
}

// Exchanger sends text to the assistant. A nil result without error means no
// session could be established.
type Exchanger interface {
	ExchangeMessage(ctx context.Context, conversationID, originAddress, text string) (*assistant.MessageResult, error)
}

// AgentResolver maps a channel to its x-agent-id.
type AgentResolver interface {
	AgentID(channel string) string
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Sessions     SessionLookup
	Assistant    Exchanger
	Orchestrator *scenario.Orchestrator
	Deliverer    *Deliverer
	Agents       AgentResolver
	Metrics      *metrics.BridgeMetrics
	Logger       *logging.Logger
	// EventTimeout bounds the background processing of one dispatched event.
	EventTimeout time.Duration
}

// Controller handles one inbound event at a time per call; Dispatch runs
// each event on its own goroutine.
type Controller struct {
	sessions     SessionLookup
	assistant    Exchanger
	orchestrator *scenario.Orchestrator
	deliverer    *Deliverer
	agents       AgentResolver
	metrics      *metrics.BridgeMetrics
	logger       *logging.Logger
	eventTimeout time.Duration
	now          func() time.Time

	wg sync.WaitGroup
}

// NewController validates cfg and builds a Controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Sessions == nil {
		panic("bridge: session lookup cannot be nil")
	}
	if cfg.Assistant == nil {
		panic("bridge: assistant cannot be nil")
	}
	if cfg.Orchestrator == nil {
		panic("bridge: orchestrator cannot be nil")
	}
	if cfg.Deliverer == nil {
		panic("bridge: deliverer cannot be nil")
	}
	if cfg.Agents == nil {
		panic("bridge: agent resolver cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.EventTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Controller{
		sessions:     cfg.Sessions,
		assistant:    cfg.Assistant,
		orchestrator: cfg.Orchestrator,
		deliverer:    cfg.Deliverer,
		agents:       cfg.Agents,
		metrics:      cfg.Metrics,
		logger:       logger,
		eventTimeout: timeout,
		now:          time.Now,
	}
}

// HandleEvent processes one inbound message to completion.
func (c *Controller) HandleEvent(ctx context.Context, in ccaas.InboundMessage) error {
	if in.ConversationID == "" {
		return errors.New("bridge: conversation id required")
	}
	start := c.now()
	logger := c.eventLogger(ctx, in)

	rec, status, err := c.sessions.Lookup(ctx, in.ConversationID)
	if err != nil {
		logger.Warn("session lookup failed, treating conversation as new", "error", err)
		status = session.StatusNotFound
	}
	hasSession := status == session.StatusFound

	cls := c.orchestrator.Classify(in.Content.Text, hasSession)
	c.metrics.ObserveInbound(string(ccaas.ParseChannel(in.Channel)), cls.Intent.String())
	logger.Info("inbound message classified", "intent", cls.Intent.String(), "session", status.String())

	var q scenario.Queue
	switch cls.Intent {
	case scenario.IntentStatus:
		q = c.orchestrator.Status(in, rec)
	case scenario.IntentStop:
		sessionID := ""
		if hasSession {
			sessionID = rec.SessionID
		}
		q = c.orchestrator.Stop(in, sessionID)
	case scenario.IntentEcho:
		q = c.orchestrator.Echo(in, cls.Text)
	default:
		q = c.exchange(ctx, in, cls.Text, logger)
	}

	err = c.deliverer.Deliver(ctx, c.agents.AgentID(in.Channel), in.ConversationID, q, logger)
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	c.metrics.ObserveEvent(outcome, time.Since(start).Seconds())
	if err != nil {
		return err
	}
	logger.Info("inbound message handled", "actions", len(q), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *Controller) exchange(ctx context.Context, in ccaas.InboundMessage, text string, logger *logging.Logger) scenario.Queue {
	start := c.now()
	result, err := c.assistant.ExchangeMessage(ctx, in.ConversationID, in.From, text)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
		logger.Error("assistant exchange failed", "error", err)
		result = nil
	case result == nil:
		status = "no_session"
		logger.Warn("assistant session unavailable")
	default:
		logger.Info("assistant replied", "items", len(result.Items), "intents", result.Intents)
	}
	c.metrics.ObserveExchange(status, time.Since(start).Seconds())

	q := c.orchestrator.Translate(in, text, result)
	if scenario.IsDegraded(q) {
		routed := false
		for _, a := range q {
			if _, ok := a.(scenario.Route); ok {
				routed = true
			}
		}
		c.metrics.ObserveDegraded(routed)
		logger.Warn("degraded reply", "routed", routed)
	}
	return q
}

// Dispatch handles in on a background goroutine so the webhook can be
// acknowledged right away. The goroutine keeps ctx values but not its
// cancellation, and is bounded by the event timeout.
func (c *Controller) Dispatch(ctx context.Context, in ccaas.InboundMessage) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		done := c.metrics.EventStarted()
		defer done()

		eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.eventTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				c.eventLogger(eventCtx, in).Error("panic while handling event", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()

		if err := c.HandleEvent(eventCtx, in); err != nil {
			c.eventLogger(eventCtx, in).Error("inbound message not fully handled", "error", err)
		}
	}()
}

// Wait blocks until all dispatched events finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) eventLogger(ctx context.Context, in ccaas.InboundMessage) *logging.Logger {
	args := []any{"conversation_id", in.ConversationID, "channel", in.Channel}
	if id, ok := flow.IDFromContext(ctx); ok {
		args = append(args, "flow_id", id)
	}
	return c.logger.With(args...)
}
