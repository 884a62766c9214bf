package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/observability/metrics"
	"github.com/wolfman30/chatbot-proxy/internal/scenario"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// ErrChannelDelivery marks a rejected or failed Conversations API call. The
// rest of the queue is not attempted.
var ErrChannelDelivery = errors.New("bridge: channel delivery failed")

// DefaultTagDelay is the pacing the Conversations API needs after a tag call.
const DefaultTagDelay = 2 * time.Second

// Channel is the outbound side of the Conversations API. *ccaas.Client implements it.
type Channel interface {
	SendMessage(ctx context.Context, agentID string, msg ccaas.OutboundMessage) error
	AddTag(ctx context.Context, agentID, conversationID, tagName string) error
	Route(ctx context.Context, agentID, conversationID string) error
}

// SessionDeleter ends assistant sessions. *assistant.Sessions implements it.
type SessionDeleter interface {
	DeleteSession(ctx context.Context, conversationID, sessionID string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Deliverer executes reply scenarios against the Conversations API.
type Deliverer struct {
	channel  Channel
	sessions SessionDeleter
	tagDelay time.Duration
	sleep    SleepFunc
	metrics  *metrics.BridgeMetrics
}

// DelivererOption customizes a Deliverer.
type DelivererOption func(*Deliverer)

// WithTagDelay overrides the wait after each tag call.
func WithTagDelay(d time.Duration) DelivererOption {
	return func(dl *Deliverer) {
		if d >= 0 {
			dl.tagDelay = d
		}
	}
}

// WithSleep replaces the timer used for pauses and tag pacing.
func WithSleep(fn SleepFunc) DelivererOption {
	return func(dl *Deliverer) {
		if fn != nil {
			dl.sleep = fn
		}
	}
}

// WithMetrics records outbound call outcomes.
func WithMetrics(m *metrics.BridgeMetrics) DelivererOption {
	return func(dl *Deliverer) {
		dl.metrics = m
	}
}

// NewDeliverer builds a Deliverer.
func NewDeliverer(channel Channel, sessions SessionDeleter, opts ...DelivererOption) *Deliverer {
	if channel == nil {
		panic("bridge: channel cannot be nil")
	}
	if sessions == nil {
		panic("bridge: session deleter cannot be nil")
	}
	d := &Deliverer{
		channel:  channel,
		sessions: sessions,
		tagDelay: DefaultTagDelay,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver runs q in order and stops at the first failure or at Terminate.
// A Terminate queued after a failed step still runs: a requested session
// end does not depend on the customer seeing the confirmation.
func (d *Deliverer) Deliver(ctx context.Context, agentID, conversationID string, q scenario.Queue, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	logger.Debug("reply scenario prepared", "actions", q.Names())

	for i, action := range q {
		var err error
		switch a := action.(type) {
		case scenario.Send:
			err = d.channel.SendMessage(ctx, agentID, a.Message)
			d.observe("message", err)
			if err != nil {
				logger.Error("failed to post message", "step", i+1, "error", err)
				err = fmt.Errorf("%w: message %d: %w", ErrChannelDelivery, i+1, err)
			}
		case scenario.Pause:
			logger.Debug("pausing", "step", i+1, "duration_ms", a.Duration.Milliseconds())
			err = d.sleep(ctx, a.Duration)
		case scenario.Route:
			err = d.route(ctx, agentID, conversationID, a.Tags, logger)
		case scenario.Terminate:
			return d.terminate(ctx, conversationID, a.SessionID, logger)
		default:
			logger.Warn("skipping unknown action", "step", i+1, "action", action.Name())
		}
		if err != nil {
			d.terminatePending(ctx, conversationID, q[i+1:], logger)
			return err
		}
	}
	logger.Debug("reply scenario finished", "actions", len(q))
	return nil
}

// terminatePending runs the first Terminate left in rest. Its error is only
// logged; the caller reports the failure that aborted the queue.
func (d *Deliverer) terminatePending(ctx context.Context, conversationID string, rest scenario.Queue, logger *logging.Logger) {
	for _, action := range rest {
		t, ok := action.(scenario.Terminate)
		if !ok {
			continue
		}
		if err := d.terminate(context.WithoutCancel(ctx), conversationID, t.SessionID, logger); err != nil {
			logger.Error("failed to terminate session after aborted delivery", "error", err)
		}
		return
	}
}

func (d *Deliverer) route(ctx context.Context, agentID, conversationID string, tags []string, logger *logging.Logger) error {
	for _, tag := range tags {
		err := d.channel.AddTag(ctx, agentID, conversationID, tag)
		d.observe("tag", err)
		if err != nil {
			logger.Error("failed to tag conversation", "tag", tag, "error", err)
			return fmt.Errorf("%w: tag %s: %w", ErrChannelDelivery, tag, err)
		}
		if err := d.sleep(ctx, d.tagDelay); err != nil {
			return err
		}
	}
	err := d.channel.Route(ctx, agentID, conversationID)
	d.observe("route", err)
	if err != nil {
		logger.Error("failed to route conversation", "error", err)
		return fmt.Errorf("%w: route: %w", ErrChannelDelivery, err)
	}
	logger.Info("conversation routed to agent", "tags", tags)
	return nil
}

func (d *Deliverer) terminate(ctx context.Context, conversationID, sessionID string, logger *logging.Logger) error {
	if sessionID == "" {
		logger.Info("scenario terminated without a session")
		return nil
	}
	if err := d.sessions.DeleteSession(ctx, conversationID, sessionID); err != nil {
		return fmt.Errorf("bridge: terminate session: %w", err)
	}
	logger.Info("session terminated on request", "session_id", sessionID)
	return nil
}

func (d *Deliverer) observe(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.ObserveOutbound(kind, status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
