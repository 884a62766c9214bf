package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/chatbot-proxy/internal/assistant"
	"github.com/wolfman30/chatbot-proxy/internal/bridge"
	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	appconfig "github.com/wolfman30/chatbot-proxy/internal/config"
	"github.com/wolfman30/chatbot-proxy/internal/observability/metrics"
	"github.com/wolfman30/chatbot-proxy/internal/scenario"
	"github.com/wolfman30/chatbot-proxy/internal/session"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// ErrStartup means the process must not start serving.
var ErrStartup = errors.New("bootstrap: startup failure")

// Bridge bundles the wired conversation bridge.
type Bridge struct {
	Controller *bridge.Controller
	Sessions   *session.Cache
	Bots       *ccaas.BotDirectory
	Metrics    *metrics.BridgeMetrics
}

// BuildBridge wires clients, session cache and controller from config and
// resolves the bot identities. A failed resolution wraps ErrStartup.
func BuildBridge(ctx context.Context, cfg *appconfig.Config, store session.Store, reg prometheus.Registerer, logger *logging.Logger) (*Bridge, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("bootstrap: session store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var bridgeMetrics *metrics.BridgeMetrics
	if cfg.MetricsEnabled {
		bridgeMetrics = metrics.NewBridgeMetrics(reg)
	}

	channel, err := ccaas.New(ccaas.Config{
		BaseURL:         cfg.CCaaSBaseURL,
		Authorization:   cfg.CCaaSAuthorization,
		DebugRouting:    cfg.DebugRouting,
		DebugWebhookURL: cfg.DebugWebhookURL,
		Logger:          logger.Logger,
		UserAgent:       cfg.AppName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	aiClient, err := assistant.New(assistant.Config{
		BaseURL:     cfg.AssistantBaseURL,
		AssistantID: cfg.AssistantID,
		APIKey:      cfg.AssistantAPIKey,
		Version:     cfg.AssistantAPIVersion,
		Timeout:     cfg.AssistantTimeout,
		Logger:      logger.Logger,
		UserAgent:   cfg.AppName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}

	bots := ccaas.NewBotDirectory(cfg.BotNameLiveChat, cfg.BotNameWhatsApp)
	if err := bots.Resolve(ctx, channel); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	for ch, id := range bots.Resolved() {
		logger.Info("bot identity resolved", "channel", string(ch), "bot_name", bots.DisplayName(ch), "bot_id", id)
	}
	if cfg.DebugRouting {
		logger.Warn("debug routing enabled, outbound calls go to the inspection webhook", "url", cfg.DebugWebhookURL)
	}

	cache := session.NewCache(store, cfg.SessionTimeout, logger)
	sessions := assistant.NewSessions(aiClient, cache, logger)
	controller := bridge.NewController(bridge.ControllerConfig{
		Sessions:  cache,
		Assistant: sessions,
		Orchestrator: scenario.New(scenario.Config{
			AppName:       cfg.AppName,
			Keyword:       cfg.SharedKeyword,
			LoopTestToken: cfg.LoopTestToken,
			RoutingTag:    cfg.RoutingTag,
		}),
		Deliverer: bridge.NewDeliverer(channel, sessions,
			bridge.WithTagDelay(cfg.TagDelay),
			bridge.WithMetrics(bridgeMetrics),
		),
		Agents:       bots,
		Metrics:      bridgeMetrics,
		Logger:       logger,
		EventTimeout: cfg.EventTimeout,
	})

	return &Bridge{
		Controller: controller,
		Sessions:   cache,
		Bots:       bots,
		Metrics:    bridgeMetrics,
	}, nil
}
