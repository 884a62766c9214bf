package ccaas

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoBots means none of the configured bot display names were found.
var ErrNoBots = errors.New("ccaas: no configured bot is registered")

type botLister interface {
	ListBots(ctx context.Context) ([]Bot, error)
}

// BotDirectory resolves the x-agent-id to use per channel. It is populated
// once at startup from the account's bot list.
type BotDirectory struct {
	names map[Channel]string

	mu  sync.RWMutex
	ids map[Channel]string
}

// NewBotDirectory maps channels to the bot display names configured for them.
func NewBotDirectory(liveChatName, whatsAppName string) *BotDirectory {
	names := make(map[Channel]string, 2)
	if liveChatName != "" {
		names[ChannelLiveChat] = liveChatName
	}
	if whatsAppName != "" {
		names[ChannelWhatsApp] = whatsAppName
	}
	return &BotDirectory{names: names, ids: make(map[Channel]string)}
}

// Resolve fetches the bot list and records the id of every configured bot.
// It fails with ErrNoBots when no configured name matched.
func (d *BotDirectory) Resolve(ctx context.Context, lister botLister) error {
	bots, err := lister.ListBots(ctx)
	if err != nil {
		return fmt.Errorf("ccaas: resolve bots: %w", err)
	}
	resolved := make(map[Channel]string, len(d.names))
	for _, bot := range bots {
		for channel, name := range d.names {
			if bot.DisplayName == name {
				resolved[channel] = bot.ID
			}
		}
	}
	if len(resolved) == 0 {
		return ErrNoBots
	}
	d.mu.Lock()
	d.ids = resolved
	d.mu.Unlock()
	return nil
}

// AgentID returns the bot id for the raw channel name, or "" when unknown.
func (d *BotDirectory) AgentID(channel string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ids[ParseChannel(channel)]
}

// Resolved returns a copy of the channel to bot id mapping.
func (d *BotDirectory) Resolved() map[Channel]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[Channel]string, len(d.ids))
	for k, v := range d.ids {
		out[k] = v
	}
	return out
}

// DisplayName returns the configured bot name for channel.
func (d *BotDirectory) DisplayName(channel Channel) string {
	return d.names[channel]
}
