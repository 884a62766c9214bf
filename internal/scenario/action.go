// Package scenario turns one inbound event and one assistant reply into an
// ordered queue of outbound actions.
package scenario

import (
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
)

// Action is one step of a reply scenario: Send, Pause, Route or Terminate.
type Action interface {
	Name() string
}

// Send posts one message on the conversation.
type Send struct {
	Message ccaas.OutboundMessage
}

// Pause waits before the next action.
type Pause struct {
	Duration time.Duration
}

// Route tags the conversation in order, then hands it to the agent queue.
type Route struct {
	Tags []string
}

// Terminate ends processing. A non-empty SessionID asks for that assistant
// session to be deleted.
type Terminate struct {
	SessionID string
}

func (Send) Name() string      { return "send" }
func (Pause) Name() string     { return "pause" }
func (Route) Name() string     { return "route" }
func (Terminate) Name() string { return "terminate" }

// Queue is executed strictly in order.
type Queue []Action

// Sends counts the Send actions in the queue.
func (q Queue) Sends() int {
	n := 0
	for _, a := range q {
		if _, ok := a.(Send); ok {
			n++
		}
	}
	return n
}

// Names lists the action names, mostly for logging.
func (q Queue) Names() []string {
	names := make([]string, 0, len(q))
	for _, a := range q {
		names = append(names, a.Name())
	}
	return names
}
