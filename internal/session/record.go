package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when no record exists for a conversation.
	ErrNotFound = errors.New("session: record not found")
	// ErrSessionInvariant signals that a record vanished between lookup and use.
	ErrSessionInvariant = errors.New("session: record vanished before use")
)

// Record maps a channel conversation to an AI session.
type Record struct {
	ConversationID string    `json:"conversationId"`
	SessionID      string    `json:"sessionId"`
	OriginAddress  string    `json:"originAddress"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Valid reports whether the record is still usable at now.
func (r Record) Valid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Status describes the outcome of a cache lookup.
type Status int

const (
	// StatusNotFound means no record existed anywhere.
	StatusNotFound Status = iota
	// StatusFound means a valid record was returned.
	StatusFound
	// StatusExpired means a record existed but had expired and was deleted.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// Store is durable per-conversation persistence. Implementations must make
// Put and Touch atomic per key.
type Store interface {
	Get(ctx context.Context, conversationID string) (Record, error)
	// Put creates or overwrites the record.
	Put(ctx context.Context, rec Record) error
	// Touch sets a new expiry on an existing record and returns it, or
	// ErrNotFound when the record does not exist.
	Touch(ctx context.Context, conversationID string, expiresAt time.Time) (Record, error)
	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, conversationID string) error
}
