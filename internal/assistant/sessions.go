package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/chatbot-proxy/internal/session"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// ErrBackendUnavailable wraps every failed call to the assistant backend.
var ErrBackendUnavailable = errors.New("assistant: backend unavailable")

// Backend is the remote session API. *Client implements it.
type Backend interface {
	CreateSession(ctx context.Context) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Message(ctx context.Context, sessionID, text string) (*MessageResult, error)
}

// SessionCache is the subset of *session.Cache used to track sessions.
type SessionCache interface {
	Lookup(ctx context.Context, conversationID string) (session.Record, session.Status, error)
	Create(ctx context.Context, conversationID, sessionID, originAddress string) (session.Record, error)
	ExtendExpiry(ctx context.Context, conversationID string) (session.Record, error)
	Terminate(ctx context.Context, conversationID string) error
}

// Sessions ties assistant sessions to channel conversations.
type Sessions struct {
	backend Backend
	cache   SessionCache
	logger  *logging.Logger
}

// NewSessions wires the backend to the session cache.
func NewSessions(backend Backend, cache SessionCache, logger *logging.Logger) *Sessions {
	if backend == nil {
		panic("assistant: backend cannot be nil")
	}
	if cache == nil {
		panic("assistant: session cache cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sessions{backend: backend, cache: cache, logger: logger}
}

// CreateSession allocates a backend session and records it for conversationID.
func (s *Sessions) CreateSession(ctx context.Context, conversationID, originAddress string) (session.Record, error) {
	sessionID, err := s.backend.CreateSession(ctx)
	if err != nil {
		return session.Record{}, fmt.Errorf("%w: create session: %w", ErrBackendUnavailable, err)
	}
	rec, err := s.cache.Create(ctx, conversationID, sessionID, originAddress)
	if err != nil {
		return session.Record{}, err
	}
	if extended, err := s.cache.ExtendExpiry(ctx, conversationID); err != nil {
		s.logger.Error("session vanished right after create", "conversation_id", conversationID, "session_id", sessionID, "error", err)
	} else {
		rec = extended
	}
	s.logger.Info("assistant session created", "conversation_id", conversationID, "session_id", sessionID)
	return rec, nil
}

// DeleteSession ends the backend session for conversationID and forgets it
// locally. An empty sessionID is resolved from the cache. When the backend
// call fails the local record is kept so a retry can find it.
func (s *Sessions) DeleteSession(ctx context.Context, conversationID, sessionID string) error {
	if sessionID == "" {
		rec, status, err := s.cache.Lookup(ctx, conversationID)
		if err != nil {
			return err
		}
		if status != session.StatusFound {
			s.logger.Debug("no session to delete", "conversation_id", conversationID, "status", status.String())
			return nil
		}
		sessionID = rec.SessionID
	}

	if err := s.backend.DeleteSession(ctx, sessionID); err != nil {
		if !IsSessionNotFound(err) {
			s.logger.Error("failed to delete assistant session", "conversation_id", conversationID, "session_id", sessionID, "error", err)
			return fmt.Errorf("%w: delete session: %w", ErrBackendUnavailable, err)
		}
		s.logger.Debug("assistant session already gone", "conversation_id", conversationID, "session_id", sessionID)
	}
	if err := s.cache.Terminate(ctx, conversationID); err != nil {
		return err
	}
	s.logger.Info("assistant session deleted", "conversation_id", conversationID, "session_id", sessionID)
	return nil
}

// ExchangeMessage sends text on the conversation's session, creating one when
// needed. It returns (nil, nil) when no session could be established; callers
// treat that as a degraded backend. A failure of the message call itself is
// returned as an error.
func (s *Sessions) ExchangeMessage(ctx context.Context, conversationID, originAddress, text string) (*MessageResult, error) {
	rec, ok := s.resolve(ctx, conversationID, originAddress)
	if !ok {
		return nil, nil
	}

	result, err := s.backend.Message(ctx, rec.SessionID, text)
	if IsSessionNotFound(err) {
		s.logger.Warn("assistant forgot session, starting a new one", "conversation_id", conversationID, "session_id", rec.SessionID)
		if termErr := s.cache.Terminate(ctx, conversationID); termErr != nil {
			s.logger.Warn("failed to drop stale session", "conversation_id", conversationID, "error", termErr)
		}
		rec, ok = s.create(ctx, conversationID, originAddress)
		if !ok {
			return nil, nil
		}
		result, err = s.backend.Message(ctx, rec.SessionID, text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: message: %w", ErrBackendUnavailable, err)
	}

	if _, err := s.cache.ExtendExpiry(ctx, conversationID); err != nil {
		if errors.Is(err, session.ErrSessionInvariant) {
			s.logger.Error("session vanished during exchange", "conversation_id", conversationID, "session_id", rec.SessionID, "error", err)
		} else {
			s.logger.Warn("failed to extend session", "conversation_id", conversationID, "error", err)
		}
	}
	return result, nil
}

func (s *Sessions) resolve(ctx context.Context, conversationID, originAddress string) (session.Record, bool) {
	rec, status, err := s.cache.Lookup(ctx, conversationID)
	if err != nil {
		s.logger.Warn("session lookup failed", "conversation_id", conversationID, "error", err)
	}
	if err == nil && status == session.StatusFound {
		return rec, true
	}
	return s.create(ctx, conversationID, originAddress)
}

func (s *Sessions) create(ctx context.Context, conversationID, originAddress string) (session.Record, bool) {
	rec, err := s.CreateSession(ctx, conversationID, originAddress)
	if err != nil {
		s.logger.Error("no assistant session available", "conversation_id", conversationID, "error", err)
		return session.Record{}, false
	}
	return rec, true
}
