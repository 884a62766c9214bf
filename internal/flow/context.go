// Package flow carries the flow-control id that ties together every log line
// of one inbound event.
package flow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const idKey ctxKey = "chatbotproxy.flow_id"

// NewID returns a date-prefixed random id such as
// 2024-05-01T12:00:00.000Z-1f2e3d4c.
func NewID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("2006-01-02T15:04:05.000Z") + "-" + random
}

// WithID stores the flow id in context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// IDFromContext extracts the flow id if present.
func IDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(idKey)
	if val == nil {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
