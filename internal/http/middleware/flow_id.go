package middleware

import (
	"net/http"
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/flow"
)

// FlowIDHeader echoes the flow-control id back to the caller.
const FlowIDHeader = "X-Flow-Control-Id"

// FlowID assigns every request a flow-control id and stores it in the
// request context.
func FlowID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := flow.NewID(time.Now())
		w.Header().Set(FlowIDHeader, id)
		next.ServeHTTP(w, r.WithContext(flow.WithID(r.Context(), id)))
	})
}
