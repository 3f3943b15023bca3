// Package correlation ties log lines and audit entries from one logical
// operation together: an HTTP request, or one scope's bill generation batch.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header carries a caller-supplied correlation id.
const Header = "X-Correlation-Id"

type correlationKey struct{}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID returns ctx unchanged when it already carries an id,
// otherwise a child context with a fresh ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, correlationKey{}, id), id
}

// FromHeader reads Header, falling back to fallback (usually the request id).
// Overlong values are ignored so clients cannot bloat log lines.
func FromHeader(h http.Header, fallback string) string {
	id := strings.TrimSpace(h.Get(Header))
	if id == "" || len(id) > 128 {
		return fallback
	}
	return id
}
