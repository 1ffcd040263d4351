package httpserver

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/idgen"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 128

type ctxKeyRequestID struct{}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return v
}

// RequestIDField is the zap field handlers attach to request-scoped logs.
func RequestIDField(ctx context.Context) zap.Field {
	return zap.String("request_id", RequestIDFromContext(ctx))
}

// RequestIDMiddleware keeps a caller-supplied id when it is short printable
// ASCII and mints a fresh "req_" id otherwise.
func RequestIDMiddleware(headerName string) func(next http.Handler) http.Handler {
	if strings.TrimSpace(headerName) == "" {
		headerName = RequestIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get(headerName))
			if !acceptableRequestID(rid) {
				rid = newRequestID()
			}
			w.Header().Set(headerName, rid)
			ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, rid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	id, err := idgen.New("req_")
	if err != nil {
		// crypto/rand failure; a constant still lets logs be grepped
		return "req_unknown"
	}
	return id
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
