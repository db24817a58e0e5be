package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/kit"
)

// DefaultStack returns the middleware applied in front of the routes:
// HeadToGet, SecurityHeaders, RequestID.
func DefaultStack(logger *slog.Logger, newID idgen.Generator) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders,
		RequestID(logger, newID),
	}
}

// HeadToGet lets GET routes answer HEAD requests. net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets the headers every API response carries. Frames are
// served to other origins, so no frame or CSP policy is applied.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// RequestID tags each request with an id taken from X-Request-ID or
// generated by newID, and marks the context as coming from HTTP.
func RequestID(logger *slog.Logger, newID idgen.Generator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if newID == nil {
		newID = idgen.Request
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = newID()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithTransport(r.Context(), "http")
			ctx = kit.WithRequestID(ctx, id)
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			logger.Debug("http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
