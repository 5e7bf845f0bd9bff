package http

import (
	"context"
	"net"
	"net/http"
	"path"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// ExtractClientIP returns the peer address of the request without its port.
// Forwarding headers are ignored, the server is always reached directly.
func ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIPFromContext extracts the client IP from the request context.
// This should be called from handlers wrapped by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientIPMiddleware is a middleware that extracts and stores the client IP in the request context.
// This allows the IP to be used in access logging.
func ClientIPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractClientIP(r)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders are added to every response, whatever its status.
var SecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
}

// ContentTypeOverrides replace the type guessed from the file extension.
var ContentTypeOverrides = map[string]string{
	".js":   "application/javascript",
	".json": "application/json",
	".css":  "text/css",
	".html": "text/html",
}

// SecurityHeadersMiddleware sets SecurityHeaders before the wrapped handler
// writes anything, so error and redirect responses carry them too.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range SecurityHeaders {
				h.Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware presets Content-Type for the extensions listed in
// ContentTypeOverrides. net/http only guesses a type when none is set, and
// http.Error replaces it with text/plain for error responses.
func ContentTypeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct, ok := ContentTypeOverrides[path.Ext(r.URL.Path)]; ok {
				w.Header().Set("Content-Type", ct)
			}
			next.ServeHTTP(w, r)
		})
	}
}
