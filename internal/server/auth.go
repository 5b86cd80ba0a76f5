package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// authMiddleware gates a route behind "Authorization: Bearer <apiKey>".
// An empty apiKey disables the check entirely; the serve command logs a
// startup warning for that case so nothing is emitted per request.
//
// Failures answer 401 with a WWW-Authenticate Bearer challenge. The token a
// client presented is never logged, only whether one was present.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		switch {
		case token == "":
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
		case subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1:
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken pulls the token out of an "Authorization: Bearer <token>"
// header. The scheme comparison is case-insensitive per RFC 6750. Returns ""
// when the header is absent or not a Bearer credential.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(hdr, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
