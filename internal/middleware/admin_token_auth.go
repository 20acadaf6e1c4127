package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jobez/dojo/internal/logging"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminTokenMiddleware guards operational endpoints such as schema reload
// with a shared token.
func AdminTokenMiddleware(token string) (func(http.Handler) http.Handler, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("admin token is required")
	}
	expected := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := sha256.Sum256([]byte(strings.TrimSpace(r.Header.Get(AdminTokenHeader))))
			if subtle.ConstantTimeCompare(provided[:], expected[:]) != 1 {
				logging.FromContext(r.Context()).Warn("admin request rejected")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = fmt.Fprint(w, `{"error":"unauthorized"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}
