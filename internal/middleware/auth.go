// internal/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
)

const realm = "categoryhub"

// BasicAuth guards handlers with a single admin account. The password is kept
// only as an argon2id hash. An empty user or password disables the check.
func BasicAuth(user, password string, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if user == "" || password == "" {
		return passthrough, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			givenUser, givenPassword, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(givenUser), []byte(user)) == 1
			passwordOK, err := verifyPassword(givenPassword, salt, hash)
			if err != nil {
				logger.Error("failed to verify password", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !userOK || !passwordOK {
				logger.Warn("rejected credentials", "user", givenUser, "remote", r.RemoteAddr)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func passthrough(next http.Handler) http.Handler {
	return next
}
