// Package idempotency carries checkout retry keys over HTTP.
package idempotency

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Header = "Idempotency-Key"

// MaxLen bounds a key; longer values are treated as absent.
const MaxLen = 128

// Key returns the request's key, or "" when none was sent or it is too long.
func Key(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get(Header))
	if len(k) > MaxLen {
		return ""
	}
	return k
}

// Ensure returns key, or a fresh one when key is blank.
func Ensure(key string) string {
	if k := strings.TrimSpace(key); k != "" {
		return k
	}
	return uuid.NewString()
}
