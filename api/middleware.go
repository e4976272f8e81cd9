package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/backdrop/internal/util"
	"github.com/jmcleod/backdrop/internal/uuid"
)

type contextKey int

const requestIDKey contextKey = iota

const (
	requestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-ID"
)

// requestID tags each request with an id, reusing a well-formed inbound
// X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.New()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// operatorAuth recognizes the privileged operator. The optional token is
// kept in an encrypted memguard enclave and only opened for comparison.
type operatorAuth struct {
	userID string
	token  *memguard.Enclave
}

func newOperatorAuth(userID, token string) *operatorAuth {
	o := &operatorAuth{userID: util.Normalize(userID)}
	if token != "" {
		o.token = memguard.NewEnclave([]byte(token))
	}
	return o
}

// authorize returns an error wrapping ErrAccessDenied unless r comes from
// the operator.
func (o *operatorAuth) authorize(r *http.Request) error {
	if o.userID == "" {
		return fmt.Errorf("%w: no operator configured", ErrAccessDenied)
	}
	if util.Normalize(r.Header.Get(userIDHeader)) != o.userID {
		return fmt.Errorf("%w: caller is not the operator", ErrAccessDenied)
	}
	if o.token == nil {
		return nil
	}

	presented, ok := bearerToken(r)
	if !ok {
		return fmt.Errorf("%w: missing bearer token", ErrAccessDenied)
	}
	defer util.WipeBytes(presented)

	buf, err := o.token.Open()
	if err != nil {
		return fmt.Errorf("opening operator token: %w", err)
	}
	defer buf.Destroy()
	if subtle.ConstantTimeCompare(buf.Bytes(), presented) != 1 {
		return fmt.Errorf("%w: invalid bearer token", ErrAccessDenied)
	}
	return nil
}

// bearerToken returns a private copy of the request's bearer token. The
// caller wipes it after use.
func bearerToken(r *http.Request) ([]byte, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return nil, false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	if tok == "" {
		return nil, false
	}
	return []byte(tok), true
}

// OperatorMiddleware admits only the operator. Denials are audited and
// repeated denials from one client IP are locked out.
func (a *API) OperatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.clientIP(r)
		if wait := a.lockout.remaining(ip); wait > 0 {
			a.audit.record(r, AuditOperatorLockedOut,
				slog.String("client_ip", ip),
				slog.Duration("retry_after", wait))
			writeLockedOut(w, wait)
			return
		}

		caller := util.Normalize(r.Header.Get(userIDHeader))
		if err := a.operator.authorize(r); err != nil {
			a.lockout.deny(ip)
			a.audit.record(r, AuditAccessDenied,
				slog.String("user_id", caller),
				slog.String("client_ip", ip),
				slog.String("reason", err.Error()))
			if a.deniedCounter != nil {
				a.deniedCounter.Inc()
			}
			mapError(w, r, err)
			return
		}

		a.lockout.admit(ip)
		a.audit.record(r, AuditOperatorAccess, slog.String("user_id", caller))
		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
