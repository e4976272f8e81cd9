package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// AuditEvent names an operator-surface event written to the audit log.
type AuditEvent string

const (
	AuditOperatorAccess    AuditEvent = "operator_access"
	AuditAccessDenied      AuditEvent = "access_denied"
	AuditOperatorLockedOut AuditEvent = "operator_locked_out"
)

// auditLogger writes operator-surface events as structured log records and
// feeds them to the alert collector.
type auditLogger struct {
	logger *slog.Logger
	clock  clockwork.Clock
	alerts *alertCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		clock:  clockwork.NewRealClock(),
	}
}

// record logs event for r. Denials and lockouts are logged at warn level.
func (al *auditLogger) record(r *http.Request, event AuditEvent, attrs ...slog.Attr) {
	all := append([]slog.Attr{
		slog.String("event", string(event)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", al.clock.Now().UTC().Format(time.RFC3339)),
	}, attrs...)
	if id := requestIDFromContext(r.Context()); id != "" {
		all = append(all, slog.String("request_id", id))
	}

	level := slog.LevelInfo
	if event != AuditOperatorAccess {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(r.Context(), level, "audit", all...)
	al.alerts.recordEvent(event)
}
