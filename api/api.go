// Package api is the HTTP channel of the background editor: users upload
// photos and send intents, and the operator reads usage reports.
package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-openapi/runtime/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcleod/backdrop/editor"
	"github.com/jmcleod/backdrop/ledger"
)

const (
	// DefaultMaxUpload bounds the size of an uploaded photo.
	DefaultMaxUpload = 20 << 20
	// DefaultTopN is the size of the operator's top-users listing.
	DefaultTopN = 10
	maxTopN     = 100
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	editor         *editor.Controller
	ledger         *ledger.Store
	operator       *operatorAuth
	lockout        *operatorLockout
	audit          *auditLogger
	alerts         *alertCollector
	deniedCounter  prometheus.Counter
	trustedProxies []netip.Prefix
	maxUpload      int64
	rateLimit      int
	clock          clockwork.Clock
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithOperator identifies the operator by channel user id. When token is
// non-empty the operator must also present it as a Bearer token.
func WithOperator(userID, token string) Option {
	return func(a *API) {
		a.operator = newOperatorAuth(userID, token)
	}
}

// WithMaxUpload bounds uploaded photos to n bytes.
func WithMaxUpload(n int64) Option {
	return func(a *API) {
		a.maxUpload = n
	}
}

// WithRateLimit allows n requests per minute per client IP. Zero disables
// the limit.
func WithRateLimit(n int) Option {
	return func(a *API) {
		a.rateLimit = n
	}
}

// WithAlertFunc receives alerts for segmentation-failure and access-denied
// spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alerts = newAlertCollector(fn)
	}
}

// WithAccessDeniedCounter counts rejected operator requests.
func WithAccessDeniedCounter(c prometheus.Counter) Option {
	return func(a *API) {
		a.deniedCounter = c
	}
}

// WithTrustedProxies parses CIDRs (or bare addresses) of reverse proxies
// whose forwarding headers identify the client IP.
func WithTrustedProxies(cidrs []string) (Option, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return func(a *API) {
		a.trustedProxies = prefixes
	}, nil
}

// New creates a new API instance.
func New(ctrl *editor.Controller, usage *ledger.Store, opts ...Option) *API {
	a := &API{
		editor:    ctrl,
		ledger:    usage,
		maxUpload: DefaultMaxUpload,
		clock:     clockwork.NewRealClock(),
	}
	if usage != nil {
		a.clock = usage.Clock()
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lockout = newOperatorLockout(a.clock)
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	a.audit.clock = a.clock
	if a.alerts != nil {
		a.alerts.clock = a.clock
	}
	if a.operator == nil {
		a.operator = newOperatorAuth("", "")
	}
	a.audit.alerts = a.alerts
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	if a.rateLimit > 0 {
		r.Use(httprate.Limit(a.rateLimit, time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return a.clientIP(r), nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
			}),
		))
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/help", a.Help)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/start", a.Start)
		r.Post("/photos", a.UploadPhoto)
		r.Post("/intents", a.HandleIntent)
		r.Get("/session", a.GetSession)
		r.Get("/stats", a.GetStats)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.OperatorMiddleware)
		r.Get("/summary", a.AdminSummary)
		r.Get("/users", a.AdminUsers)
		r.Get("/top", a.AdminTop)
	})

	return r
}
