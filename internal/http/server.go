// Package http serves the SiteTakip JSON API.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"sitetakip/internal/cache"
	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
	applog "sitetakip/internal/log"
	"sitetakip/internal/middleware/ratelimit"
	"sitetakip/internal/middleware/security"
	"sitetakip/internal/middleware/trace"
	"sitetakip/internal/services"
	"sitetakip/internal/session"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	cacheCleanupEvery   = 10 * time.Minute
	summaryCacheEntries = 200
	readyTimeout        = 2 * time.Second
)

// Options wires a Server. Store and Sessions are required.
type Options struct {
	Addr     string
	Store    ledger.Store
	Sessions *session.Manager
	// Events receives ledger events after each write; nil disables them.
	Events services.EventPublisher
	Logger *applog.Logger

	AllowedOrigins []string
	TrustedProxies []string
	// WritesPerMinute limits POST, PUT and PATCH requests per client.
	WritesPerMinute int
	CacheTTL        time.Duration
	Clock           func() time.Time
}

type Server struct {
	http.Server

	store     ledger.Store
	sessions  *session.Manager
	directory *services.DirectoryService
	dues      *services.DuesService
	expenses  *services.ExpenseService
	reports   *services.ReportService

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	// summaries are keyed by organization, period and the day they were
	// computed on, since overdue totals move at midnight
	summaryCache   *cache.LRUCache[core.MonthlySummary]
	breakdownCache *cache.LRUCache[[]core.ExpenseBreakdown]
	caches         *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Sessions == nil {
		return nil, errors.New("http server needs a store and a session manager")
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	limits := ratelimit.DefaultConfig()
	if opts.WritesPerMinute > 0 {
		limits.RequestsPerMinute = opts.WritesPerMinute
	}

	svcOpts := []services.Option{services.WithEvents(opts.Events)}
	if opts.Clock != nil {
		svcOpts = append(svcOpts, services.WithClock(opts.Clock))
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		store:          opts.Store,
		sessions:       opts.Sessions,
		directory:      services.NewDirectoryService(opts.Store, svcOpts...),
		dues:           services.NewDuesService(opts.Store, svcOpts...),
		expenses:       services.NewExpenseService(opts.Store, svcOpts...),
		reports:        services.NewReportService(opts.Store, svcOpts...),
		detector:       security.NewDetector(),
		limiter:        ratelimit.NewLimiter(limits),
		summaryCache:   cache.NewLRUCache[core.MonthlySummary](summaryCacheEntries, opts.CacheTTL),
		breakdownCache: cache.NewLRUCache[[]core.ExpenseBreakdown](summaryCacheEntries, opts.CacheTTL),
		caches:         cache.NewManager(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.limiter.Stop()
			return nil, err
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	s.caches.Register(s.summaryCache)
	s.caches.Register(s.breakdownCache)
	s.caches.Register(sessionSweeper{s.sessions})
	s.caches.StartCleanup(cacheCleanupEvery)

	var h http.Handler = s.routes()
	if len(opts.AllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
			AllowedHeaders:   []string{"Authorization", "Content-Type", trace.RequestIDHeader},
			ExposedHeaders:   []string{trace.RequestIDHeader, "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler(h)
	}
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = applog.Middleware(opts.Logger, trace.RequestID)(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = notFoundHandler()
	r.MethodNotAllowedHandler = methodNotAllowedHandler()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited,
		http.MethodPost, http.MethodPut, http.MethodPatch))

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireSession)
	authed.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/organizations", s.handleListOrganizations).Methods(http.MethodGet)
	authed.HandleFunc("/organizations", s.handleCreateOrganization).Methods(http.MethodPost)

	org := authed.PathPrefix("/organizations/{orgId}").Subrouter()
	org.Use(s.requireOrganization)
	org.HandleFunc("", s.handleGetOrganization).Methods(http.MethodGet)
	org.HandleFunc("", s.handleUpdateOrganization).Methods(http.MethodPut)

	org.HandleFunc("/units", s.handleListUnits).Methods(http.MethodGet)
	org.HandleFunc("/units", s.handleCreateUnit).Methods(http.MethodPost)
	org.HandleFunc("/units/{unitId}", s.handleGetUnit).Methods(http.MethodGet)
	org.HandleFunc("/units/{unitId}", s.handleUpdateUnit).Methods(http.MethodPut)
	org.HandleFunc("/units/{unitId}/resident", s.handleAssignResident).Methods(http.MethodPut)
	org.HandleFunc("/residents", s.handleListResidents).Methods(http.MethodGet)
	org.HandleFunc("/residents", s.handleCreateResident).Methods(http.MethodPost)
	org.HandleFunc("/residents/{residentId}", s.handleGetResident).Methods(http.MethodGet)
	org.HandleFunc("/residents/{residentId}", s.handleUpdateResident).Methods(http.MethodPut)

	org.HandleFunc("/dues", s.handleListDues).Methods(http.MethodGet)
	org.HandleFunc("/dues", s.handleCreateDue).Methods(http.MethodPost)
	org.HandleFunc("/dues/bulk", s.handleBulkCreateDues).Methods(http.MethodPost)
	org.HandleFunc("/dues/overdue", s.handleListOverdue).Methods(http.MethodGet)
	org.HandleFunc("/dues/{dueId}", s.handleGetDue).Methods(http.MethodGet)
	org.HandleFunc("/dues/{dueId}/pay", s.handlePayDue).Methods(http.MethodPatch)

	org.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	org.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	org.HandleFunc("/expenses/{expenseId}", s.handleGetExpense).Methods(http.MethodGet)

	org.HandleFunc("/reports/monthly", s.handleMonthlyReport).Methods(http.MethodGet)
	org.HandleFunc("/reports/expenses", s.handleExpenseReport).Methods(http.MethodGet)

	return r
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)

		requests, failures := s.tracer.Stats()
		hits, misses := s.summaryCache.Stats()
		slog.InfoContext(ctx, "HTTP server stopped",
			"requests", requests,
			"failures", failures,
			"rate_limited", s.limiter.Rejected(),
			"suspicious", s.detector.SuspiciousCount(),
			"summary_cache_hits", hits,
			"summary_cache_misses", misses)
	})
	return shutdownErr
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	respondErrorWithCode(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded,
		"Rate limit exceeded. Please try again later.", nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
		respondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "Store unavailable", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// sessionSweeper lets the cache manager drop expired sessions on its
// cleanup tick.
type sessionSweeper struct{ m *session.Manager }

func (s sessionSweeper) CleanExpired() int { return s.m.Sweep() }
