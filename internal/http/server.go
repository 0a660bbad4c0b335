// Package http exposes the dashboard core as a JSON API. All /api routes are
// owner-scoped: the auth middleware resolves the owner id and every handler
// reads and writes only that owner's records.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"grana/internal/cache"
	"grana/internal/log"
	"grana/internal/services"
	"grana/internal/store"
)

// Deps are the collaborators the server needs. AuthMiddleware guards the
// /api subtree. Notifier may be nil (Firestore backend); derived-state
// caches then expire by TTL alone.
type Deps struct {
	Store          store.Store
	Notifier       *store.Notifier
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *log.Logger
}

type Server struct {
	http.Server
	store  store.Store
	logger *log.Logger
	slog   *log.StructuredLogger

	materializer *services.Materializer

	// Derived-state caches, keyed "<owner>:<query>". Invalidated per owner
	// on every change event; TTL covers backends without a notifier.
	summaryCache *cache.LRUCache[summaryResponse]
	byCatCache   *cache.LRUCache[[]categoryTotalResponse]
	optionsCache *cache.LRUCache[services.FilterOptions]

	cacheManager *cache.Manager
	limiter      *rateLimiter
	invalidation store.Subscription
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		store:        deps.Store,
		logger:       logger,
		slog:         log.NewStructuredLogger(logger),
		materializer: services.NewMaterializer(deps.Store, deps.Store),
		summaryCache: cache.NewLRUCache[summaryResponse](200, 5*time.Minute),
		byCatCache:   cache.NewLRUCache[[]categoryTotalResponse](200, 5*time.Minute),
		optionsCache: cache.NewLRUCache[services.FilterOptions](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
		limiter:      newRateLimiter(240, 5*time.Minute),
	}

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.Register(s.byCatCache)
	s.cacheManager.Register(s.optionsCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	if deps.Notifier != nil {
		s.invalidation = deps.Notifier.Subscribe(func(e store.Event) {
			s.invalidateOwner(e.OwnerID)
		})
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/session", s.handleSessionBootstrap)

	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	api.HandleFunc("GET /api/recurrences", s.handleListRules)
	api.HandleFunc("POST /api/recurrences", s.handleCreateRule)
	api.HandleFunc("PUT /api/recurrences/{id}", s.handleUpdateRule)
	api.HandleFunc("DELETE /api/recurrences/{id}", s.handleDeleteRule)

	api.HandleFunc("GET /api/goals", s.handleListGoals)
	api.HandleFunc("POST /api/goals", s.handleCreateGoal)
	api.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	api.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	api.HandleFunc("POST /api/goals/{id}/increment", s.handleIncrementGoal)

	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("GET /api/summary/categories", s.handleSummaryByCategory)
	api.HandleFunc("GET /api/filters/options", s.handleFilterOptions)
	api.HandleFunc("GET /api/categories/suggestions", s.handleSuggestedCategories)

	var apiHandler http.Handler = api
	if deps.AuthMiddleware != nil {
		apiHandler = deps.AuthMiddleware(api)
	}
	mux.Handle("/api/", s.limiter.middleware(s.withObservability(apiHandler)))

	return s
}

// withObservability adds security headers, a request id and request logging.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)

		requestID := generateRequestID()
		reqLogger := s.logger.With(log.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.slog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), ip)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) invalidateOwner(ownerID string) {
	prefix := ownerID + ":"
	s.summaryCache.DeletePrefix(prefix)
	s.byCatCache.DeletePrefix(prefix)
	s.optionsCache.DeletePrefix(prefix)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.invalidation != nil {
			s.invalidation.Cancel()
		}
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
