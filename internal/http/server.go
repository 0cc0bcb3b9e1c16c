package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"foodbudget/internal/auth"
	"foodbudget/internal/core"
	"foodbudget/internal/log"
	"foodbudget/internal/metrics"
	authmw "foodbudget/internal/middleware/auth"
	"foodbudget/internal/middleware/ratelimit"
	"foodbudget/internal/middleware/security"
	"foodbudget/internal/middleware/trace"
	"foodbudget/internal/services"
)

// Budget is the slice of services.BudgetService the handlers use.
type Budget interface {
	Today() core.Date
	Week(ctx context.Context, ref core.Date) (services.WeekResult, error)
	ListWeek(ctx context.Context, ref core.Date) (services.WeekListing, error)
	CreateExpense(ctx context.Context, in services.NewExpense) (core.Expense, error)
	UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	Settings(ctx context.Context) (core.Settings, error)
	SaveSettings(ctx context.Context, cfg core.Settings) (core.Settings, error)
	Report(ctx context.Context, ref core.Date) ([]byte, string, error)
	Forecast(ctx context.Context, days int) []core.DailyMeals
}

// TokenIssuer issues and checks session tokens; *auth.JWTManager satisfies it.
type TokenIssuer interface {
	Generate(user *core.User) (string, error)
	Validate(token string) (*auth.Claims, error)
	TTL() time.Duration
}

// Deps are the collaborators NewServer wires into routes.
type Deps struct {
	Budget  Budget
	Auth    auth.Authenticator
	Tokens  TokenIssuer
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
	Logger  *log.Logger

	// Ready checks backend reachability for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error

	// SecureCookies marks the session cookie Secure; disable only for local
	// plain-HTTP development.
	SecureCookies bool
}

type Server struct {
	http.Server

	budget        Budget
	authn         auth.Authenticator
	tokens        TokenIssuer
	metrics       *metrics.Metrics
	limiter       *ratelimit.Limiter
	logger        *log.Logger
	ready         func(ctx context.Context) error
	secureCookies bool
	started       time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	s := &Server{
		budget:        d.Budget,
		authn:         d.Auth,
		tokens:        d.Tokens,
		metrics:       d.Metrics,
		limiter:       limiter,
		logger:        logger.WithComponent(log.ComponentHTTP),
		ready:         d.Ready,
		secureCookies: d.SecureCookies,
		started:       time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/week", s.handleWeek)
	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	api.HandleFunc("GET /api/settings", s.handleGetSettings)
	api.HandleFunc("PUT /api/settings", s.handleSaveSettings)
	api.HandleFunc("GET /api/report", s.handleReport)
	api.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.Handle("/api/", authmw.RequireAuth(s.tokens, s.authError)(api))

	// Outermost first: trace, security headers, rate limit.
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(ratelimit.ClientIP, s.logger, s.metrics)
	limited := limiter.Middleware(ratelimit.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, ratelimit.ClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(headers.Middleware(limited(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) authError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected", log.FieldError, err, log.FieldPath, r.URL.Path)
	UnauthorizedError(err.Error()).Write(w)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
