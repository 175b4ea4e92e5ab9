package http

import (
	"net/http"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/middleware"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/ratelimit"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/service"
)

const webhookPath = "/webhooks/aps"

type ServerConfig struct {
	AuthSecret  string
	BehindProxy bool
	Version     string
	KeepAlive   time.Duration
	// LoginBackoff paces answers to repeated failed logins; nil uses 500ms doubling up to 10s.
	LoginBackoff *service.Backoff
}

type Server struct {
	mux            *http.ServeMux
	handler        http.Handler
	handlers       *Handlers
	sseHandler     *SSEHandler
	authSvc        AuthService
	webhooks       WebhookService
	rateLimiter    *ratelimit.LoginRateLimiter
	backoffTracker *ratelimit.LoginAttemptTracker
	behindProxy    bool
}

func NewServer(authSvc AuthService, jobs JobService, webhooks WebhookService, events EventSource, cfg ServerConfig) *Server {
	mux := http.NewServeMux()

	rateLimiter := ratelimit.NewLoginRateLimiter(
		5,
		15*time.Minute,
		30*time.Minute,
	)

	backoff := cfg.LoginBackoff
	if backoff == nil {
		backoff = service.NewBackoff(
			500*time.Millisecond,
			10*time.Second,
			2.0,
		)
	}

	s := &Server{
		mux:            mux,
		handlers:       NewHandlers(jobs, cfg.Version),
		sseHandler:     NewSSEHandler(events, jobs, cfg.KeepAlive),
		authSvc:        authSvc,
		webhooks:       webhooks,
		rateLimiter:    rateLimiter,
		backoffTracker: ratelimit.NewLoginAttemptTracker(backoff.Duration),
		behindProxy:    cfg.BehindProxy,
	}

	s.registerRoutes()

	csrf := middleware.NewCSRFProtection(cfg.AuthSecret, "/login", webhookPath)
	s.handler = middleware.RequestLog(middleware.SecurityHeaders(csrf.Middleware(mux)))

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handlers.Health())

	loginHandler := LoginHandler(s.authSvc, s.rateLimiter, s.backoffTracker, s.behindProxy)
	s.mux.HandleFunc("GET /login", loginHandler)
	s.mux.HandleFunc("POST /login", loginHandler)
	s.mux.HandleFunc("POST /logout", AuthMiddleware(s.authSvc, LogoutHandler(s.behindProxy)))

	s.mux.HandleFunc("GET /{$}", PageAuthMiddleware(s.authSvc, s.handlers.Dashboard()))

	s.mux.HandleFunc("POST /translations", AuthMiddleware(s.authSvc, s.handlers.Submit()))
	s.mux.HandleFunc("GET /translations", AuthMiddleware(s.authSvc, s.handlers.List()))
	s.mux.HandleFunc("GET /translations/{id}", AuthMiddleware(s.authSvc, s.handlers.Get()))
	s.mux.HandleFunc("GET /translations/{id}/row", AuthMiddleware(s.authSvc, s.handlers.Row()))
	s.mux.HandleFunc("POST /translations/{id}/cancel", AuthMiddleware(s.authSvc, s.handlers.Cancel()))
	s.mux.HandleFunc("POST /translations/{id}/retry", AuthMiddleware(s.authSvc, s.handlers.Retry()))

	s.mux.HandleFunc("GET /translations/{id}/events", AuthMiddleware(s.authSvc, s.sseHandler.JobEvents()))
	s.mux.HandleFunc("GET /events", AuthMiddleware(s.authSvc, s.sseHandler.AllEvents()))

	s.mux.HandleFunc("POST "+webhookPath, Webhook(s.webhooks))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}
