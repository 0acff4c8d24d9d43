// Package localapi serves the game over a loopback HTTP API for local front ends
// and scripts.
package localapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/account"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/metrics"
	"github.com/MJE43/flip-go/internal/play"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

// TokenHeader carries the local API token when one is configured.
const TokenHeader = "X-Local-Token"

// Game is the operation surface the API exposes.
type Game interface {
	View() session.View
	SetWager(amount float64) session.View
	Submit(ctx context.Context, sel wager.Selection) (<-chan play.Outcome, error)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	CreateAccount(ctx context.Context) error
	Withdraw(ctx context.Context) error
	CloseAccount(ctx context.Context, confirm account.Confirmer) error
	Refresh(ctx context.Context) error
	DebugUser(ctx context.Context) (string, error)
	RecentPlays(ctx context.Context, limit int) ([]history.Play, error)
	Summary(ctx context.Context) (history.Summary, error)
	CurrentSession(ctx context.Context) (*history.Session, error)
	SessionPlays(ctx context.Context, id string, page, perPage int) (*history.PlaysPage, error)
	DeleteSession(ctx context.Context, id string) error
}

// Server runs the local HTTP API.
type Server struct {
	game    Game
	metrics *metrics.Metrics
	log     *zap.Logger
	token   string
	addr    string

	httpServer *http.Server
	listener   net.Listener
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Defaults to 127.0.0.1:17889.
	Addr string
	// Token, when set, is required in TokenHeader on /api routes.
	Token   string
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// New creates a server for game.
func New(game Game, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:17889"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		game:    game,
		metrics: opts.Metrics,
		log:     opts.Logger.Named("localapi"),
		token:   opts.Token,
		addr:    opts.Addr,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*", "wails://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", TokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/state", s.handleState)
		r.Put("/wager", s.handleSetWager)
		r.Post("/play/{selection}", s.handlePlay)

		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/refresh", s.handleRefresh)

		r.Post("/account", s.handleCreateAccount)
		r.Post("/account/withdraw", s.handleWithdraw)
		r.Delete("/account", s.handleCloseAccount)

		r.Get("/plays", s.handlePlays)
		r.Get("/summary", s.handleSummary)
		r.Get("/sessions/current", s.handleCurrentSession)
		r.Get("/sessions/{id}/plays", s.handleSessionPlays)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Get("/debug/user", s.handleDebugUser)
	})

	return r
}

// Start binds the socket and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("localapi: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("local api stopped", zap.Error(err))
		}
	}()
	s.log.Info("local api listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get(TokenHeader) != s.token {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+TokenHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(r.Method, route, fmt.Sprint(status)).Inc()
		}
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
