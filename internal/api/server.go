package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"teamcollab/internal/auth"
	"teamcollab/pkg/interfaces"
)

// Registry exposes the connection statistics the API needs without coupling
// it to the full registry implementation.
type Registry interface {
	Stats() map[string]int
}

// Server is the REST surface: account management, workspace and channel
// administration, and message history. No business logic lives here, only
// HTTP handling and JSON serialization.
type Server struct {
	store    interfaces.Store
	tokens   *auth.Verifier
	registry Registry
	validate *validator.Validate
	router   *http.ServeMux
	log      zerolog.Logger
}

// NewServer wires the REST routes.
func NewServer(store interfaces.Store, tokens *auth.Verifier, registry Registry, log zerolog.Logger) *Server {
	s := &Server{
		store:    store,
		tokens:   tokens,
		registry: registry,
		validate: validator.New(),
		router:   http.NewServeMux(),
		log:      log.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/auth/register", s.public(http.HandlerFunc(s.handleRegister)))
	s.router.Handle("/api/auth/login", s.public(http.HandlerFunc(s.handleLogin)))
	s.router.Handle("/api/workspaces", s.protected(s.handleWorkspaces))
	s.router.Handle("/api/workspaces/", s.protected(s.handleWorkspaceSubresource))
	s.router.Handle("/api/channels/", s.protected(s.handleChannelSubresource))
	s.router.Handle("/api/stats", s.public(http.HandlerFunc(s.handleStats)))
	s.router.Handle("/health", s.public(http.HandlerFunc(s.handleHealth)))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authedHandler receives the verified identity of the caller.
type authedHandler func(w http.ResponseWriter, r *http.Request, identity *interfaces.Identity)

func (s *Server) public(next http.Handler) http.Handler {
	return s.corsMiddleware(s.jsonMiddleware(next))
}

// protected wraps a handler with bearer token verification on top of the
// standard middleware chain.
func (s *Server) protected(next authedHandler) http.Handler {
	return s.public(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		identity, err := s.tokens.Verify(token)
		if err != nil {
			s.sendError(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}
		next(w, r, identity)
	}))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the uniform error body for every API failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug().Err(err).Msg("response encoding failed")
	}
}

// decode unmarshals and validates a JSON request body.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}

// StatsResponse reports live connection counts.
type StatsResponse struct {
	Connections map[string]int `json:"connections"`
	Timestamp   time.Time      `json:"timestamp"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sendJSON(w, http.StatusOK, StatsResponse{
		Connections: s.registry.Stats(),
		Timestamp:   time.Now(),
	})
}

// HealthResponse reports overall and per-component health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	code := http.StatusOK

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, HealthResponse{
		Status:    status,
		Database:  dbStatus,
		Timestamp: time.Now(),
	})
}
