package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/statecache"
	"github.com/tokengate/tokengate/internal/store"
)

// MetadataResolver is the resolver surface the server exposes over HTTP
type MetadataResolver interface {
	Resolve(ctx context.Context, collection string, networkID int64, tokenID string) (json.RawMessage, error)
	GateStatus(ctx context.Context, collection string, networkID int64) (models.GateStatus, error)
	Collections() []models.Collection
}

// Server represents the API server
type Server struct {
	router   *mux.Router
	resolver MetadataResolver
	address  string
	server   *http.Server
	logger   zerolog.Logger
}

// NewServer creates a new API server
func NewServer(address string, resolver MetadataResolver, logger zerolog.Logger) *Server {
	server := &Server{
		router:   mux.NewRouter(),
		resolver: resolver,
		address:  address,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API version 1
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Configured collections
	v1.HandleFunc("/collections", s.handleGetCollections).Methods("GET")

	// Token metadata, gated by on-chain state
	v1.HandleFunc("/metadata/{collection}/{network}/{token}", s.handleGetMetadata).Methods("GET")

	// Raw gate state, diagnostic
	v1.HandleFunc("/state/{collection}/{network}", s.handleGetState).Methods("GET")
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "tokengate",
		"version":   "1.0.0",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetCollections returns the list of configured collections
func (s *Server) handleGetCollections(w http.ResponseWriter, r *http.Request) {
	collections := s.resolver.Collections()

	response := map[string]interface{}{
		"collections": collections,
		"count":       len(collections),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetMetadata serves one token's metadata document
func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection := vars["collection"]
	tokenID := vars["token"]

	networkID, err := strconv.ParseInt(vars["network"], 10, 64)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid network ID", err)
		return
	}

	if !models.IsValidNetwork(networkID) {
		s.writeErrorResponse(w, http.StatusBadRequest, "Unsupported network ID", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	doc, err := s.resolver.Resolve(ctx, collection, networkID, tokenID)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, werr := w.Write(doc); werr != nil {
		s.logger.Error().Err(werr).Msg("failed to write metadata response")
	}
}

// handleGetState serves the raw gate state of a collection
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection := vars["collection"]

	networkID, err := strconv.ParseInt(vars["network"], 10, 64)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid network ID", err)
		return
	}

	if !models.IsValidNetwork(networkID) {
		s.writeErrorResponse(w, http.StatusBadRequest, "Unsupported network ID", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	status, err := s.resolver.GateStatus(ctx, collection, networkID)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

// writeResolveError maps resolver failures onto HTTP statuses. Unencodable
// caller input is a 400, structural absence is a 404, an explicit contract
// rejection is a 409 carrying the reason, and everything that means "the
// chain could not be read" is a 502.
// The service never fabricates a successful document.
func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	var intentional *statecache.IntentionalError

	switch {
	case errors.Is(err, statecache.ErrInvalidToken):
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid token ID", err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, statecache.ErrNotConfigured):
		s.writeErrorResponse(w, http.StatusNotFound, "Not found", err)
	case errors.As(err, &intentional):
		s.writeErrorResponse(w, http.StatusConflict, fmt.Sprintf("Rejected by contract: %s", intentional.Reason), err)
	case errors.Is(err, statecache.ErrInvalidResponse), errors.Is(err, statecache.ErrUnavailable):
		s.writeErrorResponse(w, http.StatusBadGateway, "Upstream chain read failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "Chain read timed out", err)
	default:
		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal processing error", err)
	}
}

// writeJSON writes a JSON response body with the given status
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response in a consistent format. Full
// error details stay in the logs; the public body carries only the message.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		s.logger.Warn().Err(err).Int("status", statusCode).Msg(message)
	}

	response := map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, statusCode, response)
}

// recoveryMiddleware catches panics and returns proper JSON error responses
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Msg("panic in handler")

				if w.Header().Get("Content-Type") == "" {
					s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("panic: %v", rec))
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.RequestURI).
			Str("remote", r.RemoteAddr).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.router,

		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("address", s.address).Msg("starting tokengate API server")
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down tokengate API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
