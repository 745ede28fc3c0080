// Package api provides a lightweight HTTP REST API for stop lookups.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/finder"
	"github.com/yourusername/stop-finder/internal/metrics"
	"github.com/yourusername/stop-finder/internal/request"
)

// Looker runs one non-interactive lookup. *finder.Finder satisfies it.
type Looker interface {
	Lookup(ctx context.Context, input string) (*finder.Outcome, error)
}

// Server is the HTTP API server.
type Server struct {
	finder   Looker
	validate *validator.Validate
}

// NewServer creates a new API Server.
func NewServer(f Looker) *Server {
	return &Server{finder: f, validate: validator.New()}
}

// Routes registers all API routes.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stops/bulk", s.handleBulk)
	mux.HandleFunc("/api/stops/", s.handleStops)
	mux.Handle("/metrics", metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "stop-finder"})
}

// Result is the outcome of one lookup as returned by the API.
type Result struct {
	*finder.Outcome
	Error string `json:"error,omitempty"`
}

// GET /api/stops/{postcode}
func (s *Server) handleStops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	pc := strings.TrimPrefix(r.URL.Path, "/api/stops/")
	if strings.TrimSpace(pc) == "" {
		writeError(w, http.StatusBadRequest, "postcode required")
		return
	}

	out, err := s.finder.Lookup(r.Context(), pc)
	if err != nil {
		writeError(w, statusFor(err), finder.FailureMessage(out, err))
		return
	}
	metrics.CountLookup(metrics.LookupDone)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"postcode": out.Postcode,
		"location": out.Location,
		"stops":    out.Stops,
	})
}

type bulkRequest struct {
	Postcodes []string `json:"postcodes" validate:"min=1,max=50,dive,required"`
}

// POST /api/stops/bulk {"postcodes": ["SW1A 1AA", "EC1A 1BB"]}
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "provide between 1 and 50 non-empty postcodes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "results": s.lookupMany(r.Context(), body.Postcodes)})
}

// lookupMany runs one isolated lookup per postcode concurrently and returns
// results in input order.
func (s *Server) lookupMany(ctx context.Context, postcodes []string) []Result {
	results := make([]Result, len(postcodes))
	var wg sync.WaitGroup
	for i, pc := range postcodes {
		wg.Add(1)
		go func(idx int, p string) {
			defer wg.Done()
			out, err := s.finder.Lookup(ctx, p)
			res := Result{Outcome: out}
			if err != nil {
				res.Error = finder.FailureMessage(out, err)
			} else {
				metrics.CountLookup(metrics.LookupDone)
			}
			results[idx] = res
		}(i, pc)
	}
	wg.Wait()
	return results
}

// statusFor maps a lookup failure to a response status. An unreachable or
// failing upstream is a 502 even though the lookup reports it as not found.
func statusFor(err error) int {
	var se *request.StatusError
	switch {
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	case errors.As(err, &se) && se.StatusCode >= http.StatusInternalServerError:
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrLocationNotFound), errors.Is(err, domain.ErrNoStopsFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

// logRequests logs each request at info level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Handler returns the full routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return logRequests(mux)
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("stop-finder API listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
