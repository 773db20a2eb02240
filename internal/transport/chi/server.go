// Package chi exposes the resolution engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/metrics"
	healthuc "github.com/veltra/findex/internal/usecase/health"
	resolveuc "github.com/veltra/findex/internal/usecase/resolve"
)

const maxLimit = 20

// Sessions is the session surface exposed over HTTP.
type Sessions interface {
	GetAll(ctx context.Context, user string) ([]domain.Product, error)
	Clear(ctx context.Context, user string) error
}

// Server wires the usecases into an HTTP API.
type Server struct {
	resolver *resolveuc.Service
	sessions Sessions
	health   *healthuc.Service
	apiKeys  []string
	logger   *zap.Logger
}

// NewServer creates the HTTP API server. sessions may be nil when no session
// store is configured.
func NewServer(
	resolver *resolveuc.Service,
	sessions Sessions,
	health *healthuc.Service,
	apiKeys []string,
	logger *zap.Logger,
) *Server {
	return &Server{
		resolver: resolver,
		sessions: sessions,
		health:   health,
		apiKeys:  apiKeys,
		logger:   logger,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(s.apiKeys))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.Resolve)
		r.Get("/sessions/{user}", s.GetSession)
		r.Delete("/sessions/{user}", s.ClearSession)
	})

	return r
}

type resolveRequest struct {
	Text     string   `json:"text"`
	ImageURL string   `json:"image_url,omitempty"`
	Color    string   `json:"color,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type resolveResponse struct {
	Results   []resultItem      `json:"results"`
	Context   []domain.LeanItem `json:"context"`
	Narrative string            `json:"narrative"`
	Stage     string            `json:"stage"`
}

type resultItem struct {
	Handle   string   `json:"handle"`
	Title    string   `json:"title"`
	Color    string   `json:"color,omitempty"`
	Size     string   `json:"size,omitempty"`
	Price    float64  `json:"price"`
	ImageURL string   `json:"image_url,omitempty"`
	Score    float64  `json:"score"`
	Matches  int      `json:"matches"`
	Sources  []string `json:"sources"`
}

// Resolve handles POST /v1/resolve.
func (s *Server) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Limit > maxLimit {
		writeError(w, http.StatusBadRequest, "validation_failed", "limit must be at most 20")
		return
	}
	if req.MaxPrice != nil && *req.MaxPrice < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "max_price must not be negative")
		return
	}

	q := domain.NewQuery(req.Text, req.ImageURL, req.Color, req.MaxPrice, req.UserID, req.Limit)

	result, err := s.resolver.Resolve(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]resultItem, len(result.Results))
	for i, c := range result.Results {
		items[i] = candidateToItem(c)
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Results:   items,
		Context:   result.Context,
		Narrative: result.Narrative,
		Stage:     string(result.Stage),
	})
}

// GetSession handles GET /v1/sessions/{user}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "not_found", "session store not configured")
		return
	}
	user := chi.URLParam(r, "user")

	products, err := s.sessions.GetAll(r.Context(), user)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user,
		"items":   products,
	})
}

// ClearSession handles DELETE /v1/sessions/{user}.
func (s *Server) ClearSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "not_found", "session store not configured")
		return
	}
	user := chi.URLParam(r, "user")

	if err := s.sessions.Clear(r.Context(), user); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if !report.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
		// Client went away, nothing useful to write.
		return
	}

	s.logger.Warn("domain error", zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidQuery.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrIndexUnavailable):
		writeError(w, http.StatusServiceUnavailable, "index_unavailable", domain.ErrIndexUnavailable.Error())
	case errors.Is(err, domain.ErrSessionStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "session_store_unavailable", domain.ErrSessionStoreUnavailable.Error())
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_provider_error", domain.ErrEmbeddingProviderError.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func candidateToItem(c domain.Candidate) resultItem {
	sources := make([]string, len(c.Sources))
	for i, sp := range c.Sources {
		sources[i] = string(sp)
	}
	return resultItem{
		Handle:   c.Handle,
		Title:    c.Title,
		Color:    c.Color,
		Size:     c.Size,
		Price:    c.Price,
		ImageURL: c.ImageURL,
		Score:    c.Score,
		Matches:  c.Matches,
		Sources:  sources,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
