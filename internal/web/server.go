// Package web exposes the fact-check service over HTTP.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ppiankov/islamcheck/internal/factcheck"
	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/search"
)

//go:embed static
var staticFiles embed.FS

const maxBodyBytes = 64 << 10

// Service is the fact-check functionality the HTTP layer needs
type Service interface {
	FactCheck(ctx context.Context, text string) (*model.ClaimRecord, error)
	Claim(ctx context.Context, id string) (*model.ClaimRecord, error)
	History(ctx context.Context, page, perPage int) (*factcheck.HistoryPage, error)
	Recent(ctx context.Context, limit int) ([]model.ClaimStamp, error)
	Search(ctx context.Context, text string, classification model.Classification, limit int) ([]*search.Hit, error)
	Stats(ctx context.Context) (*factcheck.Stats, error)
	UpstreamStatus(ctx context.Context) error
}

// Server routes HTTP requests to the fact-check service
type Server struct {
	svc      Service
	cfg      model.ServerConfig
	logger   *zap.Logger
	validate *validator.Validate
	router   *mux.Router
	static   fs.FS
}

// NewServer builds the router and middleware chain
func NewServer(svc Service, cfg model.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // embedded directory is always present
	}

	s := &Server{
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   mux.NewRouter(),
		static:   static,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/factcheck", s.handleFactCheck).Methods(http.MethodPost)
	r.HandleFunc("/claim/{id}", s.handleClaim).Methods(http.MethodGet)
	r.HandleFunc("/claim/{id}/view", s.handleClaimPage).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/robots.txt", s.handleRobots).Methods(http.MethodGet)
	r.HandleFunc("/sitemap.xml", s.handleSitemap).Methods(http.MethodGet)

	r.HandleFunc("/", s.page("index.html")).Methods(http.MethodGet)
	r.HandleFunc("/history", s.page("history.html")).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return cors(requestID(accessLog(s.logger)(s.router)))
}

type factCheckRequest struct {
	Text     string `json:"text" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
}

type claimResponse struct {
	ID             string               `json:"id"`
	Query          string               `json:"query"`
	Answer         string               `json:"answer"`
	Sources        []string             `json:"sources"`
	Classification model.Classification `json:"classification"`
}

func toClaimResponse(r *model.ClaimRecord) claimResponse {
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	return claimResponse{
		ID:             r.ID,
		Query:          r.Query,
		Answer:         r.Answer,
		Sources:        sources,
		Classification: r.Classification,
	}
}

func (s *Server) handleFactCheck(w http.ResponseWriter, r *http.Request) {
	var req factCheckRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		s.writeError(w, r, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", model.ErrInvalidInput, describeValidation(err)))
		return
	}

	rec, err := s.svc.FactCheck(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(rec))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Claim(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(rec))
}

func (s *Server) handleClaimPage(w http.ResponseWriter, r *http.Request) {
	if !model.ValidClaimID(mux.Vars(r)["id"]) {
		s.writeError(w, r, fmt.Errorf("%w: malformed claim id", model.ErrInvalidInput))
		return
	}
	s.page("claim.html")(w, r)
}

type historyParams struct {
	Page    int `validate:"min=1"`
	PerPage int `validate:"min=1,max=100"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := historyParams{Page: 1, PerPage: factcheck.DefaultPerPage}

	var err error
	if params.Page, err = intParam(q.Get("page"), params.Page); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: page: %v", model.ErrInvalidInput, err))
		return
	}
	if params.PerPage, err = intParam(q.Get("per_page"), params.PerPage); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: per_page: %v", model.ErrInvalidInput, err))
		return
	}
	if err := s.validate.Struct(params); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", model.ErrInvalidInput, describeValidation(err)))
		return
	}

	page, err := s.svc.History(r.Context(), params.Page, params.PerPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type searchParams struct {
	Query          string `validate:"required,max=200"`
	Classification string `validate:"omitempty,oneof=Accurate Misleading False Debated"`
	Limit          int    `validate:"min=1,max=100"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := searchParams{
		Query:          q.Get("q"),
		Classification: q.Get("classification"),
	}

	var err error
	if params.Limit, err = intParam(q.Get("limit"), 20); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: limit: %v", model.ErrInvalidInput, err))
		return
	}
	if err := s.validate.Struct(params); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", model.ErrInvalidInput, describeValidation(err)))
		return
	}

	hits, err := s.svc.Search(r.Context(), params.Query, model.Classification(params.Classification), params.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{
		"status":  "ok",
		"claims":  stats.Claims,
		"indexed": stats.Indexed,
	}
	// ?upstream=1 also checks the AI provider; the store answers either way
	if upstream, _ := strconv.ParseBool(r.URL.Query().Get("upstream")); upstream {
		body["upstream"] = "ok"
		if err := s.svc.UpstreamStatus(r.Context()); err != nil {
			s.logger.Warn("upstream check failed", zap.Error(err))
			body["upstream"] = publicMessage(err)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// page serves an embedded HTML page with crawler-friendly caching headers
func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := fs.ReadFile(s.static, name)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("read page %s: %w", name, err))
			return
		}
		s.seoHeaders(w)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(content)
	}
}

func (s *Server) seoHeaders(w http.ResponseWriter) {
	maxAge := s.cfg.PageMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	w.Header().Set("X-Robots-Tag", "index, follow")
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
