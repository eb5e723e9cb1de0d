// Package api serves stored companies, statements, prices, ratio sets, TTM
// snapshots, quality checks, anomaly scans and the screener over a JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/anomaly"
	"github.com/sells-group/filings-cli/internal/metrics"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/screen"
	"github.com/sells-group/filings-cli/internal/store"
	"github.com/sells-group/filings-cli/internal/ttm"
)

// Store is the read side of the store the API needs.
type Store interface {
	ttm.Reader
	anomaly.Source
	screen.Source
	Ping(ctx context.Context) error
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	LatestPrice(ctx context.Context, companyID int64, asOf time.Time) (*model.Price, error)
	Prices(ctx context.Context, companyID int64, filter store.PriceFilter) ([]model.Price, error)
	QualityChecks(ctx context.Context, filter store.QualityFilter) ([]model.QualityCheckResult, error)
}

// Server holds the API dependencies.
type Server struct {
	store    Store
	ttm      *ttm.Aggregator
	detector *anomaly.Detector
	screener *screen.Screener
	metrics  *metrics.Registry
	origins  []string
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics on reg and serves it on /metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) { s.metrics = reg }
}

// WithAllowedOrigins sets the CORS origins. The default allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithClock sets the clock used when as_of is omitted.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server over st.
func New(st Store, opts ...Option) *Server {
	s := &Server{
		store:   st,
		ttm:     ttm.New(st),
		origins: []string{"*"},
		now:     func() time.Time { return time.Now().UTC() },
		log:     zap.L().With(zap.String("component", "api")),
	}
	for _, o := range opts {
		o(s)
	}
	s.detector = anomaly.New(s.metrics)
	s.screener = screen.New(st)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware(s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/companies", s.listCompanies)
		r.Get("/runs", s.listRuns)
		r.Get("/screen", s.screenQuery)
		r.Post("/screen", s.screenFilters)
		r.Get("/quality/report", s.qualityReport)
		r.Route("/companies/{id}", func(r chi.Router) {
			r.Get("/", s.getCompany)
			r.Get("/statements", s.getStatements)
			r.Get("/prices", s.getPrices)
			r.Get("/prices/latest", s.getLatestPrice)
			r.Get("/ratios", s.getRatios)
			r.Get("/ttm", s.getTTM)
			r.Get("/quality", s.getQuality)
			r.Get("/anomalies", s.getAnomalies)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CompanyFilter{ActiveOnly: q.Get("active") == "true"}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 100); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	companies, err := s.store.ListCompanies(r.Context(), filter)
	if err != nil {
		s.internal(w, "list companies", err)
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}
	writeJSON(w, http.StatusOK, companies)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.internal(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) getRatios(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	ttmOnly := true
	if v := r.URL.Query().Get("ttm"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ttm")
			return
		}
		ttmOnly = b
	}

	sets, err := s.store.GetRatios(r.Context(), c.ID, ttmOnly)
	if err != nil {
		s.internal(w, "get ratios", err)
		return
	}
	if sets == nil {
		sets = []model.RatioSet{}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (s *Server) getTTM(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	nature, ok := natureParam(w, r)
	if !ok {
		return
	}

	res, err := s.ttm.Compute(r.Context(), c.ID, asOf, nature)
	if errors.Is(err, ttm.ErrNoStatements) {
		writeError(w, http.StatusNotFound, "no statements")
		return
	}
	if err != nil {
		s.internal(w, "compute ttm", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getAnomalies(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}

	found, stats, err := s.detector.Scan(r.Context(), s.store, []model.Company{*c}, asOf, 1)
	if err != nil {
		s.internal(w, "scan anomalies", err)
		return
	}
	if stats.Failed > 0 {
		s.internal(w, "scan anomalies", errors.New(stats.Errors[0]))
		return
	}
	if found == nil {
		found = []model.Anomaly{}
	}
	writeJSON(w, http.StatusOK, found)
}

// company resolves the {id} parameter, writing the error response when it
// cannot.
func (s *Server) company(w http.ResponseWriter, r *http.Request) (*model.Company, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return nil, false
	}
	c, err := s.store.GetCompany(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "company not found")
		return nil, false
	}
	if err != nil {
		s.internal(w, "get company", err)
		return nil, false
	}
	return c, true
}

func (s *Server) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return s.now(), true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of, want YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func natureParam(w http.ResponseWriter, r *http.Request) (model.ResultNature, bool) {
	v := r.URL.Query().Get("nature")
	if v == "" {
		return model.NatureConsolidated, true
	}
	n, err := model.ParseResultNature(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid nature")
		return 0, false
	}
	return n, true
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	s.log.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
