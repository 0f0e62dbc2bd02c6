package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/proptradetools/clickstack/internal/catalog"
	"github.com/proptradetools/clickstack/internal/config"
	"github.com/proptradetools/clickstack/internal/database"
	"github.com/proptradetools/clickstack/internal/ingest"
	"github.com/proptradetools/clickstack/internal/metrics"
	"github.com/proptradetools/clickstack/internal/middleware"
	"github.com/proptradetools/clickstack/internal/ranking"
	"github.com/proptradetools/clickstack/internal/rollup"
	"github.com/proptradetools/clickstack/internal/storage"
	"github.com/proptradetools/clickstack/internal/validate"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Store   storage.Store
	Catalog catalog.Lookup
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers around the analytics services.
type Server struct {
	ingestService *ingest.Service
	rollupEngine  *rollup.Engine
	rankingQuery  *ranking.Query
	logger        *zap.Logger
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	ingestSvc := ingest.NewService(deps.Store, deps.Metrics, deps.Logger)
	engine := rollup.NewEngine(deps.Store, deps.Store, deps.Config.Analytics.RetentionDays, deps.Metrics, deps.Logger)
	query := ranking.NewQuery(deps.Store, deps.Store, deps.Catalog, deps.Metrics, deps.Logger)

	if deps.Redis != nil {
		query.SetCache(deps.Redis.Client, deps.Config.Analytics.PopularCacheTTL)
	}

	s := &Server{
		ingestService: ingestSvc,
		rollupEngine:  engine,
		rankingQuery:  query,
		logger:        deps.Logger,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Ingestion
	mux.HandleFunc("/analytics/guide-click", s.handleGuideClick)
	mux.HandleFunc("/analytics/guide-back-click", s.handleBackClick)

	// Rankings
	mux.HandleFunc("/analytics/top-guides", s.handleTopGuides)
	mux.HandleFunc("/analytics/popular", s.handlePopular)

	// Maintenance (shared-secret auth, fails closed)
	adminAuth := middleware.NewAdminAuth(deps.Config.Admin, deps.Logger)
	mux.Handle("/analytics/maintenance/rollup", adminAuth.Handler(http.HandlerFunc(s.handleRollup)))

	var handler http.Handler = mux
	handler = middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger).Handler(handler)
	handler = middleware.NewLoggingMiddleware(deps.Logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)
	return handler
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Ingestion ----

func (s *Server) handleGuideClick(w http.ResponseWriter, r *http.Request) {
	s.handleIngest(w, r, s.ingestService.Record)
}

func (s *Server) handleBackClick(w http.ResponseWriter, r *http.Request) {
	s.handleIngest(w, r, s.ingestService.RecordNavigation)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request,
	record func(context.Context, *validate.Payload, string) error) {

	if r.Method != http.MethodPost {
		s.errorResponse(w, "method_not_allowed", http.StatusMethodNotAllowed)
		return
	}

	if !isJSONRequest(r) {
		s.errorResponse(w, "invalid_content_type", http.StatusBadRequest)
		return
	}

	var payload validate.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorResponse(w, "invalid_json", http.StatusBadRequest)
		return
	}

	err := record(r.Context(), &payload, r.Header.Get("User-Agent"))
	switch {
	case err == nil:
		s.okResponse(w)
	case errors.Is(err, ingest.ErrBotFiltered):
		// Soft rate-limit signal, bots should back off.
		s.errorResponse(w, "bot_filtered", http.StatusTooManyRequests)
	case errors.Is(err, ingest.ErrStorageUnavailable):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": false})
	default:
		if reason := validate.Reason(err); reason != "" {
			s.errorResponse(w, reason, http.StatusBadRequest)
			return
		}
		s.errorResponse(w, "invalid_request", http.StatusBadRequest)
	}
}

// ---- Rankings ----

func (s *Server) handleTopGuides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method_not_allowed", http.StatusMethodNotAllowed)
		return
	}

	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 10)

	guides, err := s.rankingQuery.TopGuides(r.Context(), days, limit)
	if err != nil {
		s.logger.Error("top guides query failed", zap.Error(err))
		s.errorResponse(w, "analytics_unavailable", http.StatusInternalServerError)
		return
	}
	if guides == nil {
		guides = []ranking.RankedGuide{}
	}

	s.jsonResponse(w, map[string]any{
		"days":   clampInt(days, 1, ranking.MaxWindowDays),
		"guides": guides,
	})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method_not_allowed", http.StatusMethodNotAllowed)
		return
	}

	days := clampInt(queryInt(r, "days", 30), 1, ranking.MaxWindowDays)
	limit := clampInt(queryInt(r, "limit", 5), 1, ranking.MaxWidgetLimit)

	guides, err := s.rankingQuery.Popular(r.Context(), days, limit)
	if err != nil {
		// Advisory data: degrade to an empty widget instead of erroring
		// the page that embeds it.
		s.logger.Error("popular guides query failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"guides": []ranking.PopularGuide{},
			"days":   days,
			"limit":  limit,
			"error":  "analytics_unavailable",
		})
		return
	}
	if guides == nil {
		guides = []ranking.PopularGuide{}
	}

	s.jsonResponse(w, map[string]any{
		"guides": guides,
		"days":   days,
		"limit":  limit,
	})
}

// ---- Maintenance ----

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method_not_allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.rollupEngine.Run(r.Context())
	if err != nil {
		s.logger.Error("rollup failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "rollup_failed"})
		return
	}

	s.jsonResponse(w, map[string]any{
		"ok":                true,
		"day":               result.Day.Format("2006-01-02"),
		"aggregated_guides": result.AggregatedKeys,
		"purged_records":    result.PurgedEvents,
		"already_complete":  result.AlreadyComplete,
	})
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) okResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) errorResponse(w http.ResponseWriter, reason string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "err": reason})
}

func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
