// Package httpapi serves the read-only status API and the per-process ops
// endpoints (/healthz, /metrics).
package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	apimw "github.com/hamed0406/uptimedispatch/internal/httpapi/middleware"
	"github.com/hamed0406/uptimedispatch/internal/metrics"
	"github.com/hamed0406/uptimedispatch/internal/repo"
)

type Server struct {
	Logger  *zap.Logger
	Targets repo.TargetSource
	Ticks   repo.TickReader
	Metrics *metrics.Metrics
	// StaleAfter turns an old tick into "unknown". Zero never expires ticks.
	StaleAfter time.Duration

	now func() time.Time
}

func NewServer(l *zap.Logger, ts repo.TargetSource, tr repo.TickReader, m *metrics.Metrics, staleAfter time.Duration) *Server {
	return &Server{Logger: l, Targets: ts, Ticks: tr, Metrics: m, StaleAfter: staleAfter, now: time.Now}
}

// Router mounts the public API. rpm <= 0 disables rate limiting.
func (s *Server) Router(origins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(origins))

	mountOps(r, s.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))
		r.Get("/api/targets", s.handleListTargets)
		r.Get("/api/targets/{id}/status", s.handleTargetStatus)
	})
	return r
}

// OpsRouter is the small listener every worker and producer exposes.
func OpsRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	mountOps(r, m)
	return r
}

func mountOps(r chi.Router, m *metrics.Metrics) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Targets.List(r.Context())
	if err != nil {
		s.Logger.Warn("api_list_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if ts == nil {
		ts = []domain.Target{}
	}
	writeJSON(w, http.StatusOK, ts)
}

type regionStatus struct {
	RegionID       string            `json:"region_id"`
	Status         domain.TickStatus `json:"status"`
	ResponseTimeMS int64             `json:"response_time_ms"`
	ObservedAt     time.Time         `json:"observed_at"`
}

type targetStatus struct {
	TargetID domain.TargetID `json:"target_id"`
	// Status follows the newest tick across regions.
	Status  domain.TickStatus `json:"status"`
	Regions []regionStatus    `json:"regions"`
}

func (s *Server) handleTargetStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ticks, err := s.Ticks.Latest(r.Context(), id)
	if err != nil {
		s.Logger.Warn("api_status_error",
			zap.String("target_id", string(id)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "status error")
		return
	}
	writeJSON(w, http.StatusOK, summarize(id, ticks, s.now(), s.StaleAfter))
}

func summarize(id domain.TargetID, ticks []domain.Tick, now time.Time, staleAfter time.Duration) targetStatus {
	out := targetStatus{TargetID: id, Status: domain.StatusUnknown, Regions: []regionStatus{}}
	var newest *domain.Tick
	for i := range ticks {
		t := &ticks[i]
		out.Regions = append(out.Regions, regionStatus{
			RegionID:       t.RegionID,
			Status:         domain.StatusAt(t, now, staleAfter),
			ResponseTimeMS: t.ResponseTimeMS,
			ObservedAt:     t.ObservedAt,
		})
		if newest == nil || t.ObservedAt.After(newest.ObservedAt) {
			newest = t
		}
	}
	sort.Slice(out.Regions, func(i, j int) bool { return out.Regions[i].RegionID < out.Regions[j].RegionID })
	out.Status = domain.StatusAt(newest, now, staleAfter)
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
