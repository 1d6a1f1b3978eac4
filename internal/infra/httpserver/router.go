package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appregistry "github.com/bryanwahyu/scanfleet/internal/application/registry"
	appscans "github.com/bryanwahyu/scanfleet/internal/application/scans"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/verdicts"
	"github.com/bryanwahyu/scanfleet/internal/middleware"
)

// Router exposes the operator surface: scan lifecycle, probe listing,
// verdict retrieval, health and metrics. Probe workers do not use this
// surface; they speak over the message transport.
type Router struct {
	scansSvc    *appscans.Service
	registrySvc *appregistry.Service
	verdictRepo verdicts.Repository
}

func NewRouter(scansSvc *appscans.Service, registrySvc *appregistry.Service, verdictRepo verdicts.Repository, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{scansSvc: scansSvc, registrySvc: registrySvc, verdictRepo: verdictRepo}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/probes", r.wrap(r.handleProbeList))

		rt.Post("/scans", r.wrap(r.handleCreate))
		rt.Post("/scans/{id}/files", r.wrap(r.handleAddFile))
		rt.Post("/scans/{id}/uploaded", r.wrap(r.handleMarkUploaded))
		rt.Post("/scans/{id}/launch", r.wrap(r.handleLaunch))
		rt.Get("/scans/{id}", r.wrap(r.handleProgress))
		rt.Post("/scans/{id}/cancel", r.wrap(r.handleCancel))
		rt.Delete("/scans/{id}", r.wrap(r.handleFlush))
		rt.Get("/scans/{id}/verdict", r.wrap(r.handleVerdict))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var ve *domain.ValidationError
			var te *domain.InvalidTransitionError
			switch {
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrQuotaExceeded):
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			case errors.As(err, &ve):
				http.Error(w, ve.Error(), http.StatusBadRequest)
			case errors.As(err, &te):
				http.Error(w, te.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// GET /v1/probes
func (r *Router) handleProbeList(w http.ResponseWriter, req *http.Request) error {
	names, err := r.registrySvc.List(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{"probes": names})
}

// POST /v1/scans
// Body: {"user_key": "<key>"}
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		UserKey string `json:"user_key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return domain.Validationf("invalid request body")
	}

	scan, err := r.scansSvc.Create(req.Context(), body.UserKey, req.RemoteAddr)
	if err != nil {
		return err
	}
	return writeJSON(w, scan)
}

// POST /v1/scans/{id}/files
// Body: {"content_hash": "<sha256>", "mimetype": "<type>"}
func (r *Router) handleAddFile(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))

	var body struct {
		ContentHash string `json:"content_hash"`
		Mimetype    string `json:"mimetype"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return domain.Validationf("invalid request body")
	}

	f, err := r.scansSvc.AddFile(req.Context(), id, body.ContentHash, body.Mimetype)
	if err != nil {
		return err
	}
	return writeJSON(w, f)
}

// POST /v1/scans/{id}/uploaded
func (r *Router) handleMarkUploaded(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))
	if err := r.scansSvc.MarkUploaded(req.Context(), id); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": string(domain.StatusUploaded)})
}

// POST /v1/scans/{id}/launch
// Body: {"probes": ["..."], "force": false} (both optional)
func (r *Router) handleLaunch(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))

	var body struct {
		Probes []string `json:"probes"`
		Force  bool     `json:"force"`
	}
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return domain.Validationf("invalid request body")
		}
	}

	created, err := r.scansSvc.Launch(req.Context(), id, body.Probes, body.Force)
	if err != nil {
		return err
	}
	middleware.IncrementScansLaunched()
	middleware.AddJobsDispatched(uint64(created))
	return writeJSON(w, map[string]any{"jobs": created})
}

// GET /v1/scans/{id}
func (r *Router) handleProgress(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))
	p, err := r.scansSvc.Progress(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, p)
}

// POST /v1/scans/{id}/cancel
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))
	summary, err := r.scansSvc.Cancel(req.Context(), id)
	if err != nil {
		return err
	}
	if summary.Warning == "" {
		middleware.IncrementScansCancelled()
	}
	return writeJSON(w, summary)
}

// DELETE /v1/scans/{id}
func (r *Router) handleFlush(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "id"))
	if err := r.scansSvc.Flush(req.Context(), id); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": string(domain.StatusFlushed)})
}

// GET /v1/scans/{id}/verdict
func (r *Router) handleVerdict(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	v, err := r.verdictRepo.GetByScan(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, v)
}
