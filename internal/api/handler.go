package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martegra/divrecon/internal/config"
	"github.com/martegra/divrecon/internal/engine"
	"github.com/martegra/divrecon/internal/ledger"
	"github.com/martegra/divrecon/internal/safeguard"
	"github.com/martegra/divrecon/internal/store"
)

const maxRowsPerSide = 100000

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	st     *store.Store // nil when persistence is disabled
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, loader *config.Loader, st *store.Store) http.Handler {
	h := &Handler{eng: eng, loader: loader, st: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/reconcile", h.reconcile)
	h.mux.HandleFunc("POST /v1/runs/{id}/safeguard", h.safeguard)
	h.mux.HandleFunc("GET /v1/runs/{id}", h.getRun)
	h.mux.HandleFunc("GET /v1/config", h.getConfig)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// Error kinds carried in the error envelope so collaborators can branch on
// the failure class without parsing message text.
const (
	errBadRequest    = "bad_request"
	errUnknownRun    = "unknown_run"
	errConfigInvalid = "config_invalid"
	errStoreDisabled = "store_disabled"
	errInternal      = "internal"
)

type reconcileRequest struct {
	NBIM    []ledger.Row `json:"nbim"`
	Custody []ledger.Row `json:"custody"`
}

// POST /v1/reconcile — run the matcher over two raw row sets.
func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(req.NBIM) == 0 && len(req.Custody) == 0 {
		writeError(w, http.StatusBadRequest, errBadRequest, "at least one ledger row is required")
		return
	}
	if len(req.NBIM) > maxRowsPerSide || len(req.Custody) > maxRowsPerSide {
		writeError(w, http.StatusBadRequest, errBadRequest, fmt.Sprintf("row count exceeds max %d per side", maxRowsPerSide))
		return
	}

	nbim, nbimErrs := ledger.FromRows(ledger.SourceNBIM, req.NBIM)
	custody, custodyErrs := ledger.FromRows(ledger.SourceCustody, req.Custody)

	res, err := h.eng.Reconcile(r.Context(), engine.Input{
		NBIM:       nbim,
		Custody:    custody,
		LoadErrors: append(nbimErrs, custodyErrs...),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type safeguardRequest struct {
	Proposals []safeguard.Proposal  `json:"proposals"`
	Diagnoses []safeguard.Diagnosis `json:"diagnoses"`
}

// POST /v1/runs/{id}/safeguard — evaluate proposals against a run's breaks.
func (h *Handler) safeguard(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	var req safeguardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(req.Proposals) == 0 {
		writeError(w, http.StatusBadRequest, errBadRequest, "at least one proposal is required")
		return
	}

	out, err := h.eng.Safeguard(r.Context(), runID, req.Proposals, req.Diagnoses)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownRun) {
			writeError(w, http.StatusNotFound, errUnknownRun, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/runs/{id} — read a stored run with breaks and decisions.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.st == nil {
		writeError(w, http.StatusNotImplemented, errStoreDisabled, "audit store disabled")
		return
	}
	runID := r.PathValue("id")
	run, err := h.st.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, errUnknownRun, fmt.Sprintf("run %s not found", runID))
			return
		}
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /v1/config — current matcher and safeguard settings.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    cfg.Version,
		"matcher":    cfg.Matcher,
		"safeguards": cfg.Safeguards,
	})
}

// POST /v1/config/reload — re-read config from disk and swap it in. The
// loader validates before swapping, so a bad file leaves the served config
// untouched.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, errConfigInvalid, err.Error())
		return
	}
	if err := h.eng.SwapConfig(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, errConfigInvalid, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"rules":    cfg.Safeguards.Rules,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — ready once the engine is constructed; the core has no
// external dependencies to wait on besides the optional store.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the error envelope for every endpoint.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
