package analytics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// BatchTrigger runs the full-universe batch. The jobs package provides the
// production implementation, which carries the overlap guard and timeout.
type BatchTrigger interface {
	RunAsOf(asOf time.Time) error
}

// Handler serves analytics results and triggers recalculations over HTTP.
type Handler struct {
	repo    *Repository
	service *Service
	batch   BatchTrigger
	log     zerolog.Logger
}

func NewHandler(repo *Repository, service *Service, batch BatchTrigger, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		batch:   batch,
		log:     log.With().Str("handler", "analytics").Logger(),
	}
}

// Routes mounts the analytics endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/accounts/{accountID}/performance", h.HandleGetPerformance)
	r.Get("/accounts/{accountID}/risk", h.HandleGetRisk)
	r.Get("/accounts/{accountID}/exposure", h.HandleGetExposure)
	r.Post("/accounts/{accountID}/calculate", h.HandleCalculateAccount)
	r.Post("/batch", h.HandleRunBatch)
	return r
}

// HandleGetPerformance returns the performance record for an account: the
// latest, or the one for an exact date when a date query parameter
// (YYYY-MM-DD) is given.
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var rec *PerformanceRecord
	var err error
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := time.Parse(dateLayout, raw)
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		rec, err = h.repo.GetPerformance(r.Context(), accountID, date)
	} else {
		rec, err = h.repo.GetLatestPerformance(r.Context(), accountID)
	}
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to load performance")
		h.writeError(w, http.StatusInternalServerError, "failed to load performance record")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "no performance record for account")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleGetRisk returns the risk record for an account, latest or by date.
func (h *Handler) HandleGetRisk(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var rec *RiskRecord
	var err error
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := time.Parse(dateLayout, raw)
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		rec, err = h.repo.GetRisk(r.Context(), accountID, date)
	} else {
		rec, err = h.repo.GetLatestRisk(r.Context(), accountID)
	}
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to load risk")
		h.writeError(w, http.StatusInternalServerError, "failed to load risk record")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "no risk record for account")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleGetExposure returns the exposure record for an account, latest or by
// date.
func (h *Handler) HandleGetExposure(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var rec *ExposureRecord
	var err error
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := time.Parse(dateLayout, raw)
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		rec, err = h.repo.GetExposure(r.Context(), accountID, date)
	} else {
		rec, err = h.repo.GetLatestExposure(r.Context(), accountID)
	}
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to load exposure")
		h.writeError(w, http.StatusInternalServerError, "failed to load exposure record")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "no exposure record for account")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleCalculateAccount recalculates one account synchronously. An optional
// as_of query parameter (YYYY-MM-DD) overrides today.
func (h *Handler) HandleCalculateAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid as_of date, expected YYYY-MM-DD")
		return
	}

	status, err := h.service.CalculateAccount(r.Context(), accountID, asOf)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("calculation failed")
		h.writeError(w, http.StatusInternalServerError, "calculation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"account_id":         accountID,
		"calculation_date":   asOf.Format(dateLayout),
		"calculation_status": string(status),
	})
}

// HandleRunBatch recalculates every active account. The batch runs in the
// background through the same job the scheduler uses, so a manual trigger is
// skipped while the nightly run is still going.
func (h *Handler) HandleRunBatch(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid as_of date, expected YYYY-MM-DD")
		return
	}

	go func() {
		if err := h.batch.RunAsOf(asOf); err != nil {
			h.log.Error().Err(err).Msg("batch run failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":           "started",
		"calculation_date": asOf.Format(dateLayout),
	})
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
