package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/logger"
	"github.com/ecogov/be-inspections/internal/service"
	"github.com/ecogov/be-inspections/internal/wizard"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// WizardHandler exposes the batch-creation wizard over HTTP. Each acting user
// gets an isolated session keyed by the X-Actor-ID header.
type WizardHandler struct {
	sessions *service.WizardSessions
	log      *logger.Logger
}

// NewWizardHandler creates a new wizard handler.
func NewWizardHandler(sessions *service.WizardSessions, log *logger.Logger) *WizardHandler {
	return &WizardHandler{sessions: sessions, log: log}
}

// RegisterRoutes wires the wizard routes onto mux. Literal segments take
// precedence over the {id} patterns registered by the inspection handler.
func (h *WizardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/inspections/wizard/{$}", h.State)
	mux.HandleFunc("POST /api/v1/inspections/wizard/select/", h.Select)
	mux.HandleFunc("POST /api/v1/inspections/wizard/deselect/", h.Deselect)
	mux.HandleFunc("POST /api/v1/inspections/wizard/law/", h.SetLaw)
	mux.HandleFunc("POST /api/v1/inspections/wizard/next/", h.Next)
	mux.HandleFunc("POST /api/v1/inspections/wizard/back/", h.Back)
	mux.HandleFunc("POST /api/v1/inspections/wizard/submit/", h.Submit)
	mux.HandleFunc("GET /api/v1/inspections/wizard/saved/", h.Saved)
	mux.HandleFunc("POST /api/v1/inspections/wizard/resume/", h.Resume)
}

// session resolves the acting user's wizard session, or writes an error.
func (h *WizardHandler) session(w http.ResponseWriter, r *http.Request) (*wizard.Orchestrator, bool) {
	actor := actorFrom(r)
	if actor.ID == "" {
		h.writeError(w, r, apperrors.PermissionDenied("missing actor identity"))
		return nil, false
	}
	return h.sessions.ForActor(actor.ID), true
}

func (h *WizardHandler) state(o *wizard.Orchestrator) map[string]any {
	selected := o.Selected()
	establishments := make([]map[string]any, 0, len(selected))
	for _, est := range selected {
		establishments = append(establishments, map[string]any{
			"id":       est.ID,
			"name":     est.Name,
			"province": est.Province,
			"city":     est.City,
		})
	}

	conflicts := o.Conflicts()
	warnings := make([]map[string]any, 0, len(conflicts))
	for _, c := range conflicts {
		warnings = append(warnings, map[string]any{
			"establishment_id":   c.EstablishmentID,
			"establishment_name": c.EstablishmentName,
			"prior_law":          string(c.PriorLaw),
			"selected_law":       string(c.SelectedLaw),
		})
	}

	return map[string]any{
		"step":          o.Step().String(),
		"selected":      establishments,
		"law":           string(o.Law()),
		"conflicts":     warnings,
		"max_selection": wizard.MaxSelection,
	}
}

// State handles GET /api/v1/inspections/wizard/.
func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.state(o))
}

// Select handles POST /api/v1/inspections/wizard/select/.
func (h *WizardHandler) Select(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	var est wizard.Establishment
	if err := json.NewDecoder(r.Body).Decode(&est); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if err := o.Select(est); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.state(o))
}

// Deselect handles POST /api/v1/inspections/wizard/deselect/.
func (h *WizardHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	o.Deselect(req.ID)
	h.writeJSON(w, http.StatusOK, h.state(o))
}

// SetLaw handles POST /api/v1/inspections/wizard/law/.
func (h *WizardHandler) SetLaw(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Law string `json:"law"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if err := o.SetLaw(workflow.Law(req.Law)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.state(o))
}

// Next handles POST /api/v1/inspections/wizard/next/.
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := o.Next(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.state(o))
}

// Back handles POST /api/v1/inspections/wizard/back/.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	o.Back()
	h.writeJSON(w, http.StatusOK, h.state(o))
}

// Submit handles POST /api/v1/inspections/wizard/submit/.
func (h *WizardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := o.Submit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records := make([]inspectionResponse, 0, len(result.Records))
	for _, insp := range result.Records {
		records = append(records, toInspectionResponse(insp))
	}
	body := map[string]any{
		"summary":     result.Summary(),
		"requested":   result.Requested,
		"created":     result.Created,
		"inspections": records,
	}
	if result.FirstErr != nil {
		body["first_error"] = result.FirstErr.Error()
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Saved handles GET /api/v1/inspections/wizard/saved/.
func (h *WizardHandler) Saved(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	progress, found := o.LoadSaved(r.Context())
	if !found {
		h.writeJSON(w, http.StatusOK, map[string]any{"has_saved": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"has_saved": true,
		"progress":  progress,
	})
}

// Resume handles POST /api/v1/inspections/wizard/resume/. Restoration is
// explicit: {"accept": false} clears the saved progress instead.
func (h *WizardHandler) Resume(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Accept bool `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	progress, found := o.LoadSaved(r.Context())
	if !found {
		h.writeError(w, r, apperrors.NotFound("wizard progress", actorFrom(r).ID))
		return
	}
	if err := o.Resume(r.Context(), progress, req.Accept); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.state(o))
}

func (h *WizardHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *WizardHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	h.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    apperrors.CodeOf(err),
			"message": err.Error(),
		},
	})
}
