// Package handler exposes the workflow engine over HTTP. Identity arrives
// from the gateway in X-Actor-* headers; authentication itself is an
// external concern.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/audit"
	"github.com/ecogov/be-inspections/internal/logger"
	"github.com/ecogov/be-inspections/internal/repository"
	"github.com/ecogov/be-inspections/internal/service"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// HTTPHandler handles HTTP requests for the inspection workflow engine.
type HTTPHandler struct {
	service *service.InspectionService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.InspectionService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, log: log}
}

// RegisterRoutes wires the engine's routes onto mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/inspections/", h.CreateInspection)
	mux.HandleFunc("GET /api/v1/inspections/", h.ListInspections)
	mux.HandleFunc("GET /api/v1/inspections/pending/{$}", h.PendingInspections)
	mux.HandleFunc("GET /api/v1/inspections/{id}", h.GetInspection)
	mux.HandleFunc("GET /api/v1/inspections/{id}/available_actions/", h.AvailableActions)
	mux.HandleFunc("GET /api/v1/inspections/{id}/available_monitoring_personnel/", h.AvailableMonitoringPersonnel)
	mux.HandleFunc("POST /api/v1/inspections/{id}/auto_save/", h.AutoSave)
	mux.HandleFunc("DELETE /api/v1/inspections/{id}/auto_save/", h.DiscardDraft)
	mux.HandleFunc("GET /api/v1/inspections/{id}/workflow-history/", h.WorkflowHistory)
	mux.HandleFunc("POST /api/v1/inspections/{id}/{action}/", h.ApplyAction)
}

// actorFrom builds the acting identity from gateway headers.
func actorFrom(r *http.Request) workflow.Actor {
	actor := workflow.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Name: r.Header.Get("X-Actor-Name"),
	}
	if role, err := workflow.ParseRole(r.Header.Get("X-Actor-Role")); err == nil {
		actor.Role = role
	}
	return actor
}

type inspectionResponse struct {
	ID                  string   `json:"id"`
	Code                string   `json:"code"`
	EstablishmentID     string   `json:"establishment_id"`
	EstablishmentName   string   `json:"establishment_name"`
	Province            string   `json:"province"`
	City                string   `json:"city"`
	District            string   `json:"district"`
	Law                 string   `json:"law"`
	Stage               string   `json:"stage"`
	LegalUnitID         *string  `json:"legal_unit_id,omitempty"`
	DivisionChiefID     *string  `json:"division_chief_id,omitempty"`
	SectionChiefID      *string  `json:"section_chief_id,omitempty"`
	UnitHeadID          *string  `json:"unit_head_id,omitempty"`
	MonitoringID        *string  `json:"monitoring_id,omitempty"`
	WorkflowComments    *string  `json:"workflow_comments,omitempty"`
	BillingReference    *string  `json:"billing_reference,omitempty"`
	ComplianceCallNotes *string  `json:"compliance_call_notes,omitempty"`
	InspectionNotes     *string  `json:"inspection_notes,omitempty"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

func toInspectionResponse(insp *workflow.Inspection) inspectionResponse {
	return inspectionResponse{
		ID:                  insp.ID,
		Code:                insp.Code,
		EstablishmentID:     insp.EstablishmentID,
		EstablishmentName:   insp.EstablishmentName,
		Province:            insp.Province,
		City:                insp.City,
		District:            insp.District,
		Law:                 string(insp.Law),
		Stage:               insp.Stage.String(),
		LegalUnitID:         insp.LegalUnitID,
		DivisionChiefID:     insp.DivisionChiefID,
		SectionChiefID:      insp.SectionChiefID,
		UnitHeadID:          insp.UnitHeadID,
		MonitoringID:        insp.MonitoringID,
		WorkflowComments:    insp.WorkflowComments,
		BillingReference:    insp.BillingReference,
		ComplianceCallNotes: insp.ComplianceCallNotes,
		InspectionNotes:     insp.InspectionNotes,
		CreatedAt:           insp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:           insp.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type personnelResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	District string `json:"district"`
}

func toPersonnelResponses(personnel []workflow.Personnel) []personnelResponse {
	out := make([]personnelResponse, 0, len(personnel))
	for _, p := range personnel {
		out = append(out, personnelResponse{
			ID: p.ID, Name: p.Name, Role: string(p.Role), District: p.District,
		})
	}
	return out
}

// CreateInspection handles POST /api/v1/inspections/.
func (h *HTTPHandler) CreateInspection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EstablishmentID   string `json:"establishment_id"`
		EstablishmentName string `json:"establishment_name"`
		Province          string `json:"province"`
		City              string `json:"city"`
		Law               string `json:"law"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	result, err := h.service.CreateInspection(r.Context(), &service.CreateInspectionRequest{
		EstablishmentID:   req.EstablishmentID,
		EstablishmentName: req.EstablishmentName,
		Province:          req.Province,
		City:              req.City,
		Law:               workflow.Law(req.Law),
		CreatedBy:         actorFrom(r).ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"inspection": toInspectionResponse(result.Inspection),
		"routing_info": map[string]any{
			"district_personnel": toPersonnelResponses(result.Routing.Preferred),
			"other_personnel":    toPersonnelResponses(result.Routing.Fallback),
		},
	})
}

// GetInspection handles GET /api/v1/inspections/{id}.
func (h *HTTPHandler) GetInspection(w http.ResponseWriter, r *http.Request) {
	insp, err := h.service.GetInspection(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInspectionResponse(insp))
}

// ListInspections handles GET /api/v1/inspections/.
func (h *HTTPHandler) ListInspections(w http.ResponseWriter, r *http.Request) {
	filter := repository.ListFilter{}
	if district := r.URL.Query().Get("district"); district != "" {
		filter.District = &district
	}
	if law := r.URL.Query().Get("law"); law != "" {
		l := workflow.Law(law)
		filter.Law = &l
	}
	if stageName := r.URL.Query().Get("stage"); stageName != "" {
		stage, err := workflow.ParseStage(stageName)
		if err != nil {
			h.writeError(w, r, apperrors.InvalidInput("stage", err.Error()))
			return
		}
		filter.Stage = &stage
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	inspections, total, err := h.service.ListInspections(r.Context(), filter, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]inspectionResponse, 0, len(inspections))
	for _, insp := range inspections {
		out = append(out, toInspectionResponse(insp))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"inspections": out,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// PendingInspections handles GET /api/v1/inspections/pending/.
func (h *HTTPHandler) PendingInspections(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.ID == "" {
		h.writeError(w, r, apperrors.PermissionDenied("missing actor identity"))
		return
	}

	inspections, err := h.service.PendingForAssignee(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]inspectionResponse, 0, len(inspections))
	for _, insp := range inspections {
		out = append(out, toInspectionResponse(insp))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"inspections": out})
}

// ApplyAction handles POST /api/v1/inspections/{id}/{action}/. The action
// segment accepts both the per-role verbs (plus "advance") and the
// upper-case decision variants.
func (h *HTTPHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actionName := strings.TrimSuffix(r.PathValue("action"), "/")

	var req struct {
		Comment             string  `json:"comment"`
		BillingReference    *string `json:"billing_reference"`
		ComplianceCallNotes *string `json:"compliance_call_notes"`
		InspectionNotes     *string `json:"inspection_notes"`
		AssigneeID          *string `json:"assignee_id"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
			return
		}
	}

	payload := workflow.ActionPayload{
		Comment:             req.Comment,
		BillingReference:    req.BillingReference,
		ComplianceCallNotes: req.ComplianceCallNotes,
		InspectionNotes:     req.InspectionNotes,
		AssigneeID:          req.AssigneeID,
	}
	actor := actorFrom(r)

	var insp *workflow.Inspection
	if decision, err := workflow.ParseDecisionAction(actionName); err == nil {
		insp, err = h.service.ApplyDecision(r.Context(), id, decision, actor, payload)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	} else {
		action, err := workflow.ParseAction(actionName)
		if err != nil {
			h.writeError(w, r, apperrors.InvalidInput("action", err.Error()))
			return
		}
		insp, err = h.service.ApplyAction(r.Context(), id, action, actor, payload)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, toInspectionResponse(insp))
}

// AvailableActions handles GET /api/v1/inspections/{id}/available_actions/.
func (h *HTTPHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.AvailableActions(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []workflow.DecisionAction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"available_actions": actions})
}

// AvailableMonitoringPersonnel handles
// GET /api/v1/inspections/{id}/available_monitoring_personnel/.
func (h *HTTPHandler) AvailableMonitoringPersonnel(w http.ResponseWriter, r *http.Request) {
	assignment, err := h.service.AvailableMonitoringPersonnel(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"district_personnel": toPersonnelResponses(assignment.Preferred),
		"other_personnel":    toPersonnelResponses(assignment.Fallback),
	})
}

// AutoSave handles POST /api/v1/inspections/{id}/auto_save/.
func (h *HTTPHandler) AutoSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload map[string]any `json:"payload"`
		IsDraft bool           `json:"isDraft"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	d, err := h.service.AutoSave(r.Context(), r.PathValue("id"), req.Payload, req.IsDraft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "saved",
		"saved_at": d.SavedAt,
	})
}

// DiscardDraft handles DELETE /api/v1/inspections/{id}/auto_save/. Deleting
// an absent draft succeeds.
func (h *HTTPHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DiscardDraft(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "discarded"})
}

// WorkflowHistory handles GET /api/v1/inspections/{id}/workflow-history/.
// Query parameters: q (free text), stages, roles (comma-joined sets),
// sort (timestamp|actor|action|status), dir (asc|desc).
func (h *HTTPHandler) WorkflowHistory(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{Text: r.URL.Query().Get("q")}

	if stages := r.URL.Query().Get("stages"); stages != "" {
		for _, name := range strings.Split(stages, ",") {
			stage, err := workflow.ParseStage(strings.TrimSpace(name))
			if err != nil {
				h.writeError(w, r, apperrors.InvalidInput("stages", err.Error()))
				return
			}
			q.Stages = append(q.Stages, stage)
		}
	}
	if roles := r.URL.Query().Get("roles"); roles != "" {
		for _, name := range strings.Split(roles, ",") {
			role, err := workflow.ParseRole(strings.TrimSpace(name))
			if err != nil {
				h.writeError(w, r, apperrors.InvalidInput("roles", err.Error()))
				return
			}
			q.Roles = append(q.Roles, role)
		}
	}

	sortState := audit.SortState{}
	if key := r.URL.Query().Get("sort"); key != "" {
		sortState.Key = audit.SortKey(key)
		switch r.URL.Query().Get("dir") {
		case "desc":
			sortState.Direction = audit.Descending
		default:
			sortState.Direction = audit.Ascending
		}
	}

	entries, err := h.service.History(r.Context(), r.PathValue("id"), q, sortState)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type entryResponse struct {
		ID        string `json:"id"`
		Action    string `json:"action"`
		ActorID   string `json:"actor_id"`
		ActorName string `json:"actor_name"`
		ActorRole string `json:"actor_role"`
		Comment   string `json:"comment,omitempty"`
		Stage     string `json:"stage"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:        e.ID,
			Action:    string(e.Action),
			ActorID:   e.ActorID,
			ActorName: e.ActorName,
			ActorRole: string(e.ActorRole),
			Comment:   e.Comment,
			Stage:     e.Stage.String(),
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

// ── response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
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
