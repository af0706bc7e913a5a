// Package service implements the inspection workflow engine's business
// operations over the repositories, the state machine, and the routing
// resolver.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/audit"
	"github.com/ecogov/be-inspections/internal/client"
	"github.com/ecogov/be-inspections/internal/logger"
	"github.com/ecogov/be-inspections/internal/repository"
	"github.com/ecogov/be-inspections/internal/routing"
	"github.com/ecogov/be-inspections/internal/wizard"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// InspectionService handles inspection workflow business logic.
type InspectionService struct {
	inspectionRepo *repository.InspectionRepository
	historyRepo    *repository.HistoryRepository
	personnelRepo  *repository.PersonnelRepository
	gateway        *workflow.Gateway
	machine        *workflow.Machine
	resolver       workflow.AssigneeResolver
	publisher      *client.NotificationPublisher
	log            *logger.Logger
}

// NewInspectionService creates a new InspectionService.
func NewInspectionService(
	inspectionRepo *repository.InspectionRepository,
	historyRepo *repository.HistoryRepository,
	personnelRepo *repository.PersonnelRepository,
	gateway *workflow.Gateway,
	machine *workflow.Machine,
	resolver workflow.AssigneeResolver,
	publisher *client.NotificationPublisher,
	log *logger.Logger,
) *InspectionService {
	return &InspectionService{
		inspectionRepo: inspectionRepo,
		historyRepo:    historyRepo,
		personnelRepo:  personnelRepo,
		gateway:        gateway,
		machine:        machine,
		resolver:       resolver,
		publisher:      publisher,
		log:            log,
	}
}

// CreateInspectionRequest creates one inspection for one establishment.
type CreateInspectionRequest struct {
	EstablishmentID   string
	EstablishmentName string
	Province          string
	City              string
	Law               workflow.Law
	CreatedBy         string
}

// CreateInspectionResult is the created record plus the initial routing
// partition for the legal-review assignment.
type CreateInspectionResult struct {
	Inspection *workflow.Inspection
	Routing    workflow.Assignment
}

// CreateInspection derives the district, rejects duplicates, assigns the
// legal unit when routing finds one, and persists the record in PENDING.
func (s *InspectionService) CreateInspection(ctx context.Context, req *CreateInspectionRequest) (*CreateInspectionResult, error) {
	if !req.Law.Valid() {
		return nil, apperrors.InvalidInput("law", "unknown statute "+string(req.Law))
	}
	if req.EstablishmentID == "" {
		return nil, apperrors.InvalidInput("establishment_id", "required")
	}

	district, err := routing.DistrictFor(req.Province, req.City)
	if err != nil {
		return nil, err
	}

	existing, err := s.inspectionRepo.ActiveForEstablishment(ctx, req.EstablishmentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"establishment %q already has open inspection %s", req.EstablishmentName, existing.Code)
	}

	insp := &workflow.Inspection{
		Code:              "INSP-" + strings.ToUpper(uuid.NewString()[:8]),
		EstablishmentID:   req.EstablishmentID,
		EstablishmentName: req.EstablishmentName,
		Province:          req.Province,
		City:              req.City,
		District:          district,
		Law:               req.Law,
		Stage:             workflow.StagePending,
	}
	if req.CreatedBy != "" {
		createdBy := req.CreatedBy
		insp.CreatedBy = &createdBy
	}

	// Pre-assign the legal unit when routing finds one; an empty assignment
	// leaves the record claimable by any legal-unit member rather than
	// blocking creation.
	assignment, err := s.resolver.Resolve(ctx, insp.Law, insp.District, workflow.StagePending)
	if err != nil {
		return nil, err
	}
	if candidates := assignment.Candidates(); len(candidates) > 0 {
		id := candidates[0].ID
		insp.LegalUnitID = &id
	}

	if err := s.inspectionRepo.Create(ctx, insp); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("inspection_id", insp.ID).
		Str("code", insp.Code).
		Str("district", insp.District).
		Str("law", string(insp.Law)).
		Msg("Inspection created")

	s.publish("inspection_created", insp, req.CreatedBy)
	return &CreateInspectionResult{Inspection: insp, Routing: assignment}, nil
}

// CreateForEstablishment implements wizard.Creator.
func (s *InspectionService) CreateForEstablishment(ctx context.Context, est wizard.Establishment, law workflow.Law, createdBy string) (*workflow.Inspection, error) {
	result, err := s.CreateInspection(ctx, &CreateInspectionRequest{
		EstablishmentID:   est.ID,
		EstablishmentName: est.Name,
		Province:          est.Province,
		City:              est.City,
		Law:               law,
		CreatedBy:         createdBy,
	})
	if err != nil {
		return nil, err
	}
	return result.Inspection, nil
}

// GetInspection returns one inspection.
func (s *InspectionService) GetInspection(ctx context.Context, id string) (*workflow.Inspection, error) {
	return s.inspectionRepo.GetByID(ctx, id)
}

// ListInspections returns a filtered page.
func (s *InspectionService) ListInspections(ctx context.Context, filter repository.ListFilter, page, pageSize int) ([]*workflow.Inspection, int, error) {
	return s.inspectionRepo.List(ctx, filter, page, pageSize)
}

// PendingForAssignee returns inspections waiting on one person.
func (s *InspectionService) PendingForAssignee(ctx context.Context, personnelID string) ([]*workflow.Inspection, error) {
	return s.inspectionRepo.PendingForAssignee(ctx, personnelID)
}

// resolveActor verifies the acting identity against the personnel registry
// and fills in the registered name and role. A role claimed by the caller
// that contradicts the registry is rejected outright.
func (s *InspectionService) resolveActor(ctx context.Context, actor workflow.Actor) (workflow.Actor, error) {
	if actor.ID == "" {
		return actor, apperrors.PermissionDenied("missing actor identity")
	}
	p, err := s.personnelRepo.GetByID(ctx, actor.ID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeNotFound {
			return actor, apperrors.PermissionDenied("actor is not a registered personnel")
		}
		return actor, err
	}
	if actor.Role != "" && actor.Role != p.Role {
		return actor, apperrors.PermissionDenied("claimed role does not match registry")
	}
	return workflow.Actor{ID: p.ID, Name: p.Name, Role: p.Role}, nil
}

// ApplyAction validates and applies a named workflow action (including the
// generic "advance" alias) and commits the transition atomically.
func (s *InspectionService) ApplyAction(ctx context.Context, id string, action workflow.Action, actor workflow.Actor, payload workflow.ActionPayload) (*workflow.Inspection, error) {
	actor, err := s.resolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	insp, err := s.inspectionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	transition, err := s.machine.Apply(ctx, insp, action, actor, payload)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, insp.Stage, transition, actor)
}

// ApplyDecision applies one of the forwarding decision variants.
func (s *InspectionService) ApplyDecision(ctx context.Context, id string, decision workflow.DecisionAction, actor workflow.Actor, payload workflow.ActionPayload) (*workflow.Inspection, error) {
	actor, err := s.resolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	insp, err := s.inspectionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	transition, err := s.machine.ApplyDecision(ctx, insp, decision, actor, payload)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, insp.Stage, transition, actor)
}

func (s *InspectionService) commit(ctx context.Context, from workflow.Stage, t *workflow.Transition, actor workflow.Actor) (*workflow.Inspection, error) {
	if err := s.inspectionRepo.CommitTransition(ctx, from, t); err != nil {
		return nil, err
	}

	updated := t.Updated
	s.log.Info().
		Str("inspection_id", updated.ID).
		Str("action", string(t.Entry.Action)).
		Str("from", from.String()).
		Str("to", updated.Stage.String()).
		Str("actor_id", actor.ID).
		Msg("Workflow transition committed")

	switch updated.Stage {
	case workflow.StageRejected:
		s.publish("inspection_rejected", &updated, actor.ID)
	case workflow.StageCompleted:
		s.publish("inspection_completed", &updated, actor.ID)
	default:
		s.publish("inspection_forwarded", &updated, actor.ID)
	}
	return &updated, nil
}

// AvailableActions returns the decision variants actor may issue right now.
func (s *InspectionService) AvailableActions(ctx context.Context, id string, actor workflow.Actor) ([]workflow.DecisionAction, error) {
	insp, err := s.inspectionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.gateway.AvailableDecisions(actor, insp), nil
}

// AvailableMonitoringPersonnel returns the routing partition for the
// monitoring stage of one inspection.
func (s *InspectionService) AvailableMonitoringPersonnel(ctx context.Context, id string) (workflow.Assignment, error) {
	insp, err := s.inspectionRepo.GetByID(ctx, id)
	if err != nil {
		return workflow.Assignment{}, err
	}
	return s.resolver.Resolve(ctx, insp.Law, insp.District, workflow.StageMonitoringInspection)
}

// AutoSave idempotently persists an in-progress draft payload server-side.
func (s *InspectionService) AutoSave(ctx context.Context, id string, payload map[string]any, isDraft bool) (*repository.Draft, error) {
	if _, err := s.inspectionRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	d := &repository.Draft{InspectionID: id, Payload: payload, IsDraft: isDraft}
	if err := s.inspectionRepo.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DiscardDraft removes the server-side draft.
func (s *InspectionService) DiscardDraft(ctx context.Context, id string) error {
	return s.inspectionRepo.DeleteDraft(ctx, id)
}

// History returns the audit trail projected through the given filter and
// sort state. Projections never touch stored history.
func (s *InspectionService) History(ctx context.Context, id string, query audit.Query, sort audit.SortState) ([]workflow.HistoryEntry, error) {
	if _, err := s.inspectionRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.historyRepo.ListByInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	return audit.Sort(audit.Filter(entries, query), sort), nil
}

func (s *InspectionService) publish(eventType string, insp *workflow.Inspection, actorID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(&client.NotificationEvent{
		EventType:    eventType,
		InspectionID: insp.ID,
		Code:         insp.Code,
		District:     insp.District,
		Law:          string(insp.Law),
		Stage:        insp.Stage.String(),
		ActorID:      actorID,
		Recipients:   s.recipients(insp),
	})
}

// recipients lists the personnel ids that should be told about the current
// state: the active assignee for the current stage, if any.
func (s *InspectionService) recipients(insp *workflow.Inspection) []string {
	owner, ok := workflow.RoleForStage(insp.Stage)
	if !ok {
		return nil
	}
	if assignee := insp.AssigneeFor(owner); assignee != nil {
		return []string{*assignee}
	}
	return nil
}
