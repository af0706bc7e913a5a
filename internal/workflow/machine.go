package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ecogov/be-inspections/internal/apperrors"
)

// Machine applies validated actions to inspections. It computes the full
// {stage, assignee, history entry} triple but persists nothing: the caller
// commits the returned Transition atomically or discards it. A failed
// resolution therefore never leaves a partial transition behind.
type Machine struct {
	gateway  *Gateway
	resolver AssigneeResolver
	now      func() time.Time
	newID    func() string
}

// NewMachine creates a state machine over the given gateway and resolver.
func NewMachine(gateway *Gateway, resolver AssigneeResolver) *Machine {
	return &Machine{
		gateway:  gateway,
		resolver: resolver,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Apply validates and applies action, returning the transition to commit.
func (m *Machine) Apply(ctx context.Context, insp *Inspection, action Action, actor Actor, payload ActionPayload) (*Transition, error) {
	return m.apply(ctx, insp, action, actor, payload, nil, nil)
}

// ApplyDecision applies one of the forwarding decision variants.
func (m *Machine) ApplyDecision(ctx context.Context, insp *Inspection, decision DecisionAction, actor Actor, payload ActionPayload) (*Transition, error) {
	canonical, ok := canonicalAction(insp.Stage)
	if !ok {
		return nil, apperrors.StageMismatch(string(decision), insp.Stage.String())
	}

	switch decision {
	case DecisionForward:
		return m.apply(ctx, insp, canonical, actor, payload, nil, nil)

	case DecisionComplete:
		if insp.Stage != StageMonitoringInspection {
			return nil, apperrors.StageMismatch(string(decision), insp.Stage.String())
		}
		return m.apply(ctx, insp, canonical, actor, payload, nil, nil)

	case DecisionForwardToMonitoring:
		if insp.Stage != StageSectionReview {
			return nil, apperrors.StageMismatch(string(decision), insp.Stage.String())
		}
		target := StageMonitoringInspection
		return m.apply(ctx, insp, canonical, actor, payload, &target, nil)

	case DecisionInspect:
		if insp.Stage != StageSectionReview && insp.Stage != StageUnitReview {
			return nil, apperrors.StageMismatch(string(decision), insp.Stage.String())
		}
		target := StageMonitoringInspection
		self := Personnel{ID: actor.ID, Name: actor.Name, Role: RoleMonitoring}
		return m.apply(ctx, insp, canonical, actor, payload, &target, &self)

	default:
		return nil, apperrors.InvalidInput("action", "unknown decision action")
	}
}

// apply is the single transition path. forcedNext overrides the catalog's
// next stage; fixedAssignee skips routing resolution.
func (m *Machine) apply(ctx context.Context, insp *Inspection, action Action, actor Actor, payload ActionPayload, forcedNext *Stage, fixedAssignee *Personnel) (*Transition, error) {
	if err := m.gateway.Validate(actor, insp, action); err != nil {
		return nil, err
	}
	action, err := m.gateway.Canonicalize(insp, action)
	if err != nil {
		return nil, err
	}

	updated := *insp
	now := m.now()

	if action == ActionReject {
		// Unconditional from any non-terminal stage.
		updated.Stage = StageRejected
		m.mergePayload(&updated, payload)
		updated.UpdatedAt = now
		return &Transition{
			Updated: updated,
			Entry:   m.historyEntry(insp.ID, action, actor, payload.Comment, StageRejected, now),
		}, nil
	}

	next, err := insp.Stage.Next(insp.Law)
	if err != nil {
		return nil, apperrors.StageMismatch(string(action), insp.Stage.String())
	}
	if forcedNext != nil {
		next = *forcedNext
	}

	prevRole, _ := RoleForStage(insp.Stage)

	if !next.Terminal() {
		nextRole, ok := RoleForStage(next)
		if !ok {
			return nil, apperrors.StageMismatch(string(action), next.String())
		}

		assignee := fixedAssignee
		if assignee == nil {
			assignment, err := m.resolver.Resolve(ctx, insp.Law, insp.District, next)
			if err != nil {
				return nil, err
			}
			if assignment.Empty() {
				return nil, apperrors.NoEligiblePersonnel(string(nextRole), string(insp.Law), insp.District)
			}
			assignee, err = pickAssignee(assignment, payload.AssigneeID)
			if err != nil {
				return nil, err
			}
		}

		if prevRole != nextRole {
			updated.SetAssignee(prevRole, nil)
		}
		id := assignee.ID
		updated.SetAssignee(nextRole, &id)
	} else {
		updated.SetAssignee(prevRole, nil)
	}

	updated.Stage = next
	m.mergePayload(&updated, payload)
	updated.UpdatedAt = now

	return &Transition{
		Updated: updated,
		Entry:   m.historyEntry(insp.ID, action, actor, payload.Comment, next, now),
	}, nil
}

// pickAssignee returns the explicitly chosen candidate, or the top-ranked one.
func pickAssignee(assignment Assignment, chosenID *string) (*Personnel, error) {
	candidates := assignment.Candidates()
	if chosenID == nil {
		return &candidates[0], nil
	}
	for i := range candidates {
		if candidates[i].ID == *chosenID {
			return &candidates[i], nil
		}
	}
	return nil, apperrors.InvalidInput("assignee_id", "not among eligible personnel")
}

func (m *Machine) mergePayload(insp *Inspection, payload ActionPayload) {
	if payload.Comment != "" {
		comment := payload.Comment
		insp.WorkflowComments = &comment
	}
	if payload.BillingReference != nil {
		insp.BillingReference = payload.BillingReference
	}
	if payload.ComplianceCallNotes != nil {
		insp.ComplianceCallNotes = payload.ComplianceCallNotes
	}
	if payload.InspectionNotes != nil {
		insp.InspectionNotes = payload.InspectionNotes
	}
}

func (m *Machine) historyEntry(inspectionID string, action Action, actor Actor, comment string, stage Stage, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:           m.newID(),
		InspectionID: inspectionID,
		Action:       action,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		ActorRole:    actor.Role,
		Comment:      comment,
		Stage:        stage,
		CreatedAt:    at,
	}
}
