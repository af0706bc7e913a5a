package workflow

import (
	"github.com/ecogov/be-inspections/internal/apperrors"
)

// Gateway decides which actions a role may issue against an inspection right
// now, and validates a submitted action before the state machine applies it.
type Gateway struct{}

// NewGateway creates the action gateway.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Canonicalize maps the generic "advance" alias to the current stage's
// per-role action. Other actions pass through unchanged.
func (g *Gateway) Canonicalize(insp *Inspection, action Action) (Action, error) {
	if action != ActionAdvance {
		return action, nil
	}
	canonical, ok := canonicalAction(insp.Stage)
	if !ok {
		return "", apperrors.StageMismatch(string(action), insp.Stage.String())
	}
	return canonical, nil
}

// Validate checks that actor may issue action against insp at its current
// stage. Returns PermissionDenied for role or assignment mismatches and
// StageMismatch for actions that are invalid at the current stage.
func (g *Gateway) Validate(actor Actor, insp *Inspection, action Action) error {
	if insp.Stage.Terminal() {
		return apperrors.StageMismatch(string(action), insp.Stage.String())
	}

	action, err := g.Canonicalize(insp, action)
	if err != nil {
		return err
	}

	owner, ok := RoleForStage(insp.Stage)
	if !ok {
		return apperrors.StageMismatch(string(action), insp.Stage.String())
	}

	// The current assignment outranks the static role catalog: an assignee
	// whose registry role differs from the owning role keeps the stage's
	// canonical action and reject. A section chief who chose to inspect
	// personally completes the monitoring stage through this path.
	if assignee := insp.AssigneeFor(owner); assignee != nil && *assignee == actor.ID && actor.Role != owner {
		if action != ActionReject {
			canonical, _ := canonicalAction(insp.Stage)
			if action != canonical {
				return apperrors.StageMismatch(string(action), insp.Stage.String())
			}
		}
		return nil
	}

	if !actor.Role.Can(action) {
		return apperrors.PermissionDenied(
			"role " + string(actor.Role) + " may not issue action " + string(action))
	}
	if actor.Role != owner {
		return apperrors.PermissionDenied(
			"stage " + insp.Stage.String() + " is owned by " + string(owner))
	}

	if action != ActionReject {
		canonical, _ := canonicalAction(insp.Stage)
		if action != canonical {
			return apperrors.StageMismatch(string(action), insp.Stage.String())
		}
	}

	// A role may not act on an inspection not currently assigned to one of
	// its members. An unset assignment accepts any holder of the owning role.
	if assignee := insp.AssigneeFor(owner); assignee != nil && *assignee != actor.ID {
		return apperrors.PermissionDenied("inspection is assigned to another " + string(owner))
	}

	return nil
}

// AvailableDecisions returns the decision variants actor may issue right now,
// always a subset of {INSPECT, FORWARD, FORWARD_TO_MONITORING, COMPLETE}
// narrowed to the current assignee. A terminal or foreign-assigned
// inspection yields the empty set.
func (g *Gateway) AvailableDecisions(actor Actor, insp *Inspection) []DecisionAction {
	canonical, ok := canonicalAction(insp.Stage)
	if !ok {
		return nil
	}
	if err := g.Validate(actor, insp, canonical); err != nil {
		return nil
	}

	switch insp.Stage {
	case StageSectionReview:
		return []DecisionAction{DecisionInspect, DecisionForward, DecisionForwardToMonitoring}
	case StageUnitReview:
		return []DecisionAction{DecisionInspect, DecisionForward}
	case StageMonitoringInspection:
		return []DecisionAction{DecisionComplete}
	default:
		return []DecisionAction{DecisionForward}
	}
}

// LawConflict is a non-blocking advisory raised when an establishment in a
// wizard batch was last inspected under a different statute than the one
// selected for the batch.
type LawConflict struct {
	EstablishmentID   string `json:"establishment_id"`
	EstablishmentName string `json:"establishment_name"`
	PriorLaw          Law    `json:"prior_law"`
	SelectedLaw       Law    `json:"selected_law"`
}

// EstablishmentRef is the slice of establishment state the advisory check
// needs: identity plus the statute of its most recent inspection, if any.
type EstablishmentRef struct {
	ID      string
	Name    string
	LastLaw Law // empty when never inspected
}

// BatchLawConflicts returns one advisory per establishment whose prior law
// differs from the selected one. Warnings never block the action; they are
// distinct from hard validation errors so both can populate independently.
func BatchLawConflicts(selected Law, establishments []EstablishmentRef) []LawConflict {
	var conflicts []LawConflict
	for _, e := range establishments {
		if e.LastLaw != "" && e.LastLaw != selected {
			conflicts = append(conflicts, LawConflict{
				EstablishmentID:   e.ID,
				EstablishmentName: e.Name,
				PriorLaw:          e.LastLaw,
				SelectedLaw:       selected,
			})
		}
	}
	return conflicts
}
