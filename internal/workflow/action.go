package workflow

import "fmt"

// Action is a workflow verb submitted against an inspection. The per-role
// actions and the generic "advance" reach the same transition: the gateway
// canonicalizes "advance" to the current stage's per-role action before
// validating.
type Action string

const (
	ActionLegalReview          Action = "legal_review"
	ActionDivisionCreate       Action = "division_create"
	ActionSectionReview        Action = "section_review"
	ActionUnitReview           Action = "unit_review"
	ActionMonitoringInspection Action = "monitoring_inspection"
	ActionAdvance              Action = "advance"
	ActionReject               Action = "reject"
)

// ParseAction converts a wire name into an Action.
func ParseAction(name string) (Action, error) {
	switch Action(name) {
	case ActionLegalReview, ActionDivisionCreate, ActionSectionReview,
		ActionUnitReview, ActionMonitoringInspection, ActionAdvance, ActionReject:
		return Action(name), nil
	}
	return "", fmt.Errorf("unknown action %q", name)
}

// canonicalAction returns the per-role action that advances from stage s.
func canonicalAction(s Stage) (Action, bool) {
	switch s {
	case StagePending, StageLegalReview:
		return ActionLegalReview, true
	case StageDivisionCreated:
		return ActionDivisionCreate, true
	case StageSectionReview:
		return ActionSectionReview, true
	case StageUnitReview:
		return ActionUnitReview, true
	case StageMonitoringInspection:
		return ActionMonitoringInspection, true
	default:
		return "", false
	}
}

// DecisionAction is the variant set surfaced to the actor at the point of
// forwarding.
type DecisionAction string

const (
	// DecisionInspect means "I will personally perform the remaining work":
	// the inspection moves straight to monitoring with the actor assigned.
	DecisionInspect DecisionAction = "INSPECT"
	// DecisionForward follows the mandatory chain, honoring the bypass rule.
	DecisionForward DecisionAction = "FORWARD"
	// DecisionForwardToMonitoring skips the unit level regardless of law.
	DecisionForwardToMonitoring DecisionAction = "FORWARD_TO_MONITORING"
	// DecisionComplete closes the inspection; valid only from monitoring.
	DecisionComplete DecisionAction = "COMPLETE"
)

// ParseDecisionAction converts a wire name into a DecisionAction.
func ParseDecisionAction(name string) (DecisionAction, error) {
	switch DecisionAction(name) {
	case DecisionInspect, DecisionForward, DecisionForwardToMonitoring, DecisionComplete:
		return DecisionAction(name), nil
	}
	return "", fmt.Errorf("unknown decision action %q", name)
}
