package workflow

import "fmt"

// Role is the closed set of workflow actors. Capabilities are resolved by
// exhaustive switch, never by string-keyed lookup, so adding a role without
// updating every dispatch site fails review rather than failing at runtime.
type Role string

const (
	RoleLegalUnit     Role = "legal_unit"
	RoleDivisionChief Role = "division_chief"
	RoleSectionChief  Role = "section_chief"
	RoleUnitHead      Role = "unit_head"
	RoleMonitoring    Role = "monitoring_personnel"
)

// ParseRole converts a wire name into a Role.
func ParseRole(name string) (Role, error) {
	switch Role(name) {
	case RoleLegalUnit, RoleDivisionChief, RoleSectionChief, RoleUnitHead, RoleMonitoring:
		return Role(name), nil
	}
	return "", fmt.Errorf("unknown role %q", name)
}

// Actions returns the fixed catalog of actions r may ever issue. Reject is
// available to every role holding the current assignment, so it appears in
// every catalog.
func (r Role) Actions() []Action {
	switch r {
	case RoleLegalUnit:
		return []Action{ActionLegalReview, ActionAdvance, ActionReject}
	case RoleDivisionChief:
		return []Action{ActionDivisionCreate, ActionAdvance, ActionReject}
	case RoleSectionChief:
		return []Action{ActionSectionReview, ActionAdvance, ActionReject}
	case RoleUnitHead:
		return []Action{ActionUnitReview, ActionAdvance, ActionReject}
	case RoleMonitoring:
		return []Action{ActionMonitoringInspection, ActionAdvance, ActionReject}
	default:
		return nil
	}
}

// Can reports whether action is in r's fixed catalog.
func (r Role) Can(action Action) bool {
	for _, a := range r.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// RoleForStage returns the role responsible for acting at stage s. Terminal
// stages have no owner.
func RoleForStage(s Stage) (Role, bool) {
	switch s {
	case StagePending, StageLegalReview:
		return RoleLegalUnit, true
	case StageDivisionCreated:
		return RoleDivisionChief, true
	case StageSectionReview:
		return RoleSectionChief, true
	case StageUnitReview:
		return RoleUnitHead, true
	case StageMonitoringInspection:
		return RoleMonitoring, true
	default:
		return "", false
	}
}
