package workflow

import (
	"context"
	"strings"
	"time"
)

// Inspection is the workflow record moved through the approval pipeline.
// District is derived from the establishment address and never user-editable.
// At most one stage is current; once the stage is terminal no further
// transition is permitted.
type Inspection struct {
	ID                string
	Code              string
	EstablishmentID   string
	EstablishmentName string
	Province          string
	City              string
	District          string
	Law               Law
	Stage             Stage

	// Per-stage assignee references, each unset until routing assigns them.
	LegalUnitID     *string
	DivisionChiefID *string
	SectionChiefID  *string
	UnitHeadID      *string
	MonitoringID    *string

	WorkflowComments *string

	// Role-specific payload fields, merged atomically with transitions.
	BillingReference    *string
	ComplianceCallNotes *string
	InspectionNotes     *string

	CreatedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssigneeFor returns the personnel id assigned for a role, or nil.
func (i *Inspection) AssigneeFor(role Role) *string {
	switch role {
	case RoleLegalUnit:
		return i.LegalUnitID
	case RoleDivisionChief:
		return i.DivisionChiefID
	case RoleSectionChief:
		return i.SectionChiefID
	case RoleUnitHead:
		return i.UnitHeadID
	case RoleMonitoring:
		return i.MonitoringID
	default:
		return nil
	}
}

// SetAssignee records the personnel id for a role; nil clears it.
func (i *Inspection) SetAssignee(role Role, id *string) {
	switch role {
	case RoleLegalUnit:
		i.LegalUnitID = id
	case RoleDivisionChief:
		i.DivisionChiefID = id
	case RoleSectionChief:
		i.SectionChiefID = id
	case RoleUnitHead:
		i.UnitHeadID = id
	case RoleMonitoring:
		i.MonitoringID = id
	}
}

// Personnel is one registry entry eligible for workflow assignment.
type Personnel struct {
	ID       string
	Name     string
	Role     Role
	District string
	// SectionKey is the comma-joined list of statute codes the person serves,
	// e.g. "RA-8749,RA-9003".
	SectionKey string
	Active     bool
}

// ServesLaw reports whether the personnel record covers the statute.
func (p Personnel) ServesLaw(law Law) bool {
	for _, code := range strings.Split(p.SectionKey, ",") {
		if Law(strings.TrimSpace(code)) == law {
			return true
		}
	}
	return false
}

// Assignment is the resolver output: eligible personnel partitioned into
// district matches (shown first) and everyone else.
type Assignment struct {
	Preferred []Personnel
	Fallback  []Personnel
}

// Empty reports a routing dead-end.
func (a Assignment) Empty() bool {
	return len(a.Preferred) == 0 && len(a.Fallback) == 0
}

// Candidates returns preferred then fallback personnel in rank order.
func (a Assignment) Candidates() []Personnel {
	out := make([]Personnel, 0, len(a.Preferred)+len(a.Fallback))
	out = append(out, a.Preferred...)
	out = append(out, a.Fallback...)
	return out
}

// AssigneeResolver resolves the eligible personnel for a target stage.
// Implemented by routing.Resolver; faked in tests.
type AssigneeResolver interface {
	Resolve(ctx context.Context, law Law, district string, target Stage) (Assignment, error)
}

// Actor identifies who is issuing an action.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// HistoryEntry is one immutable record in an inspection's audit trail,
// created exactly once per accepted transition.
type HistoryEntry struct {
	ID           string
	InspectionID string
	Action       Action
	ActorID      string
	ActorName    string
	ActorRole    Role
	Comment      string
	Stage        Stage // resulting stage
	CreatedAt    time.Time
}

// ActionPayload carries the role-specific fields merged into the record at
// commit time. AssigneeID optionally picks the next assignee from the
// resolver's candidates; when unset the top-ranked candidate is used.
type ActionPayload struct {
	Comment             string
	BillingReference    *string
	ComplianceCallNotes *string
	InspectionNotes     *string
	AssigneeID          *string
}

// Transition is the atomic output of a validated apply: the updated record
// and its history entry are committed together or not at all.
type Transition struct {
	Updated Inspection
	Entry   HistoryEntry
}
