package workflow

import "fmt"

// Stage is one discrete state in the inspection approval lifecycle. Stages
// are strictly ordered; REJECTED is reachable from any non-terminal stage and
// no stage may otherwise transition to a lower order.
type Stage int

const (
	StagePending Stage = iota
	StageLegalReview
	StageDivisionCreated
	StageSectionReview
	StageUnitReview
	StageMonitoringInspection
	StageCompleted
	StageRejected
)

var stageNames = map[Stage]string{
	StagePending:              "PENDING",
	StageLegalReview:          "LEGAL_REVIEW",
	StageDivisionCreated:      "DIVISION_CREATED",
	StageSectionReview:        "SECTION_REVIEW",
	StageUnitReview:           "UNIT_REVIEW",
	StageMonitoringInspection: "MONITORING_INSPECTION",
	StageCompleted:            "COMPLETED",
	StageRejected:             "REJECTED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage converts a wire name back into a Stage.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Terminal reports whether s has no outgoing transitions.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageRejected
}

// Next returns the stage a forward action moves to from s, applying the
// unit-review bypass for the non-general statutes.
func (s Stage) Next(law Law) (Stage, error) {
	switch s {
	case StagePending:
		return StageLegalReview, nil
	case StageLegalReview:
		return StageDivisionCreated, nil
	case StageDivisionCreated:
		return StageSectionReview, nil
	case StageSectionReview:
		if law.BypassesUnitReview() {
			return StageMonitoringInspection, nil
		}
		return StageUnitReview, nil
	case StageUnitReview:
		return StageMonitoringInspection, nil
	case StageMonitoringInspection:
		return StageCompleted, nil
	case StageCompleted, StageRejected:
		return s, fmt.Errorf("stage %s is terminal", s)
	default:
		return s, fmt.Errorf("unknown stage %d", int(s))
	}
}
