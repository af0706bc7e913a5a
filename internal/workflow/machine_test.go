package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecogov/be-inspections/internal/apperrors"
)

// fakeResolver returns a canned assignment per target stage.
type fakeResolver struct {
	byStage map[Stage]Assignment
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(_ context.Context, _ Law, _ string, target Stage) (Assignment, error) {
	f.calls++
	if f.err != nil {
		return Assignment{}, f.err
	}
	return f.byStage[target], nil
}

func newTestMachine(resolver AssigneeResolver) *Machine {
	m := NewMachine(NewGateway(), resolver)
	m.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	seq := 0
	m.newID = func() string { seq++; return "hist-" + string(rune('0'+seq)) }
	return m
}

func fullResolver() *fakeResolver {
	return &fakeResolver{byStage: map[Stage]Assignment{
		StageLegalReview:          {Preferred: []Personnel{{ID: "legal-1", Role: RoleLegalUnit}}},
		StageDivisionCreated:      {Preferred: []Personnel{{ID: "div-1", Role: RoleDivisionChief}}},
		StageSectionReview:        {Preferred: []Personnel{{ID: "chief-1", Role: RoleSectionChief}}},
		StageUnitReview:           {Preferred: []Personnel{{ID: "head-1", Role: RoleUnitHead}}},
		StageMonitoringInspection: {Preferred: []Personnel{{ID: "mon-1", Role: RoleMonitoring}}},
	}}
}

func inspectionAt(stage Stage, law Law) *Inspection {
	insp := &Inspection{
		ID:       "insp-1",
		Code:     "INSP-AAAA1111",
		District: "District 2",
		Law:      law,
		Stage:    stage,
	}
	if owner, ok := RoleForStage(stage); ok {
		id := actorFor(stage).ID
		insp.SetAssignee(owner, &id)
	}
	return insp
}

func actorFor(stage Stage) Actor {
	switch stage {
	case StagePending, StageLegalReview:
		return Actor{ID: "legal-0", Name: "A. Reyes", Role: RoleLegalUnit}
	case StageDivisionCreated:
		return Actor{ID: "div-0", Name: "B. Santos", Role: RoleDivisionChief}
	case StageSectionReview:
		return Actor{ID: "chief-0", Name: "C. Lim", Role: RoleSectionChief}
	case StageUnitReview:
		return Actor{ID: "head-0", Name: "D. Tan", Role: RoleUnitHead}
	default:
		return Actor{ID: "mon-0", Name: "E. Ramos", Role: RoleMonitoring}
	}
}

func TestMachineRejectFromEveryActiveStage(t *testing.T) {
	for _, stage := range []Stage{
		StagePending, StageLegalReview, StageDivisionCreated,
		StageSectionReview, StageUnitReview, StageMonitoringInspection,
	} {
		t.Run(stage.String(), func(t *testing.T) {
			resolver := fullResolver()
			m := newTestMachine(resolver)
			insp := inspectionAt(stage, LawCleanAir)

			tr, err := m.Apply(context.Background(), insp, ActionReject, actorFor(stage),
				ActionPayload{Comment: "incomplete documentation"})
			require.NoError(t, err)

			assert.Equal(t, StageRejected, tr.Updated.Stage)
			assert.Equal(t, ActionReject, tr.Entry.Action)
			assert.Equal(t, StageRejected, tr.Entry.Stage)
			assert.Equal(t, "incomplete documentation", tr.Entry.Comment)
			// Reject never consults routing.
			assert.Zero(t, resolver.calls)
			// Input record untouched.
			assert.Equal(t, stage, insp.Stage)
		})
	}
}

func TestMachineRejectFromTerminalStageFails(t *testing.T) {
	m := newTestMachine(fullResolver())
	for _, stage := range []Stage{StageCompleted, StageRejected} {
		insp := inspectionAt(stage, LawCleanAir)
		_, err := m.Apply(context.Background(), insp, ActionReject, actorFor(stage), ActionPayload{})
		assert.Equal(t, apperrors.ErrCodeStageMismatch, apperrors.CodeOf(err), stage.String())
	}
}

func TestMachineForwardChain(t *testing.T) {
	tests := []struct {
		name     string
		stage    Stage
		law      Law
		next     Stage
		assignee string
	}{
		{"pending to legal review", StagePending, LawCleanAir, StageLegalReview, "legal-1"},
		{"legal review to division", StageLegalReview, LawCleanAir, StageDivisionCreated, "div-1"},
		{"division to section", StageDivisionCreated, LawCleanAir, StageSectionReview, "chief-1"},
		{"section to unit", StageSectionReview, LawCleanAir, StageUnitReview, "head-1"},
		{"section bypasses unit for toxic substances", StageSectionReview, LawToxicSubstances, StageMonitoringInspection, "mon-1"},
		{"section bypasses unit for solid waste", StageSectionReview, LawSolidWaste, StageMonitoringInspection, "mon-1"},
		{"unit to monitoring", StageUnitReview, LawCleanAir, StageMonitoringInspection, "mon-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(fullResolver())
			insp := inspectionAt(tt.stage, tt.law)

			tr, err := m.Apply(context.Background(), insp, ActionAdvance, actorFor(tt.stage), ActionPayload{})
			require.NoError(t, err)

			assert.Equal(t, tt.next, tr.Updated.Stage)
			nextRole, _ := RoleForStage(tt.next)
			require.NotNil(t, tr.Updated.AssigneeFor(nextRole))
			assert.Equal(t, tt.assignee, *tr.Updated.AssigneeFor(nextRole))

			// The outgoing stage's assignment is released unless the owner repeats.
			prevRole, _ := RoleForStage(tt.stage)
			if prevRole != nextRole {
				assert.Nil(t, tr.Updated.AssigneeFor(prevRole))
			}
			assert.Equal(t, tt.next, tr.Entry.Stage)
		})
	}
}

func TestMachineCompleteOnlyFromMonitoring(t *testing.T) {
	m := newTestMachine(fullResolver())

	t.Run("from monitoring", func(t *testing.T) {
		insp := inspectionAt(StageMonitoringInspection, LawCleanAir)
		notes := "site visit done"
		tr, err := m.ApplyDecision(context.Background(), insp, DecisionComplete,
			actorFor(StageMonitoringInspection), ActionPayload{InspectionNotes: &notes})
		require.NoError(t, err)

		assert.Equal(t, StageCompleted, tr.Updated.Stage)
		assert.Nil(t, tr.Updated.MonitoringID)
		require.NotNil(t, tr.Updated.InspectionNotes)
		assert.Equal(t, notes, *tr.Updated.InspectionNotes)
	})

	t.Run("anywhere else is a stage mismatch", func(t *testing.T) {
		for _, stage := range []Stage{StagePending, StageSectionReview, StageUnitReview} {
			insp := inspectionAt(stage, LawCleanAir)
			_, err := m.ApplyDecision(context.Background(), insp, DecisionComplete, actorFor(stage), ActionPayload{})
			assert.Equal(t, apperrors.ErrCodeStageMismatch, apperrors.CodeOf(err), stage.String())
		}
	})
}

func TestMachineForwardToMonitoringOnlyFromSectionReview(t *testing.T) {
	m := newTestMachine(fullResolver())

	t.Run("skips the unit level", func(t *testing.T) {
		insp := inspectionAt(StageSectionReview, LawCleanAir)
		tr, err := m.ApplyDecision(context.Background(), insp, DecisionForwardToMonitoring,
			actorFor(StageSectionReview), ActionPayload{})
		require.NoError(t, err)

		assert.Equal(t, StageMonitoringInspection, tr.Updated.Stage)
		require.NotNil(t, tr.Updated.MonitoringID)
		assert.Equal(t, "mon-1", *tr.Updated.MonitoringID)
		assert.Nil(t, tr.Updated.UnitHeadID)
	})

	t.Run("rejected from unit review", func(t *testing.T) {
		insp := inspectionAt(StageUnitReview, LawCleanAir)
		_, err := m.ApplyDecision(context.Background(), insp, DecisionForwardToMonitoring,
			actorFor(StageUnitReview), ActionPayload{})
		assert.Equal(t, apperrors.ErrCodeStageMismatch, apperrors.CodeOf(err))
	})
}

func TestMachineInspectAssignsActor(t *testing.T) {
	for _, stage := range []Stage{StageSectionReview, StageUnitReview} {
		t.Run(stage.String(), func(t *testing.T) {
			resolver := fullResolver()
			m := newTestMachine(resolver)
			insp := inspectionAt(stage, LawCleanAir)
			actor := actorFor(stage)

			tr, err := m.ApplyDecision(context.Background(), insp, DecisionInspect, actor, ActionPayload{})
			require.NoError(t, err)

			assert.Equal(t, StageMonitoringInspection, tr.Updated.Stage)
			require.NotNil(t, tr.Updated.MonitoringID)
			assert.Equal(t, actor.ID, *tr.Updated.MonitoringID)
			// Self-assignment never consults routing.
			assert.Zero(t, resolver.calls)
		})
	}
}

func TestMachineInspectThenComplete(t *testing.T) {
	resolver := fullResolver()
	m := newTestMachine(resolver)
	insp := inspectionAt(StageSectionReview, LawCleanAir)
	actor := actorFor(StageSectionReview)

	tr, err := m.ApplyDecision(context.Background(), insp, DecisionInspect, actor, ActionPayload{})
	require.NoError(t, err)
	monitoring := tr.Updated
	require.Equal(t, StageMonitoringInspection, monitoring.Stage)

	// The same actor finishes the work they took on.
	notes := "performed the site visit personally"
	tr, err = m.ApplyDecision(context.Background(), &monitoring, DecisionComplete, actor,
		ActionPayload{InspectionNotes: &notes})
	require.NoError(t, err)

	assert.Equal(t, StageCompleted, tr.Updated.Stage)
	assert.Nil(t, tr.Updated.MonitoringID)
	require.NotNil(t, tr.Updated.InspectionNotes)
	assert.Equal(t, notes, *tr.Updated.InspectionNotes)
	assert.Zero(t, resolver.calls)
}

func TestMachineNoEligiblePersonnel(t *testing.T) {
	resolver := &fakeResolver{byStage: map[Stage]Assignment{}}
	m := newTestMachine(resolver)
	insp := inspectionAt(StageSectionReview, LawCleanAir)
	before := *insp

	_, err := m.Apply(context.Background(), insp, ActionSectionReview,
		actorFor(StageSectionReview), ActionPayload{})
	assert.Equal(t, apperrors.ErrCodeNoEligiblePersonnel, apperrors.CodeOf(err))
	assert.Equal(t, before, *insp)
}

func TestMachineResolverFailurePropagates(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("directory down")}
	m := newTestMachine(resolver)
	insp := inspectionAt(StagePending, LawCleanAir)

	_, err := m.Apply(context.Background(), insp, ActionAdvance, actorFor(StagePending), ActionPayload{})
	assert.Error(t, err)
}

func TestMachineExplicitAssigneePick(t *testing.T) {
	resolver := &fakeResolver{byStage: map[Stage]Assignment{
		StageUnitReview: {
			Preferred: []Personnel{{ID: "head-1", Role: RoleUnitHead}},
			Fallback:  []Personnel{{ID: "head-2", Role: RoleUnitHead}},
		},
	}}
	m := newTestMachine(resolver)

	t.Run("chosen candidate wins over rank", func(t *testing.T) {
		insp := inspectionAt(StageSectionReview, LawCleanAir)
		chosen := "head-2"
		tr, err := m.Apply(context.Background(), insp, ActionSectionReview,
			actorFor(StageSectionReview), ActionPayload{AssigneeID: &chosen})
		require.NoError(t, err)
		require.NotNil(t, tr.Updated.UnitHeadID)
		assert.Equal(t, "head-2", *tr.Updated.UnitHeadID)
	})

	t.Run("unknown candidate rejected", func(t *testing.T) {
		insp := inspectionAt(StageSectionReview, LawCleanAir)
		chosen := "head-99"
		_, err := m.Apply(context.Background(), insp, ActionSectionReview,
			actorFor(StageSectionReview), ActionPayload{AssigneeID: &chosen})
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
	})
}

func TestMachinePayloadMerge(t *testing.T) {
	m := newTestMachine(fullResolver())
	insp := inspectionAt(StageDivisionCreated, LawCleanAir)
	billing := "BILL-2026-0042"

	tr, err := m.Apply(context.Background(), insp, ActionDivisionCreate,
		actorFor(StageDivisionCreated), ActionPayload{
			Comment:          "routed to section",
			BillingReference: &billing,
		})
	require.NoError(t, err)

	require.NotNil(t, tr.Updated.WorkflowComments)
	assert.Equal(t, "routed to section", *tr.Updated.WorkflowComments)
	require.NotNil(t, tr.Updated.BillingReference)
	assert.Equal(t, billing, *tr.Updated.BillingReference)
	// Untouched payload fields stay nil.
	assert.Nil(t, tr.Updated.ComplianceCallNotes)
}
