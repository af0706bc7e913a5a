package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrdering(t *testing.T) {
	ordered := []Stage{
		StagePending, StageLegalReview, StageDivisionCreated,
		StageSectionReview, StageUnitReview, StageMonitoringInspection,
		StageCompleted,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, int(ordered[i-1]), int(ordered[i]))
	}
}

func TestStageTerminal(t *testing.T) {
	assert.True(t, StageCompleted.Terminal())
	assert.True(t, StageRejected.Terminal())
	for _, s := range []Stage{
		StagePending, StageLegalReview, StageDivisionCreated,
		StageSectionReview, StageUnitReview, StageMonitoringInspection,
	} {
		assert.False(t, s.Terminal(), s.String())
	}
}

func TestStageNextNeverMovesBackward(t *testing.T) {
	for _, law := range Laws() {
		for s := StagePending; s <= StageMonitoringInspection; s++ {
			next, err := s.Next(law)
			require.NoError(t, err)
			assert.Greater(t, int(next), int(s), "%s under %s", s, law)
		}
	}
}

func TestStageNextBypass(t *testing.T) {
	tests := []struct {
		law  Law
		want Stage
	}{
		{LawToxicSubstances, StageMonitoringInspection},
		{LawSolidWaste, StageMonitoringInspection},
		{LawCleanAir, StageUnitReview},
		{LawCleanWater, StageUnitReview},
		{LawEIS, StageUnitReview},
	}
	for _, tt := range tests {
		next, err := StageSectionReview.Next(tt.law)
		require.NoError(t, err)
		assert.Equal(t, tt.want, next, string(tt.law))
	}
}

func TestStageNextTerminalFails(t *testing.T) {
	_, err := StageCompleted.Next(LawCleanAir)
	assert.Error(t, err)
	_, err = StageRejected.Next(LawCleanAir)
	assert.Error(t, err)
}

func TestParseStageRoundTrip(t *testing.T) {
	for s := StagePending; s <= StageRejected; s++ {
		parsed, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStage("NOT_A_STAGE")
	assert.Error(t, err)
}

func TestRoleForStage(t *testing.T) {
	tests := []struct {
		stage Stage
		want  Role
	}{
		{StagePending, RoleLegalUnit},
		{StageLegalReview, RoleLegalUnit},
		{StageDivisionCreated, RoleDivisionChief},
		{StageSectionReview, RoleSectionChief},
		{StageUnitReview, RoleUnitHead},
		{StageMonitoringInspection, RoleMonitoring},
	}
	for _, tt := range tests {
		role, ok := RoleForStage(tt.stage)
		require.True(t, ok, tt.stage.String())
		assert.Equal(t, tt.want, role)
	}

	_, ok := RoleForStage(StageCompleted)
	assert.False(t, ok)
	_, ok = RoleForStage(StageRejected)
	assert.False(t, ok)
}

func TestPersonnelServesLaw(t *testing.T) {
	p := Personnel{SectionKey: "RA-8749, RA-9003"}
	assert.True(t, p.ServesLaw(LawCleanAir))
	assert.True(t, p.ServesLaw(LawSolidWaste))
	assert.False(t, p.ServesLaw(LawCleanWater))
}
