package aggregate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

func det(tool int64, artifact uuid.UUID, label string) entity.Detection {
	id := entity.ToolID(tool)
	return entity.Detection{ID: uuid.New(), ToolID: &id, Label: label, OriginalArtifactID: artifact}
}

func unknownDet(artifact uuid.UUID) entity.Detection {
	return entity.Detection{ID: uuid.New(), Label: "unmapped", OriginalArtifactID: artifact}
}

func TestMergeTakesMaxPerTool(t *testing.T) {
	frameA, frameB := uuid.New(), uuid.New()
	groups := []entity.DetectionGroup{
		{OriginalArtifactID: frameA, Detections: []entity.Detection{
			det(5, frameA, "a5-1"), det(5, frameA, "a5-2"), det(7, frameA, "a7"),
		}},
		{OriginalArtifactID: frameB, Detections: []entity.Detection{
			det(5, frameB, "b5"), det(9, frameB, "b9"),
		}},
	}

	merged := Merge(groups)
	ids, unknown := ToolIDs(merged)
	assert.Equal(t, []entity.ToolID{5, 5, 7, 9}, ids)
	assert.Zero(t, unknown)
	for _, d := range merged[:2] {
		assert.Equal(t, frameA, d.OriginalArtifactID)
	}
}

func TestMergeFirstMaximumWins(t *testing.T) {
	frameA, frameB := uuid.New(), uuid.New()
	groups := []entity.DetectionGroup{
		{OriginalArtifactID: frameA, Detections: []entity.Detection{det(3, frameA, "first")}},
		{OriginalArtifactID: frameB, Detections: []entity.Detection{det(3, frameB, "second")}},
	}

	merged := Merge(groups)
	require.Len(t, merged, 1)
	assert.Equal(t, "first", merged[0].Label)

	// a strictly larger later group does replace the kept one
	groups = append(groups, entity.DetectionGroup{
		OriginalArtifactID: uuid.Nil,
		Detections:         []entity.Detection{det(3, uuid.Nil, "third-1"), det(3, uuid.Nil, "third-2")},
	})
	merged = Merge(groups)
	require.Len(t, merged, 2)
	assert.Equal(t, "third-1", merged[0].Label)
	assert.Equal(t, "third-2", merged[1].Label)
}

func TestMergeUnknownToolsFormOwnGroupLast(t *testing.T) {
	frameA, frameB := uuid.New(), uuid.New()
	groups := []entity.DetectionGroup{
		{OriginalArtifactID: frameA, Detections: []entity.Detection{det(2, frameA, "a2"), unknownDet(frameA)}},
		{OriginalArtifactID: frameB, Detections: []entity.Detection{det(1, frameB, "b1"), unknownDet(frameB), unknownDet(frameB)}},
	}

	merged := Merge(groups)
	ids, unknown := ToolIDs(merged)
	assert.Equal(t, []entity.ToolID{1, 2}, ids)
	assert.Equal(t, 2, unknown)
	require.Len(t, merged, 4)
	assert.Nil(t, merged[2].ToolID)
	assert.Nil(t, merged[3].ToolID)
	assert.Equal(t, frameB, merged[3].OriginalArtifactID)
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)

	ids, unknown := ToolIDs(merged)
	assert.Empty(t, ids)
	assert.Zero(t, unknown)
}

func TestMergeIsIdempotent(t *testing.T) {
	frameA, frameB := uuid.New(), uuid.New()
	groups := []entity.DetectionGroup{
		{OriginalArtifactID: frameA, Detections: []entity.Detection{det(4, frameA, "x"), det(8, frameA, "y")}},
		{OriginalArtifactID: frameB, Detections: []entity.Detection{det(4, frameB, "z"), det(4, frameB, "w"), unknownDet(frameB)}},
	}
	assert.Equal(t, Merge(groups), Merge(groups))
}

func TestEqualMultiset(t *testing.T) {
	tests := []struct {
		name string
		a, b []entity.ToolID
		want bool
	}{
		{"identical", []entity.ToolID{5, 5, 7, 9}, []entity.ToolID{5, 5, 7, 9}, true},
		{"order-insensitive", []entity.ToolID{9, 5, 7, 5}, []entity.ToolID{5, 5, 7, 9}, true},
		{"duplicate counts matter", []entity.ToolID{5, 5, 7, 9}, []entity.ToolID{5, 7, 9, 9}, false},
		{"length differs", []entity.ToolID{5}, []entity.ToolID{5, 5}, false},
		{"both empty", nil, []entity.ToolID{}, true},
		{"empty vs non-empty", nil, []entity.ToolID{3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EqualMultiset(tt.a, tt.b))
		})
	}
}

func TestDiff(t *testing.T) {
	got := Diff([]entity.ToolID{1, 1, 1, 2, 3}, []entity.ToolID{1, 3, 4})
	assert.Equal(t, map[entity.ToolID]int{1: 2, 2: 1}, got)
	assert.Empty(t, Diff([]entity.ToolID{1}, []entity.ToolID{1, 1}))
}
