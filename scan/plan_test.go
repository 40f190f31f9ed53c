package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPlan_Snake2x2(t *testing.T) {
	plan := BuildPlan(Grid{XRange: Range{0, 100}, YRange: Range{0, 100}, XSteps: 2, YSteps: 2})

	require.Equal(t, []GridPoint{
		{X: 0, Y: 0, Col: 0, Row: 0},
		{X: 100, Y: 0, Col: 1, Row: 0},
		{X: 100, Y: 100, Col: 1, Row: 1},
		{X: 0, Y: 100, Col: 0, Row: 1},
	}, plan)
}

func TestBuildPlan(t *testing.T) {
	tests := []struct {
		description string
		grid        Grid
		expectedX   []int32 // x positions of the first row
		expectedY   []int32 // y position of each row
	}{
		{"five steps", Grid{XRange: Range{0, 100}, YRange: Range{0, 100}, XSteps: 5, YSteps: 5},
			[]int32{0, 25, 50, 75, 100}, []int32{0, 25, 50, 75, 100}},
		{"truncated", Grid{XRange: Range{0, 10}, YRange: Range{0, 10}, XSteps: 4, YSteps: 1},
			[]int32{0, 3, 6, 10}, []int32{0}},
		{"single step uses minimum", Grid{XRange: Range{20, 80}, YRange: Range{-5, 5}, XSteps: 1, YSteps: 1},
			[]int32{20}, []int32{-5}},
		{"descending range", Grid{XRange: Range{100, 0}, YRange: Range{0, 0}, XSteps: 3, YSteps: 1},
			[]int32{100, 50, 0}, []int32{0}},
		{"negative truncates toward zero", Grid{XRange: Range{0, -10}, YRange: Range{0, 0}, XSteps: 4, YSteps: 1},
			[]int32{0, -3, -6, -10}, []int32{0}},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			require := require.New(t)

			plan := BuildPlan(tt.grid)
			require.Len(plan, tt.grid.Points())

			for i, x := range tt.expectedX {
				require.Equal(x, plan[i].X)
				require.Equal(i, plan[i].Col)
			}
			for row, y := range tt.expectedY {
				require.Equal(y, plan[row*tt.grid.XSteps].Y)
			}
		})
	}
}

func TestBuildPlan_OddRowsReversed(t *testing.T) {
	require := require.New(t)

	g := Grid{XRange: Range{0, 30}, YRange: Range{0, 20}, XSteps: 4, YSteps: 3}
	plan := BuildPlan(g)
	require.Len(plan, 12)

	seen := make(map[GridIndex]struct{})
	for i, pt := range plan {
		row := i / g.XSteps
		require.Equal(row, pt.Row)

		expectedCol := i % g.XSteps
		if row%2 == 1 {
			expectedCol = g.XSteps - 1 - expectedCol
		}
		require.Equal(expectedCol, pt.Col)
		seen[pt.Index()] = struct{}{}

		// consecutive points are neighbors
		if i > 0 {
			prev := plan[i-1]
			require.Equal(1, abs(prev.Col-pt.Col)+abs(prev.Row-pt.Row))
		}
	}
	require.Len(seen, 12)
}

func TestBuildPlan_Empty(t *testing.T) {
	require.Empty(t, BuildPlan(Grid{XSteps: 0, YSteps: 3}))
}

func TestGrid_Defaults(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	g := Grid{XSteps: 3}.withDefaults(cfg)
	require.Equal(Grid{XRange: Range{0, 100}, YRange: Range{0, 100}, XSteps: 3, YSteps: 5}, g)
	require.NoError(g.Validate())

	require.ErrorIs(Grid{XSteps: -1, YSteps: 1}.Validate(), ErrConfiguration)
	require.ErrorIs(Grid{XRange: Range{100, 0}, XSteps: 2, YSteps: 2}.Validate(), ErrConfiguration)
	require.ErrorIs(Grid{YRange: Range{0, -1}, XSteps: 2, YSteps: 2}.Validate(), ErrConfiguration)
	require.NoError(Grid{XRange: Range{7, 7}, XSteps: 2, YSteps: 2}.Validate())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
