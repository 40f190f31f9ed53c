package scan

import "fmt"

// Grid describes the points of a raster scan. Zero fields take the defaults
// of the scan configuration.
type Grid struct {
	XRange Range
	YRange Range
	XSteps int
	YSteps int
}

// Points returns the number of grid points.
func (g Grid) Points() int { return g.XSteps * g.YSteps }

func (g Grid) withDefaults(cfg *Config) Grid {
	if g.XRange.IsZero() {
		g.XRange = cfg.DefaultXRange
	}
	if g.YRange.IsZero() {
		g.YRange = cfg.DefaultYRange
	}
	if g.XSteps == 0 {
		g.XSteps = cfg.DefaultXSteps
	}
	if g.YSteps == 0 {
		g.YSteps = cfg.DefaultYSteps
	}

	return g
}

// Validate checks the step counts and that neither range is reversed.
func (g Grid) Validate() error {
	if g.XSteps < 1 || g.YSteps < 1 {
		return fmt.Errorf("%w: grid needs at least one step per axis, got %dx%d", ErrConfiguration, g.XSteps, g.YSteps)
	}
	if !g.XRange.Valid() {
		return fmt.Errorf("%w: x range %s has min above max", ErrConfiguration, g.XRange)
	}
	if !g.YRange.Valid() {
		return fmt.Errorf("%w: y range %s has min above max", ErrConfiguration, g.YRange)
	}

	return nil
}

// GridIndex identifies a grid point by row and column.
type GridIndex struct {
	Row int
	Col int
}

func (i GridIndex) String() string {
	return fmt.Sprintf("(row %d, col %d)", i.Row, i.Col)
}

// GridPoint is a planned scan position.
type GridPoint struct {
	X   int32
	Y   int32
	Col int
	Row int
}

// Index returns the grid index of the point.
func (p GridPoint) Index() GridIndex {
	return GridIndex{Row: p.Row, Col: p.Col}
}

// BuildPlan returns the grid points in snake order. Positions are linearly
// interpolated by step index across each range and truncated toward zero; an
// axis with a single step stays at the range minimum. Odd rows run from the
// last column back to the first.
func BuildPlan(g Grid) []GridPoint {
	if g.XSteps < 1 || g.YSteps < 1 {
		return nil
	}

	plan := make([]GridPoint, 0, g.Points())
	for row := range g.YSteps {
		y := interpolate(g.YRange, row, g.YSteps)
		for i := range g.XSteps {
			col := i
			if row%2 == 1 {
				col = g.XSteps - 1 - i
			}
			plan = append(plan, GridPoint{
				X:   interpolate(g.XRange, col, g.XSteps),
				Y:   y,
				Col: col,
				Row: row,
			})
		}
	}

	return plan
}

func interpolate(r Range, idx, steps int) int32 {
	span := float64(r.Max) - float64(r.Min)
	return int32(float64(r.Min) + span*float64(idx)/float64(max(1, steps-1)))
}
