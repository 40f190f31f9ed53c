package scan

import (
	"maps"
	"time"

	"github.com/arloliu/go-xystage/stage"
)

// Progress tracks the completed points of a scan.
type Progress struct {
	// CompletedPoints is the number of points completed by the current run.
	CompletedPoints int
	// TotalPoints is the number of points planned for the current run. A
	// resumed run plans only the points missing from Done.
	TotalPoints int
	// Current is the last completed point, or the failed point after a
	// failure.
	Current GridIndex
	// Done holds every completed point since the scan was initialized.
	Done map[GridIndex]struct{}
}

func newProgress(total int) Progress {
	return Progress{TotalPoints: total, Done: make(map[GridIndex]struct{}, total)}
}

// IsDone reports whether the point at idx has been completed.
func (p Progress) IsDone(idx GridIndex) bool {
	_, ok := p.Done[idx]
	return ok
}

// Percent returns the completed share of the current run.
func (p Progress) Percent() float64 {
	if p.TotalPoints == 0 {
		return 100
	}

	return float64(p.CompletedPoints) * 100 / float64(p.TotalPoints)
}

// Clone returns a deep copy.
func (p Progress) Clone() Progress {
	p.Done = maps.Clone(p.Done)
	if p.Done == nil {
		p.Done = map[GridIndex]struct{}{}
	}

	return p
}

func (p *Progress) complete(pt GridPoint) {
	p.CompletedPoints++
	p.Current = pt.Index()
	p.Done[pt.Index()] = struct{}{}
}

// Report describes a completed scan point.
type Report struct {
	Point     GridPoint
	Actual    stage.Position
	Completed int
	Total     int
	Percent   float64
	Elapsed   time.Duration
	// ETA is the expected remaining time at the current point rate.
	ETA time.Duration
}

func newReport(pt GridPoint, actual stage.Position, p Progress, elapsed time.Duration) Report {
	r := Report{
		Point:     pt,
		Actual:    actual,
		Completed: p.CompletedPoints,
		Total:     p.TotalPoints,
		Percent:   p.Percent(),
		Elapsed:   elapsed,
	}
	if p.CompletedPoints > 0 {
		perPoint := elapsed / time.Duration(p.CompletedPoints)
		r.ETA = perPoint * time.Duration(p.TotalPoints-p.CompletedPoints)
	}

	return r
}
