// Package monitor maintains the live price series for a spread being
// watched: an append-only sequence of marks plus a fixed-window trailing
// moving average. A Session owns one series for the lifetime of a
// monitoring run; nothing here is ambient process state.
package monitor

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// Point is one observed spread price.
type Point struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// SeriesState describes how much history the series holds relative to its
// moving-average window.
type SeriesState string

const (
	// SeriesEmpty means no points have been recorded.
	SeriesEmpty SeriesState = "empty"
	// SeriesPartial means points exist but fewer than the window, so no
	// average is available yet.
	SeriesPartial SeriesState = "partial"
	// SeriesFull means at least one full window of points exists.
	SeriesFull SeriesState = "full"
)

// Series is a time-ordered price series with a trailing moving average over
// a fixed window. Safe for concurrent append and read; the dashboard reads
// while the monitor loop appends.
type Series struct {
	mu     sync.RWMutex
	window int
	points []Point
	avgs   []float64 // avgs[i] is the mean of points[i-window+1..i]; valid for i >= window-1
}

// NewSeries creates a series with the given moving-average window. Windows
// below 1 are treated as 1.
func NewSeries(window int) *Series {
	if window < 1 {
		window = 1
	}
	return &Series{window: window}
}

// Window returns the moving-average window size.
func (s *Series) Window() int { return s.window }

// Append records one live point and extends the moving average.
func (s *Series) Append(t time.Time, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(Point{Time: t, Price: price})
}

// Backfill prepends nothing: historical points must arrive before live
// appends, in chronological order, and are recorded the same way. Calling
// it after live points have been appended is a programming error and the
// points are appended at the end regardless; ordering is the caller's
// contract.
func (s *Series) Backfill(points []Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.appendLocked(p)
	}
}

func (s *Series) appendLocked(p Point) {
	s.points = append(s.points, p)
	n := len(s.points)
	if n < s.window {
		s.avgs = append(s.avgs, 0)
		return
	}
	tail := make([]float64, 0, s.window)
	for _, q := range s.points[n-s.window:] {
		tail = append(tail, q.Price)
	}
	mean, err := stats.Mean(tail)
	if err != nil {
		// Mean only fails on empty input, which cannot happen here.
		mean = 0
	}
	s.avgs = append(s.avgs, mean)
}

// Len returns the number of recorded points.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// At returns the i'th point.
func (s *Series) At(i int) Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[i]
}

// MA returns the trailing moving average at index i and whether it is
// available yet. It is unavailable for indices before a full window has
// accumulated.
func (s *Series) MA(i int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.avgs) || i < s.window-1 {
		return 0, false
	}
	return s.avgs[i], true
}

// Latest returns the most recent point and its moving average, if any
// points exist. The bool results report point presence and average
// availability respectively.
func (s *Series) Latest() (Point, float64, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.points)
	if n == 0 {
		return Point{}, 0, false, false
	}
	p := s.points[n-1]
	if n-1 < s.window-1 {
		return p, 0, true, false
	}
	return p, s.avgs[n-1], true, true
}

// State reports how filled the series is relative to its window.
func (s *Series) State() SeriesState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case len(s.points) == 0:
		return SeriesEmpty
	case len(s.points) < s.window:
		return SeriesPartial
	default:
		return SeriesFull
	}
}

// SnapshotPoint pairs a point with its average for serialization.
type SnapshotPoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
	MA    *float64  `json:"ma,omitempty"`
}

// Snapshot copies the whole series for dashboard serialization. Averages
// are nil where not yet available.
func (s *Series) Snapshot() []SnapshotPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SnapshotPoint, len(s.points))
	for i, p := range s.points {
		sp := SnapshotPoint{Time: p.Time, Price: p.Price}
		if i >= s.window-1 {
			v := s.avgs[i]
			sp.MA = &v
		}
		out[i] = sp
	}
	return out
}
