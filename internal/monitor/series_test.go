package monitor

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestSeries_MovingAverageAvailability(t *testing.T) {
	s := NewSeries(10)
	base := time.Date(2025, 8, 15, 14, 30, 0, 0, time.UTC)

	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 2.00 + float64(i)*0.10
		s.Append(base.Add(time.Duration(i)*time.Minute), prices[i])
	}

	for i := 0; i <= 8; i++ {
		if _, ok := s.MA(i); ok {
			t.Errorf("MA(%d) available before a full window", i)
		}
	}

	// At index 9 the average covers prices[0..9].
	ma, ok := s.MA(9)
	if !ok {
		t.Fatal("MA(9) unavailable with a full window")
	}
	want := mean(prices[0:10])
	if math.Abs(ma-want) > 1e-9 {
		t.Errorf("MA(9) = %.6f, want %.6f", ma, want)
	}

	// At index 14 the window has slid to prices[5..14].
	ma, ok = s.MA(14)
	if !ok {
		t.Fatal("MA(14) unavailable")
	}
	want = mean(prices[5:15])
	if math.Abs(ma-want) > 1e-9 {
		t.Errorf("MA(14) = %.6f, want %.6f", ma, want)
	}
}

func TestSeries_State(t *testing.T) {
	s := NewSeries(3)
	if s.State() != SeriesEmpty {
		t.Errorf("state = %q, want empty", s.State())
	}
	s.Append(time.Now(), 1.00)
	if s.State() != SeriesPartial {
		t.Errorf("state = %q, want partial", s.State())
	}
	s.Append(time.Now(), 1.10)
	s.Append(time.Now(), 1.20)
	if s.State() != SeriesFull {
		t.Errorf("state = %q, want full", s.State())
	}
}

func TestSeries_Backfill(t *testing.T) {
	s := NewSeries(3)
	base := time.Date(2025, 8, 15, 13, 0, 0, 0, time.UTC)
	s.Backfill([]Point{
		{Time: base, Price: 2.00},
		{Time: base.Add(time.Minute), Price: 2.10},
		{Time: base.Add(2 * time.Minute), Price: 2.20},
	})
	s.Append(base.Add(3*time.Minute), 2.30)

	if s.Len() != 4 {
		t.Fatalf("len = %d, want 4", s.Len())
	}
	// The live point's average spans the last two backfilled points too.
	ma, ok := s.MA(3)
	if !ok {
		t.Fatal("MA(3) unavailable")
	}
	want := (2.10 + 2.20 + 2.30) / 3
	if math.Abs(ma-want) > 1e-9 {
		t.Errorf("MA(3) = %.6f, want %.6f", ma, want)
	}
}

func TestSeries_Latest(t *testing.T) {
	s := NewSeries(2)
	if _, _, hasPoint, _ := s.Latest(); hasPoint {
		t.Fatal("empty series reported a latest point")
	}

	s.Append(time.Now(), 1.50)
	p, _, hasPoint, hasMA := s.Latest()
	if !hasPoint || hasMA {
		t.Fatalf("one point: hasPoint=%v hasMA=%v, want true/false", hasPoint, hasMA)
	}
	if p.Price != 1.50 {
		t.Errorf("latest price = %.2f", p.Price)
	}

	s.Append(time.Now(), 2.50)
	_, ma, _, hasMA := s.Latest()
	if !hasMA {
		t.Fatal("two points with window 2: average should be available")
	}
	if math.Abs(ma-2.00) > 1e-9 {
		t.Errorf("latest MA = %.6f, want 2.00", ma)
	}
}

func TestSeries_Snapshot(t *testing.T) {
	s := NewSeries(2)
	base := time.Date(2025, 8, 15, 13, 0, 0, 0, time.UTC)
	s.Append(base, 1.00)
	s.Append(base.Add(time.Minute), 3.00)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	if snap[0].MA != nil {
		t.Error("first point should have no average")
	}
	if snap[1].MA == nil || math.Abs(*snap[1].MA-2.00) > 1e-9 {
		t.Errorf("second point MA = %v, want 2.00", snap[1].MA)
	}
}

func TestSeries_ConcurrentAppendAndRead(t *testing.T) {
	s := NewSeries(5)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Append(time.Now(), float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Snapshot()
			s.State()
			s.Latest()
		}
	}()
	wg.Wait()
	if s.Len() != 200 {
		t.Errorf("len = %d, want 200", s.Len())
	}
}

func TestNewSession(t *testing.T) {
	sess := NewSession("BP", "BP250815C00030000", "BP250815C00032500", "2025-08-15", 2, 10)
	if sess.ID == "" {
		t.Error("session ID not assigned")
	}
	if sess.Series == nil || sess.Series.Window() != 10 {
		t.Error("series not initialized with requested window")
	}
	sess.Record(2.20)
	if sess.Series.Len() != 1 {
		t.Error("Record did not append to the series")
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
