package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

// TestInterface tests the storage interface with both implementations
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("JSONStorage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sessions.json")
		s, err := NewJSONStorage(path)
		if err != nil {
			t.Fatalf("Failed to create JSON storage: %v", err)
		}
		testInterface(t, s)
	})
}

// testInterface runs common tests on any storage implementation
func testInterface(t *testing.T, s Interface) {
	if s.GetCurrentSession() != nil {
		t.Error("Expected no current session initially")
	}
	if err := s.UpdateProgress(1, 1, 1); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("UpdateProgress without session: got %v, want ErrNoActiveSession", err)
	}
	if err := s.CloseSession(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("CloseSession without session: got %v, want ErrNoActiveSession", err)
	}

	rec := testRecord("sess-abc")
	rec.OrderID = "order-1"
	if err := s.SetCurrentSession(rec); err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}

	got := s.GetCurrentSession()
	if got == nil || got.ID != "sess-abc" {
		t.Fatalf("GetCurrentSession = %+v", got)
	}

	if err := s.UpdateProgress(2.10, 2.05, 5); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	got = s.GetCurrentSession()
	if got.LastPrice != 2.10 || got.LastMA != 2.05 || got.PointCount != 5 {
		t.Errorf("progress not recorded: %+v", got)
	}

	if err := s.CloseSession(); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if s.GetCurrentSession() != nil {
		t.Error("Expected no current session after close")
	}

	history := s.GetHistory()
	if len(history) != 1 || history[0].ID != "sess-abc" {
		t.Fatalf("history = %+v", history)
	}
	if !s.HasInHistory("sess-abc") {
		t.Error("HasInHistory missed a recorded session")
	}
	if s.HasInHistory("sess-unknown") {
		t.Error("HasInHistory matched an unknown ID")
	}

	stats := s.GetStatistics()
	if stats.TotalSessions != 1 {
		t.Errorf("TotalSessions = %d, want 1", stats.TotalSessions)
	}
	if stats.OrdersSubmitted != 1 {
		t.Errorf("OrdersSubmitted = %d, want 1", stats.OrdersSubmitted)
	}
}

func TestMockStorage_Errors(t *testing.T) {
	m := NewMockStorage()
	wantErr := errors.New("disk full")
	m.SetSaveError(wantErr)
	if err := m.Save(); !errors.Is(err, wantErr) {
		t.Errorf("Save = %v, want injected error", err)
	}
	if m.GetSaveCallCount() != 1 {
		t.Errorf("save call count = %d", m.GetSaveCallCount())
	}
}
