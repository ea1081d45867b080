package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SpreadLeg is one persisted leg of a recorded spread.
type SpreadLeg struct {
	Symbol string  `json:"symbol"`
	Strike float64 `json:"strike"`
	Side   string  `json:"side"` // long | short
}

// SessionRecord is one monitoring session's outcome: the spread watched,
// the pricing at open, and whatever order left the process.
type SessionRecord struct {
	ID          string     `json:"id"`
	Underlying  string     `json:"underlying"`
	Expiration  string     `json:"expiration"`
	Long        SpreadLeg  `json:"long"`
	Short       SpreadLeg  `json:"short"`
	Quantity    int        `json:"quantity"`
	Direction   string     `json:"direction"` // debit | credit
	PerContract float64    `json:"per_contract"`
	Total       float64    `json:"total"`
	OrderID     string     `json:"order_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	LastPrice   float64    `json:"last_price"`
	LastMA      float64    `json:"last_ma"`
	PointCount  int        `json:"point_count"`
}

// Statistics summarizes the recorded session history.
type Statistics struct {
	TotalSessions   int     `json:"total_sessions"`
	OrdersSubmitted int     `json:"orders_submitted"`
	TotalDebit      float64 `json:"total_debit"`
	TotalCredit     float64 `json:"total_credit"`
}

type storageData struct {
	CurrentSession *SessionRecord  `json:"current_session"`
	History        []SessionRecord `json:"history"`
	Statistics     *Statistics     `json:"statistics"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// JSONStorage persists session data to a single JSON file. All methods are
// safe for concurrent use.
type JSONStorage struct {
	mu   sync.RWMutex
	path string
	data *storageData
}

// NewJSONStorage creates a JSON file store at path, loading existing data
// when the file is already present.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		path: path,
		data: &storageData{
			Statistics: &Statistics{},
		},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the backing file into memory.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return err
	}
	if s.data.Statistics == nil {
		s.data.Statistics = &Statistics{}
	}

	return nil
}

// Save writes the in-memory state to disk via a temp file and atomic
// rename.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.path)
}

// GetCurrentSession returns a copy of the active session record, or nil.
func (s *JSONStorage) GetCurrentSession() *SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.CurrentSession == nil {
		return nil
	}
	rec := *s.data.CurrentSession
	return &rec
}

// SetCurrentSession records the active session and persists.
func (s *JSONStorage) SetCurrentSession(rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CurrentSession = rec
	return s.saveLocked()
}

// UpdateProgress refreshes the active session's latest mark without
// rewriting its identity fields.
func (s *JSONStorage) UpdateProgress(lastPrice, lastMA float64, pointCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.CurrentSession == nil {
		return ErrNoActiveSession
	}
	s.data.CurrentSession.LastPrice = lastPrice
	s.data.CurrentSession.LastMA = lastMA
	s.data.CurrentSession.PointCount = pointCount
	return s.saveLocked()
}

// CloseSession ends the active session, moves it to history, and updates
// statistics.
func (s *JSONStorage) CloseSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.CurrentSession == nil {
		return ErrNoActiveSession
	}

	now := time.Now().UTC()
	s.data.CurrentSession.EndedAt = &now
	s.data.History = append(s.data.History, *s.data.CurrentSession)
	s.updateStatisticsLocked(s.data.CurrentSession)
	s.data.CurrentSession = nil

	return s.saveLocked()
}

func (s *JSONStorage) updateStatisticsLocked(rec *SessionRecord) {
	stats := s.data.Statistics
	stats.TotalSessions++
	if rec.OrderID != "" {
		stats.OrdersSubmitted++
	}
	switch rec.Direction {
	case "debit":
		stats.TotalDebit += rec.Total
	case "credit":
		stats.TotalCredit += rec.Total
	}
}

// GetHistory returns a copy of all recorded sessions.
func (s *JSONStorage) GetHistory() []SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionRecord, len(s.data.History))
	copy(out, s.data.History)
	return out
}

// HasInHistory reports whether a session ID was already recorded.
func (s *JSONStorage) HasInHistory(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.data.History {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// GetStatistics returns a copy of the aggregate statistics.
func (s *JSONStorage) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.data.Statistics
}
