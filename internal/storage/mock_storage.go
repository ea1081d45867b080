package storage

// MockStorage implements Interface for testing
type MockStorage struct {
	saveError      error
	loadError      error
	currentSession *SessionRecord
	statistics     Statistics
	history        []SessionRecord
	saveCallCount  int
	loadCallCount  int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// Session management methods
func (m *MockStorage) GetCurrentSession() *SessionRecord {
	return m.currentSession
}

func (m *MockStorage) SetCurrentSession(rec *SessionRecord) error {
	m.currentSession = rec
	return m.saveError
}

func (m *MockStorage) UpdateProgress(lastPrice, lastMA float64, pointCount int) error {
	if m.currentSession == nil {
		return ErrNoActiveSession
	}
	m.currentSession.LastPrice = lastPrice
	m.currentSession.LastMA = lastMA
	m.currentSession.PointCount = pointCount
	return m.saveError
}

func (m *MockStorage) CloseSession() error {
	if m.currentSession == nil {
		return ErrNoActiveSession
	}
	m.history = append(m.history, *m.currentSession)
	m.statistics.TotalSessions++
	if m.currentSession.OrderID != "" {
		m.statistics.OrdersSubmitted++
	}
	m.currentSession = nil
	return m.saveError
}

// Data persistence methods (mocked)
func (m *MockStorage) Save() error {
	m.saveCallCount++
	return m.saveError
}

func (m *MockStorage) Load() error {
	m.loadCallCount++
	return m.loadError
}

// Historical data and analytics
func (m *MockStorage) GetHistory() []SessionRecord {
	return m.history
}

func (m *MockStorage) HasInHistory(id string) bool {
	for _, rec := range m.history {
		if rec.ID == id {
			return true
		}
	}
	return false
}

func (m *MockStorage) GetStatistics() Statistics {
	return m.statistics
}

// Mock control methods for testing
func (m *MockStorage) SetSaveError(err error) {
	m.saveError = err
}

func (m *MockStorage) SetLoadError(err error) {
	m.loadError = err
}

func (m *MockStorage) GetSaveCallCount() int {
	return m.saveCallCount
}

func (m *MockStorage) AddHistoryRecord(rec SessionRecord) {
	m.history = append(m.history, rec)
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)
