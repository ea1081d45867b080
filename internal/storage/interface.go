package storage

// Interface defines the contract for session and history persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call these methods from multiple
// goroutines.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent
// readers and writers.
type Interface interface {
	// Session management
	GetCurrentSession() *SessionRecord
	SetCurrentSession(rec *SessionRecord) error
	UpdateProgress(lastPrice, lastMA float64, pointCount int) error
	CloseSession() error

	// Data persistence
	Save() error
	Load() error

	// Historical data and analytics
	GetHistory() []SessionRecord
	HasInHistory(id string) bool
	GetStatistics() Statistics
}

// NewStorage creates a new storage implementation (currently JSON-based).
// In the future, this can be extended to support different storage backends.
func NewStorage(path string) (Interface, error) {
	return NewJSONStorage(path)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
