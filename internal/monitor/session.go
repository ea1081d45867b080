package monitor

import (
	"time"

	"github.com/google/uuid"
)

// Session owns the monitoring state for one spread: its identity, the price
// series, and the session lifecycle timestamps. It is created when
// monitoring starts and discarded when it ends; callers pass it explicitly
// rather than reading shared globals.
type Session struct {
	ID          string    `json:"id"`
	Underlying  string    `json:"underlying"`
	LongSymbol  string    `json:"long_symbol"`
	ShortSymbol string    `json:"short_symbol"`
	Expiration  string    `json:"expiration"`
	Quantity    int       `json:"quantity"`
	StartedAt   time.Time `json:"started_at"`

	Series *Series `json:"-"`
}

// NewSession starts a monitoring session for the given spread legs.
func NewSession(underlying, longSymbol, shortSymbol, expiration string, quantity, window int) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Underlying:  underlying,
		LongSymbol:  longSymbol,
		ShortSymbol: shortSymbol,
		Expiration:  expiration,
		Quantity:    quantity,
		StartedAt:   time.Now().UTC(),
		Series:      NewSeries(window),
	}
}

// Record appends a live mark to the session's series.
func (s *Session) Record(price float64) {
	s.Series.Append(time.Now().UTC(), price)
}
