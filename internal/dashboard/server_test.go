package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/monitor"
	"github.com/eddiefleurent/vance_verticals/internal/storage"
	"github.com/sirupsen/logrus"
)

type stubBroker struct {
	broker.Broker

	positions    []broker.PositionItem
	positionsErr error
}

func (s *stubBroker) GetPositions(_ context.Context) ([]broker.PositionItem, error) {
	return s.positions, s.positionsErr
}

func newTestServer(t *testing.T, b broker.Broker, session *monitor.Session, token string) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(Config{Listen: "127.0.0.1:0", AuthToken: token}, storage.NewMockStorage(), b, session, logger)
}

func get(t *testing.T, s *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &stubBroker{}, nil, "")
	rec := get(t, s, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, &stubBroker{}, nil, "secret")

	if rec := get(t, s, "/api/history", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := get(t, s, "/api/history", map[string]string{"X-Auth-Token": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	if rec := get(t, s, "/api/history", map[string]string{"X-Auth-Token": "secret"}); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
	if rec := get(t, s, "/api/history?token=secret", nil); rec.Code != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", rec.Code)
	}
	// Health stays reachable without a token for probes.
	if rec := get(t, s, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled: status = %d, want 200", rec.Code)
	}
}

func TestGetSpread(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		s := newTestServer(t, &stubBroker{}, nil, "")
		if rec := get(t, s, "/api/spread", nil); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("active session", func(t *testing.T) {
		session := monitor.NewSession("BP", "BP250815C00030000", "BP250815C00032500", "2025-08-15", 1, 2)
		session.Series.Append(time.Now(), 2.20)
		session.Series.Append(time.Now(), 2.30)

		s := newTestServer(t, &stubBroker{}, session, "")
		rec := get(t, s, "/api/spread", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var view SpreadView
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if view.Underlying != "BP" || view.Points != 2 {
			t.Errorf("view = %+v", view)
		}
		if view.LastPrice != 2.30 {
			t.Errorf("last price = %.2f, want 2.30", view.LastPrice)
		}
		if view.LastMA == nil || *view.LastMA != 2.25 {
			t.Errorf("last MA = %v, want 2.25", view.LastMA)
		}
		if view.State != "full" {
			t.Errorf("state = %q, want full", view.State)
		}
	})
}

func TestGetSeries(t *testing.T) {
	session := monitor.NewSession("BP", "BP250815C00030000", "BP250815C00032500", "2025-08-15", 1, 2)
	session.Series.Append(time.Now(), 2.20)

	s := newTestServer(t, &stubBroker{}, session, "")
	rec := get(t, s, "/api/series", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var points []monitor.SnapshotPoint
	if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(points) != 1 || points[0].Price != 2.20 {
		t.Errorf("points = %+v", points)
	}
}

func TestGetPositions(t *testing.T) {
	b := &stubBroker{
		positions: []broker.PositionItem{
			{Symbol: "BP250815C00030000", AssetClass: "us_option", Side: "long", Quantity: 1},
			{Symbol: "BP250815C00032500", AssetClass: "us_option", Side: "short", Quantity: 1},
			{Symbol: "BP250815P00028000", AssetClass: "us_option", Side: "long", Quantity: 1},
		},
	}
	s := newTestServer(t, b, nil, "")

	rec := get(t, s, "/api/positions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var view PositionsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(view.Spreads) != 1 {
		t.Fatalf("spreads = %+v, want 1", view.Spreads)
	}
	sp := view.Spreads[0]
	if sp.LongStrike != 30 || sp.ShortStrike != 32.5 || sp.Type != "call" {
		t.Errorf("spread = %+v", sp)
	}
	if len(view.Ungrouped) != 1 || view.Ungrouped[0].Symbol != "BP250815P00028000" {
		t.Errorf("ungrouped = %+v", view.Ungrouped)
	}
}

func TestGetPositions_BrokerError(t *testing.T) {
	b := &stubBroker{positionsErr: io.ErrUnexpectedEOF}
	s := newTestServer(t, b, nil, "")
	if rec := get(t, s, "/api/positions", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
