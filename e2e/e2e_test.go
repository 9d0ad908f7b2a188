package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/thumbtrial/internal/app"
	"github.com/ayusman/thumbtrial/internal/capture"
	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/detector"
	"github.com/ayusman/thumbtrial/internal/gesture"
	"github.com/ayusman/thumbtrial/internal/server"
	"github.com/ayusman/thumbtrial/internal/store"
	"github.com/ayusman/thumbtrial/internal/trial"
)

// logCollector stands in for the trial logging backend.
type logCollector struct {
	packets chan trial.Packet
}

func (c *logCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p trial.Packet
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.packets <- p
	w.WriteHeader(http.StatusNoContent)
}

func (c *logCollector) next(t *testing.T) trial.Packet {
	t.Helper()
	select {
	case p := <-c.packets:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for logged packet")
		return trial.Packet{}
	}
}

type harness struct {
	app       *app.App
	server    *httptest.Server
	collector *logCollector
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	collector := &logCollector{packets: make(chan trial.Packet, 16)}
	backend := httptest.NewServer(collector)
	t.Cleanup(backend.Close)

	base := config.Default()
	base.ParticipantID = "P-01"
	base.SessionID = "S-01"
	base.Backend.LogEndpoint = backend.URL + "/api/log"

	a := app.New(app.Config{Base: base, Store: st})
	t.Cleanup(func() { a.Close() })

	hub := server.NewHub()
	a.AddObserver(hub)

	srv := server.New(server.Config{
		Store:        st,
		Settings:     a,
		Trials:       a,
		ClientConfig: a.Config,
		Delivery:     a.Stats,
		Hub:          hub,
		Stream:       a,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &harness{app: a, server: ts, collector: collector}
}

func (h *harness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := h.server.Client().Post(h.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestE2E_ControlPlaneWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/hud"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial hud: %v", err)
	}
	defer conn.Close()

	// wait for the hub to register the client
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := h.server.Client().Get(h.server.URL + "/api/health")
		if err != nil {
			t.Fatalf("health error = %v", err)
		}
		var health map[string]any
		json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		if health["hud_clients"] == float64(1) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("hud client never registered: %v", health)
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("UpdateSettings", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, h.server.URL+"/api/settings", strings.NewReader(`{"stable_ms": 700}`))
		resp, err := h.server.Client().Do(req)
		if err != nil {
			t.Fatalf("PUT settings error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		resp, err = h.server.Client().Get(h.server.URL + "/config.json")
		if err != nil {
			t.Fatalf("GET config error = %v", err)
		}
		defer resp.Body.Close()
		var cfg map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
			t.Fatalf("decode config: %v", err)
		}
		if cfg["stable_ms"] != float64(700) {
			t.Errorf("expected stable_ms 700, got %v", cfg["stable_ms"])
		}
	})

	t.Run("StampProbe", func(t *testing.T) {
		resp := h.post(t, "/api/trial-meta", `{"probe_shown": true, "implicit_conf": 0.3, "item_id": "item-9"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("SimulateCommit", func(t *testing.T) {
		resp := h.post(t, "/api/simulate", `{"label": "down"}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}

		logged := h.collector.next(t)
		if logged.Gesture != gesture.LabelDown || logged.Trial != 1 {
			t.Errorf("unexpected logged packet %+v", logged)
		}
		if stringValue(logged.ParticipantID) != "P-01" || stringValue(logged.SessionID) != "S-01" || stringValue(logged.ItemID) != "item-9" {
			t.Errorf("expected identifiers in logged packet, got %+v", logged)
		}
		if !logged.ProbeShown || logged.ImplicitConf == nil || *logged.ImplicitConf != 0.3 {
			t.Errorf("expected probe metadata in logged packet, got %+v", logged)
		}

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg server.HUDMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read hud: %v", err)
		}
		if !msg.Committed || msg.Label != string(gesture.LabelDown) || msg.Trial != 1 {
			t.Errorf("unexpected hud message %+v", msg)
		}
		if msg.StableMs != 700 {
			t.Errorf("expected hud to carry the updated stable_ms, got %v", msg.StableMs)
		}
	})

	t.Run("RejectUnknownLabel", func(t *testing.T) {
		resp := h.post(t, "/api/simulate", `{"label": "sideways"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})
}

func TestE2E_CameraPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t)

	frame := gocv.NewMatWithSize(capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	h.app.SetCamera(capture.NewMockCamera([]*gocv.Mat{&frame}, true))

	mock := detector.NewMockDetector()
	mock.SetHands([]detector.Hand{detector.ThumbsUpHand(0.9)})
	h.app.SetDetector(mock)

	if err := h.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.app.Stop()

	logged := h.collector.next(t)
	if logged.Gesture != gesture.LabelUp || logged.Trial != 1 {
		t.Errorf("unexpected logged packet %+v", logged)
	}
	if logged.HoldMs < 900 {
		t.Errorf("expected a full hold, got %dms", logged.HoldMs)
	}

	deadline := time.Now().Add(time.Second)
	for h.app.Stats().Sent < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected the packet to be counted as sent, stats %+v", h.app.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
