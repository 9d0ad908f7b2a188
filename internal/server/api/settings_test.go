package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

type recordingApplier struct {
	calls int
	last  map[string]string
}

func (a *recordingApplier) ApplySettings(settings map[string]string) error {
	a.calls++
	a.last = settings
	return nil
}

func TestSettingsHandler_ListEmpty(t *testing.T) {
	handler := NewSettingsHandler(newTestStore(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response listSettingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Settings == nil || len(response.Settings) != 0 {
		t.Errorf("expected empty settings list, got %v", response.Settings)
	}
}

func TestSettingsHandler_PutAppliesAndPersists(t *testing.T) {
	s := newTestStore(t)
	applier := &recordingApplier{}
	handler := NewSettingsHandler(s, applier)

	body := `{"stable_ms": 750, "deny_list": ["Victory"], "backend.log_endpoint": "http://localhost:9/log"}`
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var response listSettingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Settings) != 3 {
		t.Errorf("expected 3 settings, got %d", len(response.Settings))
	}

	if applier.calls != 1 {
		t.Fatalf("expected applier to be called once, got %d", applier.calls)
	}

	cfg := config.Default()
	if err := cfg.ApplySettings(applier.last); err != nil {
		t.Fatalf("stored settings do not apply: %v", err)
	}
	if cfg.StableMs != 750 || len(cfg.DenyList) != 1 || cfg.Backend.LogEndpoint != "http://localhost:9/log" {
		t.Errorf("unexpected config after applying stored settings: %+v", cfg)
	}

	value, err := s.Settings().Get("stable_ms")
	if err != nil || value != "750" {
		t.Errorf("expected stored stable_ms 750, got %q (%v)", value, err)
	}
}

func TestSettingsHandler_PutRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	applier := &recordingApplier{}
	handler := NewSettingsHandler(s, applier)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"empty object", `{}`},
		{"wrong type", `{"stable_ms": "slow", "reset_ms": 100}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}

	all, _ := s.Settings().All()
	if len(all) != 0 {
		t.Errorf("expected nothing stored after rejected updates, got %v", all)
	}
	if applier.calls != 0 {
		t.Errorf("expected applier not to be called, got %d", applier.calls)
	}
}

func TestSettingsHandler_GetAndDelete(t *testing.T) {
	s := newTestStore(t)
	applier := &recordingApplier{}
	handler := NewSettingsHandler(s, applier)

	if err := s.Settings().Set("reset_ms", "300"); err != nil {
		t.Fatalf("failed to seed setting: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/settings/reset_ms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var setting store.Setting
	json.NewDecoder(rec.Body).Decode(&setting)
	if setting.Key != "reset_ms" || setting.Value != "300" {
		t.Errorf("unexpected setting %+v", setting)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/settings/reset_ms", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if applier.calls != 1 || len(applier.last) != 0 {
		t.Errorf("expected applier to see the emptied settings, calls=%d last=%v", applier.calls, applier.last)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings/reset_ms", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSettingsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSettingsHandler(newTestStore(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
