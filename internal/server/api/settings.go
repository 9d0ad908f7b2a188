package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/store"
)

// SettingsApplier receives the full set of stored settings after a change.
type SettingsApplier interface {
	ApplySettings(settings map[string]string) error
}

// SettingsHandler handles /api/settings and /api/settings/{key}.
type SettingsHandler struct {
	store   *store.Store
	applier SettingsApplier
}

// NewSettingsHandler creates a SettingsHandler. applier may be nil.
func NewSettingsHandler(s *store.Store, applier SettingsApplier) *SettingsHandler {
	return &SettingsHandler{store: s, applier: applier}
}

type listSettingsResponse struct {
	Settings []*store.Setting `json:"settings"`
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings")
	key = strings.TrimPrefix(key, "/")

	if key == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPut:
			h.update(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, key)
	case http.MethodDelete:
		h.delete(w, r, key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/settings.
func (h *SettingsHandler) list(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Settings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settings")
		return
	}
	if settings == nil {
		settings = []*store.Setting{}
	}
	writeJSON(w, http.StatusOK, listSettingsResponse{Settings: settings})
}

// get handles GET /api/settings/{key}.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request, key string) {
	value, err := h.store.Settings().Get(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get setting")
		return
	}
	writeJSON(w, http.StatusOK, store.Setting{Key: key, Value: value})
}

// update handles PUT /api/settings. The body is a JSON object of dotted keys
// to values; every value is validated before any is stored.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "At least one setting is required")
		return
	}

	// JSON values are valid YAML, so they are stored as sent.
	for key, raw := range req {
		if err := config.ValidateSetting(key, string(raw)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	repo := h.store.Settings()
	for key, raw := range req {
		if err := repo.Set(key, string(raw)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save setting")
			return
		}
	}

	h.apply()
	h.list(w, r)
}

// delete handles DELETE /api/settings/{key}.
func (h *SettingsHandler) delete(w http.ResponseWriter, r *http.Request, key string) {
	if err := h.store.Settings().Delete(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}

	h.apply()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SettingsHandler) apply() {
	if h.applier == nil {
		return
	}
	all, err := h.store.Settings().All()
	if err != nil {
		log.Printf("Failed to reload settings: %v", err)
		return
	}
	if err := h.applier.ApplySettings(all); err != nil {
		log.Printf("Failed to apply settings: %v", err)
	}
}
