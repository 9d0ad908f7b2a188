package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/thumbtrial/internal/gesture"
	"github.com/ayusman/thumbtrial/internal/trial"
)

// Controller is the session surface used by the trial endpoints.
type Controller interface {
	Meta() trial.Meta
	UpdateMeta(u trial.MetaUpdate) trial.Meta
	Simulate(label gesture.Label) trial.Packet
}

// TrialHandler handles /api/trial-meta and /api/simulate.
type TrialHandler struct {
	controller Controller
}

// NewTrialHandler creates a TrialHandler.
func NewTrialHandler(c Controller) *TrialHandler {
	return &TrialHandler{controller: c}
}

type metaResponse struct {
	ParticipantID string   `json:"participant_id"`
	SessionID     string   `json:"session_id"`
	ItemID        string   `json:"item_id"`
	ProbeShown    bool     `json:"probe_shown"`
	ImplicitConf  *float64 `json:"implicit_conf"`
	ExplicitConf  *float64 `json:"explicit_conf"`
}

type simulateRequest struct {
	Label gesture.Label `json:"label"`
}

func toMetaResponse(m trial.Meta) metaResponse {
	return metaResponse{
		ParticipantID: m.ParticipantID,
		SessionID:     m.SessionID,
		ItemID:        m.ItemID,
		ProbeShown:    m.ProbeShown,
		ImplicitConf:  m.ImplicitConf,
		ExplicitConf:  m.ExplicitConf,
	}
}

// Meta handles GET and POST /api/trial-meta.
func (h *TrialHandler) Meta(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toMetaResponse(h.controller.Meta()))
	case http.MethodPost:
		var req trial.MetaUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		writeJSON(w, http.StatusOK, toMetaResponse(h.controller.UpdateMeta(req)))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Simulate handles POST /api/simulate.
func (h *TrialHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !req.Label.Valid() {
		writeError(w, http.StatusBadRequest, "label must be up, down or neutral")
		return
	}

	writeJSON(w, http.StatusCreated, h.controller.Simulate(req.Label))
}
