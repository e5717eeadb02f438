package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/goodtune/snsdetox/internal/domain"
	"github.com/goodtune/snsdetox/internal/restriction"
	"github.com/goodtune/snsdetox/internal/settings"
	"github.com/goodtune/snsdetox/internal/tracker"
)

const maxBodyBytes = 1 << 20

// MaxOverrideMinutes caps a hard lock at one day.
const MaxOverrideMinutes = 24 * 60

// Message actions accepted on /v1/messages.
const (
	ActionGetStatus       = "getStatus"
	ActionResetData       = "resetData"
	ActionResetAllData    = "resetAllData"
	ActionSettingsUpdated = "settingsUpdated"
	ActionSetStatus       = "setStatus"
	ActionPauseTracking   = "pauseTracking"
	ActionResumeTracking  = "resumeTracking"
)

// MessageRequest is a page or popup request. Which fields apply depends on
// Action.
type MessageRequest struct {
	Action   string          `json:"action"`
	TabID    *int            `json:"tabId,omitempty"`
	URL      string          `json:"url,omitempty"`
	Domain   string          `json:"domain,omitempty"`
	Status   string          `json:"status,omitempty"`
	Minutes  int             `json:"minutes,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev tracker.Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.tracker.Dispatch(r.Context(), ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.Type == tracker.EventTabRemoved {
		s.outbox.Close(ev.TabID)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTabMessages(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(mux.Vars(r)["tabId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tab id")
		return
	}

	messages := s.outbox.Drain(tabID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Action {
	case ActionGetStatus:
		s.getStatus(w, r, req)
	case ActionResetData:
		s.resetData(w, r, req)
	case ActionResetAllData:
		err := s.tracker.ResetAll(r.Context())
		s.finish(w, req.Action, err)
	case ActionSettingsUpdated:
		s.settingsUpdated(w, r, req)
	case ActionSetStatus:
		s.setStatus(w, r, req)
	case ActionPauseTracking, ActionResumeTracking:
		s.trackingControl(w, r, req)
	default:
		writeResult(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
	}
}

// getStatus answers for the requesting tab, or for a domain when no tab is
// given. Missing data degrades to Normal with zero time.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	tabID, ok := requestTab(r, req)
	if ok {
		report, err := s.tracker.Status(r.Context(), tabID)
		if err != nil && !errors.Is(err, tracker.ErrUnknownTab) {
			s.logger.Warn().Err(err).Int("tab_id", tabID).Msg("Failed to compute status")
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	target := req.Domain
	if target == "" {
		target = req.URL
	}
	if target == "" {
		writeResult(w, http.StatusBadRequest, errors.New("tabId, url or domain is required"))
		return
	}
	d, err := domain.Resolve(target)
	if err != nil {
		writeResult(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.DomainStatus(r.Context(), d))
}

func (s *Server) resetData(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	target := req.URL
	if target == "" {
		target = req.Domain
	}
	d, err := domain.Resolve(target)
	if err != nil {
		writeResult(w, http.StatusBadRequest, err)
		return
	}
	s.finish(w, req.Action, s.tracker.ResetDomain(r.Context(), d))
}

// settingsUpdated applies the document in the request, or reloads the stored
// one when the request carries none.
func (s *Server) settingsUpdated(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	var next settings.Settings
	if len(req.Settings) == 0 || string(req.Settings) == "null" {
		loaded, err := s.settings.Load(r.Context())
		if err != nil {
			// Current settings stay in effect
			s.finish(w, req.Action, err)
			return
		}
		next = loaded
	} else {
		decoded, err := settings.Decode(req.Settings)
		if err != nil {
			writeResult(w, http.StatusBadRequest, err)
			return
		}
		next = decoded
	}

	err := s.tracker.SettingsUpdated(r.Context(), next)
	if errors.Is(err, settings.ErrInvalid) {
		writeResult(w, http.StatusBadRequest, err)
		return
	}
	s.finish(w, req.Action, err)
}

// setStatus forces a hard lock on or off. Automatic statuses are computed
// from usage and cannot be set.
func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	d, err := domain.Resolve(req.Domain)
	if err != nil {
		writeResult(w, http.StatusBadRequest, err)
		return
	}
	status, err := restriction.ParseStatus(req.Status)
	if err != nil {
		writeResult(w, http.StatusBadRequest, err)
		return
	}

	switch status {
	case restriction.StatusHardLocked:
		if req.Minutes < 0 || req.Minutes > MaxOverrideMinutes {
			writeResult(w, http.StatusBadRequest, fmt.Errorf("minutes must be between 1 and %d", MaxOverrideMinutes))
			return
		}
		duration := s.config.DefaultOverride
		if req.Minutes > 0 {
			duration = time.Duration(req.Minutes) * time.Minute
		}
		_, err = s.tracker.ArmOverride(r.Context(), d, duration)
	case restriction.StatusNormal:
		err = s.tracker.ClearOverride(r.Context(), d)
	default:
		writeResult(w, http.StatusBadRequest, fmt.Errorf("status %s is computed from usage and cannot be set", status))
		return
	}
	s.finish(w, req.Action, err)
}

func (s *Server) trackingControl(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	d, err := domain.Resolve(req.Domain)
	if err != nil {
		writeResult(w, http.StatusBadRequest, err)
		return
	}

	if req.Action == ActionPauseTracking {
		err = s.tracker.PauseDomain(r.Context(), d)
	} else {
		err = s.tracker.ResumeDomain(r.Context(), d)
	}
	s.finish(w, req.Action, err)
}

func (s *Server) finish(w http.ResponseWriter, action string, err error) {
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("Message failed")
		writeResult(w, http.StatusInternalServerError, err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Current())
}

// handlePutSettings validates, persists and applies a settings document. The
// document is never partially applied.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	next, err := settings.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settings.Save(r.Context(), next); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save settings")
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	if err := s.tracker.SettingsUpdated(r.Context(), next); err != nil {
		s.logger.Error().Err(err).Msg("Failed to apply settings")
		writeError(w, http.StatusInternalServerError, "Failed to apply settings")
		return
	}

	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.tracker.Sites(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sites")
		writeError(w, http.StatusInternalServerError, "Failed to list sites")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sites": sites,
		"count": len(sites),
	})
}

// requestTab returns the tab a message is about: the explicit tabId, or the
// sender tab the shim puts in X-Tab-Id.
func requestTab(r *http.Request, req MessageRequest) (int, bool) {
	if req.TabID != nil {
		return *req.TabID, true
	}
	if v := r.Header.Get("X-Tab-Id"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			return id, true
		}
	}
	return 0, false
}
