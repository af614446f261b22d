package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/integration"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
)

// maxQueryParamLen caps path and query parameters.
const maxQueryParamLen = 64

// handleGetDevice returns the device description, capabilities and polling state.
func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device":       s.device.Identity().Info(),
		"capabilities": s.device.Capabilities(),
		"ready":        s.device.Ready(),
		"healthy":      s.device.Healthy(),
		"stats":        s.device.Stats(),
	})
}

// handleGetStatus returns the latest normalised snapshot.
func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.device.Snapshot()
	if !ok {
		writeNotReady(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serial": s.device.Serial(),
		"status": snap,
	})
}

// handleListObservations returns every observation sorted by key.
func (s *Server) handleListObservations(w http.ResponseWriter, _ *http.Request) {
	if !s.device.Ready() {
		writeNotReady(w)
		return
	}
	observations := s.device.Observations()
	writeJSON(w, http.StatusOK, map[string]any{
		"serial":       s.device.Serial(),
		"observations": observations,
		"count":        len(observations),
	})
}

// handleGetObservation returns one observation.
func (s *Server) handleGetObservation(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" || len(key) > maxQueryParamLen {
		writeBadRequest(w, "invalid observation key")
		return
	}
	if !s.device.Ready() {
		writeNotReady(w)
		return
	}

	obs, ok := s.device.Observation(key)
	if !ok {
		writeNotFound(w, "observation not found")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// handleSnapshotImage returns the latest alarm picture as image bytes.
func (s *Server) handleSnapshotImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.device.SnapshotImage(r.Context())
	if err != nil {
		if !errors.Is(err, integration.ErrNotSetUp) && !errors.Is(err, observation.ErrNoImage) {
			s.logger.Warn("snapshot fetch failed", "error", err)
		}
		writeDeviceError(w, err, Error{Status: http.StatusBadGateway, Code: ErrCodeBadGateway, Message: "snapshot fetch failed"})
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img)
}

// handleRefresh polls the device immediately and returns the new snapshot.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.device.Refresh(r.Context()); err != nil {
		writeDeviceError(w, err, Error{Status: http.StatusBadGateway, Code: ErrCodeBadGateway})
		return
	}

	snap, _ := s.device.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"serial": s.device.Serial(),
		"status": snap,
	})
}

// handleCommand runs an unlock action.
//
// A failed unlock is not an API error: the result is returned with 502 so
// callers see every lock attempt.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	action, err := command.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.logger.Info("unlock requested via API",
		"action", action,
		"subject", subjectFrom(r.Context()),
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	res, err := s.device.Execute(r.Context(), action)
	if err != nil {
		writeDeviceError(w, err, Error{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "command failed"})
		return
	}

	s.recordUnlock(r, res)

	if !res.Success {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"code":   ErrCodeUnlockFailed,
			"result": res,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

// recordUnlock writes the unlock to the audit trail. Failures are logged only.
func (s *Server) recordUnlock(r *http.Request, res command.Result) {
	if s.audit == nil {
		return
	}
	entry := audit.NewEntry(s.device.Serial(), audit.SourceAPI, subjectFrom(r.Context()), res)
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok && id != "" {
		entry.Details["request_id"] = id
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("recording unlock failed", "error", err)
	}
}
