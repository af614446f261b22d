package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleSnapshotHistory returns recorded snapshots, newest first.
func (s *Server) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history unavailable")
		return
	}

	entries, err := s.history.Snapshots(r.Context(), s.device.Serial(), limit)
	if err != nil {
		s.logger.Error("loading snapshot history failed", "error", err)
		writeInternalError(w, "failed to load snapshot history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"serial":    s.device.Serial(),
		"snapshots": entries,
		"count":     len(entries),
	})
}

// handleAlarmHistory returns recorded alarm events, newest first.
func (s *Server) handleAlarmHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history unavailable")
		return
	}

	events, err := s.history.Alarms(r.Context(), s.device.Serial(), limit)
	if err != nil {
		s.logger.Error("loading alarm history failed", "error", err)
		writeInternalError(w, "failed to load alarm history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"serial": s.device.Serial(),
		"alarms": events,
		"count":  len(events),
	})
}

// handleUnlockHistory returns the unlock audit trail, newest first.
// Supports ?limit=, ?offset=, ?action= and ?source= filters.
func (s *Server) handleUnlockHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	offset := 0
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}
	action, source := q.Get("action"), q.Get("source")
	if len(action) > maxQueryParamLen || len(source) > maxQueryParamLen {
		writeBadRequest(w, "filter value too long")
		return
	}
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "unlock history unavailable")
		return
	}

	result, err := s.audit.List(r.Context(), audit.Filter{
		Serial: s.device.Serial(),
		Action: action,
		Source: source,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("loading unlock history failed", "error", err)
		writeInternalError(w, "failed to load unlock history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseHistoryLimit parses the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(limit, maxHistoryLimit), nil
}
