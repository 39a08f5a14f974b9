package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/astrobridge/internal/event"
)

const (
	defaultArchiveLimit = 100
	maxArchiveLimit     = 1000
)

// handleListChannels returns every channel a client can subscribe to.
func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	channels := event.Channels()
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "count": len(channels)})
}

// handleEventHistory returns the stored events.
//
// Query parameters:
//   - page: 1-based page number; without it the full history is returned
//   - pageSize: entries per page, defaults to history.default_page_size
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawPage, rawSize := q.Get("page"), q.Get("pageSize")

	if rawPage == "" && rawSize == "" {
		events := s.broadcaster.History()
		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
		return
	}

	page := 1
	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid page")
			return
		}
		page = n
	}

	size := s.historyCfg.DefaultPageSize
	if rawSize != "" {
		n, err := strconv.Atoi(rawSize)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid pageSize")
			return
		}
		size = n
	}
	if size < 1 {
		size = 1
	}

	events := s.broadcaster.HistoryPage(page, size)
	writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"count":    len(events),
		"page":     page,
		"pageSize": size,
		"total":    s.broadcaster.HistoryLen(),
	})
}

// handleEventArchive returns archived events, oldest first.
//
// Query parameters:
//   - since: RFC3339 lower bound on the recording time
//   - limit: maximum entries (default 100, max 1000)
func (s *Server) handleEventArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeUnavailable(w, "event archive is disabled")
		return
	}

	limit, err := parseArchiveLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeBadRequest(w, "invalid since timestamp")
			return
		}
	}

	events, err := s.archive.List(r.Context(), since, limit)
	if err != nil {
		s.logger.Error("listing archived events failed", "error", err)
		writeInternalError(w, "failed to list archived events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// parseArchiveLimit parses the limit parameter with defaults and bounds.
func parseArchiveLimit(raw string) (int, error) {
	if raw == "" {
		return defaultArchiveLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxArchiveLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}
	return limit, nil
}
