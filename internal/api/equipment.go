package api

import (
	"net/http"
	"sort"

	"github.com/nerrad567/astrobridge/internal/equipment"
)

// handleEquipment returns the simulated host's device states. The snapshot
// is taken on the dispatcher goroutine.
func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	if s.simulator == nil {
		writeUnavailable(w, "equipment snapshot requires simulated mode")
		return
	}

	states, err := s.simulator.Snapshot(r.Context())
	if err != nil {
		s.logger.Warn("equipment snapshot failed", "error", err)
		writeInternalError(w, "failed to read equipment state")
		return
	}

	devices := make([]equipment.DeviceState, 0, len(states))
	for _, st := range states {
		devices = append(devices, st)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Device < devices[j].Device })

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}
