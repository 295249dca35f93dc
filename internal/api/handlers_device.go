package api

import (
	"encoding/json"
	"net/http"

	"github.com/mproctor/adsweep/internal/csvio"
	"github.com/mproctor/adsweep/internal/event"
)

// handleListDevices returns the current device set.
// GET /api/v1/devices
func (r *Router) handleListDevices(w http.ResponseWriter, req *http.Request) {
	records := r.devices.Records()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleSetSelection flips the Selected flag on the named devices.
// POST /api/v1/devices/selection
func (r *Router) handleSetSelection(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Names    []string `json:"names"`
		Selected bool     `json:"selected"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Names) == 0 {
		writeError(w, http.StatusBadRequest, "names is required")
		return
	}

	updated := r.devices.SetSelected(body.Names, body.Selected)
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// handleImportDevices loads a CSV of computer names into the device set.
// POST /api/v1/devices/import
func (r *Router) handleImportDevices(w http.ResponseWriter, req *http.Request) {
	names, err := csvio.ReadNames(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	imported := r.devices.LoadImported(names)
	r.publish(event.ImportLoaded, map[string]any{"imported": imported})
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

// handleExportDevices streams the device set as CSV.
// GET /api/v1/devices/export
func (r *Router) handleExportDevices(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.csv"`)
	if err := csvio.WriteRecords(w, r.devices.Records()); err != nil {
		r.logger.Error("csv export failed", "error", err)
	}
}
