package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/policy"
	"github.com/mproctor/adsweep/internal/scan"
)

type scanStartRequest struct {
	Mode                 string `json:"mode"`
	ThresholdDays        *int   `json:"threshold_days"`
	IncludeNeverLoggedOn *bool  `json:"include_never_logged_on"`
	ScopePath            string `json:"scope_path"`
	Supersede            bool   `json:"supersede"`
}

// handleScanStart starts a new scan. Omitted fields fall back to the
// configured defaults. A scan already in progress is only replaced when the
// request says so.
// POST /api/v1/scan
func (r *Router) handleScanStart(w http.ResponseWriter, req *http.Request) {
	var body scanStartRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sr := scan.Request{
		Mode:      policy.Mode(body.Mode),
		ScopePath: body.ScopePath,
	}
	if body.Mode == "" {
		sr.Mode = policy.Mode(r.scanDefaults.DefaultMode)
	}
	if body.ThresholdDays != nil {
		sr.ThresholdDays = *body.ThresholdDays
	} else if sr.Mode == policy.ModeInactiveOnly {
		sr.ThresholdDays = r.scanDefaults.DefaultThresholdDays
	}
	if body.IncludeNeverLoggedOn != nil {
		sr.IncludeNeverLoggedOn = *body.IncludeNeverLoggedOn
	} else if sr.Mode == policy.ModeInactiveOnly {
		sr.IncludeNeverLoggedOn = r.scanDefaults.IncludeNeverLoggedOn
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine.Running() && !body.Supersede {
		writeError(w, http.StatusConflict, "a scan is already running")
		return
	}

	// The job outlives this request, so detach it from the request's
	// cancellation.
	handle, err := r.engine.Start(context.WithoutCancel(req.Context()), sr)
	if err != nil {
		var cfgErr *scan.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	r.scanHandle = handle
	writeJSON(w, http.StatusAccepted, map[string]string{"handle": handle, "state": string(scan.StateRunning)})
}

type scanStatusResponse struct {
	scan.Status
	Rows []device.Record `json:"rows,omitempty"`
}

// handleScanStatus polls the tracked scan. The poll that observes a
// completed scan also installs its rows as the new device set.
// GET /api/v1/scan/status
func (r *Router) handleScanStatus(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scanHandle == "" {
		writeJSON(w, http.StatusOK, map[string]string{"state": "idle"})
		return
	}

	st := r.engine.Poll(r.scanHandle)
	if st.State.Terminal() {
		r.scanHandle = ""
	}
	if st.State == scan.StateCompleted {
		r.devices.ReplaceFromScan(st.Rows)
	}

	writeJSON(w, http.StatusOK, scanStatusResponse{Status: st, Rows: st.Rows})
}

// handleScanCancel requests cancellation of the tracked scan.
// DELETE /api/v1/scan
func (r *Router) handleScanCancel(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scanHandle == "" {
		writeJSON(w, http.StatusOK, map[string]string{"state": "idle"})
		return
	}

	r.engine.Cancel(r.scanHandle)
	writeJSON(w, http.StatusAccepted, map[string]string{"state": "cancelling"})
}
