package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mproctor/adsweep/internal/action"
	"github.com/mproctor/adsweep/internal/device"
)

type applyActionRequest struct {
	Action    string   `json:"action"`
	Names     []string `json:"names"`
	ScopePath string   `json:"scope_path"`
	Confirm   bool     `json:"confirm"`
}

// handleApplyAction runs a bulk action against the named devices, or
// against the current selection when no names are given. The request must
// carry an explicit confirmation; there is no undo for delete.
// POST /api/v1/actions
func (r *Router) handleApplyAction(w http.ResponseWriter, req *http.Request) {
	var body applyActionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	act := device.Action(body.Action)
	if !act.Valid() {
		writeError(w, http.StatusBadRequest, "unknown action "+strconv.Quote(body.Action))
		return
	}
	if !body.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation is required")
		return
	}

	targets := r.resolveTargets(body.Names)
	if len(targets) == 0 {
		writeError(w, http.StatusBadRequest, "no matching devices")
		return
	}

	// The batch must run to completion even if the caller disconnects,
	// otherwise the audit trail would not match what happened in the
	// directory.
	ctx := context.WithoutCancel(req.Context())

	outcomes, err := r.executor.Apply(ctx, act, targets, body.ScopePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.devices.ReconcileAfterAction(ctx, action.SucceededNames(outcomes), act, body.ScopePath)

	writeJSON(w, http.StatusOK, map[string]any{
		"action":   act,
		"outcomes": outcomes,
	})
}

// resolveTargets maps names to current records, or returns the selection
// when names is empty. Unknown names still become targets so the executor
// can report them as not found.
func (r *Router) resolveTargets(names []string) []device.Record {
	if len(names) == 0 {
		return r.devices.Selected()
	}

	byName := make(map[string]device.Record)
	for _, rec := range r.devices.Records() {
		byName[strings.ToLower(rec.Name)] = rec
	}

	targets := make([]device.Record, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if rec, ok := byName[strings.ToLower(name)]; ok {
			targets = append(targets, rec)
			continue
		}
		targets = append(targets, device.Record{Name: name, Origin: device.OriginImported})
	}
	return targets
}

// handleRecentBatches lists recent action batches, newest first.
// GET /api/v1/actions/recent
func (r *Router) handleRecentBatches(w http.ResponseWriter, req *http.Request) {
	limit := 0
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	batches, err := r.auditStore.ListBatches(req.Context(), limit)
	if err != nil {
		r.logger.Error("listing action batches", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// handleBatchEntries returns the per-item outcomes of one batch.
// GET /api/v1/actions/{id}
func (r *Router) handleBatchEntries(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	entries, err := r.auditStore.ListEntries(req.Context(), id)
	if err != nil {
		r.logger.Error("listing batch entries", "error", err, "batch_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
