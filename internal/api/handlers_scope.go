package api

import (
	"net/http"

	"github.com/mproctor/adsweep/internal/event"
)

// handleListScopes refreshes the scope catalog from the directory and
// returns it. On a discovery failure the synthetic whole-tree entry (and
// any previously loaded items) is still returned alongside a warning.
// GET /api/v1/scopes
func (r *Router) handleListScopes(w http.ResponseWriter, req *http.Request) {
	items, err := r.catalog.Load(req.Context())

	resp := map[string]any{"scopes": items}
	if err != nil {
		r.logger.Warn("scope discovery degraded", "error", err)
		resp["warning"] = err.Error()
	}

	r.publish(event.ScopesLoaded, map[string]any{"count": len(items)})
	writeJSON(w, http.StatusOK, resp)
}
