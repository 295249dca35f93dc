// Package api exposes the scan and action engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/mproctor/adsweep/internal/action"
	"github.com/mproctor/adsweep/internal/api/middleware"
	"github.com/mproctor/adsweep/internal/audit"
	"github.com/mproctor/adsweep/internal/config"
	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/event"
	"github.com/mproctor/adsweep/internal/scan"
	"github.com/mproctor/adsweep/internal/scope"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Catalog      *scope.Catalog
	Engine       *scan.Engine
	Devices      *device.ResultSet
	Executor     *action.Executor
	AuditStore   *audit.Store
	EventBus     *event.Bus
	ScanDefaults config.ScanConfig
	Logger       *slog.Logger
	BasePath     string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	catalog      *scope.Catalog
	engine       *scan.Engine
	devices      *device.ResultSet
	executor     *action.Executor
	auditStore   *audit.Store
	eventBus     *event.Bus
	scanDefaults config.ScanConfig
	logger       *slog.Logger
	basePath     string

	mu         sync.Mutex
	scanHandle string // handle of the job the API is tracking, "" when idle
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		catalog:      deps.Catalog,
		engine:       deps.Engine,
		devices:      deps.Devices,
		executor:     deps.Executor,
		auditStore:   deps.AuditStore,
		eventBus:     deps.EventBus,
		scanDefaults: deps.ScanDefaults,
		logger:       deps.Logger,
		basePath:     deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.HandleFunc("GET "+bp+"/api/v1/scopes", r.handleListScopes)

	mux.HandleFunc("POST "+bp+"/api/v1/scan", r.handleScanStart)
	mux.HandleFunc("GET "+bp+"/api/v1/scan/status", r.handleScanStatus)
	mux.HandleFunc("DELETE "+bp+"/api/v1/scan", r.handleScanCancel)

	mux.HandleFunc("GET "+bp+"/api/v1/devices", r.handleListDevices)
	mux.HandleFunc("POST "+bp+"/api/v1/devices/selection", r.handleSetSelection)
	mux.HandleFunc("POST "+bp+"/api/v1/devices/import", r.handleImportDevices)
	mux.HandleFunc("GET "+bp+"/api/v1/devices/export", r.handleExportDevices)

	mux.HandleFunc("POST "+bp+"/api/v1/actions", r.handleApplyAction)
	mux.HandleFunc("GET "+bp+"/api/v1/actions/recent", r.handleRecentBatches)
	mux.HandleFunc("GET "+bp+"/api/v1/actions/{id}", r.handleBatchEntries)

	return middleware.Logging(r.logger)(mux)
}

func (r *Router) publish(t event.Type, data map[string]any) {
	if r.eventBus == nil {
		return
	}
	r.eventBus.Publish(event.Event{Type: t, Data: data})
}
