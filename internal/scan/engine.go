// Package scan runs stale-account discovery against the directory as
// asynchronous, cancellable jobs. At most one job is live at a time;
// starting a new scan supersedes the previous one.
package scan

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/directory"
	"github.com/mproctor/adsweep/internal/event"
	"github.com/mproctor/adsweep/internal/policy"
)

type job struct {
	handle      string
	req         Request
	state       State
	startedAt   time.Time
	completedAt *time.Time
	rows        []device.Record
	err         error
	cancel      context.CancelFunc
}

// Engine owns the scan job lifecycle. Start returns immediately; callers
// observe progress through Poll, which never blocks.
type Engine struct {
	client   directory.Client
	logger   *slog.Logger
	eventBus *event.Bus
	now      func() time.Time

	mu  sync.Mutex
	job *job
}

// NewEngine creates a scan engine backed by the given directory client.
func NewEngine(client directory.Client, logger *slog.Logger) *Engine {
	return &Engine{
		client: client,
		logger: logger.With(slog.String("component", "scan-engine")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetEventBus sets the bus for publishing scan lifecycle events.
func (e *Engine) SetEventBus(bus *event.Bus) {
	e.eventBus = bus
}

// Start validates the request and launches a scan job, returning its
// handle. Any job still running is cancelled first; its eventual result is
// discarded even if it completes after the cancellation. The query runs
// off the caller's thread; ctx bounds the job's lifetime (pass an
// application-level context, not a per-request one).
func (e *Engine) Start(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		handle:    uuid.New().String(),
		req:       req,
		state:     StateRunning,
		startedAt: e.now(),
		cancel:    cancel,
	}

	e.mu.Lock()
	if prev := e.job; prev != nil && !prev.state.Terminal() {
		prev.cancel()
		prev.state = StateCancelled
		now := e.now()
		prev.completedAt = &now
		e.logger.Info("superseding running scan", "old_handle", prev.handle, "new_handle", j.handle)
	}
	e.job = j
	e.mu.Unlock()

	e.publish(event.ScanStarted, map[string]any{
		"handle": j.handle,
		"mode":   string(req.Mode),
		"scope":  req.ScopePath,
	})

	go e.run(jobCtx, j)
	return j.handle, nil
}

// Poll returns a snapshot of the job's status. It is safe to call
// repeatedly; a terminal status is delivered exactly once, after which the
// job is destroyed and further polls report Cancelled. Rows are attached
// only to the poll that observes completion.
func (e *Engine) Poll(handle string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	j := e.job
	if j == nil || j.handle != handle {
		return Status{Handle: handle, State: StateCancelled}
	}

	st := Status{
		Handle:      j.handle,
		State:       j.state,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
		RowCount:    len(j.rows),
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	if j.state.Terminal() {
		if j.state == StateCompleted {
			st.Rows = j.rows
		}
		e.job = nil // results consumed
	}
	return st
}

// Cancel stops the job with the given handle if it is still running.
// Cancellation is cooperative: an in-flight directory call is not
// preempted, its result is simply discarded. No directory state is
// mutated.
func (e *Engine) Cancel(handle string) {
	e.mu.Lock()
	j := e.job
	if j == nil || j.handle != handle || j.state.Terminal() {
		e.mu.Unlock()
		return
	}
	j.cancel()
	j.state = StateCancelled
	now := e.now()
	j.completedAt = &now
	e.mu.Unlock()

	e.logger.Info("scan cancelled", "handle", handle)
	e.publish(event.ScanCancelled, map[string]any{"handle": handle})
}

// Running reports whether a scan job is currently in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job != nil && e.job.state == StateRunning
}

func (e *Engine) run(ctx context.Context, j *job) {
	filter := directory.FilterAll
	if j.req.Mode == policy.ModeDisabledOnly {
		filter = directory.FilterDisabledOnly
	}

	computers, err := e.client.QueryComputers(ctx, j.req.ScopePath, filter)
	if err != nil {
		e.finish(j, StateFailed, nil, err)
		return
	}
	if ctx.Err() != nil {
		e.finish(j, StateCancelled, nil, nil)
		return
	}

	rows := e.classify(computers, j.req)
	e.finish(j, StateCompleted, rows, nil)
}

// classify filters and annotates the query result under the scan policy,
// deduplicating by distinguished name. The directory should not hand back
// duplicates, but the engine defends anyway.
func (e *Engine) classify(computers []directory.Computer, req Request) []device.Record {
	now := e.now()
	cutoff := policy.Cutoff(now, req.ThresholdDays)

	seen := make(map[string]bool, len(computers))
	rows := make([]device.Record, 0, len(computers))
	for _, c := range computers {
		key := strings.ToLower(c.DistinguishedName)
		if c.DistinguishedName != "" && seen[key] {
			continue
		}
		seen[key] = true

		cls := policy.Classify(c.Enabled, c.LastLogon, now, cutoff, req.Mode, req.IncludeNeverLoggedOn)
		if !cls.Included {
			continue
		}
		rows = append(rows, device.Record{
			Name:         c.Name,
			UniquePath:   c.DistinguishedName,
			Enabled:      c.Enabled,
			LastActivity: c.LastLogon,
			InactiveDays: cls.InactiveDays,
			Origin:       device.OriginScanned,
		})
	}
	return rows
}

// finish installs the job's terminal state, unless the job has been
// superseded or cancelled in the meantime, in which case the result is
// discarded.
func (e *Engine) finish(j *job, state State, rows []device.Record, err error) {
	e.mu.Lock()
	if e.job != j || j.state.Terminal() {
		e.mu.Unlock()
		e.logger.Debug("discarding result of superseded scan", "handle", j.handle)
		return
	}
	j.state = state
	j.rows = rows
	j.err = err
	now := e.now()
	j.completedAt = &now
	e.mu.Unlock()

	switch state {
	case StateCompleted:
		e.logger.Info("scan completed", "handle", j.handle, "rows", len(rows))
		e.publish(event.ScanCompleted, map[string]any{"handle": j.handle, "rows": len(rows)})
	case StateFailed:
		e.logger.Error("scan failed", "handle", j.handle, "error", err)
		e.publish(event.ScanFailed, map[string]any{"handle": j.handle, "error": err.Error()})
	case StateCancelled:
		e.publish(event.ScanCancelled, map[string]any{"handle": j.handle})
	}
}

func (e *Engine) publish(t event.Type, data map[string]any) {
	if e.eventBus != nil {
		e.eventBus.Publish(event.Event{Type: t, Data: data})
	}
}
