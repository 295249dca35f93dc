// Package action applies lifecycle mutations (disable, enable, delete) to
// a chosen set of device records, producing a per-item outcome report.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mproctor/adsweep/internal/audit"
	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/directory"
	"github.com/mproctor/adsweep/internal/event"
	"github.com/mproctor/adsweep/internal/guard"
)

// OutcomeKind classifies what happened to one target.
type OutcomeKind string

// Per-item outcomes.
const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeNotFound  OutcomeKind = "not_found"
	OutcomeProtected OutcomeKind = "protected"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome reports the result for one target.
type Outcome struct {
	Name       string      `json:"name"`
	UniquePath string      `json:"unique_path,omitempty"`
	Result     OutcomeKind `json:"result"`
	Reason     string      `json:"reason,omitempty"`
}

// Executor applies an action to each target in order. It is deliberately
// sequential: directory mutation endpoints are rate-sensitive, and the
// outcome report must match input order.
type Executor struct {
	client   directory.Client
	guard    *guard.Guard
	store    *audit.Store
	logger   *slog.Logger
	eventBus *event.Bus
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewExecutor creates an executor. mutationsPerSecond throttles directory
// writes; zero or negative disables throttling. The audit store may be nil
// (outcomes are then only returned, not persisted).
func NewExecutor(client directory.Client, g *guard.Guard, store *audit.Store, logger *slog.Logger, mutationsPerSecond float64) *Executor {
	var limiter *rate.Limiter
	if mutationsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(mutationsPerSecond), 1)
	}
	return &Executor{
		client:  client,
		guard:   g,
		store:   store,
		logger:  logger.With(slog.String("component", "action-executor")),
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetEventBus sets the bus for publishing batch completion events.
func (x *Executor) SetEventBus(bus *event.Bus) {
	x.eventBus = bus
}

// Apply runs the action over the targets, in order. One item's failure
// never aborts the batch: every target gets exactly one outcome, and the
// slice index matches the input index. The caller is expected to have
// obtained confirmation before calling and to reconcile the result set
// with the succeeded names afterwards.
func (x *Executor) Apply(ctx context.Context, act device.Action, targets []device.Record, scopePath string) ([]Outcome, error) {
	if !act.Valid() {
		return nil, fmt.Errorf("unknown action %q", act)
	}

	startedAt := x.now()
	outcomes := make([]Outcome, 0, len(targets))
	for _, target := range targets {
		outcomes = append(outcomes, x.applyOne(ctx, act, target, scopePath))
	}

	x.record(ctx, act, scopePath, startedAt, outcomes)
	return outcomes, nil
}

func (x *Executor) applyOne(ctx context.Context, act device.Action, target device.Record, scopePath string) Outcome {
	out := Outcome{Name: target.Name, UniquePath: target.UniquePath}

	if out.UniquePath == "" {
		comp, err := x.client.FindComputerByName(ctx, target.Name, scopePath)
		switch {
		case errors.Is(err, directory.ErrNotFound):
			out.Result = OutcomeNotFound
			x.logger.Warn("target not found in directory", "name", target.Name, "scope", scopePath)
			return out
		case err != nil:
			out.Result = OutcomeFailed
			out.Reason = err.Error()
			x.logger.Warn("target resolution failed", "name", target.Name, "error", err)
			return out
		}
		out.UniquePath = comp.DistinguishedName
	}

	if x.guard.IsProtected(out.UniquePath) {
		out.Result = OutcomeProtected
		x.logger.Info("action vetoed by protection rules", "name", target.Name, "dn", out.UniquePath)
		return out
	}

	if err := x.wait(ctx); err != nil {
		out.Result = OutcomeFailed
		out.Reason = err.Error()
		return out
	}

	var err error
	switch act {
	case device.ActionDisable:
		err = x.client.SetEnabled(ctx, out.UniquePath, false)
	case device.ActionEnable:
		err = x.client.SetEnabled(ctx, out.UniquePath, true)
	case device.ActionDelete:
		err = x.client.DeleteObject(ctx, out.UniquePath)
	}
	if err != nil {
		out.Result = OutcomeFailed
		out.Reason = err.Error()
		x.logger.Error("action failed", "action", string(act), "name", target.Name, "error", err)
		return out
	}

	out.Result = OutcomeSucceeded
	x.logger.Info("action applied", "action", string(act), "name", target.Name, "dn", out.UniquePath)
	return out
}

func (x *Executor) wait(ctx context.Context) error {
	if x.limiter == nil {
		return nil
	}
	return x.limiter.Wait(ctx)
}

// record persists the batch to the audit store and announces completion.
// Audit failures are logged, never propagated: the outcome report the
// caller holds is authoritative.
func (x *Executor) record(ctx context.Context, act device.Action, scopePath string, startedAt time.Time, outcomes []Outcome) {
	completedAt := x.now()
	batch := &audit.Batch{
		ID:          audit.NewBatchID(),
		Action:      string(act),
		ScopePath:   scopePath,
		Total:       len(outcomes),
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
	}
	entries := make([]audit.Entry, 0, len(outcomes))
	for i, o := range outcomes {
		switch o.Result {
		case OutcomeSucceeded:
			batch.Succeeded++
		case OutcomeNotFound:
			batch.NotFound++
		case OutcomeProtected:
			batch.Protected++
		case OutcomeFailed:
			batch.Failed++
		}
		entries = append(entries, audit.Entry{
			Position:   i,
			Name:       o.Name,
			UniquePath: o.UniquePath,
			Outcome:    string(o.Result),
			Reason:     o.Reason,
		})
	}

	if x.store != nil {
		if err := x.store.RecordBatch(ctx, batch, entries); err != nil {
			x.logger.Error("recording action batch", "batch_id", batch.ID, "error", err)
		}
	}

	if x.eventBus != nil {
		x.eventBus.Publish(event.Event{
			Type: event.ActionCompleted,
			Data: map[string]any{
				"batch_id":  batch.ID,
				"action":    string(act),
				"total":     batch.Total,
				"succeeded": batch.Succeeded,
				"failed":    batch.Failed,
				"protected": batch.Protected,
				"not_found": batch.NotFound,
			},
		})
	}
}

// SucceededNames extracts the names with a succeeded outcome, in order.
// Feed these to ResultSet.ReconcileAfterAction.
func SucceededNames(outcomes []Outcome) []string {
	var names []string
	for _, o := range outcomes {
		if o.Result == OutcomeSucceeded {
			names = append(names, o.Name)
		}
	}
	return names
}
