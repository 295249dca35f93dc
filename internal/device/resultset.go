package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mproctor/adsweep/internal/directory"
	"github.com/mproctor/adsweep/internal/scope"
)

// ResultSet is the deduplicated collection of device records backing all
// downstream actions. Names are unique within the set, case-insensitively.
// The set guards its own structure with a mutex, but callers are expected
// not to install scan results while a batch action is in flight.
type ResultSet struct {
	client directory.Client
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	records []Record
}

// NewResultSet creates an empty result set. The directory client is used
// to re-resolve records during post-action reconciliation.
func NewResultSet(client directory.Client, logger *slog.Logger) *ResultSet {
	return &ResultSet{
		client: client,
		logger: logger.With(slog.String("component", "resultset")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ReplaceFromScan discards the current content entirely and installs the
// given scan rows. Each row is tagged Origin=Scanned and annotated with a
// friendly scope derived from its unique path. Duplicate names (the
// directory should not produce them, but defend anyway) keep the first row.
func (rs *ResultSet) ReplaceFromScan(rows []Record) {
	seen := make(map[string]bool, len(rows))
	fresh := make([]Record, 0, len(rows))
	for _, r := range rows {
		key := strings.ToLower(r.Name)
		if r.Name == "" || seen[key] {
			continue
		}
		seen[key] = true
		r.Origin = OriginScanned
		r.FriendlyScope = scope.FriendlyPath(r.UniquePath)
		r.Selected = false
		fresh = append(fresh, r)
	}

	rs.mu.Lock()
	rs.records = fresh
	rs.mu.Unlock()
}

// LoadImported replaces the current content with one record per usable
// name: blank entries are skipped, surrounding whitespace is trimmed, and
// duplicates (case-insensitive) collapse to the first occurrence. Imported
// records start with no directory data; their unique paths are resolved
// lazily when an action touches them.
func (rs *ResultSet) LoadImported(names []string) int {
	seen := make(map[string]bool, len(names))
	fresh := make([]Record, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, Record{Name: n, Origin: OriginImported})
	}

	rs.mu.Lock()
	rs.records = fresh
	rs.mu.Unlock()
	return len(fresh)
}

// Records returns a copy of the current content in order.
func (rs *ResultSet) Records() []Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Record, len(rs.records))
	copy(out, rs.records)
	return out
}

// Selected returns copies of the currently selected records in order.
func (rs *ResultSet) Selected() []Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []Record
	for _, r := range rs.records {
		if r.Selected {
			out = append(out, r)
		}
	}
	return out
}

// SetSelected updates the Selected flag for the named records and returns
// how many were matched. Names compare case-insensitively.
func (rs *ResultSet) SetSelected(names []string, selected bool) int {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	matched := 0
	for i := range rs.records {
		if want[strings.ToLower(rs.records[i].Name)] {
			rs.records[i].Selected = selected
			matched++
		}
	}
	return matched
}

// Len returns the number of records currently held.
func (rs *ResultSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.records)
}

// ReconcileAfterAction folds the outcome of a completed batch back into the
// set. Deleted records are removed. Enabled/disabled records are re-resolved
// against the directory within scopePath and refreshed; a record whose
// re-resolution fails keeps its stale snapshot (with a warning) so the rest
// of the reconciliation still proceeds.
func (rs *ResultSet) ReconcileAfterAction(ctx context.Context, names []string, action Action, scopePath string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}

	if action == ActionDelete {
		rs.mu.Lock()
		kept := rs.records[:0]
		for _, r := range rs.records {
			if !want[strings.ToLower(r.Name)] {
				kept = append(kept, r)
			}
		}
		rs.records = kept
		rs.mu.Unlock()
		return
	}

	now := rs.now()
	for _, n := range names {
		comp, err := rs.client.FindComputerByName(ctx, n, scopePath)
		if err != nil {
			rs.logger.Warn("reconciliation lookup failed, keeping stale snapshot",
				"name", n, "error", err)
			continue
		}
		rs.refresh(n, comp, now)
	}
}

func (rs *ResultSet) refresh(name string, comp *directory.Computer, now time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	key := strings.ToLower(name)
	for i := range rs.records {
		if strings.ToLower(rs.records[i].Name) != key {
			continue
		}
		r := &rs.records[i]
		r.UniquePath = comp.DistinguishedName
		r.Enabled = comp.Enabled
		r.LastActivity = comp.LastLogon
		if comp.LastLogon != nil {
			days := int(now.Sub(*comp.LastLogon).Hours() / 24)
			if days < 0 {
				days = 0
			}
			r.InactiveDays = &days
		} else {
			r.InactiveDays = nil
		}
		r.FriendlyScope = scope.FriendlyPath(comp.DistinguishedName)
		r.Selected = false
		return
	}
}
