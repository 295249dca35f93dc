package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/directory"
	"github.com/mproctor/adsweep/internal/policy"
)

type queryResponse struct {
	computers []directory.Computer
	err       error
	entered   chan struct{} // when non-nil, closed once the call begins
	block     chan struct{} // when non-nil, the call waits for close or ctx
}

type fakeDirectory struct {
	mu        sync.Mutex
	responses []queryResponse
}

func (f *fakeDirectory) push(r queryResponse) {
	f.mu.Lock()
	f.responses = append(f.responses, r)
	f.mu.Unlock()
}

func (f *fakeDirectory) QueryComputers(ctx context.Context, scopePath string, filter directory.Filter) ([]directory.Computer, error) {
	f.mu.Lock()
	if len(f.responses) == 0 {
		f.mu.Unlock()
		return nil, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	f.mu.Unlock()

	if r.entered != nil {
		close(r.entered)
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.computers, r.err
}

func (f *fakeDirectory) ResolveRootPath(ctx context.Context) (string, error) { return "", nil }

func (f *fakeDirectory) ListOrganizationalUnits(ctx context.Context, rootPath string) ([]string, error) {
	return nil, nil
}

func (f *fakeDirectory) FindComputerByName(ctx context.Context, name, scopePath string) (*directory.Computer, error) {
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) SetEnabled(ctx context.Context, dn string, enabled bool) error { return nil }
func (f *fakeDirectory) DeleteObject(ctx context.Context, dn string) error             { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(b bool) *bool           { return &b }
func timePtr(t time.Time) *time.Time { return &t }

// waitForTerminal polls the engine until a terminal status is observed.
func waitForTerminal(t *testing.T, e *Engine, handle string) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := e.Poll(handle)
		if st.State.Terminal() {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scan did not reach a terminal state within timeout")
	return Status{}
}

func TestStart_RejectsInvalidRequests(t *testing.T) {
	e := NewEngine(&fakeDirectory{}, testLogger())

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown mode", Request{Mode: "bogus"}},
		{"zero threshold", Request{Mode: policy.ModeInactiveOnly, ThresholdDays: 0}},
		{"negative threshold", Request{Mode: policy.ModeInactiveOnly, ThresholdDays: -30}},
		{"never-logged-on flag with disabled mode", Request{Mode: policy.ModeDisabledOnly, IncludeNeverLoggedOn: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Start(context.Background(), tt.req)
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConfigurationError", err)
			}
			if e.Running() {
				t.Error("no job should exist after a rejected start")
			}
		})
	}
}

func TestScan_CompletesAndClassifies(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -366)
	recent := time.Now().UTC().AddDate(0, 0, -31)
	dir := &fakeDirectory{}
	dir.push(queryResponse{computers: []directory.Computer{
		{Name: "OLD-PC", DistinguishedName: "CN=OLD-PC,OU=Staff,DC=example,DC=com", Enabled: boolPtr(true), LastLogon: timePtr(old)},
		{Name: "FRESH-PC", DistinguishedName: "CN=FRESH-PC,DC=example,DC=com", Enabled: boolPtr(true), LastLogon: timePtr(recent)},
		{Name: "GHOST-PC", DistinguishedName: "CN=GHOST-PC,DC=example,DC=com", Enabled: boolPtr(true)},
	}})
	e := NewEngine(dir, testLogger())

	handle, err := e.Start(context.Background(), Request{
		Mode:          policy.ModeInactiveOnly,
		ThresholdDays: 180,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := waitForTerminal(t, e, handle)
	if st.State != StateCompleted {
		t.Fatalf("state = %q, want completed (error: %s)", st.State, st.Error)
	}
	if len(st.Rows) != 1 {
		t.Fatalf("got %d rows, want 1 (old PC only, never-logged-on excluded): %+v", len(st.Rows), st.Rows)
	}
	row := st.Rows[0]
	if row.Name != "OLD-PC" || row.Origin != device.OriginScanned {
		t.Errorf("row = %+v", row)
	}
	if row.InactiveDays == nil || *row.InactiveDays != 366 {
		t.Errorf("InactiveDays = %v, want 366", row.InactiveDays)
	}

	// The terminal status was consumed; the job is gone.
	again := e.Poll(handle)
	if again.State != StateCancelled || len(again.Rows) != 0 {
		t.Errorf("second poll = %+v, want cancelled with no rows", again)
	}
}

func TestScan_IncludeNeverLoggedOn(t *testing.T) {
	dir := &fakeDirectory{}
	dir.push(queryResponse{computers: []directory.Computer{
		{Name: "GHOST-PC", DistinguishedName: "CN=GHOST-PC,DC=example,DC=com", Enabled: boolPtr(true)},
	}})
	e := NewEngine(dir, testLogger())

	handle, err := e.Start(context.Background(), Request{
		Mode:                 policy.ModeInactiveOnly,
		ThresholdDays:        90,
		IncludeNeverLoggedOn: true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := waitForTerminal(t, e, handle)
	if st.State != StateCompleted || len(st.Rows) != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.Rows[0].InactiveDays != nil {
		t.Errorf("never-logged-on row should have no inactive-day count")
	}
}

func TestScan_FailureSurfacesDiscoveryError(t *testing.T) {
	dir := &fakeDirectory{}
	dir.push(queryResponse{err: &directory.DiscoveryError{Op: "query-computers", Err: errors.New("server down")}})
	e := NewEngine(dir, testLogger())

	handle, err := e.Start(context.Background(), Request{Mode: policy.ModeDisabledOnly})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := waitForTerminal(t, e, handle)
	if st.State != StateFailed {
		t.Fatalf("state = %q, want failed", st.State)
	}
	if st.Error == "" || len(st.Rows) != 0 {
		t.Errorf("failed status = %+v, want error and no partial rows", st)
	}
}

func TestScan_StartSupersedesRunningJob(t *testing.T) {
	dir := &fakeDirectory{}
	entered := make(chan struct{})
	release := make(chan struct{})
	staleRow := []directory.Computer{{Name: "STALE", DistinguishedName: "CN=STALE,DC=example,DC=com", Enabled: boolPtr(false)}}
	freshRow := []directory.Computer{{Name: "FRESH", DistinguishedName: "CN=FRESH,DC=example,DC=com", Enabled: boolPtr(false)}}
	dir.push(queryResponse{computers: staleRow, entered: entered, block: release})
	dir.push(queryResponse{computers: freshRow})
	e := NewEngine(dir, testLogger())

	handleA, err := e.Start(context.Background(), Request{Mode: policy.ModeDisabledOnly})
	if err != nil {
		t.Fatalf("Start A: %v", err)
	}

	// Scan A must be inside its blocked query before B starts, otherwise B
	// could pop A's queued response.
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scan A never issued its query")
	}

	handleB, err := e.Start(context.Background(), Request{Mode: policy.ModeDisabledOnly})
	if err != nil {
		t.Fatalf("Start B: %v", err)
	}

	// Let scan A's query finish after it was superseded.
	close(release)

	stB := waitForTerminal(t, e, handleB)
	if stB.State != StateCompleted {
		t.Fatalf("scan B state = %q, want completed", stB.State)
	}
	if len(stB.Rows) != 1 || stB.Rows[0].Name != "FRESH" {
		t.Fatalf("scan B rows = %+v, want only FRESH", stB.Rows)
	}

	// Scan A's rows are gone forever.
	stA := e.Poll(handleA)
	if stA.State != StateCancelled || len(stA.Rows) != 0 {
		t.Errorf("scan A poll = %+v, want cancelled with no rows", stA)
	}
}

func TestScan_Cancel(t *testing.T) {
	dir := &fakeDirectory{}
	release := make(chan struct{})
	dir.push(queryResponse{block: release})
	e := NewEngine(dir, testLogger())

	handle, err := e.Start(context.Background(), Request{Mode: policy.ModeDisabledOnly})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.Running() {
		t.Fatal("job should be running")
	}

	e.Cancel(handle)
	defer close(release)

	st := e.Poll(handle)
	if st.State != StateCancelled {
		t.Fatalf("state after cancel = %q, want cancelled", st.State)
	}
	if e.Running() {
		t.Error("no job should be running after cancellation was observed")
	}
}

func TestScan_DeduplicatesByUniquePath(t *testing.T) {
	dir := &fakeDirectory{}
	dir.push(queryResponse{computers: []directory.Computer{
		{Name: "PC-1", DistinguishedName: "CN=PC-1,DC=example,DC=com", Enabled: boolPtr(false)},
		{Name: "PC-1", DistinguishedName: "cn=pc-1,dc=example,dc=com", Enabled: boolPtr(false)},
	}})
	e := NewEngine(dir, testLogger())

	handle, err := e.Start(context.Background(), Request{Mode: policy.ModeDisabledOnly})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := waitForTerminal(t, e, handle)
	if len(st.Rows) != 1 {
		t.Fatalf("got %d rows, want 1 after dedupe", len(st.Rows))
	}
}
