package action

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mproctor/adsweep/internal/audit"
	"github.com/mproctor/adsweep/internal/database"
	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/directory"
	"github.com/mproctor/adsweep/internal/guard"
)

type mutation struct {
	op string // "enable", "disable", "delete"
	dn string
}

type fakeDirectory struct {
	computers map[string]*directory.Computer // keyed by name
	failDNs   map[string]error               // mutations on these DNs fail
	mutations []mutation
}

func (f *fakeDirectory) ResolveRootPath(ctx context.Context) (string, error) { return "", nil }

func (f *fakeDirectory) ListOrganizationalUnits(ctx context.Context, rootPath string) ([]string, error) {
	return nil, nil
}

func (f *fakeDirectory) QueryComputers(ctx context.Context, scopePath string, filter directory.Filter) ([]directory.Computer, error) {
	return nil, nil
}

func (f *fakeDirectory) FindComputerByName(ctx context.Context, name, scopePath string) (*directory.Computer, error) {
	if c, ok := f.computers[name]; ok {
		return c, nil
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) SetEnabled(ctx context.Context, dn string, enabled bool) error {
	op := "disable"
	if enabled {
		op = "enable"
	}
	if err := f.failDNs[dn]; err != nil {
		return &directory.ActionError{Op: op, DN: dn, Err: err}
	}
	f.mutations = append(f.mutations, mutation{op: op, dn: dn})
	return nil
}

func (f *fakeDirectory) DeleteObject(ctx context.Context, dn string) error {
	if err := f.failDNs[dn]; err != nil {
		return &directory.ActionError{Op: "delete", DN: dn, Err: err}
	}
	f.mutations = append(f.mutations, mutation{op: "delete", dn: dn})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecutor(dir *fakeDirectory, g *guard.Guard, store *audit.Store) *Executor {
	if g == nil {
		g = guard.New(nil)
	}
	// No throttling in tests.
	return NewExecutor(dir, g, store, testLogger(), 0)
}

func record(name, dn string) device.Record {
	return device.Record{Name: name, UniquePath: dn}
}

func TestApply_PartialFailureNeverAbortsBatch(t *testing.T) {
	dir := &fakeDirectory{failDNs: map[string]error{
		"CN=B,DC=example,DC=com": errors.New("insufficient access"),
	}}
	x := newExecutor(dir, nil, nil)

	outcomes, err := x.Apply(context.Background(), device.ActionDelete, []device.Record{
		record("A", "CN=A,DC=example,DC=com"),
		record("B", "CN=B,DC=example,DC=com"),
		record("C", "CN=C,DC=example,DC=com"),
	}, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []OutcomeKind{OutcomeSucceeded, OutcomeFailed, OutcomeSucceeded}
	if len(outcomes) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(want))
	}
	for i, k := range want {
		if outcomes[i].Result != k {
			t.Errorf("outcome[%d] = %q, want %q", i, outcomes[i].Result, k)
		}
	}
	if outcomes[1].Reason == "" {
		t.Error("failed outcome should carry a reason")
	}
	if len(dir.mutations) != 2 {
		t.Errorf("got %d mutations, want 2 (A and C)", len(dir.mutations))
	}

	if names := SucceededNames(outcomes); len(names) != 2 || names[0] != "A" || names[1] != "C" {
		t.Errorf("SucceededNames = %v", names)
	}
}

func TestApply_ProtectedTargetsNeverReachTheDirectory(t *testing.T) {
	dir := &fakeDirectory{}
	g := guard.New([]string{"OU=Domain Controllers"})
	x := newExecutor(dir, g, nil)

	outcomes, err := x.Apply(context.Background(), device.ActionDisable, []device.Record{
		record("DC01", "CN=DC01,OU=Domain Controllers,DC=example,DC=com"),
		record("PC-001", "CN=PC-001,OU=Staff,DC=example,DC=com"),
	}, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if outcomes[0].Result != OutcomeProtected {
		t.Errorf("outcome[0] = %q, want protected", outcomes[0].Result)
	}
	if outcomes[1].Result != OutcomeSucceeded {
		t.Errorf("outcome[1] = %q, want succeeded", outcomes[1].Result)
	}
	if len(dir.mutations) != 1 || dir.mutations[0].dn != "CN=PC-001,OU=Staff,DC=example,DC=com" {
		t.Errorf("mutations = %+v, want only PC-001", dir.mutations)
	}
}

func TestApply_ResolvesImportedRecords(t *testing.T) {
	dir := &fakeDirectory{computers: map[string]*directory.Computer{
		"PC-001": {Name: "PC-001", DistinguishedName: "CN=PC-001,OU=Staff,DC=example,DC=com"},
	}}
	x := newExecutor(dir, nil, nil)

	outcomes, err := x.Apply(context.Background(), device.ActionEnable, []device.Record{
		record("PC-001", ""), // imported, unresolved
		record("MISSING", ""),
	}, "OU=Staff,DC=example,DC=com")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if outcomes[0].Result != OutcomeSucceeded {
		t.Errorf("outcome[0] = %+v, want succeeded", outcomes[0])
	}
	if outcomes[0].UniquePath != "CN=PC-001,OU=Staff,DC=example,DC=com" {
		t.Errorf("resolved path = %q", outcomes[0].UniquePath)
	}
	if outcomes[1].Result != OutcomeNotFound {
		t.Errorf("outcome[1] = %+v, want not_found", outcomes[1])
	}
	if len(dir.mutations) != 1 || dir.mutations[0].op != "enable" {
		t.Errorf("mutations = %+v", dir.mutations)
	}
}

func TestApply_RejectsUnknownAction(t *testing.T) {
	x := newExecutor(&fakeDirectory{}, nil, nil)
	if _, err := x.Apply(context.Background(), device.Action("explode"), nil, ""); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

func TestApply_RecordsAuditBatch(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	store := audit.NewStore(db)

	dir := &fakeDirectory{failDNs: map[string]error{
		"CN=B,DC=example,DC=com": errors.New("busy"),
	}}
	g := guard.New([]string{"OU=Protected"})
	x := newExecutor(dir, g, store)

	_, err = x.Apply(context.Background(), device.ActionDelete, []device.Record{
		record("A", "CN=A,DC=example,DC=com"),
		record("B", "CN=B,DC=example,DC=com"),
		record("P", "CN=P,OU=Protected,DC=example,DC=com"),
		record("MISSING", ""),
	}, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	batches, err := store.ListBatches(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.Total != 4 || b.Succeeded != 1 || b.Failed != 1 || b.Protected != 1 || b.NotFound != 1 {
		t.Errorf("batch counts = %+v", b)
	}

	entries, err := store.ListEntries(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 4 || entries[0].Name != "A" || entries[3].Name != "MISSING" {
		t.Errorf("entries = %+v", entries)
	}
}

// End-to-end slice of the workflow: apply a delete, reconcile the result
// set with the succeeded names, and verify only the failed item remains.
func TestApply_ThenReconcile(t *testing.T) {
	dir := &fakeDirectory{failDNs: map[string]error{
		"CN=B,DC=example,DC=com": errors.New("insufficient access"),
	}}
	x := newExecutor(dir, nil, nil)

	rs := device.NewResultSet(dir, testLogger())
	rs.ReplaceFromScan([]device.Record{
		record("A", "CN=A,DC=example,DC=com"),
		record("B", "CN=B,DC=example,DC=com"),
		record("C", "CN=C,DC=example,DC=com"),
	})

	targets := rs.Records()
	outcomes, err := x.Apply(context.Background(), device.ActionDelete, targets, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rs.ReconcileAfterAction(context.Background(), SucceededNames(outcomes), device.ActionDelete, "")

	remaining := rs.Records()
	if len(remaining) != 1 || remaining[0].Name != "B" {
		t.Fatalf("remaining = %+v, want only B", remaining)
	}
}
