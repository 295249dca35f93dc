package scope

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mproctor/adsweep/internal/directory"
)

type fakeDirectory struct {
	root    string
	rootErr error
	ous     []string
	ousErr  error
}

func (f *fakeDirectory) ResolveRootPath(ctx context.Context) (string, error) {
	return f.root, f.rootErr
}

func (f *fakeDirectory) ListOrganizationalUnits(ctx context.Context, rootPath string) ([]string, error) {
	return f.ous, f.ousErr
}

func (f *fakeDirectory) QueryComputers(ctx context.Context, scopePath string, filter directory.Filter) ([]directory.Computer, error) {
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

func TestFriendlyPath(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"nested OUs", "OU=IT,OU=Faculty,DC=example,DC=com", "Faculty / IT"},
		{"computer DN renders its container", "CN=PC-001,OU=IT,OU=Faculty,DC=example,DC=com", "Faculty / IT"},
		{"single OU", "OU=Servers,DC=example,DC=com", "Servers"},
		{"no OUs", "CN=PC-001,CN=Computers,DC=example,DC=com", ""},
		{"lowercase attribute", "ou=it,dc=example,dc=com", "it"},
		{"mixed-case attribute", "Ou=Labs,oU=Science,DC=example,DC=com", "Science / Labs"},
		{"escaped comma inside value", `OU=Sales\, East,DC=example,DC=com`, `Sales\, East`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FriendlyPath(tt.raw); got != tt.want {
				t.Errorf("FriendlyPath(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCatalog_Load(t *testing.T) {
	dir := &fakeDirectory{
		root: "DC=example,DC=com",
		ous: []string{
			"OU=Staff,DC=example,DC=com",
			"OU=IT,OU=Faculty,DC=example,DC=com",
			"ou=staff,dc=example,dc=com", // case-insensitive duplicate
			"OU=Faculty,DC=example,DC=com",
		},
	}
	cat := NewCatalog(dir, testLogger())

	items, err := cat.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(items) != 4 {
		t.Fatalf("got %d items, want 4 (entire tree + 3 unique OUs): %+v", len(items), items)
	}
	if items[0].Display != EntireDomainDisplay || items[0].Path != "" {
		t.Errorf("index 0 = %+v, want synthetic entire-tree item", items[0])
	}
	// Remaining items sorted by raw path.
	if items[1].Path != "OU=Faculty,DC=example,DC=com" {
		t.Errorf("items[1].Path = %q", items[1].Path)
	}
	if items[2].Path != "OU=IT,OU=Faculty,DC=example,DC=com" {
		t.Errorf("items[2].Path = %q", items[2].Path)
	}
	if items[2].Display != "Faculty / IT" {
		t.Errorf("items[2].Display = %q, want Faculty / IT", items[2].Display)
	}
}

func TestCatalog_LoadDegradesOnDiscoveryError(t *testing.T) {
	dir := &fakeDirectory{
		rootErr: &directory.DiscoveryError{Op: "resolve-root", Err: errors.New("no server")},
	}
	cat := NewCatalog(dir, testLogger())

	items, err := cat.Load(context.Background())
	if err == nil {
		t.Fatal("expected an error to surface for the caller's warning")
	}
	if len(items) != 1 || items[0].Display != EntireDomainDisplay {
		t.Fatalf("degraded catalog = %+v, want only the entire-tree item", items)
	}

	var de *directory.DiscoveryError
	if !errors.As(err, &de) {
		t.Errorf("error = %T, want *directory.DiscoveryError", err)
	}
}

func TestCatalog_ItemsBeforeLoad(t *testing.T) {
	cat := NewCatalog(&fakeDirectory{}, testLogger())
	items := cat.Items()
	if len(items) != 1 || items[0].Path != "" {
		t.Fatalf("Items before Load = %+v, want just the entire-tree item", items)
	}
}
