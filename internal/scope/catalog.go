// Package scope loads and indexes the selectable search scopes (OUs) of
// the directory tree.
package scope

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mproctor/adsweep/internal/directory"
)

// EntireDomainDisplay labels the synthetic whole-tree scope.
const EntireDomainDisplay = "Entire Domain"

// Item is one selectable search scope. An empty Path means the entire tree.
type Item struct {
	Display string `json:"display"`
	Path    string `json:"path"`
}

// Catalog loads and caches the scope list.
type Catalog struct {
	client directory.Client
	logger *slog.Logger

	mu    sync.Mutex
	items []Item
}

// NewCatalog creates a scope catalog backed by the given directory client.
func NewCatalog(client directory.Client, logger *slog.Logger) *Catalog {
	return &Catalog{
		client: client,
		logger: logger.With(slog.String("component", "scope-catalog")),
	}
}

// Load enumerates all organizational units and rebuilds the catalog. The
// synthetic entire-tree item is always present at index 0. On a discovery
// failure the catalog degrades to just that item and the error is returned
// alongside it so the caller can surface a warning; it is not fatal.
func (c *Catalog) Load(ctx context.Context) ([]Item, error) {
	items := []Item{{Display: EntireDomainDisplay, Path: ""}}

	loaded, err := c.loadOUs(ctx)
	if err != nil {
		c.logger.Warn("scope discovery failed, falling back to entire tree", "error", err)
	} else {
		items = append(items, loaded...)
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()

	return c.snapshot(), err
}

func (c *Catalog) loadOUs(ctx context.Context) ([]Item, error) {
	root, err := c.client.ResolveRootPath(ctx)
	if err != nil {
		return nil, err
	}

	paths, err := c.client.ListOrganizationalUnits(ctx, root)
	if err != nil {
		return nil, err
	}

	// Dedupe by raw path, case-insensitively. The directory should not
	// hand back duplicates, but defend anyway.
	seen := make(map[string]bool, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, p)
	}
	sort.Strings(unique)

	items := make([]Item, 0, len(unique))
	for _, p := range unique {
		items = append(items, Item{Display: FriendlyPath(p), Path: p})
	}
	return items, nil
}

// Items returns the most recently loaded catalog, or just the entire-tree
// item if Load has never run.
func (c *Catalog) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		return []Item{{Display: EntireDomainDisplay, Path: ""}}
	}
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) snapshot() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// FriendlyPath renders a distinguished name as a human-readable container
// path: the OU components, outermost first, joined with " / ". Non-OU
// components (CN, DC) are dropped, so a computer's DN and its parent OU's
// DN render the same way.
func FriendlyPath(rawPath string) string {
	var ous []string
	for _, seg := range splitDN(rawPath) {
		// Attribute types compare case-insensitively in LDAP.
		if len(seg) >= 3 && strings.EqualFold(seg[:3], "OU=") {
			ous = append(ous, seg[3:])
		}
	}

	// DN components run innermost to outermost; reverse for display.
	for i, j := 0, len(ous)-1; i < j; i, j = i+1, j-1 {
		ous[i], ous[j] = ous[j], ous[i]
	}
	return strings.Join(ous, " / ")
}

// splitDN splits a distinguished name on commas, honoring backslash
// escapes, and trims surrounding whitespace from each component.
func splitDN(dn string) []string {
	var segs []string
	var cur strings.Builder
	escaped := false
	for _, r := range dn {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == ',':
			segs = append(segs, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		segs = append(segs, strings.TrimSpace(cur.String()))
	}
	return segs
}
