// Package ldapdir implements directory.Client against an LDAP directory
// (Active Directory or compatible).
package ldapdir

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/mproctor/adsweep/internal/directory"
)

// searchPageSize bounds the number of entries fetched per page. AD servers
// commonly cap un-paged searches at 1000 entries.
const searchPageSize = 500

// Config holds connection settings for the LDAP client.
type Config struct {
	URL          string   // e.g. ldaps://dc01.example.com:636
	BindDN       string
	BindPassword string
	BaseDN       string   // optional; when set it short-circuits root resolution
	ServerHints  []string // fallback URLs for root resolution
	Timeout      time.Duration
}

// Client talks to one LDAP directory. It keeps a single bound connection
// and serializes operations over it.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn ldap.Client
}

// New creates an LDAP directory client. The connection is established
// lazily on first use.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ldap")),
	}
}

// connect dials and binds if no live connection exists. Callers must hold mu.
func (c *Client) connect() (ldap.Client, error) {
	if c.conn != nil && !c.conn.IsClosing() {
		return c.conn, nil
	}
	conn, err := dialAndBind(c.cfg.URL, c.cfg.BindDN, c.cfg.BindPassword, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.logger.Debug("ldap connection established", "url", c.cfg.URL)
	return c.conn, nil
}

func dialAndBind(url, bindDN, password string, timeout time.Duration) (ldap.Client, error) {
	conn, err := ldap.DialURL(url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	conn.SetTimeout(timeout)
	if bindDN != "" {
		if err := conn.Bind(bindDN, password); err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("binding as %s: %w", bindDN, err)
		}
	}
	return conn, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// ResolveRootPath finds the directory's default naming context. Strategies,
// in order: the configured base DN, the RootDSE of the primary connection,
// then the RootDSE of each server hint. The first non-empty result wins.
func (c *Client) ResolveRootPath(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &directory.DiscoveryError{Op: "resolve-root", Err: err}
	}
	if c.cfg.BaseDN != "" {
		return c.cfg.BaseDN, nil
	}

	var lastErr error

	c.mu.Lock()
	conn, err := c.connect()
	if err == nil {
		root, rerr := rootDSEContext(conn)
		if rerr == nil && root != "" {
			c.mu.Unlock()
			return root, nil
		}
		lastErr = rerr
	} else {
		lastErr = err
	}
	c.mu.Unlock()

	for _, hint := range c.cfg.ServerHints {
		conn, err := dialAndBind(hint, c.cfg.BindDN, c.cfg.BindPassword, c.cfg.Timeout)
		if err != nil {
			c.logger.Warn("root resolution hint failed", "url", hint, "error", err)
			lastErr = err
			continue
		}
		root, rerr := rootDSEContext(conn)
		conn.Close() //nolint:errcheck
		if rerr == nil && root != "" {
			return root, nil
		}
		if rerr != nil {
			lastErr = rerr
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no naming context advertised")
	}
	return "", &directory.DiscoveryError{Op: "resolve-root", Err: lastErr}
}

// rootDSEContext reads defaultNamingContext from the RootDSE.
func rootDSEContext(conn ldap.Client) (string, error) {
	req := ldap.NewSearchRequest(
		"", ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", []string{"defaultNamingContext"}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return "", fmt.Errorf("reading RootDSE: %w", err)
	}
	if len(res.Entries) == 0 {
		return "", fmt.Errorf("empty RootDSE response")
	}
	return res.Entries[0].GetAttributeValue("defaultNamingContext"), nil
}

// ListOrganizationalUnits returns the distinguished names of every OU
// under rootPath.
func (c *Client) ListOrganizationalUnits(ctx context.Context, rootPath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &directory.DiscoveryError{Op: "list-ous", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connect()
	if err != nil {
		return nil, &directory.DiscoveryError{Op: "list-ous", Err: err}
	}

	req := ldap.NewSearchRequest(
		rootPath, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=organizationalUnit)", []string{"distinguishedName"}, nil,
	)
	res, err := conn.SearchWithPaging(req, searchPageSize)
	if err != nil {
		return nil, &directory.DiscoveryError{Op: "list-ous", Err: err}
	}

	paths := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		dn := e.GetAttributeValue("distinguishedName")
		if dn == "" {
			dn = e.DN
		}
		paths = append(paths, dn)
	}
	return paths, nil
}

// QueryComputers returns computer objects under scopePath. An empty
// scopePath searches from the directory root.
func (c *Client) QueryComputers(ctx context.Context, scopePath string, filter directory.Filter) ([]directory.Computer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &directory.DiscoveryError{Op: "query-computers", Err: err}
	}

	base := scopePath
	if base == "" {
		root, err := c.ResolveRootPath(ctx)
		if err != nil {
			return nil, err
		}
		base = root
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connect()
	if err != nil {
		return nil, &directory.DiscoveryError{Op: "query-computers", Err: err}
	}

	req := ldap.NewSearchRequest(
		base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		computerFilter(filter), computerAttributes, nil,
	)
	res, err := conn.SearchWithPaging(req, searchPageSize)
	if err != nil {
		return nil, &directory.DiscoveryError{Op: "query-computers", Err: err}
	}

	computers := make([]directory.Computer, 0, len(res.Entries))
	for _, e := range res.Entries {
		computers = append(computers, entryToComputer(e))
	}
	return computers, nil
}

// FindComputerByName resolves a single computer by sAMAccountName or CN
// within scopePath.
func (c *Client) FindComputerByName(ctx context.Context, name, scopePath string) (*directory.Computer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &directory.DiscoveryError{Op: "find-computer", Err: err}
	}

	base := scopePath
	if base == "" {
		root, err := c.ResolveRootPath(ctx)
		if err != nil {
			return nil, err
		}
		base = root
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connect()
	if err != nil {
		return nil, &directory.DiscoveryError{Op: "find-computer", Err: err}
	}

	req := ldap.NewSearchRequest(
		base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		nameFilter(name), computerAttributes, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		// A size-limit-exceeded result still carries the entries we asked for.
		if !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
			return nil, &directory.DiscoveryError{Op: "find-computer", Err: err}
		}
	}
	if res == nil || len(res.Entries) == 0 {
		return nil, directory.ErrNotFound
	}
	comp := entryToComputer(res.Entries[0])
	return &comp, nil
}

// SetEnabled flips the ACCOUNTDISABLE bit of userAccountControl at dn.
func (c *Client) SetEnabled(ctx context.Context, dn string, enabled bool) error {
	op := "disable"
	if enabled {
		op = "enable"
	}
	if err := ctx.Err(); err != nil {
		return &directory.ActionError{Op: op, DN: dn, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connect()
	if err != nil {
		return &directory.ActionError{Op: op, DN: dn, Err: err}
	}

	// Read the current control word so unrelated bits survive the write.
	req := ldap.NewSearchRequest(
		dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)", []string{attrUserAccountControl}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return &directory.ActionError{Op: op, DN: dn, Err: err}
	}
	if len(res.Entries) == 0 {
		return &directory.ActionError{Op: op, DN: dn, Err: directory.ErrNotFound}
	}

	current := parseUAC(res.Entries[0].GetAttributeValue(attrUserAccountControl))
	updated := setDisabledBit(current, !enabled)
	if updated == current {
		return nil
	}

	mod := ldap.NewModifyRequest(dn, nil)
	mod.Replace(attrUserAccountControl, []string{fmt.Sprintf("%d", updated)})
	if err := conn.Modify(mod); err != nil {
		return &directory.ActionError{Op: op, DN: dn, Err: err}
	}
	c.logger.Info("account control updated", "dn", dn, "enabled", enabled)
	return nil
}

// DeleteObject removes the object at dn.
func (c *Client) DeleteObject(ctx context.Context, dn string) error {
	if err := ctx.Err(); err != nil {
		return &directory.ActionError{Op: "delete", DN: dn, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connect()
	if err != nil {
		return &directory.ActionError{Op: "delete", DN: dn, Err: err}
	}

	if err := conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return &directory.ActionError{Op: "delete", DN: dn, Err: err}
	}
	c.logger.Info("object deleted", "dn", dn)
	return nil
}
