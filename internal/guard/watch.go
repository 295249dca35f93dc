package guard

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events an editor emits
// for a single save.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a guard's rules whenever the backing rules file changes.
type Watcher struct {
	guard  *Guard
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending *time.Timer
	done    chan struct{}
}

// WatchFile loads the rules file into g and starts watching it for changes.
// The file holds one protected-path substring per line; blank lines and
// lines starting with '#' are ignored.
func WatchFile(g *Guard, path string, logger *slog.Logger) (*Watcher, error) {
	rules, err := LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	g.SetRules(rules)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	// Watch the parent directory: editors replace files on save, which
	// drops a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close() //nolint:errcheck
		return nil, fmt.Errorf("watching rules directory: %w", err)
	}

	w := &Watcher{
		guard:  g,
		path:   path,
		logger: logger.With(slog.String("component", "guard-watcher")),
		fsw:    fsw,
		done:   make(chan struct{}),
	}
	go w.loop()
	w.logger.Info("protection rules loaded", "path", path, "rules", len(rules))
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	rules, err := LoadRulesFile(w.path)
	if err != nil {
		// Keep the previous rules; a transient unreadable file must not
		// drop protection.
		w.logger.Warn("reloading protection rules failed, keeping previous set",
			"path", w.path, "error", err)
		return
	}
	w.guard.SetRules(rules)
	w.logger.Info("protection rules reloaded", "path", w.path, "rules", len(rules))
}

// Close stops watching. The guard keeps its last loaded rules.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsw.Close()
}

// LoadRulesFile reads a protection rules file: one substring per line,
// '#' comments and blank lines skipped.
func LoadRulesFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var rules []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return rules, nil
}
