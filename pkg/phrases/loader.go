package phrases

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Source provides the catalog currently in effect.
type Source interface {
	Catalog() *Catalog
}

// Static is a Source that always returns the same catalog.
type Static struct {
	C *Catalog
}

func (s Static) Catalog() *Catalog { return s.C }

// Loader loads phrase overrides from YAML files and layers them over the
// built-in catalog. It can hot-reload the directory.
type Loader struct {
	dir      string
	onReload func(*Catalog)

	mu      sync.RWMutex
	catalog *Catalog
}

// NewLoader creates a loader for dir. An empty dir serves the built-in
// catalog only.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:     dir,
		catalog: DefaultCatalog(),
	}
}

// OnReload registers a callback invoked after every successful reload
// triggered by WatchAndReload.
func (l *Loader) OnReload(fn func(*Catalog)) {
	l.mu.Lock()
	l.onReload = fn
	l.mu.Unlock()
}

// Dir returns the override directory.
func (l *Loader) Dir() string { return l.dir }

// LoadAll loads all .yaml and .yml files from the configured directory in
// name order and merges them over the built-in catalog. On error the
// previously loaded catalog stays in effect.
func (l *Loader) LoadAll() (*Catalog, error) {
	merged := DefaultCatalog()
	if l.dir == "" {
		l.mu.Lock()
		l.catalog = merged
		l.mu.Unlock()
		return merged, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read phrases dir %q: %w", l.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isCatalogFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(l.dir, name)
		c, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		merged = merged.Merge(c)
	}

	l.mu.Lock()
	l.catalog = merged
	l.mu.Unlock()

	return merged, nil
}

// Catalog returns the catalog currently in effect.
func (l *Loader) Catalog() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog
}

func (l *Loader) loadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	if c.Name == "" {
		c.Name = filepath.Base(path)
	}
	return c, nil
}

// WatchAndReload starts watching the phrases directory for changes and
// reloads. This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	if l.dir == "" {
		<-done
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if !isCatalogFile(event.Name) {
				continue
			}
			c, err := l.LoadAll()
			if err != nil {
				slog.Warn("phrase catalog rejected, keeping previous",
					slog.String("dir", l.dir), slog.String("error", err.Error()))
				continue
			}
			slog.Info("phrase catalog reloaded",
				slog.String("dir", l.dir), slog.Int("keys", len(c.Phrases)))
			l.mu.RLock()
			fn := l.onReload
			l.mu.RUnlock()
			if fn != nil {
				fn(c)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func isCatalogFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
