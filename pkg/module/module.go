package module

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/cache"
	"github.com/chazu/reactor/pkg/config"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/rxlog"
	"github.com/chazu/reactor/pkg/vm"
)

// Loader resolves "a.b.c" import paths under a module root and links each
// resolved file into a single shared VM exactly once: a module's
// top-level names merge into the same global environment every other
// module (and the entry program) sees, regardless of how many distinct
// import statements name it.
type Loader struct {
	root  string
	vm    *vm.VM
	cache *cache.Store // nil disables the compiled-program cache
	log   *rxlog.Run   // nil disables run logging

	group singleflight.Group

	mu      sync.Mutex
	loaded  map[string]bool
	loading map[string]bool
}

// New creates a Loader rooted at root, linking every resolved module into
// v. cache may be nil to run without the persistent compiled-program cache.
func New(root string, v *vm.VM, cache *cache.Store) *Loader {
	return &Loader{
		root:    root,
		vm:      v,
		cache:   cache,
		loaded:  make(map[string]bool),
		loading: make(map[string]bool),
	}
}

// WithLog attaches a run logger; every future Load call on this Loader logs
// its module-loaded/cache-hit/cache-miss events against it.
func (l *Loader) WithLog(log *rxlog.Run) *Loader {
	l.log = log
	return l
}

// NewFromConfig builds a Loader rooted and cached the way cfg describes:
// cfg.ModuleRootPath() is the module root, cfg.CachePath() backs the
// compiled-program cache unless cfg.Cache.Disable is set. cfg may be nil —
// mirroring config.FindAndLoad's "absent reactor.toml is not an error" —
// in which case the loader roots at the current directory with no cache,
// same as passing a nil cache.Store to New directly. The returned
// *cache.Store is nil when caching is disabled or unconfigured; otherwise
// it is open and the caller is responsible for closing it once the run
// finishes. Exercised here by this package's own tests; the actual call
// site is a cmd/ entry point wiring reactor.toml into a Loader on
// startup, which is outside this repository's scope.
func NewFromConfig(cfg *config.Config, v *vm.VM, log *rxlog.Run) (*Loader, *cache.Store, error) {
	root := "."
	var store *cache.Store

	if cfg != nil {
		root = cfg.ModuleRootPath()
		if !cfg.Cache.Disable {
			var err error
			store, err = cache.Open(cfg.CachePath())
			if err != nil {
				return nil, nil, err
			}
		}
	}

	loader := New(root, v, store)
	if log != nil {
		loader = loader.WithLog(log)
	}
	return loader, store, nil
}

// resolve turns "a.b.c" into <root>/a/b/c.rxb.
func (l *Loader) resolve(importPath string) string {
	parts := strings.Split(importPath, ".")
	return filepath.Join(append([]string{l.root}, parts...)...) + ".rxb"
}

// Load parses and links importPath's bytecode image exactly once. A second
// Load of an already-loaded path is a no-op, even if the underlying file
// has since vanished: the module-once guarantee means nothing after the
// first successful load should ever touch the filesystem for that path
// again. A Load reached while that same path's first Load is
// still in flight (an import cycle, since Reactor has no concurrency of
// its own to make this a race) fails with LoaderError instead of
// recursing forever.
func (l *Loader) Load(importPath string) error {
	path := l.resolve(importPath)

	l.mu.Lock()
	if l.loaded[path] {
		l.mu.Unlock()
		return nil
	}
	if l.loading[path] {
		l.mu.Unlock()
		return rxerr.New(rxerr.LoaderError, "cyclic import: %s", importPath)
	}
	l.loading[path] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.loading, path)
		l.mu.Unlock()
	}()

	_, err, _ := l.group.Do(path, func() (any, error) {
		prog, parseErr := l.parse(path)
		if parseErr != nil {
			return nil, parseErr
		}
		return nil, l.vm.LinkModule(prog)
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.loaded[path] = true
	l.mu.Unlock()
	if l.log != nil {
		l.log.ModuleLoaded(importPath)
	}
	return nil
}

func (l *Loader) parse(path string) (*bytecode.Program, error) {
	if l.cache != nil {
		if prog, ok := l.cache.Get(path); ok {
			if l.log != nil {
				l.log.CacheHit(path)
			}
			return prog, nil
		}
		if l.log != nil {
			l.log.CacheMiss(path)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, rxerr.New(rxerr.LoaderError, "cannot open module %q: %v", path, err)
	}
	defer f.Close()
	prog, err := bytecode.Parse(f)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		_ = l.cache.Put(path, prog)
	}
	return prog, nil
}
