package extension

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
)

// Module is a candidate found by a Source. Import yields the module symbol
// and may run the module's initialisation.
type Module struct {
	Name   string
	Import func() (any, error)
}

// Source enumerates modules under a namespace
type Source interface {
	Modules(namespace string) ([]Module, error)
}

// Catalog is a static manifest of compiled-in modules, usually filled from
// init functions.
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]func() (any, error)
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{modules: make(map[string]func() (any, error))}
}

// Default is the catalog compiled-in extensions register with
var Default = NewCatalog()

// Register adds sym under name, replacing an earlier entry
func (c *Catalog) Register(name string, sym any) {
	c.RegisterImporter(name, func() (any, error) { return sym, nil })
}

// RegisterSetup adds a setup function under name
func (c *Catalog) RegisterSetup(name string, fn SetupFunc) {
	c.Register(name, fn)
}

// RegisterImporter adds a lazily evaluated module
func (c *Catalog) RegisterImporter(name string, imp func() (any, error)) {
	c.mu.Lock()
	c.modules[name] = imp
	c.mu.Unlock()
}

// Modules returns the entries under namespace
func (c *Catalog) Modules(namespace string) ([]Module, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Module
	for name, imp := range c.modules {
		if strings.HasPrefix(name, namespace+".") {
			out = append(out, Module{Name: name, Import: imp})
		}
	}
	return out, nil
}

// Register adds sym to the Default catalog
func Register(name string, sym any) {
	Default.Register(name, sym)
}

// RegisterSetup adds fn to the Default catalog
func RegisterSetup(name string, fn SetupFunc) {
	Default.RegisterSetup(name, fn)
}

// PluginSymbol is the exported symbol looked up in shared objects
const PluginSymbol = "Setup"

// PluginDir enumerates Go plugin shared objects below a directory. The file
// dir/sub/name.so becomes <namespace>.sub.name.
type PluginDir struct {
	Dir string
}

// Modules walks the directory. A missing directory yields no modules.
func (p PluginDir) Modules(namespace string) ([]Module, error) {
	if p.Dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(p.Dir); os.IsNotExist(err) {
		return nil, nil
	}

	var out []Module
	err := filepath.WalkDir(p.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".so" {
			return nil
		}

		rel, err := filepath.Rel(p.Dir, strings.TrimSuffix(path, ".so"))
		if err != nil {
			return nil
		}
		name := namespace + "." + strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
		out = append(out, Module{Name: name, Import: openPlugin(path)})
		return nil
	})
	return out, err
}

func openPlugin(path string) func() (any, error) {
	return func() (any, error) {
		lib, err := plugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", path, err)
		}
		sym, err := lib.Lookup(PluginSymbol)
		if err != nil {
			// a plugin without the symbol is a module without an entry point
			return nil, nil
		}
		return sym, nil
	}
}

// Found is a discovered extension
type Found struct {
	ID    string
	Entry Extension
}

// Result is the outcome of one discovery pass
type Result struct {
	Found []Found

	// NoEntryPoint lists importable modules without a recognised entry point.
	NoEntryPoint []string
}

// IDs returns the discovered identifiers in order
func (r Result) IDs() []string {
	ids := make([]string, len(r.Found))
	for i, f := range r.Found {
		ids[i] = f.ID
	}
	return ids
}

func isPrivate(name string) bool {
	leaf := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		leaf = name[i+1:]
	}
	return strings.HasPrefix(leaf, "_")
}

// Discover enumerates the extensions under namespace. Import failures are
// collected as DiscoveryFailed failures and never stop the enumeration; the
// returned Result is valid even when the error is not nil. When several
// sources provide the same name the first one wins.
func Discover(namespace string, sources ...Source) (Result, error) {
	var (
		res  Result
		errs error
		seen = make(map[string]bool)
	)

	for _, src := range sources {
		modules, err := src.Modules(namespace)
		if err != nil {
			errs = multierr.Append(errs, errors.NewBuilder(errors.KindDiscoveryFailed).
				Wrap(err).
				WithExtension(namespace).
				Build())
		}

		sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
		for _, mod := range modules {
			if seen[mod.Name] || isPrivate(mod.Name) {
				continue
			}
			seen[mod.Name] = true

			sym, err := importModule(mod)
			if err != nil {
				errs = multierr.Append(errs, errors.NewBuilder(errors.KindDiscoveryFailed).
					Wrap(err).
					WithMessagef("Extension '%s' could not be imported: %v", mod.Name, err).
					WithExtension(mod.Name).
					Build())
				continue
			}

			entry, ok := entryPoint(sym)
			if !ok {
				res.NoEntryPoint = append(res.NoEntryPoint, mod.Name)
				continue
			}
			res.Found = append(res.Found, Found{ID: mod.Name, Entry: entry})
		}
	}

	sort.Slice(res.Found, func(i, j int) bool { return res.Found[i].ID < res.Found[j].ID })
	sort.Strings(res.NoEntryPoint)
	return res, errs
}

func importModule(mod Module) (sym any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.PanicError{Value: r}
		}
	}()
	return mod.Import()
}
