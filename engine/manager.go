package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/errors"
	"github.com/wippyai/wasm-fmu/fmi2"
)

// TeardownPolicy decides whether the runtime is closed once nothing uses it.
type TeardownPolicy uint8

const (
	// TeardownNever keeps the runtime alive for the life of the process.
	TeardownNever TeardownPolicy = iota
	// TeardownAlways closes the runtime, even one adopted from the host.
	TeardownAlways
	// TeardownIfExclusive closes the runtime only if the manager created it.
	TeardownIfExclusive
)

func (p TeardownPolicy) String() string {
	switch p {
	case TeardownNever:
		return "never"
	case TeardownAlways:
		return "always"
	case TeardownIfExclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("TeardownPolicy(%d)", uint8(p))
	}
}

// ParseTeardownPolicy accepts never, always and exclusive. Empty means never.
func ParseTeardownPolicy(s string) (TeardownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return TeardownNever, nil
	case "always":
		return TeardownAlways, nil
	case "exclusive", "if-exclusive", "ifexclusive":
		return TeardownIfExclusive, nil
	}
	return TeardownNever, fmt.Errorf("unknown teardown policy %q (want never, always or exclusive)", s)
}

// Config holds configuration for the manager
type Config struct {
	// Teardown applies when the last user releases the runtime and on Shutdown.
	Teardown TeardownPolicy

	// MemoryLimitPages sets the maximum memory per model instance in pages (64KB each).
	// 0 means wazero's default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// LogSink receives records a model emits through the fmi2.log host import.
type LogSink interface {
	Sink(status fmi2.Status, category, message string)
}

// Manager owns the process-wide runtime.
type Manager struct {
	runtime wazero.Runtime
	modules map[string]*Module
	sinks   map[uint32]LogSink
	search  []string
	cfg     Config

	// interpreter lock
	lock sync.Mutex

	initMu   sync.Mutex
	initDone atomic.Bool
	owned    bool

	stateMu sync.Mutex
	users   int

	sinkMu   sync.RWMutex
	nextSink uint32
}

type lockKey struct{}

// NewManager creates a manager. No runtime exists until Init or Adopt.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		modules: make(map[string]*Module),
		sinks:   make(map[uint32]LogSink),
	}
}

// Config returns the configuration the manager was created with.
func (m *Manager) Config() Config {
	return m.cfg
}

// Init creates the runtime and installs the host modules.
// Calling it again while the runtime is active is a no-op.
func (m *Manager) Init(ctx context.Context) error {
	if m.initDone.Load() {
		return nil
	}

	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.initDone.Load() {
		return nil
	}

	if m.runtime == nil {
		rc := wazero.NewRuntimeConfig()
		if m.cfg.MemoryLimitPages > 0 {
			rc = rc.WithMemoryLimitPages(m.cfg.MemoryLimitPages)
		}
		m.runtime = wazero.NewRuntimeWithConfig(ctx, rc)
		m.owned = true
		Logger().Info("runtime initialized",
			zap.Uint32("memory_limit_pages", m.cfg.MemoryLimitPages),
			zap.Stringer("teardown", m.cfg.Teardown))
	} else {
		Logger().Info("runtime already active, running in shared mode")
	}

	if err := m.installHostModules(ctx); err != nil {
		if m.owned {
			_ = m.runtime.Close(ctx)
			m.runtime = nil
			m.owned = false
		}
		return errors.Wrap(errors.PhaseRuntime, errors.KindInstantiationFailed, err, "install host modules")
	}

	m.initDone.Store(true)
	return nil
}

// Adopt hands a host-owned runtime to the manager before Init.
func (m *Manager) Adopt(r wazero.Runtime) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.runtime == r {
		return nil
	}
	if m.runtime != nil {
		return errors.New(errors.PhaseRuntime, errors.KindInstantiationFailed).
			Detail("a runtime is already active").
			Build()
	}
	m.runtime = r
	m.owned = false
	return nil
}

// Active reports whether Init has completed and the runtime is open.
func (m *Manager) Active() bool {
	return m.initDone.Load()
}

// Runtime returns the managed runtime, nil before Init or Adopt.
func (m *Manager) Runtime() wazero.Runtime {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return m.runtime
}

// Acquire takes the interpreter lock. The returned context marks the lock as
// held, so acquiring again with it (or a context derived from it) does not block.
// The release function is safe to call more than once.
func (m *Manager) Acquire(ctx context.Context) (context.Context, func()) {
	if m.Holds(ctx) {
		return ctx, func() {}
	}
	m.lock.Lock()
	var once sync.Once
	return context.WithValue(ctx, lockKey{}, m), func() { once.Do(m.lock.Unlock) }
}

// Holds reports whether ctx carries this manager's interpreter lock.
func (m *Manager) Holds(ctx context.Context) bool {
	held, _ := ctx.Value(lockKey{}).(*Manager)
	return held == m
}

// AppendSearchPath adds dir to the module search path unless already present.
func (m *Manager) AppendSearchPath(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindUnresolvablePath, err, dir)
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if slices.Contains(m.search, abs) {
		return nil
	}
	m.search = append(m.search, abs)
	Logger().Debug("search path extended", zap.String("dir", abs))
	return nil
}

// SearchPath returns a copy of the module search path.
func (m *Manager) SearchPath() []string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return slices.Clone(m.search)
}

// ImportOption adjusts module resolution.
type ImportOption func(*importOptions)

type importOptions struct {
	prefer []string
}

// PreferDir searches dir before the search path.
func PreferDir(dir string) ImportOption {
	return func(o *importOptions) {
		if abs, err := filepath.Abs(dir); err == nil {
			o.prefer = append(o.prefer, abs)
		}
	}
}

// Import resolves <name>.wasm and compiles it. Compiled modules are cached by
// absolute path, so every component loading the same file shares one compilation.
func (m *Manager) Import(ctx context.Context, name string, opts ...ImportOption) (*Module, error) {
	if !m.initDone.Load() {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInstantiationFailed).
			Detail("runtime not initialized").
			Build()
	}

	var o importOptions
	for _, opt := range opts {
		opt(&o)
	}

	file := name + ".wasm"
	var tried []string
	for _, dir := range append(o.prefer, m.SearchPath()...) {
		path := filepath.Join(dir, file)
		if slices.Contains(tried, path) {
			continue
		}
		tried = append(tried, path)

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return m.load(ctx, name, path)
	}

	return nil, errors.New(errors.PhaseRuntime, errors.KindInstantiationFailed).
		Value(name).
		Detail("module %q not found, searched [%s]", name, strings.Join(tried, ", ")).
		Build()
}

func (m *Manager) load(ctx context.Context, name, path string) (*Module, error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if mod, ok := m.modules[path]; ok {
		return mod, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiationFailed, err, "read "+path)
	}

	compiled, err := m.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiationFailed, err, "compile "+path)
	}

	if missing := m.missingImports(compiled); len(missing) > 0 {
		_ = compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiationFailed,
			errors.NewMissingImportsError(missing), "link "+path)
	}

	mod := &Module{
		runtime:  m.runtime,
		compiled: compiled,
		name:     name,
		path:     path,
	}
	m.modules[path] = mod
	Logger().Debug("module compiled", zap.String("module", name), zap.String("path", path))
	return mod, nil
}

func (m *Manager) missingImports(compiled wazero.CompiledModule) []string {
	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		modName, fnName, _ := def.Import()
		host := m.runtime.Module(modName)
		if host == nil {
			missing = append(missing, modName+"#"+fnName)
			continue
		}
		// host modules forbid ExportedFunction; definitions work for both kinds
		if _, ok := host.ExportedFunctionDefinitions()[fnName]; !ok {
			missing = append(missing, modName+"#"+fnName)
		}
	}
	return missing
}

// RegisterSink makes sink reachable from the fmi2.log host import and returns
// the opaque id a model passes back. Ids are never 0.
func (m *Manager) RegisterSink(sink LogSink) uint32 {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()

	for {
		m.nextSink++
		if m.nextSink == 0 {
			continue
		}
		if _, taken := m.sinks[m.nextSink]; !taken {
			break
		}
	}
	m.sinks[m.nextSink] = sink
	return m.nextSink
}

// UnregisterSink drops a sink. Later log calls carrying its id are ignored.
func (m *Manager) UnregisterSink(id uint32) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	delete(m.sinks, id)
}

func (m *Manager) sink(id uint32) LogSink {
	m.sinkMu.RLock()
	defer m.sinkMu.RUnlock()
	return m.sinks[id]
}

// Retain registers one more user of the runtime.
func (m *Manager) Retain() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.users++
}

// Users returns the number of retained users.
func (m *Manager) Users() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.users
}

// Release drops one user; the last release applies the teardown policy.
func (m *Manager) Release(ctx context.Context) error {
	m.stateMu.Lock()
	if m.users > 0 {
		m.users--
	}
	last := m.users == 0
	m.stateMu.Unlock()

	if !last {
		return nil
	}
	return m.teardown(ctx, false)
}

// Shutdown applies the teardown policy regardless of remaining users.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.teardown(ctx, true)
}

// teardown closes the runtime per policy. Unless force is set, a user retained
// since the last Release keeps it open.
func (m *Manager) teardown(ctx context.Context, force bool) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.runtime == nil {
		return nil
	}
	if !force && m.Users() > 0 {
		Logger().Debug("runtime retained again, teardown skipped")
		return nil
	}

	switch m.cfg.Teardown {
	case TeardownNever:
		Logger().Debug("runtime kept alive", zap.Stringer("teardown", m.cfg.Teardown))
		return nil
	case TeardownIfExclusive:
		if !m.owned {
			Logger().Debug("runtime owned by host, kept alive")
			return nil
		}
	}

	m.stateMu.Lock()
	m.modules = make(map[string]*Module)
	m.stateMu.Unlock()

	err := m.runtime.Close(ctx)
	m.runtime = nil
	m.owned = false
	m.initDone.Store(false)
	Logger().Info("runtime closed", zap.Stringer("teardown", m.cfg.Teardown))
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindCallFailed, err, "close runtime")
	}
	return nil
}
