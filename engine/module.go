package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-fmu/errors"
)

// Module is a compiled model module shared by every component that imports it.
type Module struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	name     string
	path     string
}

// Name returns the module identifier it was imported under.
func (m *Module) Name() string { return m.name }

// Path returns the file the module was compiled from.
func (m *Module) Path() string { return m.path }

// Functions returns the exported function definitions keyed by export name.
func (m *Module) Functions() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}

// Exports returns the exported function names in sorted order.
func (m *Module) Exports() []string {
	fns := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate creates a fresh anonymous instance. Instances share nothing;
// each component gets its own memory and globals.
func (m *Module) Instantiate(ctx context.Context) (api.Module, error) {
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize")

	inst, err := m.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInstantiationFailed, err, "instantiate "+m.name)
	}
	return inst, nil
}
