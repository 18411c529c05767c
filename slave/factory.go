// Package slave composes the state machine, marshaler and log bridge of one
// co-simulation component.
package slave

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/config"
	"github.com/wippyai/wasm-fmu/conformance"
	"github.com/wippyai/wasm-fmu/engine"
	"github.com/wippyai/wasm-fmu/errors"
	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/logbridge"
	"github.com/wippyai/wasm-fmu/marshal"
)

// Instantiation steps, reported in logs and errors.
const (
	StepInitRuntime       = "initialize runtime"
	StepSearchPath        = "extend module search path"
	StepImportModule      = "import entry module"
	StepInstantiateModule = "instantiate entry module"
	StepConstruct         = "instantiate entry class"
	StepLogCallback       = "register log callback"
)

// Options carries the fmi2Instantiate arguments that shape a component.
type Options struct {
	InstanceName string
	GUID         string
	LoggingOn    bool
	Visible      bool
	Callback     logbridge.Callback
	Logger       *zap.Logger
}

// Factory creates adapters on a shared manager.
type Factory struct {
	Manager *engine.Manager
}

// NewFactory creates a factory using m.
func NewFactory(m *engine.Manager) *Factory {
	return &Factory{Manager: m}
}

// Create imports the configured module, instantiates the entry class and wraps
// it in an adapter. A failing step is logged through the component's bridge and
// returned as InstantiationFailed; nothing acquired before it is kept.
func (f *Factory) Create(ctx context.Context, cfg config.Configuration, opts Options) (*Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	logger = logger.With(zap.String("component", id.String()))
	bridge := logbridge.New(opts.InstanceName, opts.Callback, opts.LoggingOn, logger)

	b := &builder{
		manager: f.Manager,
		cfg:     cfg,
		bridge:  bridge,
		logger:  logger,
	}
	a, err := b.run(ctx)
	if err != nil {
		b.rollback(ctx)
		bridge.Logf(fmi2.Fatal, logbridge.LogStatusFatal,
			"instantiation of %s failed at step %q: %v", opts.InstanceName, b.step, err)
		return nil, errors.InstantiationFailed(b.step, err)
	}

	a.id = id
	a.name = opts.InstanceName
	a.guid = opts.GUID
	a.visible = opts.Visible
	logger.Info("component instantiated",
		zap.String("instance", opts.InstanceName),
		zap.String("module", cfg.EntryModule),
		zap.String("class", cfg.EntryClass),
		zap.String("resources", cfg.ResourceDirectory))
	return a, nil
}

// builder runs the instantiation steps and remembers what to undo.
type builder struct {
	manager *engine.Manager
	cfg     config.Configuration
	bridge  *logbridge.Bridge
	logger  *zap.Logger

	step     string
	retained bool
	inst     api.Module
	model    *marshal.Marshaler
	sinkID   uint32
}

func (b *builder) enter(step string) {
	b.step = step
	b.logger.Debug("instantiation step", zap.String("step", step))
}

// run is build with a panic turned into the error of the current step.
func (b *builder) run(ctx context.Context) (a *Adapter, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic during instantiation",
				zap.String("step", b.step),
				zap.Any("panic", r),
				zap.Stack("stack"))
			a, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return b.build(ctx)
}

func (b *builder) build(ctx context.Context) (*Adapter, error) {
	// retain first: teardown skips a runtime that has users
	b.manager.Retain()
	b.retained = true

	b.enter(StepInitRuntime)
	if err := b.manager.Init(ctx); err != nil {
		return nil, err
	}

	ctx, unlock := b.manager.Acquire(ctx)
	defer unlock()

	b.enter(StepSearchPath)
	if err := b.manager.AppendSearchPath(b.cfg.ResourceDirectory); err != nil {
		return nil, err
	}

	b.enter(StepImportModule)
	var opts []engine.ImportOption
	if b.cfg.ScriptPath != "" {
		opts = append(opts, engine.PreferDir(filepath.Dir(b.cfg.ScriptPath)))
	}
	mod, err := b.manager.Import(ctx, b.cfg.EntryModule, opts...)
	if err != nil {
		return nil, err
	}

	b.enter(StepInstantiateModule)
	b.inst, err = mod.Instantiate(ctx)
	if err != nil {
		return nil, err
	}

	b.enter(StepConstruct)
	b.model, err = marshal.Bind(ctx, b.inst, b.cfg.EntryClass, b.bridge)
	if err != nil {
		return nil, err
	}

	b.enter(StepLogCallback)
	b.sinkID = b.manager.RegisterSink(b.bridge)
	wired, err := b.model.RegisterLogCallback(ctx, b.sinkID)
	if err != nil {
		return nil, err
	}
	if !wired {
		b.manager.UnregisterSink(b.sinkID)
		b.sinkID = 0
	}

	return &Adapter{
		cfg:     b.cfg,
		manager: b.manager,
		machine: conformance.New(),
		model:   b.model,
		bridge:  b.bridge,
		sinkID:  b.sinkID,
		logger:  b.logger,
	}, nil
}

func (b *builder) rollback(ctx context.Context) {
	ctx, unlock := b.manager.Acquire(ctx)
	defer unlock()

	if b.sinkID != 0 {
		b.manager.UnregisterSink(b.sinkID)
	}
	switch {
	case b.model != nil:
		_ = b.model.Free(ctx)
	case b.inst != nil:
		_ = b.inst.Close(ctx)
	}
	if b.retained {
		if err := b.manager.Release(ctx); err != nil {
			b.logger.Warn("releasing runtime after failed instantiation", zap.Error(err))
		}
	}
}
