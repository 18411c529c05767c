// Package abi is the Go view of the FMI 2.0 co-simulation function table.
//
// A Library holds the process's runtime manager and a handle table of
// components. Its methods take and return plain values so the cgo layer in
// cmd/fmi2wasm only converts C types. Every method reports failure through
// its fmi2 status and the component's logger callback; none of them panic.
package abi

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/config"
	"github.com/wippyai/wasm-fmu/engine"
	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/location"
	"github.com/wippyai/wasm-fmu/logbridge"
	"github.com/wippyai/wasm-fmu/resource"
	"github.com/wippyai/wasm-fmu/slave"
)

// Handle identifies a component across the C boundary. 0 is the null component.
type Handle = resource.Handle

// Options configures a Library.
type Options struct {
	Engine engine.Config
	Logger *zap.Logger
}

// Library implements the fmi2 functions over a shared runtime.
type Library struct {
	manager *engine.Manager
	factory *slave.Factory
	table   *resource.Table[*slave.Adapter]
	logger  *zap.Logger
}

// New creates a library. The runtime starts with the first Instantiate.
func New(opts Options) *Library {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := engine.NewManager(opts.Engine)
	l := &Library{
		manager: m,
		factory: slave.NewFactory(m),
		table:   resource.NewTable[*slave.Adapter](),
		logger:  logger,
	}
	l.table.Subscribe(resource.ObserverFunc(l.observe))
	return l
}

func (l *Library) observe(e resource.Event) {
	fields := []zap.Field{
		zap.Uint32("handle", uint32(e.Handle)),
		zap.Stringer("event", e.Type),
	}
	if a, ok := e.Value.(*slave.Adapter); ok {
		fields = append(fields,
			zap.String("instance", a.InstanceName()),
			zap.Stringer("component", a.ID()))
	}
	l.logger.Debug("component handle", fields...)
}

// Manager returns the runtime manager shared by all components.
func (l *Library) Manager() *engine.Manager { return l.manager }

// Components returns the number of live components.
func (l *Library) Components() int { return l.table.Len() }

// Component returns the adapter behind h.
func (l *Library) Component(h Handle) (*slave.Adapter, bool) {
	return l.table.Get(h)
}

// GetTypesPlatform returns fmi2TypesPlatform.
func (l *Library) GetTypesPlatform() string { return fmi2.TypesPlatform }

// GetVersion returns fmi2Version.
func (l *Library) GetVersion() string { return fmi2.Version }

// Instantiate creates a co-simulation component and returns its handle, or 0
// after reporting the failure through callback with status Fatal.
func (l *Library) Instantiate(instanceName string, fmuType fmi2.Type, guid, resourceURI string,
	callback logbridge.Callback, visible, loggingOn bool) (h Handle) {
	bridge := logbridge.New(instanceName, callback, loggingOn, l.logger)
	fail := func(format string, args ...any) Handle {
		bridge.Logf(fmi2.Fatal, logbridge.LogStatusFatal, format, args...)
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic",
				zap.String("function", "fmi2Instantiate"),
				zap.Any("panic", r),
				zap.Stack("stack"))
			h = 0
			func() {
				defer func() { _ = recover() }()
				fail("fmi2Instantiate: internal error: %v", r)
			}()
		}
	}()

	if fmuType != fmi2.CoSimulation {
		return fail("fmi2Instantiate: %s is not supported, only %s", fmuType, fmi2.CoSimulation)
	}

	dir, err := location.FileURIToPath(resourceURI)
	if err != nil {
		return fail("fmi2Instantiate: cannot resolve resource location %q: %v", resourceURI, err)
	}

	cfg, err := config.Resolve(dir)
	if err != nil {
		return fail("fmi2Instantiate: cannot load %s: %v", config.DescriptorPath(dir), err)
	}

	ctx := context.Background()
	a, err := l.factory.Create(ctx, cfg, slave.Options{
		InstanceName: instanceName,
		GUID:         guid,
		LoggingOn:    loggingOn,
		Visible:      visible,
		Callback:     callback,
		Logger:       l.logger,
	})
	if err != nil {
		// the factory has reported the failing step
		return 0
	}

	h, err = l.table.Insert(a)
	if err != nil {
		_ = a.Free(ctx)
		return fail("fmi2Instantiate: %v", err)
	}
	return h
}

// FreeInstance releases the component. Unknown handles are ignored.
func (l *Library) FreeInstance(h Handle) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic",
				zap.String("function", "fmi2FreeInstance"),
				zap.Uint32("handle", uint32(h)),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	a, ok := l.table.Remove(h)
	if !ok {
		l.logger.Warn("fmi2FreeInstance on unknown handle", zap.Uint32("handle", uint32(h)))
		return
	}
	_ = a.Free(context.Background())
}

// Shutdown frees every remaining component and tears the runtime down
// according to the teardown policy. The library is unusable afterwards.
func (l *Library) Shutdown(ctx context.Context) error {
	if err := l.table.Close(); err != nil {
		return err
	}
	return l.manager.Shutdown(ctx)
}

func (l *Library) lookup(fn string, h Handle) (*slave.Adapter, bool) {
	a, ok := l.table.Get(h)
	if !ok {
		l.logger.Warn("call on unknown component handle",
			zap.String("function", fn),
			zap.Uint32("handle", uint32(h)))
	}
	return a, ok
}

// recoverInto turns a panic in fn into a Fatal status and aborts the component.
func (l *Library) recoverInto(fn string, h Handle, status *fmi2.Status) {
	r := recover()
	if r == nil {
		return
	}
	*status = fmi2.Fatal
	l.logger.Error("recovered panic",
		zap.String("function", fn),
		zap.Uint32("handle", uint32(h)),
		zap.Any("panic", r),
		zap.Stack("stack"))
	if a, ok := l.table.Get(h); ok {
		a.Abort(fn + " panicked")
		report(a, fn, r)
	}
}

func report(a *slave.Adapter, fn string, r any) {
	defer func() { _ = recover() }()
	a.Bridge().Logf(fmi2.Fatal, logbridge.LogStatusFatal, "%s: internal error: %v", fn, r)
}

func (l *Library) status(fn string, h Handle, call func(*slave.Adapter) (fmi2.Status, error)) (status fmi2.Status) {
	defer l.recoverInto(fn, h, &status)

	a, ok := l.lookup(fn, h)
	if !ok {
		return fmi2.Error
	}
	status, err := call(a)
	if err != nil {
		l.logger.Debug("call failed",
			zap.String("function", fn),
			zap.Uint32("handle", uint32(h)),
			zap.Stringer("status", status),
			zap.Error(err))
	}
	return status
}

func value[T any](l *Library, fn string, h Handle, call func(*slave.Adapter) (T, fmi2.Status, error)) (v T, status fmi2.Status) {
	defer l.recoverInto(fn, h, &status)

	a, ok := l.lookup(fn, h)
	if !ok {
		return v, fmi2.Error
	}
	v, status, err := call(a)
	if err != nil {
		l.logger.Debug("call failed",
			zap.String("function", fn),
			zap.Uint32("handle", uint32(h)),
			zap.Stringer("status", status),
			zap.Error(err))
	}
	return v, status
}
