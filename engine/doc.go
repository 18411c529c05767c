// Package engine owns the process-wide WebAssembly runtime that hosts model code.
//
// A single Manager exists per process. It creates (or adopts) one wazero runtime,
// installs the host modules models link against, resolves model modules on a
// search path, and provides the interpreter lock every runtime-touching call holds.
//
// # Lifecycle
//
//	mgr := engine.NewManager(engine.Config{Teardown: engine.TeardownIfExclusive})
//	if err := mgr.Init(ctx); err != nil { ... } // idempotent
//	mgr.Retain()
//	defer mgr.Release(ctx) // closes the runtime per the teardown policy
//
// Init is a no-op when the runtime is already active. A host that runs its own
// wazero runtime hands it over with Adopt before Init; the manager then never
// closes it under TeardownIfExclusive.
//
// # Interpreter lock
//
//	ctx, unlock := mgr.Acquire(ctx)
//	defer unlock()
//
// The lock serializes all runtime work across component instances, so two
// components stepping on two native threads run one after the other. This is
// the throughput ceiling of the bridge. Acquire is reentrant for a context that
// already holds the lock, which covers host functions running inside a model
// call.
//
// # Host modules
//
// The "fmi2" host module exports log(ctx, status, catPtr, catLen, msgPtr, msgLen).
// The ctx argument is an opaque sink id obtained from RegisterSink and handed to
// the model, which passes it back on every log call. WASI preview1 is installed
// so modules produced by common toolchains link.
package engine
