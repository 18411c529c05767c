// Package wasmfmu implements an FMI 2.0 co-simulation component whose model
// runs as a WebAssembly module inside an embedded wazero runtime.
//
// A host tool loads the shared library built from cmd/fmi2wasm and drives it
// through the standard fmi2 C functions. Each fmi2Instantiate resolves the
// resource directory, reads slave_configuration.json, imports the named module
// and creates an instance of the named class. Every later call is checked
// against the co-simulation state machine, marshaled into guest memory and
// answered with an fmi2Status.
//
// # Architecture Overview
//
//	wasmfmu/             Root package with the guest Memory and Allocator interfaces
//	├── fmi2/            Status, type and status-kind enums
//	├── errors/          Structured error taxonomy and status mapping
//	├── location/        file:// URI to native path conversion
//	├── config/          Side-car descriptor resolution and validation
//	├── conformance/     Legal call ordering per component
//	├── engine/          Process-wide runtime, interpreter lock, module import
//	├── logbridge/       Log filtering and delivery to the host callback
//	├── marshal/         Value conversion and model method calls
//	├── slave/           Component factory and adapter
//	├── resource/        Opaque handle table
//	├── abi/             Go view of the fmi2 function table
//	└── cmd/             fmi2wasm shared library, fmurun master
//
// # Model Contract
//
// A model module exports memory, alloc(size) and optionally dealloc(ptr, size).
// A class C exports C.new, C.setup_experiment, C.enter_initialization_mode,
// C.exit_initialization_mode, C.do_step, C.terminate, C.reset and the typed
// C.get_* / C.set_* functions. Optional exports: C.free, C.set_debug_logging,
// C.register_log_callback and the C.log_size / C.pop_log_messages pair.
// Models may also push records at any time through the fmi2.log host import.
//
// # Quick Start
//
//	lib := abi.New(abi.Options{})
//	h := lib.Instantiate("adder1", fmi2.CoSimulation, guid, "file:///path/to/resources", logger, false, false)
//	if h == 0 {
//	    log.Fatal("instantiate failed")
//	}
//	defer lib.FreeInstance(h)
//
//	lib.EnterInitializationMode(h)
//	lib.ExitInitializationMode(h)
//	lib.SetReal(h, []uint32{0, 1}, []float64{5, 10})
//	lib.DoStep(h, 0, 1, false)
//	out, _ := lib.GetReal(h, []uint32{2}) // [15]
//
// # Concurrency
//
// All work that touches the runtime holds one interpreter lock, so step calls
// on different components serialize. State machine checks and path resolution
// run outside the lock.
package wasmfmu
