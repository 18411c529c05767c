// Command fmi2wasm builds the FMI 2.0 co-simulation shared library:
//
//	go build -buildmode=c-shared -o binaries/linux64/<model>.so ./cmd/fmi2wasm
//
// The exported fmi2 functions convert C arguments and delegate to one
// process-wide abi.Library configured from WASMFMU_* environment variables.
package main

/*
#include "fmi2.h"
*/
import "C"

import (
	"math"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/abi"
	"github.com/wippyai/wasm-fmu/engine"
	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/logbridge"
	"github.com/wippyai/wasm-fmu/marshal"
)

var (
	libOnce sync.Once
	lib     *abi.Library

	typesPlatform = C.CString(fmi2.TypesPlatform)
	version       = C.CString(fmi2.Version)
	emptyString   = C.CString("")

	returned = &stringCache{byHandle: make(map[abi.Handle][]*C.char)}
)

func main() {}

func library() *abi.Library {
	libOnce.Do(func() {
		settings, err := loadSettings(newViper())
		if err != nil {
			if fallback, ferr := zap.NewProduction(); ferr == nil {
				fallback.Error("invalid configuration, using defaults", zap.Error(err))
			}
			settings = Settings{}
		}
		logger, err := newLogger(settings.LogLevel)
		if err != nil {
			logger = zap.NewNop()
		}
		exportLogger.Store(logger.Named("fmi2"))
		engine.SetLogger(logger.Named("engine"))
		marshal.SetLogger(logger.Named("marshal"))
		lib = abi.New(settings.options(logger))
	})
	return lib
}

// stringCache keeps the strings returned by fmi2GetString alive until the
// next call on the same component.
type stringCache struct {
	mu       sync.Mutex
	byHandle map[abi.Handle][]*C.char
}

func (s *stringCache) replace(h abi.Handle, values []string) []*C.char {
	s.mu.Lock()
	defer s.mu.Unlock()

	freeAll(s.byHandle[h])
	out := make([]*C.char, len(values))
	for i, v := range values {
		out[i] = C.CString(v)
	}
	s.byHandle[h] = out
	return out
}

func (s *stringCache) release(h abi.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	freeAll(s.byHandle[h])
	delete(s.byHandle, h)
}

func freeAll(ptrs []*C.char) {
	for _, p := range ptrs {
		C.free(unsafe.Pointer(p))
	}
}

func handle(c C.fmi2Component) abi.Handle {
	u := uint64(C.from_component(c))
	if u > math.MaxUint32 {
		return 0
	}
	return abi.Handle(u)
}

func component(h abi.Handle) C.fmi2Component {
	return C.to_component(C.uintptr_t(h))
}

func goBool(b C.fmi2Boolean) bool { return b != 0 }

func cBool(b bool) C.fmi2Boolean {
	if b {
		return 1
	}
	return 0
}

func goString(s C.fmi2String) string {
	if s == nil {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(s)))
}

func status(s fmi2.Status) C.fmi2Status { return C.fmi2Status(s) }

func cString(p *C.char) C.fmi2String { return (C.fmi2String)(unsafe.Pointer(p)) }

// hostLogger wraps the host's logger. The message is escaped because the host
// treats it as a printf format.
func hostLogger(functions *C.fmi2CallbackFunctions) logbridge.Callback {
	if functions == nil || functions.logger == nil {
		return nil
	}
	fn := functions.logger
	env := functions.componentEnvironment
	return func(instanceName string, s fmi2.Status, category, message string) {
		cName := C.CString(instanceName)
		defer C.free(unsafe.Pointer(cName))
		cCategory := C.CString(category)
		defer C.free(unsafe.Pointer(cCategory))
		cMessage := C.CString(logbridge.EscapePrintf(message))
		defer C.free(unsafe.Pointer(cMessage))

		C.call_logger(fn, env, cString(cName), status(s), cString(cCategory), cString(cMessage))
	}
}

func refs(vr *C.fmi2ValueReference, n C.size_t) []fmi2.ValueReference {
	if vr == nil || n == 0 {
		return nil
	}
	src := unsafe.Slice(vr, elementCount(uint64(n)))
	out := make([]fmi2.ValueReference, len(src))
	for i, v := range src {
		out[i] = fmi2.ValueReference(v)
	}
	return out
}

func inputs[E, T any](ptr *E, n C.size_t, conv func(E) T) []T {
	if ptr == nil || n == 0 {
		return nil
	}
	src := unsafe.Slice(ptr, elementCount(uint64(n)))
	out := make([]T, len(src))
	for i, v := range src {
		out[i] = conv(v)
	}
	return out
}

func outputs[E, T any](ptr *E, n C.size_t, values []T, conv func(T) E) {
	if ptr == nil || n == 0 {
		return
	}
	dst := unsafe.Slice(ptr, elementCount(uint64(n)))
	for i := 0; i < len(dst) && i < len(values); i++ {
		dst[i] = conv(values[i])
	}
}
