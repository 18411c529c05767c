package marshal

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmfmu "github.com/wippyai/wasm-fmu"
	"github.com/wippyai/wasm-fmu/errors"
	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/logbridge"
)

// Module level exports.
const (
	ExportMemory  = "memory"
	ExportAlloc   = "alloc"
	ExportDealloc = "dealloc"
)

// Class methods, exported as "<Class>.<method>".
const (
	MethodNew                     = "new"
	MethodFree                    = "free"
	MethodSetupExperiment         = "setup_experiment"
	MethodEnterInitializationMode = "enter_initialization_mode"
	MethodExitInitializationMode  = "exit_initialization_mode"
	MethodDoStep                  = "do_step"
	MethodTerminate               = "terminate"
	MethodReset                   = "reset"
	MethodGetReal                 = "get_real"
	MethodSetReal                 = "set_real"
	MethodGetInteger              = "get_integer"
	MethodSetInteger              = "set_integer"
	MethodGetBoolean              = "get_boolean"
	MethodSetBoolean              = "set_boolean"
	MethodGetString               = "get_string"
	MethodSetString               = "set_string"
	MethodSetDebugLogging         = "set_debug_logging"
	MethodRegisterLogCallback     = "register_log_callback"
	MethodLogSize                 = "log_size"
	MethodPopLogMessages          = "pop_log_messages"
)

// Methods lists every class method of the model contract.
func Methods() []string {
	return []string{
		MethodNew, MethodFree, MethodSetupExperiment, MethodEnterInitializationMode,
		MethodExitInitializationMode, MethodDoStep, MethodTerminate, MethodReset,
		MethodGetReal, MethodSetReal, MethodGetInteger, MethodSetInteger,
		MethodGetBoolean, MethodSetBoolean, MethodGetString, MethodSetString,
		MethodSetDebugLogging, MethodRegisterLogCallback, MethodLogSize, MethodPopLogMessages,
	}
}

// Export returns the export name of a class method.
func Export(class, method string) string {
	return class + "." + method
}

// Optional reports whether a class may omit method.
func Optional(method string) bool {
	switch method {
	case MethodFree, MethodSetDebugLogging, MethodRegisterLogCallback, MethodLogSize, MethodPopLogMessages:
		return true
	}
	return false
}

// logRecordSize is the guest layout of one buffered record:
// status, category ptr, category len, message ptr, message len.
const logRecordSize = 20

// LogDrain receives records buffered by the model.
type LogDrain interface {
	Emit(records ...logbridge.Record)
}

// Marshaler calls the methods of one model instance.
// It is not safe for concurrent use; callers hold the interpreter lock.
type Marshaler struct {
	mod   api.Module
	class string
	self  uint32
	drain LogDrain
	mem   *guestMemory

	freeOnce sync.Once
	freed    bool
}

// New wraps an instance whose constructor already ran. drain may be nil.
func New(mod api.Module, class string, self uint32, drain LogDrain) *Marshaler {
	return &Marshaler{
		mod:   mod,
		class: class,
		self:  self,
		drain: drain,
		mem:   &guestMemory{mem: mod.Memory()},
	}
}

// Bind calls <class>.new on mod and returns a marshaler for the new object.
func Bind(ctx context.Context, mod api.Module, class string, drain LogDrain) (*Marshaler, error) {
	name := Export(class, MethodNew)
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.InstantiationFailed(
			fmt.Sprintf("class %q not found: module does not export %s", class, name), nil)
	}
	if mod.Memory() == nil {
		return nil, errors.InstantiationFailed(
			fmt.Sprintf("module does not export %s", ExportMemory), nil)
	}

	m := New(mod, class, 0, drain)
	results, err := fn.Call(ctx)
	valid := err == nil && len(results) == 1 && fn.Definition().ResultTypes()[0] == api.ValueTypeI32
	if valid {
		m.self = api.DecodeU32(results[0])
	}
	m.drainLog(ctx)
	if err != nil {
		return nil, errors.InstantiationFailed("construct "+class, errors.CallFailed(class, MethodNew, err))
	}
	if !valid {
		return nil, errors.InstantiationFailed("construct "+class,
			errors.Conversion([]string{class, MethodNew}, "constructor must return a single i32", len(results)))
	}

	Logger().Debug("model object created",
		zap.String("class", class),
		zap.Uint32("self", m.self))
	return m, nil
}

// Class returns the class name.
func (m *Marshaler) Class() string { return m.class }

// Self returns the object reference passed as first argument to every method.
func (m *Marshaler) Self() uint32 { return m.self }

// Module returns the instance.
func (m *Marshaler) Module() api.Module { return m.mod }

// Memory returns bounds-checked access to the instance's memory.
func (m *Marshaler) Memory() wasmfmu.Memory { return m.mem }

// Has reports whether the class exports method.
func (m *Marshaler) Has(method string) bool {
	return m.mod.ExportedFunction(Export(m.class, method)) != nil
}

func (m *Marshaler) allocator(ctx context.Context) wasmfmu.Allocator {
	return &guestAllocator{
		ctx:     ctx,
		alloc:   m.mod.ExportedFunction(ExportAlloc),
		dealloc: m.mod.ExportedFunction(ExportDealloc),
	}
}

func (m *Marshaler) scratch(ctx context.Context) *scratch {
	return &scratch{mem: m.mem, alloc: m.allocator(ctx)}
}

// invoke calls <class>.<method>(self, args...) and drains the log queue
// whether or not the call succeeded.
func (m *Marshaler) invoke(ctx context.Context, method string, args ...uint64) (api.Function, []uint64, error) {
	if m.freed {
		return nil, nil, errors.CallFailed(m.class, method, fmt.Errorf("instance released"))
	}
	fn := m.mod.ExportedFunction(Export(m.class, method))
	if fn == nil {
		return nil, nil, errors.CallFailed(m.class, method,
			fmt.Errorf("module does not export %s", Export(m.class, method)))
	}

	params := make([]uint64, 0, len(args)+1)
	params = append(params, api.EncodeU32(m.self))
	params = append(params, args...)

	results, err := fn.Call(ctx, params...)
	m.drainLog(ctx)
	if err != nil {
		Logger().Debug("model call failed",
			zap.String("class", m.class),
			zap.String("method", method),
			zap.Error(err))
		return fn, nil, errors.CallFailed(m.class, method, err)
	}
	return fn, results, nil
}

// Call invokes a status-returning method. When err is non-nil the status is
// errors.StatusOf(err).
func (m *Marshaler) Call(ctx context.Context, method string, args ...uint64) (fmi2.Status, error) {
	fn, results, err := m.invoke(ctx, method, args...)
	if err != nil {
		return errors.StatusOf(err), err
	}
	return m.status(method, fn, results)
}

// status derives the fmi2Status from a method result. Anything other than a
// single i32 in 0..5 is a conversion error.
func (m *Marshaler) status(method string, fn api.Function, results []uint64) (fmi2.Status, error) {
	types := fn.Definition().ResultTypes()
	if len(types) != 1 || len(results) != 1 {
		err := errors.Conversion([]string{m.class, method},
			fmt.Sprintf("status must be a single i32, method returns %d values", len(types)), len(types))
		return fmi2.Fatal, err
	}
	if types[0] != api.ValueTypeI32 {
		err := errors.Conversion([]string{m.class, method},
			fmt.Sprintf("status must be i32, method returns %s", api.ValueTypeName(types[0])), types[0])
		return fmi2.Fatal, err
	}

	s := fmi2.Status(api.DecodeI32(results[0]))
	if !s.Valid() {
		err := errors.Conversion([]string{m.class, method},
			fmt.Sprintf("status %d is not a valid fmi2Status", int32(s)), int32(s))
		return fmi2.Fatal, err
	}
	return s, nil
}

// drainLog moves the model's buffered records into the drain in emission order.
// Failures are logged and otherwise ignored.
func (m *Marshaler) drainLog(ctx context.Context) {
	if m.drain == nil {
		return
	}
	sizeFn := m.mod.ExportedFunction(Export(m.class, MethodLogSize))
	popFn := m.mod.ExportedFunction(Export(m.class, MethodPopLogMessages))
	if sizeFn == nil || popFn == nil {
		return
	}

	log := Logger().With(zap.String("class", m.class))
	self := api.EncodeU32(m.self)

	results, err := sizeFn.Call(ctx, self)
	if err != nil || len(results) != 1 {
		log.Warn("log_size failed", zap.Error(err))
		return
	}
	n := api.DecodeU32(results[0])
	if n == 0 {
		return
	}

	s := m.scratch(ctx)
	defer s.release()

	out, err := s.zeroed(n * logRecordSize)
	if err != nil {
		log.Warn("allocating log buffer failed", zap.Uint32("records", n), zap.Error(err))
		return
	}
	results, err = popFn.Call(ctx, self, api.EncodeU32(n), api.EncodeU32(out))
	if err != nil || len(results) != 1 {
		log.Warn("pop_log_messages failed", zap.Error(err))
		return
	}
	k := api.DecodeU32(results[0])
	if k > n {
		log.Warn("pop_log_messages returned more records than requested",
			zap.Uint32("requested", n), zap.Uint32("returned", k))
		k = n
	}

	records := make([]logbridge.Record, 0, k)
	for i := uint32(0); i < k; i++ {
		r, err := m.readRecord(out + i*logRecordSize)
		if err != nil {
			log.Warn("unreadable log record", zap.Uint32("index", i), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	m.drain.Emit(records...)
}

func (m *Marshaler) readRecord(at uint32) (logbridge.Record, error) {
	var fields [5]uint32
	for j := range fields {
		v, err := m.mem.ReadU32(at + uint32(j)*4)
		if err != nil {
			return logbridge.Record{}, err
		}
		fields[j] = v
	}
	category, err := m.mem.Read(fields[1], fields[2])
	if err != nil {
		return logbridge.Record{}, err
	}
	message, err := m.mem.Read(fields[3], fields[4])
	if err != nil {
		return logbridge.Record{}, err
	}
	return logbridge.Record{
		Status:   fmi2.Status(int32(fields[0])),
		Category: string(category),
		Message:  string(message),
	}, nil
}

// SetDebugLogging forwards to the optional set_debug_logging method.
// A class without it reports OK.
func (m *Marshaler) SetDebugLogging(ctx context.Context, on bool, categories []string) (fmi2.Status, error) {
	if !m.Has(MethodSetDebugLogging) {
		return fmi2.OK, nil
	}

	s := m.scratch(ctx)
	defer s.release()

	slots, err := m.putStrings(s, MethodSetDebugLogging, categories)
	if err != nil {
		return errors.StatusOf(err), err
	}
	return m.Call(ctx, MethodSetDebugLogging,
		boolArg(on), api.EncodeU32(slots), api.EncodeU32(uint32(len(categories))))
}

// RegisterLogCallback passes the sink id to the optional register_log_callback
// method and reports whether the class has it.
func (m *Marshaler) RegisterLogCallback(ctx context.Context, id uint32) (bool, error) {
	if !m.Has(MethodRegisterLogCallback) {
		return false, nil
	}
	if _, _, err := m.invoke(ctx, MethodRegisterLogCallback, api.EncodeU32(id)); err != nil {
		return true, err
	}
	return true, nil
}

// Free calls the optional free method and closes the instance. Later calls do nothing.
func (m *Marshaler) Free(ctx context.Context) error {
	var err error
	m.freeOnce.Do(func() {
		if m.Has(MethodFree) {
			_, _, err = m.invoke(ctx, MethodFree)
		}
		m.freed = true
		if cerr := m.mod.Close(ctx); cerr != nil && err == nil {
			err = errors.Wrap(errors.PhaseCall, errors.KindCallFailed, cerr, "close instance")
		}
	})
	return err
}

// Released reports whether Free ran.
func (m *Marshaler) Released() bool { return m.freed }

func boolArg(b bool) uint64 {
	if b {
		return api.EncodeI32(1)
	}
	return api.EncodeI32(0)
}
