package slave

import (
	"context"
	"fmt"

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

// Model is the marshaled view of one model object.
type Model interface {
	Call(ctx context.Context, method string, args ...uint64) (fmi2.Status, error)
	SetDebugLogging(ctx context.Context, on bool, categories []string) (fmi2.Status, error)
	GetReal(ctx context.Context, refs []fmi2.ValueReference) ([]float64, fmi2.Status, error)
	GetInteger(ctx context.Context, refs []fmi2.ValueReference) ([]int32, fmi2.Status, error)
	GetBoolean(ctx context.Context, refs []fmi2.ValueReference) ([]bool, fmi2.Status, error)
	GetString(ctx context.Context, refs []fmi2.ValueReference) ([]string, fmi2.Status, error)
	SetReal(ctx context.Context, refs []fmi2.ValueReference, values []float64) (fmi2.Status, error)
	SetInteger(ctx context.Context, refs []fmi2.ValueReference, values []int32) (fmi2.Status, error)
	SetBoolean(ctx context.Context, refs []fmi2.ValueReference, values []bool) (fmi2.Status, error)
	SetString(ctx context.Context, refs []fmi2.ValueReference, values []string) (fmi2.Status, error)
	Free(ctx context.Context) error
}

var _ Model = (*marshal.Marshaler)(nil)

// Adapter is one component instance. Every method checks the call against the
// state machine before taking the interpreter lock, so an illegal call never
// reaches the model. Calls are expected to be sequential per adapter.
type Adapter struct {
	id      uuid.UUID
	name    string
	guid    string
	visible bool
	cfg     config.Configuration

	manager *engine.Manager
	machine *conformance.Machine
	model   Model
	bridge  *logbridge.Bridge
	sinkID  uint32
	logger  *zap.Logger

	lastSuccessfulTime float64
	freed              bool
}

// ID returns the unique id of this component.
func (a *Adapter) ID() uuid.UUID { return a.id }

// InstanceName returns the name the host instantiated the component with.
func (a *Adapter) InstanceName() string { return a.name }

// GUID returns the GUID passed at instantiation.
func (a *Adapter) GUID() string { return a.guid }

// Visible reports the visible flag passed at instantiation.
func (a *Adapter) Visible() bool { return a.visible }

// Configuration returns the resolved configuration.
func (a *Adapter) Configuration() config.Configuration { return a.cfg }

// State returns the lifecycle state.
func (a *Adapter) State() conformance.State { return a.machine.State() }

// Bridge returns the component's log bridge.
func (a *Adapter) Bridge() *logbridge.Bridge { return a.bridge }

// check rejects op when it is illegal in the current state.
func (a *Adapter) check(op conformance.Op) error {
	if a.freed {
		return errors.New(errors.PhaseProtocol, errors.KindProtocolViolation).
			Detail("%s on a freed instance", op).
			Build()
	}
	if err := a.machine.Check(op); err != nil {
		a.bridge.Log(fmi2.Error, logbridge.LogStatusError, err.Error())
		return err
	}
	return nil
}

// finish reports a failure through the bridge and moves the state machine.
func (a *Adapter) finish(op conformance.Op, status fmi2.Status, err error) (fmi2.Status, error) {
	if err != nil {
		a.bridge.Logf(status, logbridge.StatusCategory(status), "%s failed: %v", op, err)
	}
	from := a.machine.State()
	to := a.machine.Apply(op, status)
	if from != to {
		a.logger.Debug("state changed",
			zap.Stringer("op", op),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Stringer("status", status))
	}
	return status, err
}

func (a *Adapter) call(ctx context.Context, op conformance.Op, method string, args ...uint64) (fmi2.Status, error) {
	if err := a.check(op); err != nil {
		return errors.StatusOf(err), err
	}
	ctx, unlock := a.manager.Acquire(ctx)
	defer unlock()

	status, err := a.model.Call(ctx, method, args...)
	return a.finish(op, status, err)
}

// SetupExperiment forwards the experiment bounds. Argument order follows fmi2SetupExperiment.
func (a *Adapter) SetupExperiment(ctx context.Context, toleranceDefined bool, tolerance, startTime float64, stopTimeDefined bool, stopTime float64) (fmi2.Status, error) {
	status, err := a.call(ctx, conformance.SetupExperiment, marshal.MethodSetupExperiment,
		api.EncodeF64(startTime),
		boolArg(toleranceDefined), api.EncodeF64(tolerance),
		boolArg(stopTimeDefined), api.EncodeF64(stopTime))
	if err == nil && status <= fmi2.Warning {
		a.lastSuccessfulTime = startTime
	}
	return status, err
}

// EnterInitializationMode moves the component to InitializationMode.
func (a *Adapter) EnterInitializationMode(ctx context.Context) (fmi2.Status, error) {
	return a.call(ctx, conformance.EnterInitializationMode, marshal.MethodEnterInitializationMode)
}

// ExitInitializationMode moves the component to StepMode.
func (a *Adapter) ExitInitializationMode(ctx context.Context) (fmi2.Status, error) {
	return a.call(ctx, conformance.ExitInitializationMode, marshal.MethodExitInitializationMode)
}

// DoStep advances the model from currentTime by stepSize.
func (a *Adapter) DoStep(ctx context.Context, currentTime, stepSize float64, noSetPriorState bool) (fmi2.Status, error) {
	status, err := a.call(ctx, conformance.DoStep, marshal.MethodDoStep,
		api.EncodeF64(currentTime), api.EncodeF64(stepSize), boolArg(noSetPriorState))
	if err == nil && status <= fmi2.Warning {
		a.lastSuccessfulTime = currentTime + stepSize
	}
	return status, err
}

// Terminate ends the simulation run.
func (a *Adapter) Terminate(ctx context.Context) (fmi2.Status, error) {
	return a.call(ctx, conformance.Terminate, marshal.MethodTerminate)
}

// Reset returns a terminated or failed component to Instantiated.
func (a *Adapter) Reset(ctx context.Context) (fmi2.Status, error) {
	status, err := a.call(ctx, conformance.Reset, marshal.MethodReset)
	if err == nil && status <= fmi2.Warning {
		a.lastSuccessfulTime = 0
	}
	return status, err
}

// SetDebugLogging updates the bridge filter and forwards the setting to the model.
func (a *Adapter) SetDebugLogging(ctx context.Context, loggingOn bool, categories []string) (fmi2.Status, error) {
	if err := a.check(conformance.SetDebugLogging); err != nil {
		return errors.StatusOf(err), err
	}
	a.bridge.SetDebugLogging(loggingOn, categories)

	ctx, unlock := a.manager.Acquire(ctx)
	defer unlock()

	status, err := a.model.SetDebugLogging(ctx, loggingOn, categories)
	return a.finish(conformance.SetDebugLogging, status, err)
}

// GetReal reads real variables.
func (a *Adapter) GetReal(ctx context.Context, refs []fmi2.ValueReference) ([]float64, fmi2.Status, error) {
	return get(ctx, a, refs, a.model.GetReal)
}

// GetInteger reads integer variables.
func (a *Adapter) GetInteger(ctx context.Context, refs []fmi2.ValueReference) ([]int32, fmi2.Status, error) {
	return get(ctx, a, refs, a.model.GetInteger)
}

// GetBoolean reads boolean variables.
func (a *Adapter) GetBoolean(ctx context.Context, refs []fmi2.ValueReference) ([]bool, fmi2.Status, error) {
	return get(ctx, a, refs, a.model.GetBoolean)
}

// GetString reads string variables.
func (a *Adapter) GetString(ctx context.Context, refs []fmi2.ValueReference) ([]string, fmi2.Status, error) {
	return get(ctx, a, refs, a.model.GetString)
}

// SetReal writes real variables.
func (a *Adapter) SetReal(ctx context.Context, refs []fmi2.ValueReference, values []float64) (fmi2.Status, error) {
	return set(ctx, a, refs, values, a.model.SetReal)
}

// SetInteger writes integer variables.
func (a *Adapter) SetInteger(ctx context.Context, refs []fmi2.ValueReference, values []int32) (fmi2.Status, error) {
	return set(ctx, a, refs, values, a.model.SetInteger)
}

// SetBoolean writes boolean variables.
func (a *Adapter) SetBoolean(ctx context.Context, refs []fmi2.ValueReference, values []bool) (fmi2.Status, error) {
	return set(ctx, a, refs, values, a.model.SetBoolean)
}

// SetString writes string variables.
func (a *Adapter) SetString(ctx context.Context, refs []fmi2.ValueReference, values []string) (fmi2.Status, error) {
	return set(ctx, a, refs, values, a.model.SetString)
}

func get[T any](ctx context.Context, a *Adapter, refs []fmi2.ValueReference, fn func(context.Context, []fmi2.ValueReference) ([]T, fmi2.Status, error)) ([]T, fmi2.Status, error) {
	if err := a.check(conformance.GetVariables); err != nil {
		return nil, errors.StatusOf(err), err
	}
	ctx, unlock := a.manager.Acquire(ctx)
	defer unlock()

	values, status, err := fn(ctx, refs)
	status, err = a.finish(conformance.GetVariables, status, err)
	return values, status, err
}

func set[T any](ctx context.Context, a *Adapter, refs []fmi2.ValueReference, values []T, fn func(context.Context, []fmi2.ValueReference, []T) (fmi2.Status, error)) (fmi2.Status, error) {
	if err := a.check(conformance.SetVariables); err != nil {
		return errors.StatusOf(err), err
	}
	ctx, unlock := a.manager.Acquire(ctx)
	defer unlock()

	status, err := fn(ctx, refs, values)
	return a.finish(conformance.SetVariables, status, err)
}

// CancelStep is unsupported: DoStep never returns Pending.
func (a *Adapter) CancelStep(context.Context) (fmi2.Status, error) {
	if err := a.check(conformance.CancelStep); err != nil {
		return errors.StatusOf(err), err
	}
	return a.Unsupported("fmi2CancelStep: steps complete synchronously")
}

// GetStatus answers fmi2GetStatus. No status kind applies to a synchronous step.
func (a *Adapter) GetStatus(_ context.Context, kind fmi2.StatusKind) (fmi2.Status, fmi2.Status, error) {
	if err := a.check(conformance.GetStatus); err != nil {
		return fmi2.OK, errors.StatusOf(err), err
	}
	return fmi2.OK, fmi2.Discard, a.unsupportedKind("fmi2GetStatus", kind)
}

// GetRealStatus answers LastSuccessfulTime with the end time of the last
// successful step.
func (a *Adapter) GetRealStatus(_ context.Context, kind fmi2.StatusKind) (float64, fmi2.Status, error) {
	if err := a.check(conformance.GetStatus); err != nil {
		return 0, errors.StatusOf(err), err
	}
	if kind == fmi2.LastSuccessfulTime {
		return a.lastSuccessfulTime, fmi2.OK, nil
	}
	return 0, fmi2.Discard, a.unsupportedKind("fmi2GetRealStatus", kind)
}

// GetIntegerStatus has no defined status kinds.
func (a *Adapter) GetIntegerStatus(_ context.Context, kind fmi2.StatusKind) (int32, fmi2.Status, error) {
	if err := a.check(conformance.GetStatus); err != nil {
		return 0, errors.StatusOf(err), err
	}
	return 0, fmi2.Discard, a.unsupportedKind("fmi2GetIntegerStatus", kind)
}

// GetBooleanStatus answers Terminated with false; the model never asks to stop.
func (a *Adapter) GetBooleanStatus(_ context.Context, kind fmi2.StatusKind) (bool, fmi2.Status, error) {
	if err := a.check(conformance.GetStatus); err != nil {
		return false, errors.StatusOf(err), err
	}
	if kind == fmi2.Terminated {
		return false, fmi2.OK, nil
	}
	return false, fmi2.Discard, a.unsupportedKind("fmi2GetBooleanStatus", kind)
}

// GetStringStatus has no answer for PendingStatus since nothing is pending.
func (a *Adapter) GetStringStatus(_ context.Context, kind fmi2.StatusKind) (string, fmi2.Status, error) {
	if err := a.check(conformance.GetStatus); err != nil {
		return "", errors.StatusOf(err), err
	}
	return "", fmi2.Discard, a.unsupportedKind("fmi2GetStringStatus", kind)
}

// Unsupported reports a function the component does not implement as Error.
func (a *Adapter) Unsupported(what string) (fmi2.Status, error) {
	err := errors.Unsupported(errors.PhaseCall, what)
	a.bridge.Log(fmi2.Error, logbridge.LogStatusError, err.Error())
	return fmi2.Error, err
}

func (a *Adapter) unsupportedKind(fn string, kind fmi2.StatusKind) error {
	err := errors.Unsupported(errors.PhaseCall, fmt.Sprintf("%s(%s)", fn, kind))
	a.bridge.Log(fmi2.Discard, logbridge.LogStatusDiscard, err.Error())
	return err
}

// Free releases the model instance. It is legal in every state and runs once.
func (a *Adapter) Free(ctx context.Context) error {
	if a.freed {
		return nil
	}
	a.freed = true

	ctx, unlock := a.manager.Acquire(ctx)
	defer unlock()

	if a.sinkID != 0 {
		a.manager.UnregisterSink(a.sinkID)
	}
	err := a.model.Free(ctx)
	if err != nil {
		a.bridge.Logf(fmi2.Warning, logbridge.LogStatusWarning, "freeing %s: %v", a.name, err)
	}
	if rerr := a.manager.Release(ctx); rerr != nil {
		a.logger.Warn("releasing runtime", zap.Error(rerr))
	}
	a.logger.Info("component freed", zap.String("instance", a.name))
	return err
}

func boolArg(b bool) uint64 {
	if b {
		return api.EncodeI32(1)
	}
	return api.EncodeI32(0)
}

// Abort moves the component to Fatal after a failure outside the model, such
// as a panic in the host callback. Only Free is legal afterwards.
func (a *Adapter) Abort(reason string) {
	from := a.machine.State()
	a.machine.Apply(conformance.FreeInstance, fmi2.Fatal)
	a.logger.Error("component aborted",
		zap.String("reason", reason),
		zap.Stringer("from", from))
}

// Drop frees the component when the handle table holding it closes.
func (a *Adapter) Drop() {
	_ = a.Free(context.Background())
}
