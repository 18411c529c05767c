package abi

import (
	"context"

	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/slave"
)

// FMUState is the opaque fmi2FMUstate token. No state is ever handed out.
type FMUState uintptr

// SetDebugLogging implements fmi2SetDebugLogging.
func (l *Library) SetDebugLogging(h Handle, loggingOn bool, categories []string) fmi2.Status {
	return l.status("fmi2SetDebugLogging", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.SetDebugLogging(context.Background(), loggingOn, categories)
	})
}

// SetupExperiment implements fmi2SetupExperiment.
func (l *Library) SetupExperiment(h Handle, toleranceDefined bool, tolerance, startTime float64, stopTimeDefined bool, stopTime float64) fmi2.Status {
	return l.status("fmi2SetupExperiment", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.SetupExperiment(context.Background(), toleranceDefined, tolerance, startTime, stopTimeDefined, stopTime)
	})
}

// EnterInitializationMode implements fmi2EnterInitializationMode.
func (l *Library) EnterInitializationMode(h Handle) fmi2.Status {
	return l.status("fmi2EnterInitializationMode", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.EnterInitializationMode(context.Background())
	})
}

// ExitInitializationMode implements fmi2ExitInitializationMode.
func (l *Library) ExitInitializationMode(h Handle) fmi2.Status {
	return l.status("fmi2ExitInitializationMode", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.ExitInitializationMode(context.Background())
	})
}

// Terminate implements fmi2Terminate.
func (l *Library) Terminate(h Handle) fmi2.Status {
	return l.status("fmi2Terminate", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.Terminate(context.Background())
	})
}

// Reset implements fmi2Reset.
func (l *Library) Reset(h Handle) fmi2.Status {
	return l.status("fmi2Reset", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.Reset(context.Background())
	})
}

// GetReal implements fmi2GetReal. Values are nil unless the status is OK or Warning.
func (l *Library) GetReal(h Handle, refs []fmi2.ValueReference) ([]float64, fmi2.Status) {
	return value(l, "fmi2GetReal", h, func(a *slave.Adapter) ([]float64, fmi2.Status, error) {
		return a.GetReal(context.Background(), refs)
	})
}

// GetInteger implements fmi2GetInteger.
func (l *Library) GetInteger(h Handle, refs []fmi2.ValueReference) ([]int32, fmi2.Status) {
	return value(l, "fmi2GetInteger", h, func(a *slave.Adapter) ([]int32, fmi2.Status, error) {
		return a.GetInteger(context.Background(), refs)
	})
}

// GetBoolean implements fmi2GetBoolean.
func (l *Library) GetBoolean(h Handle, refs []fmi2.ValueReference) ([]bool, fmi2.Status) {
	return value(l, "fmi2GetBoolean", h, func(a *slave.Adapter) ([]bool, fmi2.Status, error) {
		return a.GetBoolean(context.Background(), refs)
	})
}

// GetString implements fmi2GetString.
func (l *Library) GetString(h Handle, refs []fmi2.ValueReference) ([]string, fmi2.Status) {
	return value(l, "fmi2GetString", h, func(a *slave.Adapter) ([]string, fmi2.Status, error) {
		return a.GetString(context.Background(), refs)
	})
}

// SetReal implements fmi2SetReal.
func (l *Library) SetReal(h Handle, refs []fmi2.ValueReference, values []float64) fmi2.Status {
	return l.status("fmi2SetReal", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.SetReal(context.Background(), refs, values)
	})
}

// SetInteger implements fmi2SetInteger.
func (l *Library) SetInteger(h Handle, refs []fmi2.ValueReference, values []int32) fmi2.Status {
	return l.status("fmi2SetInteger", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.SetInteger(context.Background(), refs, values)
	})
}

// SetBoolean implements fmi2SetBoolean.
func (l *Library) SetBoolean(h Handle, refs []fmi2.ValueReference, values []bool) fmi2.Status {
	return l.status("fmi2SetBoolean", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.SetBoolean(context.Background(), refs, values)
	})
}

// SetString implements fmi2SetString.
func (l *Library) SetString(h Handle, refs []fmi2.ValueReference, values []string) fmi2.Status {
	return l.status("fmi2SetString", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.SetString(context.Background(), refs, values)
	})
}

// DoStep implements fmi2DoStep.
func (l *Library) DoStep(h Handle, currentTime, stepSize float64, noSetPriorState bool) fmi2.Status {
	return l.status("fmi2DoStep", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.DoStep(context.Background(), currentTime, stepSize, noSetPriorState)
	})
}

// CancelStep implements fmi2CancelStep.
func (l *Library) CancelStep(h Handle) fmi2.Status {
	return l.status("fmi2CancelStep", h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.CancelStep(context.Background())
	})
}

// GetStatus implements fmi2GetStatus.
func (l *Library) GetStatus(h Handle, kind fmi2.StatusKind) (fmi2.Status, fmi2.Status) {
	return value(l, "fmi2GetStatus", h, func(a *slave.Adapter) (fmi2.Status, fmi2.Status, error) {
		return a.GetStatus(context.Background(), kind)
	})
}

// GetRealStatus implements fmi2GetRealStatus.
func (l *Library) GetRealStatus(h Handle, kind fmi2.StatusKind) (float64, fmi2.Status) {
	return value(l, "fmi2GetRealStatus", h, func(a *slave.Adapter) (float64, fmi2.Status, error) {
		return a.GetRealStatus(context.Background(), kind)
	})
}

// GetIntegerStatus implements fmi2GetIntegerStatus.
func (l *Library) GetIntegerStatus(h Handle, kind fmi2.StatusKind) (int32, fmi2.Status) {
	return value(l, "fmi2GetIntegerStatus", h, func(a *slave.Adapter) (int32, fmi2.Status, error) {
		return a.GetIntegerStatus(context.Background(), kind)
	})
}

// GetBooleanStatus implements fmi2GetBooleanStatus.
func (l *Library) GetBooleanStatus(h Handle, kind fmi2.StatusKind) (bool, fmi2.Status) {
	return value(l, "fmi2GetBooleanStatus", h, func(a *slave.Adapter) (bool, fmi2.Status, error) {
		return a.GetBooleanStatus(context.Background(), kind)
	})
}

// GetStringStatus implements fmi2GetStringStatus.
func (l *Library) GetStringStatus(h Handle, kind fmi2.StatusKind) (string, fmi2.Status) {
	return value(l, "fmi2GetStringStatus", h, func(a *slave.Adapter) (string, fmi2.Status, error) {
		return a.GetStringStatus(context.Background(), kind)
	})
}

// The FMU state and derivative functions are not provided. Each reports Error
// with a message naming the function.

func (l *Library) unsupported(fn string, h Handle) fmi2.Status {
	return l.status(fn, h, func(a *slave.Adapter) (fmi2.Status, error) {
		return a.Unsupported(fn)
	})
}

// GetFMUstate implements fmi2GetFMUstate.
func (l *Library) GetFMUstate(h Handle) (FMUState, fmi2.Status) {
	return 0, l.unsupported("fmi2GetFMUstate", h)
}

// SetFMUstate implements fmi2SetFMUstate.
func (l *Library) SetFMUstate(h Handle, _ FMUState) fmi2.Status {
	return l.unsupported("fmi2SetFMUstate", h)
}

// FreeFMUstate implements fmi2FreeFMUstate.
func (l *Library) FreeFMUstate(h Handle, _ FMUState) fmi2.Status {
	return l.unsupported("fmi2FreeFMUstate", h)
}

// SerializedFMUstateSize implements fmi2SerializedFMUstateSize.
func (l *Library) SerializedFMUstateSize(h Handle, _ FMUState) (int, fmi2.Status) {
	return 0, l.unsupported("fmi2SerializedFMUstateSize", h)
}

// SerializeFMUstate implements fmi2SerializeFMUstate.
func (l *Library) SerializeFMUstate(h Handle, _ FMUState, _ []byte) fmi2.Status {
	return l.unsupported("fmi2SerializeFMUstate", h)
}

// DeSerializeFMUstate implements fmi2DeSerializeFMUstate.
func (l *Library) DeSerializeFMUstate(h Handle, _ []byte) (FMUState, fmi2.Status) {
	return 0, l.unsupported("fmi2DeSerializeFMUstate", h)
}

// GetDirectionalDerivative implements fmi2GetDirectionalDerivative.
func (l *Library) GetDirectionalDerivative(h Handle, _, _ []fmi2.ValueReference, _ []float64) ([]float64, fmi2.Status) {
	return nil, l.unsupported("fmi2GetDirectionalDerivative", h)
}

// SetRealInputDerivatives implements fmi2SetRealInputDerivatives.
func (l *Library) SetRealInputDerivatives(h Handle, _ []fmi2.ValueReference, _ []int32, _ []float64) fmi2.Status {
	return l.unsupported("fmi2SetRealInputDerivatives", h)
}

// GetRealOutputDerivatives implements fmi2GetRealOutputDerivatives.
func (l *Library) GetRealOutputDerivatives(h Handle, _ []fmi2.ValueReference, _ []int32) ([]float64, fmi2.Status) {
	return nil, l.unsupported("fmi2GetRealOutputDerivatives", h)
}
