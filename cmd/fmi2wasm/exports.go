package main

/*
#include "fmi2.h"
*/
import "C"

import "github.com/wippyai/wasm-fmu/fmi2"

//export fmi2GetTypesPlatform
func fmi2GetTypesPlatform() C.fmi2String {
	return cString(typesPlatform)
}

//export fmi2GetVersion
func fmi2GetVersion() C.fmi2String {
	return cString(version)
}

//export fmi2Instantiate
func fmi2Instantiate(instanceName C.fmi2String, fmuType C.fmi2Type, fmuGUID C.fmi2String,
	fmuResourceLocation C.fmi2String, functions *C.fmi2CallbackFunctions,
	visible C.fmi2Boolean, loggingOn C.fmi2Boolean) (ret C.fmi2Component) {
	defer guard("fmi2Instantiate", func() { ret = nil })
	h := library().Instantiate(
		goString(instanceName),
		fmi2.Type(fmuType),
		goString(fmuGUID),
		goString(fmuResourceLocation),
		hostLogger(functions),
		goBool(visible),
		goBool(loggingOn),
	)
	return component(h)
}

//export fmi2FreeInstance
func fmi2FreeInstance(c C.fmi2Component) {
	defer guard("fmi2FreeInstance", nil)
	h := handle(c)
	library().FreeInstance(h)
	returned.release(h)
}

//export fmi2SetDebugLogging
func fmi2SetDebugLogging(c C.fmi2Component, loggingOn C.fmi2Boolean, nCategories C.size_t, categories *C.fmi2String) (ret C.fmi2Status) {
	defer guard("fmi2SetDebugLogging", func() { ret = C.fmi2Fatal })
	cats := inputs(categories, nCategories, goString)
	return status(library().SetDebugLogging(handle(c), goBool(loggingOn), cats))
}

//export fmi2SetupExperiment
func fmi2SetupExperiment(c C.fmi2Component, toleranceDefined C.fmi2Boolean, tolerance C.fmi2Real,
	startTime C.fmi2Real, stopTimeDefined C.fmi2Boolean, stopTime C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2SetupExperiment", func() { ret = C.fmi2Fatal })
	return status(library().SetupExperiment(handle(c),
		goBool(toleranceDefined), float64(tolerance),
		float64(startTime),
		goBool(stopTimeDefined), float64(stopTime)))
}

//export fmi2EnterInitializationMode
func fmi2EnterInitializationMode(c C.fmi2Component) (ret C.fmi2Status) {
	defer guard("fmi2EnterInitializationMode", func() { ret = C.fmi2Fatal })
	return status(library().EnterInitializationMode(handle(c)))
}

//export fmi2ExitInitializationMode
func fmi2ExitInitializationMode(c C.fmi2Component) (ret C.fmi2Status) {
	defer guard("fmi2ExitInitializationMode", func() { ret = C.fmi2Fatal })
	return status(library().ExitInitializationMode(handle(c)))
}

//export fmi2Terminate
func fmi2Terminate(c C.fmi2Component) (ret C.fmi2Status) {
	defer guard("fmi2Terminate", func() { ret = C.fmi2Fatal })
	return status(library().Terminate(handle(c)))
}

//export fmi2Reset
func fmi2Reset(c C.fmi2Component) (ret C.fmi2Status) {
	defer guard("fmi2Reset", func() { ret = C.fmi2Fatal })
	return status(library().Reset(handle(c)))
}

//export fmi2GetReal
func fmi2GetReal(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2GetReal", func() { ret = C.fmi2Fatal })
	values, s := library().GetReal(handle(c), refs(vr, nvr))
	outputs(value, nvr, values, func(v float64) C.fmi2Real { return C.fmi2Real(v) })
	return status(s)
}

//export fmi2GetInteger
func fmi2GetInteger(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2Integer) (ret C.fmi2Status) {
	defer guard("fmi2GetInteger", func() { ret = C.fmi2Fatal })
	values, s := library().GetInteger(handle(c), refs(vr, nvr))
	outputs(value, nvr, values, func(v int32) C.fmi2Integer { return C.fmi2Integer(v) })
	return status(s)
}

//export fmi2GetBoolean
func fmi2GetBoolean(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2Boolean) (ret C.fmi2Status) {
	defer guard("fmi2GetBoolean", func() { ret = C.fmi2Fatal })
	values, s := library().GetBoolean(handle(c), refs(vr, nvr))
	outputs(value, nvr, values, cBool)
	return status(s)
}

//export fmi2GetString
func fmi2GetString(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2String) (ret C.fmi2Status) {
	defer guard("fmi2GetString", func() { ret = C.fmi2Fatal })
	h := handle(c)
	values, s := library().GetString(h, refs(vr, nvr))
	if values != nil {
		ptrs := returned.replace(h, values)
		outputs(value, nvr, ptrs, cString)
	}
	return status(s)
}

//export fmi2SetReal
func fmi2SetReal(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2SetReal", func() { ret = C.fmi2Fatal })
	values := inputs(value, nvr, func(v C.fmi2Real) float64 { return float64(v) })
	return status(library().SetReal(handle(c), refs(vr, nvr), values))
}

//export fmi2SetInteger
func fmi2SetInteger(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2Integer) (ret C.fmi2Status) {
	defer guard("fmi2SetInteger", func() { ret = C.fmi2Fatal })
	values := inputs(value, nvr, func(v C.fmi2Integer) int32 { return int32(v) })
	return status(library().SetInteger(handle(c), refs(vr, nvr), values))
}

//export fmi2SetBoolean
func fmi2SetBoolean(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2Boolean) (ret C.fmi2Status) {
	defer guard("fmi2SetBoolean", func() { ret = C.fmi2Fatal })
	values := inputs(value, nvr, goBool)
	return status(library().SetBoolean(handle(c), refs(vr, nvr), values))
}

//export fmi2SetString
func fmi2SetString(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t, value *C.fmi2String) (ret C.fmi2Status) {
	defer guard("fmi2SetString", func() { ret = C.fmi2Fatal })
	values := inputs(value, nvr, goString)
	return status(library().SetString(handle(c), refs(vr, nvr), values))
}

//export fmi2DoStep
func fmi2DoStep(c C.fmi2Component, currentCommunicationPoint C.fmi2Real, communicationStepSize C.fmi2Real,
	noSetFMUStatePriorToCurrentPoint C.fmi2Boolean) (ret C.fmi2Status) {
	defer guard("fmi2DoStep", func() { ret = C.fmi2Fatal })
	return status(library().DoStep(handle(c),
		float64(currentCommunicationPoint),
		float64(communicationStepSize),
		goBool(noSetFMUStatePriorToCurrentPoint)))
}

//export fmi2CancelStep
func fmi2CancelStep(c C.fmi2Component) (ret C.fmi2Status) {
	defer guard("fmi2CancelStep", func() { ret = C.fmi2Fatal })
	return status(library().CancelStep(handle(c)))
}

//export fmi2GetStatus
func fmi2GetStatus(c C.fmi2Component, kind C.fmi2StatusKind, value *C.fmi2Status) (ret C.fmi2Status) {
	defer guard("fmi2GetStatus", func() { ret = C.fmi2Fatal })
	v, s := library().GetStatus(handle(c), fmi2.StatusKind(kind))
	if value != nil && s <= fmi2.Warning {
		*value = status(v)
	}
	return status(s)
}

//export fmi2GetRealStatus
func fmi2GetRealStatus(c C.fmi2Component, kind C.fmi2StatusKind, value *C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2GetRealStatus", func() { ret = C.fmi2Fatal })
	v, s := library().GetRealStatus(handle(c), fmi2.StatusKind(kind))
	if value != nil && s <= fmi2.Warning {
		*value = C.fmi2Real(v)
	}
	return status(s)
}

//export fmi2GetIntegerStatus
func fmi2GetIntegerStatus(c C.fmi2Component, kind C.fmi2StatusKind, value *C.fmi2Integer) (ret C.fmi2Status) {
	defer guard("fmi2GetIntegerStatus", func() { ret = C.fmi2Fatal })
	v, s := library().GetIntegerStatus(handle(c), fmi2.StatusKind(kind))
	if value != nil && s <= fmi2.Warning {
		*value = C.fmi2Integer(v)
	}
	return status(s)
}

//export fmi2GetBooleanStatus
func fmi2GetBooleanStatus(c C.fmi2Component, kind C.fmi2StatusKind, value *C.fmi2Boolean) (ret C.fmi2Status) {
	defer guard("fmi2GetBooleanStatus", func() { ret = C.fmi2Fatal })
	v, s := library().GetBooleanStatus(handle(c), fmi2.StatusKind(kind))
	if value != nil && s <= fmi2.Warning {
		*value = cBool(v)
	}
	return status(s)
}

//export fmi2GetStringStatus
func fmi2GetStringStatus(c C.fmi2Component, kind C.fmi2StatusKind, value *C.fmi2String) (ret C.fmi2Status) {
	defer guard("fmi2GetStringStatus", func() { ret = C.fmi2Fatal })
	_, s := library().GetStringStatus(handle(c), fmi2.StatusKind(kind))
	if value != nil {
		*value = cString(emptyString)
	}
	return status(s)
}

//export fmi2GetFMUstate
func fmi2GetFMUstate(c C.fmi2Component, state *C.fmi2FMUstate) (ret C.fmi2Status) {
	defer guard("fmi2GetFMUstate", func() { ret = C.fmi2Fatal })
	_, s := library().GetFMUstate(handle(c))
	if state != nil {
		*state = nil
	}
	return status(s)
}

//export fmi2SetFMUstate
func fmi2SetFMUstate(c C.fmi2Component, state C.fmi2FMUstate) (ret C.fmi2Status) {
	defer guard("fmi2SetFMUstate", func() { ret = C.fmi2Fatal })
	return status(library().SetFMUstate(handle(c), 0))
}

//export fmi2FreeFMUstate
func fmi2FreeFMUstate(c C.fmi2Component, state *C.fmi2FMUstate) (ret C.fmi2Status) {
	defer guard("fmi2FreeFMUstate", func() { ret = C.fmi2Fatal })
	return status(library().FreeFMUstate(handle(c), 0))
}

//export fmi2SerializedFMUstateSize
func fmi2SerializedFMUstateSize(c C.fmi2Component, state C.fmi2FMUstate, size *C.size_t) (ret C.fmi2Status) {
	defer guard("fmi2SerializedFMUstateSize", func() { ret = C.fmi2Fatal })
	_, s := library().SerializedFMUstateSize(handle(c), 0)
	if size != nil {
		*size = 0
	}
	return status(s)
}

//export fmi2SerializeFMUstate
func fmi2SerializeFMUstate(c C.fmi2Component, state C.fmi2FMUstate, serializedState *C.fmi2Byte, size C.size_t) (ret C.fmi2Status) {
	defer guard("fmi2SerializeFMUstate", func() { ret = C.fmi2Fatal })
	return status(library().SerializeFMUstate(handle(c), 0, nil))
}

//export fmi2DeSerializeFMUstate
func fmi2DeSerializeFMUstate(c C.fmi2Component, serializedState *C.fmi2Byte, size C.size_t, state *C.fmi2FMUstate) (ret C.fmi2Status) {
	defer guard("fmi2DeSerializeFMUstate", func() { ret = C.fmi2Fatal })
	_, s := library().DeSerializeFMUstate(handle(c), nil)
	if state != nil {
		*state = nil
	}
	return status(s)
}

//export fmi2GetDirectionalDerivative
func fmi2GetDirectionalDerivative(c C.fmi2Component, vUnknownRef *C.fmi2ValueReference, nUnknown C.size_t,
	vKnownRef *C.fmi2ValueReference, nKnown C.size_t, dvKnown *C.fmi2Real, dvUnknown *C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2GetDirectionalDerivative", func() { ret = C.fmi2Fatal })
	_, s := library().GetDirectionalDerivative(handle(c), refs(vUnknownRef, nUnknown), refs(vKnownRef, nKnown), nil)
	return status(s)
}

//export fmi2SetRealInputDerivatives
func fmi2SetRealInputDerivatives(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t,
	order *C.fmi2Integer, value *C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2SetRealInputDerivatives", func() { ret = C.fmi2Fatal })
	return status(library().SetRealInputDerivatives(handle(c), refs(vr, nvr), nil, nil))
}

//export fmi2GetRealOutputDerivatives
func fmi2GetRealOutputDerivatives(c C.fmi2Component, vr *C.fmi2ValueReference, nvr C.size_t,
	order *C.fmi2Integer, value *C.fmi2Real) (ret C.fmi2Status) {
	defer guard("fmi2GetRealOutputDerivatives", func() { ret = C.fmi2Fatal })
	_, s := library().GetRealOutputDerivatives(handle(c), refs(vr, nvr), nil)
	return status(s)
}
