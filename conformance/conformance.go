// Package conformance tracks the FMI 2.0 co-simulation lifecycle of one component
// and rejects calls that are illegal in its current state.
//
// The legal-call graph:
//
//	Instantiated --SetupExperiment--> Instantiated
//	Instantiated --EnterInitializationMode--> InitializationMode
//	InitializationMode --ExitInitializationMode--> StepMode
//	StepMode --DoStep--> StepMode
//	StepMode --Terminate--> Terminated
//	{StepMode, InitializationMode} --Error status--> Error
//	any --Fatal status--> Fatal
//	{Terminated, Error} --Reset--> Instantiated
//
// Variable access is legal in InitializationMode and StepMode; causality rules
// are left to the model.
package conformance

import (
	"strconv"

	"github.com/wippyai/wasm-fmu/errors"
	"github.com/wippyai/wasm-fmu/fmi2"
)

// State is a lifecycle state.
type State uint8

const (
	Instantiated State = iota
	InitializationMode
	StepMode
	Terminated
	Error
	Fatal
)

var stateNames = [...]string{"Instantiated", "InitializationMode", "StepMode", "Terminated", "Error", "Fatal"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Op is a lifecycle operation subject to checking.
type Op uint8

const (
	SetupExperiment Op = iota
	EnterInitializationMode
	ExitInitializationMode
	DoStep
	Terminate
	Reset
	GetVariables
	SetVariables
	SetDebugLogging
	CancelStep
	GetStatus
	FreeInstance
)

var opNames = [...]string{
	"SetupExperiment", "EnterInitializationMode", "ExitInitializationMode", "DoStep",
	"Terminate", "Reset", "GetVariables", "SetVariables", "SetDebugLogging",
	"CancelStep", "GetStatus", "FreeInstance",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

// Ops lists every operation in declaration order.
func Ops() []Op {
	ops := make([]Op, len(opNames))
	for i := range ops {
		ops[i] = Op(i)
	}
	return ops
}

// States lists every state in declaration order.
func States() []State {
	return []State{Instantiated, InitializationMode, StepMode, Terminated, Error, Fatal}
}

type stateSet uint8

func setOf(states ...State) stateSet {
	var s stateSet
	for _, st := range states {
		s |= 1 << st
	}
	return s
}

func (s stateSet) has(st State) bool { return s&(1<<st) != 0 }

var legal = [...]stateSet{
	SetupExperiment:         setOf(Instantiated),
	EnterInitializationMode: setOf(Instantiated),
	ExitInitializationMode:  setOf(InitializationMode),
	DoStep:                  setOf(StepMode),
	Terminate:               setOf(StepMode),
	Reset:                   setOf(Terminated, Error),
	GetVariables:            setOf(InitializationMode, StepMode),
	SetVariables:            setOf(InitializationMode, StepMode),
	SetDebugLogging:         setOf(Instantiated, InitializationMode, StepMode, Terminated, Error),
	CancelStep:              setOf(StepMode),
	GetStatus:               setOf(StepMode),
	FreeInstance:            setOf(States()...),
}

// success holds the target state of each op that moves the machine on OK/Warning.
var success = map[Op]State{
	SetupExperiment:         Instantiated,
	EnterInitializationMode: InitializationMode,
	ExitInitializationMode:  StepMode,
	DoStep:                  StepMode,
	Terminate:               Terminated,
	Reset:                   Instantiated,
}

// Machine is the per-component lifecycle tracker.
// It is not safe for concurrent use; calls into one component are sequential.
type Machine struct {
	state State
}

// New returns a machine in the Instantiated state.
func New() *Machine {
	return &Machine{state: Instantiated}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Allowed reports whether op may be issued in the current state.
func (m *Machine) Allowed(op Op) bool {
	return int(op) < len(legal) && legal[op].has(m.state)
}

// Check returns a ProtocolViolation when op is illegal in the current state.
func (m *Machine) Check(op Op) error {
	if m.Allowed(op) {
		return nil
	}
	return errors.ProtocolViolation(op.String(), m.state.String())
}

// Apply records the outcome of op and returns the resulting state.
func (m *Machine) Apply(op Op, status fmi2.Status) State {
	switch status {
	case fmi2.Fatal:
		m.state = Fatal
	case fmi2.Error:
		if m.state == StepMode || m.state == InitializationMode {
			m.state = Error
		}
	case fmi2.OK, fmi2.Warning:
		if next, ok := success[op]; ok {
			m.state = next
		}
	}
	return m.state
}
