// Package fmi2 defines the FMI 2.0 co-simulation vocabulary shared across the module.
package fmi2

import "strconv"

const (
	// Version is returned by fmi2GetVersion.
	Version = "2.0"
	// TypesPlatform is returned by fmi2GetTypesPlatform.
	TypesPlatform = "default"
)

// Status is the fmi2Status enum.
type Status int32

const (
	OK Status = iota
	Warning
	Discard
	Error
	Fatal
	Pending
)

var statusNames = [...]string{"OK", "Warning", "Discard", "Error", "Fatal", "Pending"}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the six defined codes.
func (s Status) Valid() bool {
	return s >= OK && s <= Pending
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Type is the fmi2Type enum passed to fmi2Instantiate.
type Type int32

const (
	ModelExchange Type = iota
	CoSimulation
)

func (t Type) String() string {
	switch t {
	case ModelExchange:
		return "ModelExchange"
	case CoSimulation:
		return "CoSimulation"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// StatusKind selects the value queried by the fmi2Get*Status functions.
type StatusKind int32

const (
	DoStepStatus StatusKind = iota
	PendingStatus
	LastSuccessfulTime
	Terminated
)

var statusKindNames = [...]string{"DoStepStatus", "PendingStatus", "LastSuccessfulTime", "Terminated"}

func (k StatusKind) String() string {
	if k >= DoStepStatus && k <= Terminated {
		return statusKindNames[k]
	}
	return "StatusKind(" + strconv.Itoa(int(k)) + ")"
}

// ValueReference names one model variable.
type ValueReference = uint32
