package main

import (
	"fmt"
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-fmu/abi"
	"github.com/wippyai/wasm-fmu/conformance"
	"github.com/wippyai/wasm-fmu/fmi2"
	"github.com/wippyai/wasm-fmu/location"
)

// LogLine is one record delivered to the master's logger callback.
type LogLine struct {
	Instance string
	Status   fmi2.Status
	Category string
	Message  string
}

func (l LogLine) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", l.Status, l.Instance, l.Category, l.Message)
}

// logBook collects records and optionally forwards them as they arrive.
type logBook struct {
	mu     sync.Mutex
	lines  []LogLine
	notify func(LogLine)
}

func (b *logBook) callback(instance string, status fmi2.Status, category, message string) {
	line := LogLine{Instance: instance, Status: status, Category: category, Message: message}
	b.mu.Lock()
	b.lines = append(b.lines, line)
	notify := b.notify
	b.mu.Unlock()
	if notify != nil {
		notify(line)
	}
}

func (b *logBook) Lines() []LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LogLine(nil), b.lines...)
}

// SessionOptions configures a co-simulation run of one component.
type SessionOptions struct {
	Resources string
	Name      string
	Start     float64
	Stop      float64
	Step      float64
	LoggingOn bool
	Sets      []Variable
	Watch     []Variable
}

// Session drives one component through the co-simulation lifecycle.
type Session struct {
	lib    *abi.Library
	h      abi.Handle
	opts   SessionOptions
	log    *logBook
	time   float64
	status fmi2.Status
}

// Open instantiates the component in opts.Resources and runs it up to StepMode.
func Open(lib *abi.Library, opts SessionOptions, notify func(LogLine)) (*Session, error) {
	if opts.Step <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %g", opts.Step)
	}
	if opts.Name == "" {
		opts.Name = "fmurun"
	}
	uri, err := location.PathToFileURI(opts.Resources)
	if err != nil {
		return nil, err
	}

	s := &Session{lib: lib, opts: opts, log: &logBook{notify: notify}, time: opts.Start}
	s.h = lib.Instantiate(opts.Name, fmi2.CoSimulation, "", uri, s.log.callback, false, opts.LoggingOn)
	if s.h == 0 {
		lines := s.log.Lines()
		if len(lines) > 0 {
			return nil, fmt.Errorf("instantiate %s: %s", opts.Resources, lines[len(lines)-1].Message)
		}
		return nil, fmt.Errorf("instantiate %s failed", opts.Resources)
	}

	stopDefined := opts.Stop > opts.Start
	if err := s.check("setup experiment", lib.SetupExperiment(s.h, false, 0, opts.Start, stopDefined, opts.Stop)); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.check("enter initialization mode", lib.EnterInitializationMode(s.h)); err != nil {
		s.Close()
		return nil, err
	}
	for _, v := range opts.Sets {
		if err := s.Set(v); err != nil {
			s.Close()
			return nil, err
		}
	}
	if err := s.check("exit initialization mode", lib.ExitInitializationMode(s.h)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) check(what string, status fmi2.Status) error {
	s.status = status
	if status > fmi2.Warning {
		return fmt.Errorf("%s: %s", what, status)
	}
	return nil
}

// Time returns the current communication point.
func (s *Session) Time() float64 { return s.time }

// Done reports whether the stop time is reached.
func (s *Session) Done() bool {
	return s.opts.Stop > s.opts.Start && s.time >= s.opts.Stop-s.opts.Step*1e-9
}

// Status returns the status of the last call.
func (s *Session) Status() fmi2.Status { return s.status }

// Watch returns the watched output variables.
func (s *Session) Watch() []Variable { return s.opts.Watch }

// AddWatch adds v to the watched variables.
func (s *Session) AddWatch(v Variable) { s.opts.Watch = append(s.opts.Watch, v) }

// Logs returns every record received so far.
func (s *Session) Logs() []LogLine { return s.log.Lines() }

// Step advances by one communication step.
func (s *Session) Step() error {
	if err := s.check(fmt.Sprintf("step at %g", s.time), s.lib.DoStep(s.h, s.time, s.opts.Step, true)); err != nil {
		return err
	}
	s.time += s.opts.Step
	return nil
}

// Set writes one variable.
func (s *Session) Set(v Variable) error {
	val, err := convertValue(v.Value, v.Type)
	if err != nil {
		return fmt.Errorf("set %s: %w", v, err)
	}
	refs := []fmi2.ValueReference{v.Ref}
	var status fmi2.Status
	switch x := val.(type) {
	case float64:
		status = s.lib.SetReal(s.h, refs, []float64{x})
	case int32:
		status = s.lib.SetInteger(s.h, refs, []int32{x})
	case bool:
		status = s.lib.SetBoolean(s.h, refs, []bool{x})
	case string:
		status = s.lib.SetString(s.h, refs, []string{x})
	}
	return s.check("set "+v.String(), status)
}

// Get reads one variable and renders its value.
func (s *Session) Get(v Variable) (string, error) {
	refs := []fmi2.ValueReference{v.Ref}
	var (
		out    any
		status fmi2.Status
	)
	switch v.Type.(type) {
	case wit.F64:
		var vals []float64
		vals, status = s.lib.GetReal(s.h, refs)
		if len(vals) == 1 {
			out = vals[0]
		}
	case wit.S32:
		var vals []int32
		vals, status = s.lib.GetInteger(s.h, refs)
		if len(vals) == 1 {
			out = vals[0]
		}
	case wit.Bool:
		var vals []bool
		vals, status = s.lib.GetBoolean(s.h, refs)
		if len(vals) == 1 {
			out = vals[0]
		}
	case wit.String:
		var vals []string
		vals, status = s.lib.GetString(s.h, refs)
		if len(vals) == 1 {
			out = vals[0]
		}
	default:
		return "", fmt.Errorf("get %s: unsupported type %s", v, witTypeStr(v.Type))
	}
	if err := s.check("get "+v.String(), status); err != nil {
		return "", err
	}
	return formatValue(out), nil
}

// Row renders the current time and every watched variable.
func (s *Session) Row() ([]string, error) {
	row := []string{formatValue(s.time)}
	for _, v := range s.opts.Watch {
		val, err := s.Get(v)
		if err != nil {
			return row, err
		}
		row = append(row, val)
	}
	return row, nil
}

// Header returns the column names matching Row.
func (s *Session) Header() []string {
	h := []string{"time"}
	for _, v := range s.opts.Watch {
		h = append(h, v.String())
	}
	return h
}

// Close terminates the run when possible and frees the component.
func (s *Session) Close() {
	if s.h == 0 {
		return
	}
	if a, ok := s.lib.Component(s.h); ok && a.State() == conformance.StepMode {
		s.lib.Terminate(s.h)
	}
	s.lib.FreeInstance(s.h)
	s.h = 0
}
