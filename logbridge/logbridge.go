// Package logbridge delivers FMI log records to the host's logger callback.
//
// Records come from two places: the component's own diagnostics (Log, Logf)
// and the model, either pushed through the fmi2.log host import (Sink) or
// buffered by the model and drained after each call (Emit). Every record is
// mirrored to zap regardless of filtering.
package logbridge

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-fmu/fmi2"
)

// Record is a single log message.
type Record struct {
	Status   fmi2.Status
	Category string
	Message  string
}

// Callback receives records that pass the debug-logging filter.
type Callback func(instanceName string, status fmi2.Status, category, message string)

// Bridge filters records and forwards them in order.
type Bridge struct {
	name     string
	callback Callback
	logger   *zap.Logger

	mu        sync.Mutex
	loggingOn bool
	active    []string
	queue     []Record
	flushing  bool
}

// New creates a bridge for one component instance. callback may be nil.
func New(instanceName string, callback Callback, loggingOn bool, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		name:      instanceName,
		callback:  callback,
		logger:    logger.With(zap.String("instance", instanceName)),
		loggingOn: loggingOn,
	}
}

// InstanceName returns the name passed to the host callback.
func (b *Bridge) InstanceName() string { return b.name }

// Log records a message immediately.
func (b *Bridge) Log(status fmi2.Status, category, message string) {
	b.Emit(Record{Status: status, Category: category, Message: message})
}

// Logf formats a message. Model supplied text must only appear in args.
func (b *Bridge) Logf(status fmi2.Status, category, format string, args ...any) {
	b.Log(status, category, fmt.Sprintf(format, args...))
}

// Sink implements engine.LogSink for records pushed through the host import.
func (b *Bridge) Sink(status fmi2.Status, category, message string) {
	b.Emit(Record{Status: status, Category: category, Message: message})
}

// Emit enqueues records and flushes the queue in FIFO order. A callback that
// logs again appends behind the records already queued.
func (b *Bridge) Emit(records ...Record) {
	if len(records) == 0 {
		return
	}

	b.mu.Lock()
	for _, r := range records {
		b.queue = append(b.queue, b.normalize(r))
	}
	if b.flushing {
		b.mu.Unlock()
		return
	}
	b.flushing = true
	b.mu.Unlock()
	defer b.endFlush()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.queue = nil
			b.mu.Unlock()
			return
		}
		r := b.queue[0]
		b.queue = b.queue[1:]
		pass := b.passes(r)
		b.mu.Unlock()

		b.mirror(r, pass)
		if pass && b.callback != nil {
			b.callback(b.name, r.Status, r.Category, r.Message)
		}
	}
}

// endFlush runs even when the host callback panics; records still queued are
// delivered by the next Emit.
func (b *Bridge) endFlush() {
	b.mu.Lock()
	b.flushing = false
	b.mu.Unlock()
}

func (b *Bridge) normalize(r Record) Record {
	if !r.Status.Valid() {
		b.logger.Warn("log record with invalid status, reporting as error",
			zap.Int32("status", int32(r.Status)),
			zap.String("category", r.Category))
		r.Status = fmi2.Error
	}
	return r
}

// SetDebugLogging switches logging and the active categories.
// Turning logging on adds categories; turning it off with categories removes
// only those, and without categories disables logging entirely.
func (b *Bridge) SetDebugLogging(on bool, categories []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case on:
		b.loggingOn = true
		for _, c := range categories {
			if !slices.Contains(b.active, c) {
				b.active = append(b.active, c)
			}
		}
	case len(categories) == 0:
		b.loggingOn = false
		b.active = nil
	default:
		b.active = slices.DeleteFunc(b.active, func(c string) bool {
			return slices.Contains(categories, c)
		})
	}
}

// LoggingOn reports whether debug logging is enabled.
func (b *Bridge) LoggingOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loggingOn
}

// Categories returns the active categories.
func (b *Bridge) Categories() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.active)
}

func (b *Bridge) passes(r Record) bool {
	if r.Status == fmi2.Error || r.Status == fmi2.Fatal {
		return true
	}
	if !b.loggingOn {
		return false
	}
	if len(b.active) == 0 {
		return true
	}
	for _, c := range b.active {
		if Matches(c, r) {
			return true
		}
	}
	return false
}

func (b *Bridge) mirror(r Record, forwarded bool) {
	ce := b.logger.Check(levelOf(r.Status), r.Message)
	if ce == nil {
		return
	}
	ce.Write(
		zap.Stringer("status", r.Status),
		zap.String("category", r.Category),
		zap.Bool("forwarded", forwarded),
	)
}

func levelOf(s fmi2.Status) zapcore.Level {
	switch s {
	case fmi2.OK, fmi2.Pending:
		return zapcore.DebugLevel
	case fmi2.Warning, fmi2.Discard:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// EscapePrintf doubles every '%' so s prints verbatim when used as the
// format string of a printf-style logger. Braces are left alone.
func EscapePrintf(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
