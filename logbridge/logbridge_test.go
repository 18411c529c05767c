package logbridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-fmu/fmi2"
)

type collector struct {
	names   []string
	records []Record
}

func (c *collector) callback(name string, status fmi2.Status, category, message string) {
	c.names = append(c.names, name)
	c.records = append(c.records, Record{status, category, message})
}

func TestEmit_FIFO(t *testing.T) {
	c := &collector{}
	b := New("adder1", c.callback, true, nil)

	in := []Record{
		{fmi2.OK, "logEvents", "first {message}"},
		{fmi2.Warning, "logStatusWarning", "second 100% {done}"},
		{fmi2.Error, "logStatusError", "third } {"},
	}
	b.Emit(in...)

	assert.Equal(t, in, c.records)
	assert.Equal(t, []string{"adder1", "adder1", "adder1"}, c.names)
}

func TestEmit_ReentrantCallbackQueuesBehind(t *testing.T) {
	var got []string
	var b *Bridge
	b = New("x", func(_ string, _ fmi2.Status, _, message string) {
		got = append(got, message)
		if message == "a" {
			b.Log(fmi2.OK, "c", "nested")
		}
	}, true, nil)

	b.Emit(Record{fmi2.OK, "c", "a"}, Record{fmi2.OK, "c", "b"})
	assert.Equal(t, []string{"a", "b", "nested"}, got)
}

func TestEmit_PanickingCallbackDoesNotWedge(t *testing.T) {
	var got []string
	panicked := false
	b := New("x", func(_ string, _ fmi2.Status, _, message string) {
		if !panicked {
			panicked = true
			panic("host callback failed")
		}
		got = append(got, message)
	}, true, nil)

	assert.Panics(t, func() { b.Log(fmi2.OK, "c", "lost") })
	b.Log(fmi2.OK, "c", "after")
	assert.Equal(t, []string{"after"}, got)
}

func TestBracesIntact(t *testing.T) {
	c := &collector{}
	b := New("x", c.callback, true, nil)

	msgs := []string{"{}", "{0}", "}{", "{{name}}", "{message} with }{ unbalanced {"}
	for _, m := range msgs {
		b.Log(fmi2.OK, "logEvents", m)
	}
	require.Len(t, c.records, len(msgs))
	for i, m := range msgs {
		assert.Equal(t, m, c.records[i].Message)
	}
}

func TestLogf_DynamicTextIsAnArgument(t *testing.T) {
	c := &collector{}
	b := New("x", c.callback, true, nil)

	b.Logf(fmi2.Fatal, "logStatusFatal", "instantiation failed: %s", "100% {broken}")
	require.Len(t, c.records, 1)
	assert.Equal(t, "instantiation failed: 100% {broken}", c.records[0].Message)
}

func TestNilCallback(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	b := New("x", nil, true, zap.New(core))

	assert.NotPanics(t, func() { b.Log(fmi2.Warning, "c", "hello") })
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "x", entry.ContextMap()["instance"])
	assert.Equal(t, "Warning", entry.ContextMap()["status"])
}

func TestInvalidStatusReportedAsError(t *testing.T) {
	c := &collector{}
	b := New("x", c.callback, false, nil)

	b.Sink(fmi2.Status(9), "c", "odd")
	require.Len(t, c.records, 1)
	assert.Equal(t, fmi2.Error, c.records[0].Status)
}

func TestFilter(t *testing.T) {
	all := []Record{
		{fmi2.OK, "logEvents", "event"},
		{fmi2.OK, "custom", "custom"},
		{fmi2.Warning, "other", "warning"},
		{fmi2.Discard, "other", "discard"},
		{fmi2.Error, "other", "error"},
		{fmi2.Fatal, "other", "fatal"},
		{fmi2.Pending, "other", "pending"},
	}

	tests := []struct {
		name       string
		loggingOn  bool
		categories []string
		want       []string
	}{
		{"off passes only error and fatal", false, nil, []string{"error", "fatal"}},
		{"on without categories passes all", true, nil, []string{"event", "custom", "warning", "discard", "error", "fatal", "pending"}},
		{"events", true, []string{LogEvents}, []string{"event", "error", "fatal"}},
		{"warning status", true, []string{LogStatusWarning}, []string{"warning", "error", "fatal"}},
		{"discard and pending", true, []string{LogStatusDiscard, LogStatusPending}, []string{"discard", "error", "fatal", "pending"}},
		{"custom by name", true, []string{"custom"}, []string{"custom", "error", "fatal"}},
		{"all", true, []string{LogAll}, []string{"event", "custom", "warning", "discard", "error", "fatal", "pending"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &collector{}
			b := New("x", c.callback, false, nil)
			if tt.loggingOn {
				b.SetDebugLogging(true, tt.categories)
			}
			b.Emit(all...)

			var got []string
			for _, r := range c.records {
				got = append(got, r.Message)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSetDebugLogging(t *testing.T) {
	b := New("x", nil, false, nil)
	assert.False(t, b.LoggingOn())

	b.SetDebugLogging(true, []string{LogEvents, LogStatusWarning})
	b.SetDebugLogging(true, []string{LogEvents})
	assert.True(t, b.LoggingOn())
	assert.Equal(t, []string{LogEvents, LogStatusWarning}, b.Categories())

	b.SetDebugLogging(false, []string{LogEvents})
	assert.True(t, b.LoggingOn(), "removing categories keeps logging on")
	assert.Equal(t, []string{LogStatusWarning}, b.Categories())

	b.SetDebugLogging(false, nil)
	assert.False(t, b.LoggingOn())
	assert.Empty(t, b.Categories())
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches(LogEvents, Record{Category: "events"}))
	assert.True(t, Matches(LogEvents, Record{Category: "logEvents"}))
	assert.True(t, Matches(LogNonlinearSystems, Record{Category: "NLS"}))
	assert.True(t, Matches(LogDynamicStateSelection, Record{Category: "dss"}))
	assert.False(t, Matches(LogSingularLinearSystems, Record{Category: "nls"}))
	assert.True(t, Matches(LogStatusFatal, Record{Status: fmi2.Fatal}))
	assert.False(t, Matches("Custom", Record{Category: "custom"}), "custom categories are case sensitive")
	assert.Len(t, StandardCategories(), 10)
}

func TestEscapePrintf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"100%", "100%%"},
		{"%s %d %%", "%%s %%d %%%%"},
		{"{} {0} }{", "{} {0} }{"},
	}
	var noArgs []any
	for _, tt := range tests {
		escaped := EscapePrintf(tt.in)
		assert.Equal(t, tt.want, escaped)
		assert.Equal(t, tt.in, fmt.Sprintf(escaped, noArgs...), "renders verbatim through a printf formatter")
	}
}

func TestStatusCategory(t *testing.T) {
	assert.Equal(t, LogEvents, StatusCategory(fmi2.OK))
	assert.Equal(t, LogStatusFatal, StatusCategory(fmi2.Fatal))
	for _, s := range []fmi2.Status{fmi2.Warning, fmi2.Discard, fmi2.Error, fmi2.Fatal, fmi2.Pending} {
		assert.True(t, Matches(StatusCategory(s), Record{Status: s}), s.String())
	}
}
