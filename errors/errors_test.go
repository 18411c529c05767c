package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-fmu/fmi2"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseMarshal,
				Kind:   KindConversion,
				Path:   []string{"Adder", "get_boolean", "1"},
				Detail: "boolean slot holds 7",
			},
			contains: []string{"[marshal]", "conversion_error", "Adder.get_boolean.1", "boolean slot holds 7"},
		},
		{
			name:     "minimal error",
			err:      &Error{Phase: PhaseProtocol, Kind: KindProtocolViolation},
			contains: []string{"[protocol]", "protocol_violation"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindCallFailed,
				Detail: "model call failed",
				Cause:  errors.New("wasm error: unreachable"),
			},
			contains: []string{"[call]", "call_failed", "caused by", "unreachable"},
		},
		{
			name:     "sentinel without phase",
			err:      ErrUnsupported,
			contains: []string{"unsupported"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Phase: PhaseConfig, Kind: KindConfigMalformed, Cause: cause}

	assert.ErrorIs(t, err.Unwrap(), cause)
	assert.ErrorIs(t, errors.Unwrap(err), cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseCall, Kind: KindCallFailed, Path: []string{"Adder", "do_step"}}

	assert.True(t, err.Is(&Error{Phase: PhaseCall, Kind: KindCallFailed}), "same phase and kind")
	assert.False(t, err.Is(&Error{Phase: PhaseABI, Kind: KindCallFailed}), "different phase")
	assert.False(t, err.Is(&Error{Phase: PhaseCall, Kind: KindUnsupported}), "different kind")
	assert.True(t, errors.Is(err, ErrCallFailed), "sentinel matches on kind alone")
	assert.False(t, errors.Is(err, ErrProtocolViolation))
}

func TestError_IsThroughWrapping(t *testing.T) {
	inner := CallFailed("Adder", "new", errors.New("trap"))
	outer := InstantiationFailed("instantiate class", inner)

	assert.ErrorIs(t, outer, ErrInstantiationFailed)
	assert.ErrorIs(t, outer, ErrCallFailed)
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseMarshal, KindConversion).
		Path("Faulty", "get_string", "1").
		Value(uint32(0x10000800)).
		Cause(cause).
		Detail("string at %d out of bounds", 0x10000800).
		Build()

	assert.Equal(t, PhaseMarshal, err.Phase)
	assert.Equal(t, KindConversion, err.Kind)
	assert.Equal(t, []string{"Faulty", "get_string", "1"}, err.Path)
	assert.Equal(t, uint32(0x10000800), err.Value)
	assert.ErrorIs(t, err.Cause, cause)
	assert.Equal(t, "string at 268437504 out of bounds", err.Detail)
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("MalformedURI", func(t *testing.T) {
		err := MalformedURI("http://x", "unsupported scheme")
		assert.Equal(t, KindMalformedURI, err.Kind)
		assert.Equal(t, PhaseResolve, err.Phase)
		assert.Contains(t, err.Detail, "http://x")
	})

	t.Run("ConfigNotFound", func(t *testing.T) {
		err := ConfigNotFound("/res/slave_configuration.json", nil)
		assert.Equal(t, KindConfigNotFound, err.Kind)
		assert.Contains(t, err.Error(), "/res/slave_configuration.json")
	})

	t.Run("ProtocolViolation", func(t *testing.T) {
		err := ProtocolViolation("DoStep", "Instantiated")
		assert.Equal(t, "[protocol] protocol_violation: DoStep is not allowed in state Instantiated", err.Error())
	})

	t.Run("CallFailed", func(t *testing.T) {
		err := CallFailed("Adder", "reset", errors.New("trap"))
		assert.Equal(t, []string{"Adder", "reset"}, err.Path)
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseABI, "fmi2GetFMUstate")
		assert.Equal(t, KindUnsupported, err.Kind)
		assert.Equal(t, "fmi2GetFMUstate", err.Detail)
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want fmi2.Status
	}{
		{"nil", nil, fmi2.OK},
		{"plain error", errors.New("boom"), fmi2.Error},
		{"protocol violation", ProtocolViolation("DoStep", "Instantiated"), fmi2.Error},
		{"call failed", CallFailed("Adder", "do_step", nil), fmi2.Error},
		{"unsupported", Unsupported(PhaseABI, "cancel"), fmi2.Error},
		{"conversion", Conversion(nil, "bad", 7), fmi2.Fatal},
		{"instantiation", InstantiationFailed("import", nil), fmi2.Fatal},
		{"config", ConfigNotFound("x", nil), fmi2.Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestMissingImportsError(t *testing.T) {
	t.Run("single import", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#abort"})
		require.Len(t, err.Imports, 1)
		assert.Equal(t, "env", err.Imports[0].Module)
		assert.Equal(t, "abort", err.Imports[0].Function)
	})

	t.Run("grouped by module", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#abort", "host#tick", "env#seed"})
		msg := err.Error()
		assert.Contains(t, msg, "missing 3 host function(s)")
		assert.Contains(t, msg, "env:")
		assert.Contains(t, msg, "host:")
		assert.Contains(t, msg, "- seed")
	})

	t.Run("empty imports", func(t *testing.T) {
		err := NewMissingImportsError(nil)
		assert.Contains(t, err.Error(), "no imports specified")
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#fn"})
		assert.ErrorIs(t, err, &MissingImportsError{})
	})
}
