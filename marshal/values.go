package marshal

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/errors"
	"github.com/wippyai/wasm-fmu/fmi2"
)

// codec converts one value slot between Go and guest memory.
type codec[T any] struct {
	size   uint32
	decode func(m *Marshaler, at uint32) (T, error)
	encode func(m *Marshaler, s *scratch, at uint32, v T) error
}

var realCodec = codec[float64]{
	size: 8,
	decode: func(m *Marshaler, at uint32) (float64, error) {
		return m.mem.ReadF64(at)
	},
	encode: func(m *Marshaler, _ *scratch, at uint32, v float64) error {
		return m.mem.WriteF64(at, v)
	},
}

var integerCodec = codec[int32]{
	size: 4,
	decode: func(m *Marshaler, at uint32) (int32, error) {
		v, err := m.mem.ReadU32(at)
		return int32(v), err
	},
	encode: func(m *Marshaler, _ *scratch, at uint32, v int32) error {
		return m.mem.WriteU32(at, uint32(v))
	},
}

var booleanCodec = codec[bool]{
	size: 4,
	decode: func(m *Marshaler, at uint32) (bool, error) {
		v, err := m.mem.ReadU32(at)
		if err != nil {
			return false, err
		}
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("boolean slot holds %d", int32(v))
	},
	encode: func(m *Marshaler, _ *scratch, at uint32, v bool) error {
		var b uint32
		if v {
			b = 1
		}
		return m.mem.WriteU32(at, b)
	},
}

// Strings travel as (ptr, len) pairs pointing at UTF-8 bytes.
var stringCodec = codec[string]{
	size: 8,
	decode: func(m *Marshaler, at uint32) (string, error) {
		ptr, err := m.mem.ReadU32(at)
		if err != nil {
			return "", err
		}
		n, err := m.mem.ReadU32(at + 4)
		if err != nil {
			return "", err
		}
		data, err := m.mem.Read(ptr, n)
		if err != nil {
			return "", err
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("string at %d is not valid UTF-8", ptr)
		}
		return string(data), nil
	},
	encode: func(m *Marshaler, s *scratch, at uint32, v string) error {
		ptr, err := s.put([]byte(v))
		if err != nil {
			return err
		}
		if err := m.mem.WriteU32(at, ptr); err != nil {
			return err
		}
		return m.mem.WriteU32(at+4, uint32(len(v)))
	},
}

// GetReal reads real variables.
func (m *Marshaler) GetReal(ctx context.Context, refs []fmi2.ValueReference) ([]float64, fmi2.Status, error) {
	return get(ctx, m, MethodGetReal, refs, realCodec)
}

// GetInteger reads integer variables.
func (m *Marshaler) GetInteger(ctx context.Context, refs []fmi2.ValueReference) ([]int32, fmi2.Status, error) {
	return get(ctx, m, MethodGetInteger, refs, integerCodec)
}

// GetBoolean reads boolean variables. A slot holding anything but 0 or 1 fails the call.
func (m *Marshaler) GetBoolean(ctx context.Context, refs []fmi2.ValueReference) ([]bool, fmi2.Status, error) {
	return get(ctx, m, MethodGetBoolean, refs, booleanCodec)
}

// GetString reads string variables.
func (m *Marshaler) GetString(ctx context.Context, refs []fmi2.ValueReference) ([]string, fmi2.Status, error) {
	return get(ctx, m, MethodGetString, refs, stringCodec)
}

// SetReal writes real variables.
func (m *Marshaler) SetReal(ctx context.Context, refs []fmi2.ValueReference, values []float64) (fmi2.Status, error) {
	return set(ctx, m, MethodSetReal, refs, values, realCodec)
}

// SetInteger writes integer variables.
func (m *Marshaler) SetInteger(ctx context.Context, refs []fmi2.ValueReference, values []int32) (fmi2.Status, error) {
	return set(ctx, m, MethodSetInteger, refs, values, integerCodec)
}

// SetBoolean writes boolean variables.
func (m *Marshaler) SetBoolean(ctx context.Context, refs []fmi2.ValueReference, values []bool) (fmi2.Status, error) {
	return set(ctx, m, MethodSetBoolean, refs, values, booleanCodec)
}

// SetString writes string variables. The strings are copied into guest memory
// for the duration of the call.
func (m *Marshaler) SetString(ctx context.Context, refs []fmi2.ValueReference, values []string) (fmi2.Status, error) {
	return set(ctx, m, MethodSetString, refs, values, stringCodec)
}

// get is all-or-nothing: one bad slot discards every value.
// Values are only returned for OK and Warning.
func get[T any](ctx context.Context, m *Marshaler, method string, refs []fmi2.ValueReference, c codec[T]) ([]T, fmi2.Status, error) {
	if len(refs) == 0 {
		return []T{}, fmi2.OK, nil
	}

	s := m.scratch(ctx)
	defer s.release()

	n := uint32(len(refs))
	refsPtr, err := s.put(encodeRefs(refs))
	if err != nil {
		err = m.bufferError(method, err)
		return nil, errors.StatusOf(err), err
	}
	valsPtr, err := s.zeroed(n * c.size)
	if err != nil {
		err = m.bufferError(method, err)
		return nil, errors.StatusOf(err), err
	}

	status, err := m.Call(ctx, method, api.EncodeU32(refsPtr), api.EncodeU32(n), api.EncodeU32(valsPtr))
	if err != nil || status > fmi2.Warning {
		return nil, status, err
	}

	values := make([]T, n)
	for i := range values {
		v, err := c.decode(m, valsPtr+uint32(i)*c.size)
		if err != nil {
			cerr := errors.Conversion([]string{m.class, method, strconv.Itoa(i)},
				fmt.Sprintf("value reference %d: %v", refs[i], err), refs[i])
			Logger().Warn("discarding values", zap.Error(cerr))
			return nil, fmi2.Fatal, cerr
		}
		values[i] = v
	}
	return values, status, nil
}

func set[T any](ctx context.Context, m *Marshaler, method string, refs []fmi2.ValueReference, values []T, c codec[T]) (fmi2.Status, error) {
	if len(values) < len(refs) {
		err := errors.Conversion([]string{m.class, method},
			fmt.Sprintf("%d values for %d value references", len(values), len(refs)), len(values))
		return fmi2.Fatal, err
	}
	if len(refs) == 0 {
		return fmi2.OK, nil
	}

	s := m.scratch(ctx)
	defer s.release()

	n := uint32(len(refs))
	refsPtr, err := s.put(encodeRefs(refs))
	if err != nil {
		err = m.bufferError(method, err)
		return errors.StatusOf(err), err
	}
	valsPtr, err := s.zeroed(n * c.size)
	if err != nil {
		err = m.bufferError(method, err)
		return errors.StatusOf(err), err
	}
	for i := range refs {
		if err := c.encode(m, s, valsPtr+uint32(i)*c.size, values[i]); err != nil {
			err = m.bufferError(method, err)
			return errors.StatusOf(err), err
		}
	}

	return m.Call(ctx, method, api.EncodeU32(refsPtr), api.EncodeU32(n), api.EncodeU32(valsPtr))
}

func (m *Marshaler) bufferError(method string, cause error) error {
	return errors.CallFailed(m.class, method, fmt.Errorf("guest buffer: %w", cause))
}

func encodeRefs(refs []fmi2.ValueReference) []byte {
	buf := make([]byte, 4*len(refs))
	for i, r := range refs {
		binary.LittleEndian.PutUint32(buf[4*i:], r)
	}
	return buf
}

func (m *Marshaler) putStrings(s *scratch, method string, values []string) (uint32, error) {
	if len(values) == 0 {
		return 0, nil
	}
	slots, err := s.zeroed(uint32(len(values)) * stringCodec.size)
	if err != nil {
		return 0, m.bufferError(method, err)
	}
	for i, v := range values {
		if err := stringCodec.encode(m, s, slots+uint32(i)*stringCodec.size, v); err != nil {
			return 0, m.bufferError(method, err)
		}
	}
	return slots, nil
}
