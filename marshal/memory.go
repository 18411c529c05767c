package marshal

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasmfmu "github.com/wippyai/wasm-fmu"
)

var (
	_ wasmfmu.Memory      = (*guestMemory)(nil)
	_ wasmfmu.MemorySizer = (*guestMemory)(nil)
	_ wasmfmu.Allocator   = (*guestAllocator)(nil)
)

// guestMemory adapts api.Memory to wasmfmu.Memory.
type guestMemory struct {
	mem api.Memory
}

func (m *guestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *guestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *guestMemory) ReadF64(offset uint32) (float64, error) {
	v, ok := m.mem.ReadFloat64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *guestMemory) WriteF64(offset uint32, value float64) error {
	if !m.mem.WriteFloat64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *guestMemory) Size() uint32 {
	return m.mem.Size()
}

// guestAllocator calls the module's alloc and dealloc exports.
// dealloc is optional; without it Free does nothing.
type guestAllocator struct {
	ctx     context.Context
	alloc   api.Function
	dealloc api.Function
}

func (a *guestAllocator) Alloc(size uint32) (uint32, error) {
	if a.alloc == nil {
		return 0, fmt.Errorf("module does not export %s", ExportAlloc)
	}
	results, err := a.alloc.Call(a.ctx, api.EncodeU32(size))
	if err != nil {
		return 0, fmt.Errorf("allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocation returned no result")
	}
	ptr := api.DecodeU32(results[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("allocation of %d bytes returned null", size)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size uint32) {
	if a.dealloc == nil {
		return
	}
	_, _ = a.dealloc.Call(a.ctx, api.EncodeU32(ptr), api.EncodeU32(size))
}

type allocation struct {
	ptr, size uint32
}

// scratch tracks the guest buffers of one call and frees them in reverse order.
type scratch struct {
	mem    wasmfmu.Memory
	alloc  wasmfmu.Allocator
	allocs []allocation
}

func (s *scratch) reserve(size uint32) (uint32, error) {
	ptr, err := s.alloc.Alloc(size)
	if err != nil {
		return 0, err
	}
	s.allocs = append(s.allocs, allocation{ptr, size})
	return ptr, nil
}

// put copies data into a fresh guest buffer.
func (s *scratch) put(data []byte) (uint32, error) {
	ptr, err := s.reserve(uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if err := s.mem.Write(ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

// zeroed reserves size bytes and clears them.
func (s *scratch) zeroed(size uint32) (uint32, error) {
	return s.put(make([]byte, size))
}

func (s *scratch) release() {
	for i := len(s.allocs) - 1; i >= 0; i-- {
		s.alloc.Free(s.allocs[i].ptr, s.allocs[i].size)
	}
	s.allocs = nil
}
