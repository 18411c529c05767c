package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/fmi2"
)

const (
	// HostModuleName is the import module models use for host services.
	HostModuleName = "fmi2"
	// HostLogFunction is log(ctx, status, catPtr, catLen, msgPtr, msgLen).
	HostLogFunction = "log"
)

func (m *Manager) installHostModules(ctx context.Context) error {
	if m.runtime.Module(HostModuleName) == nil {
		i32 := api.ValueTypeI32
		_, err := m.runtime.NewHostModuleBuilder(HostModuleName).
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(m.hostLog), []api.ValueType{i32, i32, i32, i32, i32, i32}, nil).
			WithParameterNames("ctx", "status", "category", "category_len", "message", "message_len").
			Export(HostLogFunction).
			Instantiate(ctx)
		if err != nil && m.runtime.Module(HostModuleName) == nil {
			return fmt.Errorf("instantiate %s host module: %w", HostModuleName, err)
		}
	}

	if m.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
		_, err := wasi_snapshot_preview1.Instantiate(ctx, m.runtime)
		// Another path may have installed WASI in a shared runtime concurrently.
		if err != nil && m.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}
	return nil
}

// hostLog forwards a record to the sink named by the first argument.
func (m *Manager) hostLog(_ context.Context, mod api.Module, stack []uint64) {
	id := api.DecodeU32(stack[0])
	status := fmi2.Status(api.DecodeI32(stack[1]))

	category, ok := readString(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if !ok {
		Logger().Warn("fmi2.log category out of bounds", zap.Uint32("sink", id))
		return
	}
	message, ok := readString(mod, api.DecodeU32(stack[4]), api.DecodeU32(stack[5]))
	if !ok {
		Logger().Warn("fmi2.log message out of bounds", zap.Uint32("sink", id))
		return
	}

	sink := m.sink(id)
	if sink == nil {
		Logger().Debug("fmi2.log for unknown sink", zap.Uint32("sink", id), zap.String("message", message))
		return
	}
	sink.Sink(status, category, message)
}

func readString(mod api.Module, ptr, n uint32) (string, bool) {
	if n == 0 {
		return "", true
	}
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	b, ok := mem.Read(ptr, n)
	if !ok {
		return "", false
	}
	return string(b), true
}
