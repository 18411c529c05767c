package main

import (
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"
)

// maxElements bounds the array lengths accepted from the host.
const maxElements = math.MaxInt32

var exportLogger atomic.Pointer[zap.Logger]

func init() {
	exportLogger.Store(zap.NewNop())
}

// elementCount converts a host array length. Lengths beyond maxElements panic
// and are turned into Fatal by guard.
func elementCount(n uint64) int {
	if n > maxElements {
		panic(fmt.Sprintf("array length %d exceeds %d", n, maxElements))
	}
	return int(n)
}

// guard must be deferred directly by an exported function. A panic never
// unwinds into the host: it is logged and onPanic sets the failure result.
func guard(fn string, onPanic func()) {
	r := recover()
	if r == nil {
		return
	}
	exportLogger.Load().Error("recovered panic",
		zap.String("function", fn),
		zap.Any("panic", r),
		zap.Stack("stack"))
	if onPanic != nil {
		onPanic()
	}
}
