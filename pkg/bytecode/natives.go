package bytecode

import (
	"time"
)

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// DefineNative registers a host callable under name in the globals table.
// Pass arity < 0 to skip the argument-count check. This is the registration
// hook for embedders; the VM itself only installs the clock baseline.
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) {
	// Both the name string and the native object are kept rooted on the
	// stack across each other's allocation.
	vm.push(StringValue(vm.copyString(name)))
	vm.push(objectValue(&vm.newNative(arity, fn).Obj))
	vm.globals.Set(vm.peek(1).AsString(), vm.peek(0))
	vm.pop()
	vm.pop()
}

// registerBaselineNatives installs the natives every VM starts with.
func (vm *VM) registerBaselineNatives() {
	vm.DefineNative("clock", 0, clockNative)
}

// clockNative returns seconds since the Unix epoch as a double.
func clockNative([]Value) (Value, error) {
	return FromFloat64(float64(time.Now().UnixNano()) / 1e9), nil
}
