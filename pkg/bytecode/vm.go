package bytecode

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unsafe"
)

// ---------------------------------------------------------------------------
// VM: stack-based bytecode interpreter
// ---------------------------------------------------------------------------

// Fixed execution capacities. One maximum-size stack window is reserved per
// frame; exceeding either limit is a runtime error, not a host crash.
const (
	FramesMax = 64
	StackMax  = FramesMax * 256
)

// InterpretResult classifies the outcome of an Interpret call.
type InterpretResult int

const (
	ResultOK InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

// String returns a human-readable name for the result.
func (r InterpretResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultCompileError:
		return "compile error"
	case ResultRuntimeError:
		return "runtime error"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

// CallFrame is a single active function invocation: the executing closure,
// a byte cursor into its chunk, and the base of its stack window.
type CallFrame struct {
	closure *ObjClosure
	ip      int
	slots   int // index of slot 0 in the VM value stack
}

// RuntimeError is a Lox runtime failure: the message plus a stack trace,
// innermost frame first.
type RuntimeError struct {
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string {
	if len(e.Trace) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Trace, "\n")
}

// VM executes compiled Lox functions. A single VM owns the object heap, the
// globals and intern tables, and the value/frame stacks; globals and
// interned strings persist across Interpret calls (the REPL relies on
// this), while the stacks are re-initialized at each entry.
type VM struct {
	frames     [FramesMax]CallFrame
	frameCount int

	stack    [StackMax]Value
	stackTop int

	globals Table
	strings Table // intern table; weak, pruned by the collector

	initString   *ObjString
	openUpvalues *ObjUpvalue

	// Heap state
	objects        *Obj
	bytesAllocated int
	nextGC         int
	grayStack      []*Obj

	// Compiler roots, set for the duration of a Compile call.
	compilingChain *Compiler

	stackOverflowed bool

	// Host configuration
	Stdout         io.Writer
	Stderr         io.Writer
	TraceExecution bool // per-instruction stack + disasm dump
	PrintDisasm    bool // dump each compiled chunk
	StressGC       bool // collect on every allocation
	LogGC          bool // log collection cycles
	HeapGrowFactor int  // next threshold = live bytes * factor
}

// NewVM creates a VM with the baseline natives registered.
func NewVM() *VM {
	vm := &VM{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		nextGC:         1024 * 1024,
		HeapGrowFactor: 2,
	}
	vm.initString = vm.copyString("init")
	vm.registerBaselineNatives()
	return vm
}

// ---------------------------------------------------------------------------
// Stack primitives
// ---------------------------------------------------------------------------

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
	vm.stackOverflowed = false
}

func (vm *VM) push(v Value) {
	if vm.stackTop == StackMax {
		// Surfaced as a runtime error by the dispatch loop.
		vm.stackOverflowed = true
		return
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Interpret compiles and runs source. Compile errors are written to Stderr
// and reported in the result; no bytecode from a failed compile runs.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, err := vm.Compile(source)
	if err != nil {
		fmt.Fprintln(vm.Stderr, err.Error())
		return ResultCompileError
	}
	return vm.InterpretFunction(fn)
}

// InterpretFunction runs a compiled top-level function (from Compile or
// from a deserialized .loxc container).
func (vm *VM) InterpretFunction(fn *ObjFunction) InterpretResult {
	vm.resetStack()

	// The function must be rooted while its closure is allocated.
	vm.push(FunctionValue(fn))
	closure := vm.newClosure(fn)
	vm.pop()
	vm.push(ClosureValue(closure))
	if err := vm.call(closure, 0); err != nil {
		fmt.Fprintln(vm.Stderr, err.Error())
		vm.resetStack()
		return ResultRuntimeError
	}

	if err := vm.run(); err != nil {
		fmt.Fprintln(vm.Stderr, err.Error())
		vm.resetStack()
		return ResultRuntimeError
	}
	return ResultOK
}

// runtimeError builds a RuntimeError with a stack trace, innermost frame
// first, using the line of the instruction that just executed.
func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	e := &RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.Line(frame.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		e.Trace = append(e.Trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	return e
}

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// call pushes a frame for a closure invocation. The callee and its argc
// arguments are already on the stack; slot 0 of the new frame is the callee
// (or the receiver, for methods).
func (vm *VM) call(closure *ObjClosure, argc int) *RuntimeError {
	if argc != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argc - 1
	return nil
}

// callValue dispatches a call on any value by heap-object kind.
func (vm *VM) callValue(callee Value, argc int) *RuntimeError {
	if callee.IsObject() {
		switch callee.ObjKind() {
		case KindClosure:
			return vm.call(callee.AsClosure(), argc)

		case KindNative:
			native := callee.AsNative()
			if native.Arity >= 0 && argc != native.Arity {
				return vm.runtimeError("Expected %d arguments but got %d.", native.Arity, argc)
			}
			// The slice aliases the stack; natives copy out before any
			// allocation of their own.
			args := vm.stack[vm.stackTop-argc : vm.stackTop]
			result, err := native.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argc + 1
			vm.push(result)
			return nil

		case KindClass:
			class := callee.AsClass()
			instance := vm.newInstance(class)
			vm.stack[vm.stackTop-argc-1] = objectValue(&instance.Obj)
			if initializer, ok := class.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsClosure(), argc)
			}
			if argc != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argc)
			}
			return nil

		case KindBoundMethod:
			bound := callee.AsBoundMethod()
			vm.stack[vm.stackTop-argc-1] = bound.Receiver
			return vm.call(bound.Method, argc)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

// invoke is the OP_INVOKE fast path: instance.method(args) without an
// intermediate bound method. A field shadowing the method name wins.
func (vm *VM) invoke(name *ObjString, argc int) *RuntimeError {
	receiver := vm.peek(argc)
	if !receiver.IsInstance() {
		return vm.runtimeError("Only instances have methods.")
	}
	instance := receiver.AsInstance()

	if value, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argc-1] = value
		return vm.callValue(value, argc)
	}
	return vm.invokeFromClass(instance.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argc int) *RuntimeError {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.AsClosure(), argc)
}

// bindMethod wraps a method lookup result around the receiver on top of the
// stack.
func (vm *VM) bindMethod(class *ObjClass, name *ObjString) *RuntimeError {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.newBoundMethod(vm.peek(0), method.AsClosure())
	vm.pop()
	vm.push(objectValue(&bound.Obj))
	return nil
}

// ---------------------------------------------------------------------------
// Upvalue capture
// ---------------------------------------------------------------------------

func valueAddr(p *Value) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// captureUpvalue finds or creates the open upvalue for a stack slot. The
// open list is sorted by descending slot address so the walk can stop
// early, and no two open upvalues ever share a slot.
func (vm *VM) captureUpvalue(slot *Value) *ObjUpvalue {
	var prev *ObjUpvalue
	upvalue := vm.openUpvalues
	for upvalue != nil && valueAddr(upvalue.Location) > valueAddr(slot) {
		prev = upvalue
		upvalue = upvalue.Next
	}
	if upvalue != nil && upvalue.Location == slot {
		return upvalue
	}

	created := vm.newUpvalue(slot)
	created.Next = upvalue
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above last: the stack value
// is copied into the upvalue's own storage and the upvalue leaves the open
// list.
func (vm *VM) closeUpvalues(last *Value) {
	for vm.openUpvalues != nil && valueAddr(vm.openUpvalues.Location) >= valueAddr(last) {
		upvalue := vm.openUpvalues
		upvalue.Closed = *upvalue.Location
		upvalue.Location = &upvalue.Closed
		vm.openUpvalues = upvalue.Next
	}
}

func (vm *VM) defineMethod(name *ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).AsClass()
	class.Methods.Set(name, method)
	vm.pop()
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes until the frame stack empties or a runtime error unwinds it.
func (vm *VM) run() *RuntimeError {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readUint16 := func() int {
		v := frame.closure.Function.Chunk.ReadUint16(frame.ip)
		frame.ip += 2
		return int(v)
	}
	readConstant := func() Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *ObjString {
		return readConstant().AsString()
	}

	for {
		if vm.stackOverflowed {
			return vm.runtimeError("Stack overflow.")
		}

		if vm.TraceExecution {
			var sb strings.Builder
			sb.WriteString("          ")
			for i := 0; i < vm.stackTop; i++ {
				fmt.Fprintf(&sb, "[ %s ]", vm.stack[i])
			}
			sb.WriteByte('\n')
			text, _ := disassembleInstruction(&frame.closure.Function.Chunk, frame.ip)
			sb.WriteString(text)
			fmt.Fprint(vm.Stderr, sb.String())
		}

		op := Opcode(readByte())

		switch op {
		// ============ Constants and literals ============
		case OpConstant:
			vm.push(readConstant())

		case OpNil:
			vm.push(Nil)

		case OpTrue:
			vm.push(True)

		case OpFalse:
			vm.push(False)

		case OpPop:
			vm.pop()

		// ============ Variables ============
		case OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[frame.slots+int(slot)])

		case OpSetLocal:
			slot := readByte()
			vm.stack[frame.slots+int(slot)] = vm.peek(0)

		case OpGetGlobal:
			name := readString()
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(value)

		case OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				// Assignment never creates a global; undo the insert.
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case OpGetUpvalue:
			slot := readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)

		case OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		// ============ Properties ============
		case OpGetProperty:
			if !vm.peek(0).IsInstance() {
				return vm.runtimeError("Only instances have properties.")
			}
			instance := vm.peek(0).AsInstance()
			name := readString()

			if value, ok := instance.Fields.Get(name); ok {
				vm.pop() // receiver
				vm.push(value)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}

		case OpSetProperty:
			if !vm.peek(1).IsInstance() {
				return vm.runtimeError("Only instances have fields.")
			}
			instance := vm.peek(1).AsInstance()
			instance.Fields.Set(readString(), vm.peek(0))
			value := vm.pop()
			vm.pop() // receiver
			vm.push(value)

		case OpGetSuper:
			name := readString()
			superclass := vm.pop().AsClass()
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		// ============ Comparison ============
		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(FromBool(a.Equals(b)))

		case OpGreater:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().Float64()
			a := vm.pop().Float64()
			vm.push(FromBool(a > b))

		case OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().Float64()
			a := vm.pop().Float64()
			vm.push(FromBool(a < b))

		// ============ Arithmetic ============
		case OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				// Operands stay on the stack as GC roots until the
				// concatenation result is interned.
				b := vm.peek(0).AsString()
				a := vm.peek(1).AsString()
				result := vm.takeString(a.Chars + b.Chars)
				vm.pop()
				vm.pop()
				vm.push(StringValue(result))
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().Float64()
				a := vm.pop().Float64()
				vm.push(FromFloat64(a + b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case OpSubtract:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().Float64()
			a := vm.pop().Float64()
			vm.push(FromFloat64(a - b))

		case OpMultiply:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().Float64()
			a := vm.pop().Float64()
			vm.push(FromFloat64(a * b))

		case OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().Float64()
			a := vm.pop().Float64()
			vm.push(FromFloat64(a / b))

		case OpNot:
			vm.push(FromBool(vm.pop().IsFalsey()))

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(FromFloat64(-vm.pop().Float64()))

		// ============ Output ============
		case OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		// ============ Control flow ============
		case OpJump:
			offset := readUint16()
			frame.ip += offset

		case OpJumpIfFalse:
			offset := readUint16()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case OpLoop:
			offset := readUint16()
			frame.ip -= offset

		// ============ Calls ============
		case OpCall:
			argc := int(readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpInvoke:
			name := readString()
			argc := int(readByte())
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case OpSuperInvoke:
			name := readString()
			argc := int(readByte())
			superclass := vm.pop().AsClass()
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		// ============ Closures ============
		case OpClosure:
			fn := readConstant().AsFunction()
			closure := vm.newClosure(fn)
			vm.push(ClosureValue(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[frame.slots+index])
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[vm.stackTop-1])
			vm.pop()

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(&vm.stack[frame.slots])
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the script closure
				return nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		// ============ Classes ============
		case OpClass:
			vm.push(ClassValue(vm.newClass(readString())))

		case OpInherit:
			superclass := vm.peek(1)
			if !superclass.IsClass() {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsClass()
			subclass.Methods.AddAll(&superclass.AsClass().Methods)
			vm.pop() // subclass

		case OpMethod:
			vm.defineMethod(readString())

		default:
			// Decode failure is an internal invariant violation, never a
			// language-level error.
			panic(fmt.Sprintf("unknown opcode 0x%02X at ip %d", byte(op), frame.ip-1))
		}
	}
}
