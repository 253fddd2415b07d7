package bytecode

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// ObjKind identifies the concrete type of a heap object.
type ObjKind uint8

const (
	KindString ObjKind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

// String returns a human-readable name for ObjKind.
func (k ObjKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	default:
		return fmt.Sprintf("ObjKind(%d)", uint8(k))
	}
}

// Obj is the header embedded at offset zero of every heap object. The VM's
// collector traverses objects through the intrusive next chain, which also
// keeps every live object reachable from the VM between collections.
type Obj struct {
	kind   ObjKind
	marked bool
	next   *Obj
}

// Kind returns the object's kind tag.
func (o *Obj) Kind() ObjKind { return o.kind }

// ObjString is an immutable, interned string with a precomputed FNV-1a hash.
type ObjString struct {
	Obj
	Chars string
	Hash  uint32
}

// ObjFunction is a compiled function: its bytecode chunk plus the metadata
// the VM needs to call it. Name is nil for the synthetic top-level function.
type ObjFunction struct {
	Obj
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *ObjString
}

// NativeFn is the signature of host-provided callables. The args slice
// aliases the VM value stack; implementations must copy anything they want
// to keep before triggering an allocation.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a host callable. Arity < 0 disables the argument-count
// check.
type ObjNative struct {
	Obj
	Arity int
	Fn    NativeFn
}

// ObjClosure pairs a function with the upvalues it captured. The upvalue
// array length always equals Function.UpvalueCount.
type ObjClosure struct {
	Obj
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjUpvalue is the indirection cell for a captured variable. While open,
// Location points at a live stack slot; once closed, the value is copied
// into Closed and Location points at it. Next links the VM's open-upvalue
// list in descending stack-address order.
type ObjUpvalue struct {
	Obj
	Location *Value
	Closed   Value
	Next     *ObjUpvalue
}

// ObjClass is a class with its flattened method table (name -> closure).
type ObjClass struct {
	Obj
	Name    *ObjString
	Methods Table
}

// ObjInstance is an instance with its field table (name -> value).
type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields Table
}

// ObjBoundMethod pairs a receiver with a method closure so the method can
// be called later with `this` already bound.
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   *ObjClosure
}

// ---------------------------------------------------------------------------
// Value <-> object conversions
//
// Every Obj* struct embeds Obj as its first field, so a pointer to the
// concrete struct and a pointer to its header are the same address. The
// kind tag makes the unsafe casts below checkable.
// ---------------------------------------------------------------------------

func (v Value) asObj() *Obj { return (*Obj)(v.objectPtr()) }

// objPtr converts a header pointer back to the concrete struct's address.
func objPtr(o *Obj) unsafe.Pointer { return unsafe.Pointer(o) }

// ObjKind returns the heap-object kind of v. Panics if v is not an object.
func (v Value) ObjKind() ObjKind { return v.asObj().kind }

func (v Value) isObjKind(k ObjKind) bool {
	return v.IsObject() && v.asObj().kind == k
}

// IsString returns true if v is a string object.
func (v Value) IsString() bool { return v.isObjKind(KindString) }

// IsFunction returns true if v is a bare function object.
func (v Value) IsFunction() bool { return v.isObjKind(KindFunction) }

// IsNative returns true if v is a native function object.
func (v Value) IsNative() bool { return v.isObjKind(KindNative) }

// IsClosure returns true if v is a closure object.
func (v Value) IsClosure() bool { return v.isObjKind(KindClosure) }

// IsClass returns true if v is a class object.
func (v Value) IsClass() bool { return v.isObjKind(KindClass) }

// IsInstance returns true if v is an instance object.
func (v Value) IsInstance() bool { return v.isObjKind(KindInstance) }

// IsBoundMethod returns true if v is a bound method object.
func (v Value) IsBoundMethod() bool { return v.isObjKind(KindBoundMethod) }

// AsString returns v as an *ObjString. Panics if v is not a string.
func (v Value) AsString() *ObjString {
	o := v.asObj()
	if o.kind != KindString {
		panic("Value.AsString: not a string")
	}
	return (*ObjString)(unsafe.Pointer(o))
}

// AsFunction returns v as an *ObjFunction.
func (v Value) AsFunction() *ObjFunction {
	o := v.asObj()
	if o.kind != KindFunction {
		panic("Value.AsFunction: not a function")
	}
	return (*ObjFunction)(unsafe.Pointer(o))
}

// AsNative returns v as an *ObjNative.
func (v Value) AsNative() *ObjNative {
	o := v.asObj()
	if o.kind != KindNative {
		panic("Value.AsNative: not a native")
	}
	return (*ObjNative)(unsafe.Pointer(o))
}

// AsClosure returns v as an *ObjClosure.
func (v Value) AsClosure() *ObjClosure {
	o := v.asObj()
	if o.kind != KindClosure {
		panic("Value.AsClosure: not a closure")
	}
	return (*ObjClosure)(unsafe.Pointer(o))
}

// AsClass returns v as an *ObjClass.
func (v Value) AsClass() *ObjClass {
	o := v.asObj()
	if o.kind != KindClass {
		panic("Value.AsClass: not a class")
	}
	return (*ObjClass)(unsafe.Pointer(o))
}

// AsInstance returns v as an *ObjInstance.
func (v Value) AsInstance() *ObjInstance {
	o := v.asObj()
	if o.kind != KindInstance {
		panic("Value.AsInstance: not an instance")
	}
	return (*ObjInstance)(unsafe.Pointer(o))
}

// AsBoundMethod returns v as an *ObjBoundMethod.
func (v Value) AsBoundMethod() *ObjBoundMethod {
	o := v.asObj()
	if o.kind != KindBoundMethod {
		panic("Value.AsBoundMethod: not a bound method")
	}
	return (*ObjBoundMethod)(unsafe.Pointer(o))
}

// objectValue boxes a heap object header pointer into a Value.
func objectValue(o *Obj) Value {
	return fromObjectPtr(unsafe.Pointer(o))
}

// StringValue boxes a string object.
func StringValue(s *ObjString) Value { return objectValue(&s.Obj) }

// FunctionValue boxes a function object.
func FunctionValue(f *ObjFunction) Value { return objectValue(&f.Obj) }

// ClosureValue boxes a closure object.
func ClosureValue(c *ObjClosure) Value { return objectValue(&c.Obj) }

// ClassValue boxes a class object.
func ClassValue(c *ObjClass) Value { return objectValue(&c.Obj) }

// objString renders a heap object in its canonical printed form.
func (o *Obj) objString() string {
	switch o.kind {
	case KindString:
		return (*ObjString)(unsafe.Pointer(o)).Chars
	case KindFunction:
		return (*ObjFunction)(unsafe.Pointer(o)).funcString()
	case KindNative:
		return "<native fn>"
	case KindClosure:
		return (*ObjClosure)(unsafe.Pointer(o)).Function.funcString()
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return (*ObjClass)(unsafe.Pointer(o)).Name.Chars
	case KindInstance:
		return (*ObjInstance)(unsafe.Pointer(o)).Class.Name.Chars + " instance"
	case KindBoundMethod:
		return (*ObjBoundMethod)(unsafe.Pointer(o)).Method.Function.funcString()
	default:
		return fmt.Sprintf("<unknown object %d>", o.kind)
	}
}

func (f *ObjFunction) funcString() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

// hashString computes the FNV-1a hash of a string's bytes.
func hashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// ---------------------------------------------------------------------------
// Allocation
//
// Every constructor routes through VM.allocateObject so the collector can
// account bytes and, when stress mode is on or the threshold is crossed,
// run a collection before the new object becomes reachable only from the
// caller's hands. Callers must keep partially-built values rooted (on the
// VM stack) across any allocation.
// ---------------------------------------------------------------------------

// Approximate per-object sizes for GC accounting. Go does not expose a
// realloc choke point, so the accounting uses the struct sizes plus owned
// buffer lengths.
var objSizes = map[ObjKind]int{
	KindString:      int(unsafe.Sizeof(ObjString{})),
	KindFunction:    int(unsafe.Sizeof(ObjFunction{})),
	KindNative:      int(unsafe.Sizeof(ObjNative{})),
	KindClosure:     int(unsafe.Sizeof(ObjClosure{})),
	KindUpvalue:     int(unsafe.Sizeof(ObjUpvalue{})),
	KindClass:       int(unsafe.Sizeof(ObjClass{})),
	KindInstance:    int(unsafe.Sizeof(ObjInstance{})),
	KindBoundMethod: int(unsafe.Sizeof(ObjBoundMethod{})),
}

// allocateObject links a freshly-built object into the all-objects chain and
// charges its size against the GC budget. extra accounts owned buffers
// (string bytes, upvalue arrays).
func (vm *VM) allocateObject(o *Obj, kind ObjKind, extra int) {
	// Charge (and possibly collect) before linking: a collection triggered
	// here must not sweep the object the caller is still constructing.
	vm.adjustAllocated(objSizes[kind] + extra)
	o.kind = kind
	o.next = vm.objects
	vm.objects = o
}

// copyString interns the given string content, allocating a new ObjString
// only if no equal string exists.
func (vm *VM) copyString(chars string) *ObjString {
	hash := hashString(chars)
	if interned := vm.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := &ObjString{Chars: chars, Hash: hash}
	vm.allocateObject(&s.Obj, KindString, len(chars))

	// The intern-table insertion may itself grow the table; keep the new
	// string rooted across it.
	vm.push(StringValue(s))
	vm.strings.Set(s, True)
	vm.pop()
	return s
}

// takeString interns a string whose buffer the caller has already built
// (concatenation results). Behaviorally identical to copyString since Go
// strings are immutable; the distinction is kept for the two call sites'
// accounting.
func (vm *VM) takeString(chars string) *ObjString {
	return vm.copyString(chars)
}

// newFunction allocates an empty function under construction.
func (vm *VM) newFunction() *ObjFunction {
	f := &ObjFunction{Chunk: *NewChunk()}
	vm.allocateObject(&f.Obj, KindFunction, 0)
	return f
}

// newNative wraps a host callable.
func (vm *VM) newNative(arity int, fn NativeFn) *ObjNative {
	n := &ObjNative{Arity: arity, Fn: fn}
	vm.allocateObject(&n.Obj, KindNative, 0)
	return n
}

// newClosure allocates a closure with an upvalue array sized to the
// function's declared count.
func (vm *VM) newClosure(function *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		Function: function,
		Upvalues: make([]*ObjUpvalue, function.UpvalueCount),
	}
	vm.allocateObject(&c.Obj, KindClosure, function.UpvalueCount*8)
	return c
}

// newUpvalue allocates an open upvalue pointing at a stack slot.
func (vm *VM) newUpvalue(slot *Value) *ObjUpvalue {
	u := &ObjUpvalue{Location: slot, Closed: Nil}
	vm.allocateObject(&u.Obj, KindUpvalue, 0)
	return u
}

// newClass allocates an empty class.
func (vm *VM) newClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name}
	vm.allocateObject(&c.Obj, KindClass, 0)
	return c
}

// newInstance allocates an instance with an empty field table.
func (vm *VM) newInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class}
	vm.allocateObject(&i.Obj, KindInstance, 0)
	return i
}

// newBoundMethod pairs a receiver with a method closure.
func (vm *VM) newBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	vm.allocateObject(&b.Obj, KindBoundMethod, 0)
	return b
}
