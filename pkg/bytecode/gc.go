package bytecode

import (
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// GC: stop-the-world mark-and-sweep with an explicit gray worklist
//
// Collection runs inside the allocation choke point, so every allocation is
// a safepoint: any heap value the compiler or VM holds only in Go locals
// across an allocation must first be rooted (pushed on the value stack,
// stored in a chunk, or linked from the compiler chain). The intern table
// is weak: unmarked strings are pruned from it before sweep so interning
// never keeps a dead string alive.
// ---------------------------------------------------------------------------

var gcLog = commonlog.GetLogger("lox.gc")

// adjustAllocated is the single accounting choke point. Growth may trigger
// a collection; the frees issued by sweep pass back through here with
// negative deltas and never re-trigger.
func (vm *VM) adjustAllocated(delta int) {
	vm.bytesAllocated += delta
	if delta <= 0 {
		return
	}
	if vm.StressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

// collectGarbage runs a full mark-sweep cycle and adjusts the next
// collection threshold.
func (vm *VM) collectGarbage() {
	var start time.Time
	var before int
	if vm.LogGC {
		start = time.Now()
		before = vm.bytesAllocated
		gcLog.Debug("gc begin")
	}

	vm.markRoots()
	vm.traceReferences()
	vm.strings.removeWhite()
	vm.sweep()

	vm.nextGC = vm.bytesAllocated * vm.HeapGrowFactor

	if vm.LogGC {
		gcLog.Infof("gc end: collected %d bytes (from %d to %d), next at %d, took %s",
			before-vm.bytesAllocated, before, vm.bytesAllocated, vm.nextGC, time.Since(start))
	}
}

// ---------------------------------------------------------------------------
// Mark phase
// ---------------------------------------------------------------------------

func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}

	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(&vm.frames[i].closure.Obj)
	}

	for upvalue := vm.openUpvalues; upvalue != nil; upvalue = upvalue.Next {
		vm.markObject(&upvalue.Obj)
	}

	vm.markTable(&vm.globals)
	vm.markCompilerRoots()
	if vm.initString != nil {
		vm.markObject(&vm.initString.Obj)
	}
}

// markCompilerRoots walks the enclosing-compiler chain, marking every
// function under construction. Compilation allocates (strings, functions),
// so a collection can land mid-compile.
func (vm *VM) markCompilerRoots() {
	c := vm.compilingChain
	if c == nil {
		return
	}
	for fc := c.fc; fc != nil; fc = fc.enclosing {
		vm.markObject(&fc.function.Obj)
	}
}

func (vm *VM) markValue(v Value) {
	if v.IsObject() {
		vm.markObject(v.asObj())
	}
}

// markObject grays an object: marked and queued for tracing.
func (vm *VM) markObject(o *Obj) {
	if o == nil || o.marked {
		return
	}
	o.marked = true
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) markTable(t *Table) {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key != nil {
			vm.markObject(&entry.Key.Obj)
		}
		vm.markValue(entry.Value)
	}
}

// traceReferences drains the gray stack, blackening one object at a time.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		o := vm.grayStack[len(vm.grayStack)-1]
		vm.grayStack = vm.grayStack[:len(vm.grayStack)-1]
		vm.blackenObject(o)
	}
}

// blackenObject marks everything an object references. Strings and natives
// have no outgoing references.
func (vm *VM) blackenObject(o *Obj) {
	switch o.kind {
	case KindString, KindNative:
		// No outgoing references.

	case KindFunction:
		fn := (*ObjFunction)(objPtr(o))
		if fn.Name != nil {
			vm.markObject(&fn.Name.Obj)
		}
		for _, constant := range fn.Chunk.Constants {
			vm.markValue(constant)
		}

	case KindClosure:
		closure := (*ObjClosure)(objPtr(o))
		vm.markObject(&closure.Function.Obj)
		for _, upvalue := range closure.Upvalues {
			if upvalue != nil {
				vm.markObject(&upvalue.Obj)
			}
		}

	case KindUpvalue:
		// Safe for open upvalues too: Closed is nil until closure.
		vm.markValue((*ObjUpvalue)(objPtr(o)).Closed)

	case KindClass:
		class := (*ObjClass)(objPtr(o))
		vm.markObject(&class.Name.Obj)
		vm.markTable(&class.Methods)

	case KindInstance:
		instance := (*ObjInstance)(objPtr(o))
		vm.markObject(&instance.Class.Obj)
		vm.markTable(&instance.Fields)

	case KindBoundMethod:
		bound := (*ObjBoundMethod)(objPtr(o))
		vm.markValue(bound.Receiver)
		vm.markObject(&bound.Method.Obj)
	}
}

// ---------------------------------------------------------------------------
// Sweep phase
// ---------------------------------------------------------------------------

// sweep unlinks every unmarked object from the all-objects chain, releasing
// it to the host allocator, and clears the mark on survivors.
func (vm *VM) sweep() {
	var prev *Obj
	object := vm.objects
	for object != nil {
		if object.marked {
			object.marked = false
			prev = object
			object = object.next
			continue
		}

		unreached := object
		object = object.next
		if prev == nil {
			vm.objects = object
		} else {
			prev.next = object
		}
		vm.freeObject(unreached)
	}
}

// freeObject uncharges an object's accounted bytes. The host allocator
// reclaims the memory once the object is unlinked.
func (vm *VM) freeObject(o *Obj) {
	o.next = nil
	vm.adjustAllocated(-vm.sizeOfObject(o))
}

// sizeOfObject mirrors the charges made at allocation time.
func (vm *VM) sizeOfObject(o *Obj) int {
	size := objSizes[o.kind]
	switch o.kind {
	case KindString:
		size += len((*ObjString)(objPtr(o)).Chars)
	case KindClosure:
		size += (*ObjClosure)(objPtr(o)).Function.UpvalueCount * 8
	}
	return size
}

// SetInitialThreshold sets the heap size in bytes that triggers the first
// collection. Call it right after NewVM, before running code: once a cycle
// has run, the threshold is owned by the grow-factor adjustment and a later
// call only takes effect until the next cycle recomputes it.
func (vm *VM) SetInitialThreshold(bytes int) {
	if bytes <= 0 {
		return
	}
	vm.nextGC = bytes
}

// BytesAllocated returns the engine's current accounted heap size.
func (vm *VM) BytesAllocated() int { return vm.bytesAllocated }

// CountObjects walks the all-objects chain. Test and diagnostics hook.
func (vm *VM) CountObjects() int {
	n := 0
	for o := vm.objects; o != nil; o = o.next {
		n++
	}
	return n
}
