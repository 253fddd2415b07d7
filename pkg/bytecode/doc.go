// Package bytecode provides a single-pass compiler and stack-based virtual
// machine for the Lox scripting language. Source text is compiled directly
// to compact bytecode which a register-less interpreter executes with
// automatic memory management.
//
// The bytecode format is designed for:
//   - Compact representation (typically 1-3 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, simple operand formats)
//   - Easy serialization (chunks can be stored in SQLite or written to
//     .loxc files using the "LXBC" CBOR container, see wire.go)
//
// # Architecture Overview
//
// The engine consists of several tightly-coupled components:
//
//   - Value: a NaN-boxed 64-bit word. Doubles are stored natively; nil,
//     booleans, and heap pointers are encoded in the quiet-NaN space.
//
//   - Chunk: a compiled bytecode unit containing code bytes, a parallel
//     line-number array, and a constant pool.
//
//   - Compiler: a single-pass Pratt parser that consumes tokens from
//     the compiler package's lexer and emits bytecode directly, resolving
//     locals, upvalues, and globals as it goes. Forward jumps are emitted
//     with placeholder offsets and backpatched.
//
//   - VM: a stack interpreter with a fixed frame stack, a call protocol
//     covering closures, natives, classes, and bound methods, and an open
//     upvalue list for closure capture.
//
//   - GC: a stop-the-world mark-and-sweep collector with an explicit gray
//     worklist. Every allocation is a safepoint; the intern table holds
//     weak references that are pruned before sweep.
//
// # Closure Semantics
//
// Variables are captured by reference. Each captured stack slot has exactly
// one Upvalue object; every closure over the slot shares it. When the slot
// leaves the stack the upvalue is closed: the value is copied into the
// upvalue's own storage and later reads and writes go there.
package bytecode
