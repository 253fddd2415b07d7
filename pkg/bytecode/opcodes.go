package bytecode

import "fmt"

// Opcode represents a bytecode instruction. Operand bytes follow the opcode
// immediately; jump offsets are big-endian u16.
type Opcode byte

const (
	// Constants and literals
	OpConstant Opcode = iota // OpConstant <const:u8>
	OpNil
	OpTrue
	OpFalse

	// Stack manipulation
	OpPop

	// Variable access
	OpGetLocal     // OpGetLocal <slot:u8>
	OpSetLocal     // OpSetLocal <slot:u8>
	OpGetGlobal    // OpGetGlobal <name:u8>
	OpDefineGlobal // OpDefineGlobal <name:u8>
	OpSetGlobal    // OpSetGlobal <name:u8>
	OpGetUpvalue   // OpGetUpvalue <up:u8>
	OpSetUpvalue   // OpSetUpvalue <up:u8>

	// Properties
	OpGetProperty // OpGetProperty <name:u8>
	OpSetProperty // OpSetProperty <name:u8>
	OpGetSuper    // OpGetSuper <name:u8>

	// Comparison
	OpEqual
	OpGreater
	OpLess

	// Arithmetic
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate

	// Output
	OpPrint

	// Control flow
	OpJump        // OpJump <offset:u16>
	OpJumpIfFalse // OpJumpIfFalse <offset:u16>, peeks the condition
	OpLoop        // OpLoop <offset:u16>, backward

	// Calls
	OpCall        // OpCall <argc:u8>
	OpInvoke      // OpInvoke <name:u8> <argc:u8>
	OpSuperInvoke // OpSuperInvoke <name:u8> <argc:u8>

	// Closures
	OpClosure      // OpClosure <fn:u8> then (isLocal:u8, index:u8) per upvalue
	OpCloseUpvalue // close the open upvalue for the top slot, then pop

	OpReturn

	// Classes
	OpClass   // OpClass <name:u8>
	OpInherit // copy superclass methods into subclass
	OpMethod  // OpMethod <name:u8>
)

// OperandLenVariable marks an opcode whose operand length depends on its
// constant operand (OpClosure trails two bytes per upvalue).
const OperandLenVariable = -1

// StackEffectVariable marks an opcode whose net stack effect depends on an
// operand (calls) or on runtime state (return).
const StackEffectVariable = -128

// OpcodeInfo provides metadata about each opcode for the disassembler and
// for validation tests.
type OpcodeInfo struct {
	Name        string // Human-readable name
	OperandLen  int    // Operand bytes following the opcode, or OperandLenVariable
	StackEffect int    // Net stack effect, or StackEffectVariable
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpConstant:     {"CONSTANT", 1, 1},
	OpNil:          {"NIL", 0, 1},
	OpTrue:         {"TRUE", 0, 1},
	OpFalse:        {"FALSE", 0, 1},
	OpPop:          {"POP", 0, -1},
	OpGetLocal:     {"GET_LOCAL", 1, 1},
	OpSetLocal:     {"SET_LOCAL", 1, 0},
	OpGetGlobal:    {"GET_GLOBAL", 1, 1},
	OpDefineGlobal: {"DEFINE_GLOBAL", 1, -1},
	OpSetGlobal:    {"SET_GLOBAL", 1, 0},
	OpGetUpvalue:   {"GET_UPVALUE", 1, 1},
	OpSetUpvalue:   {"SET_UPVALUE", 1, 0},
	OpGetProperty:  {"GET_PROPERTY", 1, 0},
	OpSetProperty:  {"SET_PROPERTY", 1, -1},
	OpGetSuper:     {"GET_SUPER", 1, -1},
	OpEqual:        {"EQUAL", 0, -1},
	OpGreater:      {"GREATER", 0, -1},
	OpLess:         {"LESS", 0, -1},
	OpAdd:          {"ADD", 0, -1},
	OpSubtract:     {"SUBTRACT", 0, -1},
	OpMultiply:     {"MULTIPLY", 0, -1},
	OpDivide:       {"DIVIDE", 0, -1},
	OpNot:          {"NOT", 0, 0},
	OpNegate:       {"NEGATE", 0, 0},
	OpPrint:        {"PRINT", 0, -1},
	OpJump:         {"JUMP", 2, 0},
	OpJumpIfFalse:  {"JUMP_IF_FALSE", 2, 0},
	OpLoop:         {"LOOP", 2, 0},
	OpCall:         {"CALL", 1, StackEffectVariable},
	OpInvoke:       {"INVOKE", 2, StackEffectVariable},
	OpSuperInvoke:  {"SUPER_INVOKE", 2, StackEffectVariable},
	OpClosure:      {"CLOSURE", OperandLenVariable, 1},
	OpCloseUpvalue: {"CLOSE_UPVALUE", 0, -1},
	OpReturn:       {"RETURN", 0, StackEffectVariable},
	OpClass:        {"CLASS", 1, 1},
	OpInherit:      {"INHERIT", 0, -1},
	OpMethod:       {"METHOD", 1, -1},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
