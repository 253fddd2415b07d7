package bytecode

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleChunk returns a human-readable bytecode listing with a name
// header, the constant pool, and one line per instruction.
func DisassembleChunk(c *Chunk, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)

	if len(c.Constants) > 0 {
		sb.WriteString("; constants:\n")
		for i, constant := range c.Constants {
			display := constant.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			fmt.Fprintf(&sb, ";   [%3d] %s\n", i, display)
		}
	}

	for offset := 0; offset < len(c.Code); {
		text, next := disassembleInstruction(c, offset)
		sb.WriteString(text)
		offset = next
	}
	return sb.String()
}

// disassembleInstruction renders the instruction at offset and returns the
// offset of the next one.
func disassembleInstruction(c *Chunk, offset int) (string, int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if offset > 0 && c.Line(offset) == c.Line(offset-1) {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", c.Line(offset))
	}

	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)

	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal,
		OpGetProperty, OpSetProperty, OpGetSuper, OpClass, OpMethod:
		idx := c.Code[offset+1]
		fmt.Fprintf(&sb, "%-16s %4d '%s'\n", info.Name, idx, c.Constants[idx])
		return sb.String(), offset + 2

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		fmt.Fprintf(&sb, "%-16s %4d\n", info.Name, c.Code[offset+1])
		return sb.String(), offset + 2

	case OpInvoke, OpSuperInvoke:
		idx := c.Code[offset+1]
		argc := c.Code[offset+2]
		fmt.Fprintf(&sb, "%-16s (%d args) %4d '%s'\n", info.Name, argc, idx, c.Constants[idx])
		return sb.String(), offset + 3

	case OpJump, OpJumpIfFalse:
		jump := int(c.ReadUint16(offset + 1))
		fmt.Fprintf(&sb, "%-16s %4d -> %d\n", info.Name, offset, offset+3+jump)
		return sb.String(), offset + 3

	case OpLoop:
		jump := int(c.ReadUint16(offset + 1))
		fmt.Fprintf(&sb, "%-16s %4d -> %d\n", info.Name, offset, offset+3-jump)
		return sb.String(), offset + 3

	case OpClosure:
		next := offset + 1
		idx := c.Code[next]
		next++
		fn := c.Constants[idx].AsFunction()
		fmt.Fprintf(&sb, "%-16s %4d %s\n", info.Name, idx, c.Constants[idx])
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.Code[next]
			index := c.Code[next+1]
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			fmt.Fprintf(&sb, "%04d      |                     %s %d\n", next, kind, index)
			next += 2
		}
		return sb.String(), next

	default:
		if info.OperandLen <= 0 {
			fmt.Fprintf(&sb, "%s\n", info.Name)
			return sb.String(), offset + 1
		}
		fmt.Fprintf(&sb, "%-16s", info.Name)
		for i := 1; i <= info.OperandLen; i++ {
			fmt.Fprintf(&sb, " %d", c.Code[offset+i])
		}
		sb.WriteByte('\n')
		return sb.String(), offset + 1 + info.OperandLen
	}
}
