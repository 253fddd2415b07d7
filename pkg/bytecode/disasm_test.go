package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleSimpleChunk(t *testing.T) {
	vm, _, _ := newTestVM()
	fn, err := vm.Compile("print 1 + 2;")
	if err != nil {
		t.Fatal(err)
	}

	listing := DisassembleChunk(&fn.Chunk, "<script>")
	for _, want := range []string{"== <script> ==", "CONSTANT", "ADD", "PRINT", "RETURN"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleShowsConstantOperands(t *testing.T) {
	vm, _, _ := newTestVM()
	fn, err := vm.Compile(`var greeting = "hello";`)
	if err != nil {
		t.Fatal(err)
	}

	listing := DisassembleChunk(&fn.Chunk, "<script>")
	if !strings.Contains(listing, "'hello'") {
		t.Errorf("constant operand not rendered:\n%s", listing)
	}
	if !strings.Contains(listing, "DEFINE_GLOBAL") || !strings.Contains(listing, "'greeting'") {
		t.Errorf("global name not rendered:\n%s", listing)
	}
}

func TestDisassembleJumpTargets(t *testing.T) {
	vm, _, _ := newTestVM()
	fn, err := vm.Compile("if (true) print 1; else print 2;")
	if err != nil {
		t.Fatal(err)
	}

	listing := DisassembleChunk(&fn.Chunk, "<script>")
	if !strings.Contains(listing, "JUMP_IF_FALSE") || !strings.Contains(listing, "->") {
		t.Errorf("jump targets not rendered:\n%s", listing)
	}
}

func TestDisassembleClosureUpvalues(t *testing.T) {
	vm, _, _ := newTestVM()
	fn, err := vm.Compile(`
fun outer() {
  var captured = 1;
  fun inner() { return captured; }
  return inner;
}
`)
	if err != nil {
		t.Fatal(err)
	}

	var outer *ObjFunction
	for _, c := range fn.Chunk.Constants {
		if c.IsFunction() && c.AsFunction().Name.Chars == "outer" {
			outer = c.AsFunction()
		}
	}
	if outer == nil {
		t.Fatal("outer function not found in constants")
	}

	listing := DisassembleChunk(&outer.Chunk, "outer")
	if !strings.Contains(listing, "CLOSURE") {
		t.Errorf("closure instruction missing:\n%s", listing)
	}
	if !strings.Contains(listing, "local 1") {
		t.Errorf("upvalue descriptor not rendered:\n%s", listing)
	}
}

func TestDisassembleCoversEveryOffset(t *testing.T) {
	vm, _, _ := newTestVM()
	fn, err := vm.Compile(`
class C { m() { return this; } }
var c = C();
c.m();
for (var i = 0; i < 2; i = i + 1) print i;
`)
	if err != nil {
		t.Fatal(err)
	}

	// The decoder must advance through every instruction without getting
	// stuck or running past the end.
	for offset := 0; offset < len(fn.Chunk.Code); {
		_, next := disassembleInstruction(&fn.Chunk, offset)
		if next <= offset {
			t.Fatalf("disassembler did not advance at offset %d", offset)
		}
		offset = next
	}
}
