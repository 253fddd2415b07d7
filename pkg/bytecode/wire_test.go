package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

const wireTestProgram = `
fun greet(name) { return "hello, " + name; }
class Greeter {
  init(word) { this.word = word; }
  say() { print this.word; }
}
print greet("world");
Greeter("hi").say();
print 1 + 2 * 3;
`

func TestWireRoundTripProducesSameOutput(t *testing.T) {
	vm1, _, _ := newTestVM()
	fn, err := vm1.Compile(wireTestProgram)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	encoded, err := EncodeFunction(fn)
	if err != nil {
		t.Fatalf("EncodeFunction: %v", err)
	}

	// Run the original.
	var directOut bytes.Buffer
	vm1.Stdout = &directOut
	if result := vm1.InterpretFunction(fn); result != ResultOK {
		t.Fatalf("direct run failed: %v", result)
	}

	// Decode into a completely fresh VM and run the loaded copy.
	vm2, loadedOut, errOut := newTestVM()
	loaded, err := vm2.DecodeFunction(encoded)
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	if result := vm2.InterpretFunction(loaded); result != ResultOK {
		t.Fatalf("loaded run failed\nstderr: %s", errOut)
	}

	if directOut.String() != loadedOut.String() {
		t.Errorf("loaded output %q differs from direct output %q", loadedOut.String(), directOut.String())
	}
}

func TestWireEncodingIsDeterministic(t *testing.T) {
	vm, _, _ := newTestVM()
	fn, err := vm.Compile(`print "stable";`)
	if err != nil {
		t.Fatal(err)
	}

	a, err := EncodeFunction(fn)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeFunction(fn)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("canonical encoding produced different bytes for the same function")
	}
}

func TestWireDecodedStringsAreInterned(t *testing.T) {
	vm1, _, _ := newTestVM()
	fn, err := vm1.Compile(`var a = "shared"; var b = "shared"; print a == b;`)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := EncodeFunction(fn)
	if err != nil {
		t.Fatal(err)
	}

	vm2, out, _ := newTestVM()
	loaded, err := vm2.DecodeFunction(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if result := vm2.InterpretFunction(loaded); result != ResultOK {
		t.Fatal("loaded run failed")
	}
	if out.String() != "true\n" {
		t.Errorf("string identity after decode = %q, want true", out.String())
	}
}

func TestWireDecodeRejectsBadMagic(t *testing.T) {
	vm, _, _ := newTestVM()
	// A valid CBOR document with the wrong magic.
	data, err := cborEncMode.Marshal(wireContainer{Magic: "NOPE", Version: WireVersion})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vm.DecodeFunction(data); err == nil || !strings.Contains(err.Error(), "magic") {
		t.Errorf("err = %v, want magic error", err)
	}
}

func TestWireDecodeRejectsNewerVersion(t *testing.T) {
	vm, _, _ := newTestVM()
	data, err := cborEncMode.Marshal(wireContainer{Magic: WireMagic, Version: WireVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vm.DecodeFunction(data); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("err = %v, want version error", err)
	}
}

func TestWireDecodeRejectsGarbage(t *testing.T) {
	vm, _, _ := newTestVM()
	if _, err := vm.DecodeFunction([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Error("garbage decoded without error")
	}
}

func TestWireDecodeRejectsMismatchedLines(t *testing.T) {
	vm, _, _ := newTestVM()
	data, err := cborEncMode.Marshal(wireContainer{
		Magic:   WireMagic,
		Version: WireVersion,
		Function: wireFunction{
			Code:  []byte{byte(OpNil), byte(OpReturn)},
			Lines: []int{1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vm.DecodeFunction(data); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("err = %v, want corrupt-function error", err)
	}
}
