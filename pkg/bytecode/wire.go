package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Wire format: "LXBC" compiled-function container
//
// A compiled top-level function, with every nested function reachable from
// its constant pool, serializes to a canonical CBOR document. The container
// is what .loxc files and the chunk cache store; deserialization re-interns
// every string through the target VM so the interning invariant holds for
// loaded code.
// ---------------------------------------------------------------------------

// WireVersion is the current container format version.
// Increment when making incompatible changes to the format.
const WireVersion uint16 = 1

// WireMagic identifies Lox bytecode containers.
const WireMagic = "LXBC"

// cborEncMode uses canonical encoding for deterministic output, so equal
// functions serialize to equal bytes (the cache keys on content).
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Constant kinds in the wire encoding.
const (
	wireKindNil uint8 = iota
	wireKindTrue
	wireKindFalse
	wireKindNumber
	wireKindString
	wireKindFunction
)

type wireConstant struct {
	Kind uint8         `cbor:"k"`
	Num  float64       `cbor:"n,omitempty"`
	Str  string        `cbor:"s,omitempty"`
	Fn   *wireFunction `cbor:"f,omitempty"`
}

type wireFunction struct {
	Name         string         `cbor:"name"`
	Arity        int            `cbor:"arity"`
	UpvalueCount int            `cbor:"upvalues"`
	Code         []byte         `cbor:"code"`
	Lines        []int          `cbor:"lines"`
	Constants    []wireConstant `cbor:"consts"`
}

type wireContainer struct {
	Magic    string       `cbor:"magic"`
	Version  uint16       `cbor:"version"`
	Function wireFunction `cbor:"fn"`
}

// EncodeFunction serializes a compiled function tree to the LXBC container.
func EncodeFunction(fn *ObjFunction) ([]byte, error) {
	wf, err := encodeFunction(fn)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(wireContainer{
		Magic:    WireMagic,
		Version:  WireVersion,
		Function: *wf,
	})
}

func encodeFunction(fn *ObjFunction) (*wireFunction, error) {
	wf := &wireFunction{
		Arity:        fn.Arity,
		UpvalueCount: fn.UpvalueCount,
		Code:         fn.Chunk.Code,
		Lines:        fn.Chunk.Lines,
	}
	if fn.Name != nil {
		wf.Name = fn.Name.Chars
	}

	for i, constant := range fn.Chunk.Constants {
		wc, err := encodeConstant(constant)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		wf.Constants = append(wf.Constants, wc)
	}
	return wf, nil
}

func encodeConstant(v Value) (wireConstant, error) {
	switch {
	case v == Nil:
		return wireConstant{Kind: wireKindNil}, nil
	case v == True:
		return wireConstant{Kind: wireKindTrue}, nil
	case v == False:
		return wireConstant{Kind: wireKindFalse}, nil
	case v.IsNumber():
		return wireConstant{Kind: wireKindNumber, Num: v.Float64()}, nil
	case v.IsString():
		return wireConstant{Kind: wireKindString, Str: v.AsString().Chars}, nil
	case v.IsFunction():
		wf, err := encodeFunction(v.AsFunction())
		if err != nil {
			return wireConstant{}, err
		}
		return wireConstant{Kind: wireKindFunction, Fn: wf}, nil
	default:
		return wireConstant{}, fmt.Errorf("value %s cannot appear in a constant pool", v)
	}
}

// DecodeFunction deserializes an LXBC container into the VM's heap. Strings
// are interned and every function is allocated through the VM so the loaded
// code participates in collection like compiled code.
func (vm *VM) DecodeFunction(data []byte) (*ObjFunction, error) {
	var container wireContainer
	if err := cbor.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("decoding container: %w", err)
	}
	if container.Magic != WireMagic {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", WireMagic, container.Magic)
	}
	if container.Version > WireVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", container.Version, WireVersion)
	}
	return vm.decodeFunction(&container.Function)
}

func (vm *VM) decodeFunction(wf *wireFunction) (*ObjFunction, error) {
	if len(wf.Code) != len(wf.Lines) {
		return nil, fmt.Errorf("corrupt function %q: %d code bytes but %d lines", wf.Name, len(wf.Code), len(wf.Lines))
	}

	fn := vm.newFunction()
	// Root the function while its constants allocate.
	vm.push(FunctionValue(fn))
	defer vm.pop()

	fn.Arity = wf.Arity
	fn.UpvalueCount = wf.UpvalueCount
	fn.Chunk.Code = append([]byte(nil), wf.Code...)
	fn.Chunk.Lines = append([]int(nil), wf.Lines...)
	if wf.Name != "" {
		fn.Name = vm.copyString(wf.Name)
	}

	for i, wc := range wf.Constants {
		value, err := vm.decodeConstant(wc)
		if err != nil {
			return nil, fmt.Errorf("function %q constant %d: %w", wf.Name, i, err)
		}
		fn.Chunk.Constants = append(fn.Chunk.Constants, value)
	}
	return fn, nil
}

func (vm *VM) decodeConstant(wc wireConstant) (Value, error) {
	switch wc.Kind {
	case wireKindNil:
		return Nil, nil
	case wireKindTrue:
		return True, nil
	case wireKindFalse:
		return False, nil
	case wireKindNumber:
		return FromFloat64(wc.Num), nil
	case wireKindString:
		return StringValue(vm.copyString(wc.Str)), nil
	case wireKindFunction:
		if wc.Fn == nil {
			return Nil, fmt.Errorf("function constant with no body")
		}
		fn, err := vm.decodeFunction(wc.Fn)
		if err != nil {
			return Nil, err
		}
		return FunctionValue(fn), nil
	default:
		return Nil, fmt.Errorf("unknown constant kind %d", wc.Kind)
	}
}
