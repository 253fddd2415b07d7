package bytecode

import (
	"math"
	"testing"
)

func TestValueNumberRoundTrip(t *testing.T) {
	tests := []float64{0, 1, -1, 3.14, -2.5, 1e300, -1e-300, math.MaxFloat64, math.Inf(1), math.Inf(-1)}
	for _, f := range tests {
		v := FromFloat64(f)
		if !v.IsNumber() {
			t.Errorf("FromFloat64(%g): not a number", f)
		}
		if v.Float64() != f {
			t.Errorf("FromFloat64(%g).Float64() = %g", f, v.Float64())
		}
	}
}

func TestValueNaNIsStillANumber(t *testing.T) {
	v := FromFloat64(math.NaN())
	if !v.IsNumber() {
		t.Error("a real NaN must remain a number under NaN-boxing")
	}
	if v.IsObject() || v.IsNil() || v.IsBool() {
		t.Error("NaN misclassified as a tagged value")
	}
}

func TestValueSpecials(t *testing.T) {
	if !Nil.IsNil() || Nil.IsBool() || Nil.IsNumber() || Nil.IsObject() {
		t.Error("Nil misclassified")
	}
	if !True.IsBool() || !False.IsBool() {
		t.Error("booleans misclassified")
	}
	if True == False || True == Nil || False == Nil {
		t.Error("special values must be distinct")
	}
	if !True.Bool() || False.Bool() {
		t.Error("Bool() decoded wrong")
	}
}

func TestValueFalseyness(t *testing.T) {
	if !Nil.IsFalsey() || !False.IsFalsey() {
		t.Error("nil and false are falsey")
	}
	if True.IsFalsey() || FromFloat64(0).IsFalsey() {
		t.Error("true and 0 are truthy")
	}
}

func TestValueEquals(t *testing.T) {
	vm, _, _ := newTestVM()
	abc := StringValue(vm.copyString("abc"))
	abc2 := StringValue(vm.copyString("abc"))
	other := StringValue(vm.copyString("other"))

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal numbers", FromFloat64(2), FromFloat64(2), true},
		{"unequal numbers", FromFloat64(2), FromFloat64(3), false},
		{"NaN unequal to itself", FromFloat64(math.NaN()), FromFloat64(math.NaN()), false},
		{"nil equals nil", Nil, Nil, true},
		{"true equals true", True, True, true},
		{"true vs false", True, False, false},
		{"number vs string never coerces", FromFloat64(1), abc, false},
		{"number vs nil", FromFloat64(0), Nil, false},
		{"interned strings", abc, abc2, true},
		{"different strings", abc, other, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equals(tc.b); got != tc.want {
				t.Errorf("Equals = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValueObjectBoxing(t *testing.T) {
	vm, _, _ := newTestVM()
	s := vm.copyString("boxed")
	v := StringValue(s)

	if !v.IsObject() || !v.IsString() {
		t.Fatal("boxed string misclassified")
	}
	if v.AsString() != s {
		t.Error("unboxing returned a different pointer")
	}
	if v.ObjKind() != KindString {
		t.Errorf("kind = %v, want string", v.ObjKind())
	}
}

func TestValueStringForms(t *testing.T) {
	vm, _, _ := newTestVM()
	fn := vm.newFunction()
	fn.Name = vm.copyString("f")
	script := vm.newFunction()

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"nil", Nil, "nil"},
		{"true", True, "true"},
		{"false", False, "false"},
		{"integer", FromFloat64(3), "3"},
		{"negative zero point five", FromFloat64(-0.5), "-0.5"},
		{"string", StringValue(vm.copyString("raw")), "raw"},
		{"named function", FunctionValue(fn), "<fn f>"},
		{"script function", FunctionValue(script), "<script>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.v.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{3, "3"},
		{3.5, "3.5"},
		{-7, "-7"},
		{0, "0"},
		{9007199254740992, "9007199254740992"},   // 2^53
		{-9007199254740992, "-9007199254740992"}, // -2^53
		{0.1, "0.1"},
		{1.0 / 3.0, "0.3333333333333333"},
	}
	for _, tc := range tests {
		if got := formatNumber(tc.f); got != tc.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tc.f, got, tc.want)
		}
	}
}
