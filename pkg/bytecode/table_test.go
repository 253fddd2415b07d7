package bytecode

import (
	"fmt"
	"testing"
)

func TestTableSetGet(t *testing.T) {
	vm, _, _ := newTestVM()
	var table Table

	key := vm.copyString("answer")
	if isNew := table.Set(key, FromFloat64(42)); !isNew {
		t.Error("first Set should report a new key")
	}
	if isNew := table.Set(key, FromFloat64(43)); isNew {
		t.Error("second Set should report an existing key")
	}

	got, ok := table.Get(key)
	if !ok {
		t.Fatal("Get missed an inserted key")
	}
	if !got.Equals(FromFloat64(43)) {
		t.Errorf("Get = %s, want 43", got)
	}
}

func TestTableGetMissing(t *testing.T) {
	vm, _, _ := newTestVM()
	var table Table

	if _, ok := table.Get(vm.copyString("absent")); ok {
		t.Error("Get on empty table should miss")
	}

	table.Set(vm.copyString("present"), True)
	if _, ok := table.Get(vm.copyString("absent")); ok {
		t.Error("Get should miss a key that was never inserted")
	}
}

func TestTableDeleteLeavesTombstone(t *testing.T) {
	vm, _, _ := newTestVM()
	var table Table

	// Force several keys so probe sequences can cross the deleted slot.
	keys := make([]*ObjString, 20)
	for i := range keys {
		keys[i] = vm.copyString(fmt.Sprintf("key%d", i))
		table.Set(keys[i], FromFloat64(float64(i)))
	}

	if !table.Delete(keys[7]) {
		t.Fatal("Delete missed an existing key")
	}
	if table.Delete(keys[7]) {
		t.Error("second Delete should miss")
	}
	if _, ok := table.Get(keys[7]); ok {
		t.Error("Get found a deleted key")
	}

	// Every other key must still be reachable despite the tombstone.
	for i, key := range keys {
		if i == 7 {
			continue
		}
		got, ok := table.Get(key)
		if !ok {
			t.Errorf("key%d lost after delete", i)
			continue
		}
		if !got.Equals(FromFloat64(float64(i))) {
			t.Errorf("key%d = %s, want %d", i, got, i)
		}
	}
}

func TestTableTombstoneReuse(t *testing.T) {
	vm, _, _ := newTestVM()
	var table Table

	key := vm.copyString("recycled")
	table.Set(key, FromFloat64(1))
	countAfterInsert := table.Count()

	table.Delete(key)
	if table.Count() != countAfterInsert {
		t.Error("Delete should not decrement count (tombstones count against load)")
	}

	// Reinserting lands on the tombstone without growing the count.
	table.Set(key, FromFloat64(2))
	if table.Count() != countAfterInsert {
		t.Errorf("count = %d after tombstone reuse, want %d", table.Count(), countAfterInsert)
	}
}

func TestTableGrowthKeepsEntries(t *testing.T) {
	vm, _, _ := newTestVM()
	var table Table

	const n = 100
	for i := 0; i < n; i++ {
		table.Set(vm.copyString(fmt.Sprintf("entry%d", i)), FromFloat64(float64(i)))
	}
	if table.Capacity()&(table.Capacity()-1) != 0 {
		t.Errorf("capacity %d is not a power of two", table.Capacity())
	}
	for i := 0; i < n; i++ {
		got, ok := table.Get(vm.copyString(fmt.Sprintf("entry%d", i)))
		if !ok || !got.Equals(FromFloat64(float64(i))) {
			t.Errorf("entry%d lost across growth", i)
		}
	}
}

func TestTableRehashDropsTombstones(t *testing.T) {
	vm, _, _ := newTestVM()
	var table Table

	for i := 0; i < 6; i++ {
		table.Set(vm.copyString(fmt.Sprintf("t%d", i)), True)
	}
	for i := 0; i < 6; i++ {
		table.Delete(vm.copyString(fmt.Sprintf("t%d", i)))
	}
	// Trigger growth; the rehash recomputes count from live entries.
	for i := 0; i < 6; i++ {
		table.Set(vm.copyString(fmt.Sprintf("u%d", i)), True)
	}

	if table.Count() > 12 {
		t.Errorf("count = %d, tombstones survived a rehash", table.Count())
	}
	for i := 0; i < 6; i++ {
		if _, ok := table.Get(vm.copyString(fmt.Sprintf("u%d", i))); !ok {
			t.Errorf("u%d lost across rehash", i)
		}
	}
}

func TestTableAddAll(t *testing.T) {
	vm, _, _ := newTestVM()
	var src, dst Table

	src.Set(vm.copyString("a"), FromFloat64(1))
	src.Set(vm.copyString("b"), FromFloat64(2))
	dst.Set(vm.copyString("b"), FromFloat64(99))
	dst.Set(vm.copyString("c"), FromFloat64(3))

	dst.AddAll(&src)

	expect := map[string]float64{"a": 1, "b": 2, "c": 3}
	for name, want := range expect {
		got, ok := dst.Get(vm.copyString(name))
		if !ok {
			t.Errorf("key %q missing after AddAll", name)
			continue
		}
		if !got.Equals(FromFloat64(want)) {
			t.Errorf("key %q = %s, want %v", name, got, want)
		}
	}
}

func TestTableFindString(t *testing.T) {
	vm, _, _ := newTestVM()

	s := vm.copyString("needle")
	// The intern table already holds every string made by copyString.
	found := vm.strings.FindString("needle", hashString("needle"))
	if found != s {
		t.Error("FindString should return the interned pointer")
	}
	if vm.strings.FindString("missing-needle", hashString("missing-needle")) != nil {
		t.Error("FindString should miss unknown content")
	}
}
