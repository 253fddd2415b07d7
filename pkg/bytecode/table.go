package bytecode

// ---------------------------------------------------------------------------
// Table: open-addressed hash table with tombstones
//
// The single associative container used for globals, the string intern
// table, class method tables, and instance fields. Keys are interned
// strings, so key comparison is pointer equality. Capacity is always a
// power of two; probing is linear. A deleted slot leaves a tombstone
// (nil key, true value) so probe sequences stay intact; count tracks live
// entries plus tombstones.
// ---------------------------------------------------------------------------

const tableMaxLoad = 0.75

// Entry is a single table slot. An empty slot has a nil key and nil value;
// a tombstone has a nil key and true value.
type Entry struct {
	Key   *ObjString
	Value Value
}

// Table maps interned strings to values.
type Table struct {
	count   int // live entries + tombstones
	entries []Entry
}

// Count returns the number of live entries plus tombstones.
func (t *Table) Count() int { return t.count }

// Capacity returns the current slot count.
func (t *Table) Capacity() int { return len(t.entries) }

// findEntry locates the slot for key: either the occupied slot holding it,
// or the slot an insertion should use (the first tombstone on the probe
// path if any, else the terminating empty slot).
func findEntry(entries []Entry, key *ObjString) *Entry {
	index := int(key.Hash) & (len(entries) - 1)
	var tombstone *Entry
	for {
		entry := &entries[index]
		if entry.Key == nil {
			if entry.Value == Nil {
				// Empty slot terminates the probe.
				if tombstone != nil {
					return tombstone
				}
				return entry
			}
			// Tombstone: remember the first one and keep probing.
			if tombstone == nil {
				tombstone = entry
			}
		} else if entry.Key == key {
			return entry
		}
		index = (index + 1) & (len(entries) - 1)
	}
}

// Get looks up key. The second return is false if the key is absent.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return Nil, false
	}
	entry := findEntry(t.entries, key)
	if entry.Key == nil {
		return Nil, false
	}
	return entry.Value, true
}

// Set inserts or updates key. Returns true if the key was new.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}
	entry := findEntry(t.entries, key)
	isNew := entry.Key == nil
	if isNew && entry.Value == Nil {
		// Reusing a tombstone does not grow the count.
		t.count++
	}
	entry.Key = key
	entry.Value = value
	return isNew
}

// Delete removes key, leaving a tombstone. Returns false if absent.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}
	entry := findEntry(t.entries, key)
	if entry.Key == nil {
		return false
	}
	entry.Key = nil
	entry.Value = True
	return true
}

// AddAll copies every entry of src into t. Used by OP_INHERIT to flatten
// the superclass method table into the subclass.
func (t *Table) AddAll(src *Table) {
	for i := range src.entries {
		entry := &src.entries[i]
		if entry.Key != nil {
			t.Set(entry.Key, entry.Value)
		}
	}
}

// FindString probes by content instead of pointer identity. Only the intern
// table uses it: it is how a new string discovers an existing equal one.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	index := int(hash) & (len(t.entries) - 1)
	for {
		entry := &t.entries[index]
		if entry.Key == nil {
			// A truly empty slot terminates; tombstones do not.
			if entry.Value == Nil {
				return nil
			}
		} else if len(entry.Key.Chars) == len(chars) &&
			entry.Key.Hash == hash &&
			entry.Key.Chars == chars {
			return entry.Key
		}
		index = (index + 1) & (len(t.entries) - 1)
	}
}

// removeWhite deletes every entry whose key string is unmarked. The
// collector calls this on the intern table between marking and sweeping so
// interning does not keep dead strings alive.
func (t *Table) removeWhite() {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key != nil && !entry.Key.marked {
			t.Delete(entry.Key)
		}
	}
}

// adjustCapacity rehashes into a fresh array, dropping tombstones and
// recomputing count.
func (t *Table) adjustCapacity(capacity int) {
	entries := make([]Entry, capacity)
	for i := range entries {
		entries[i].Value = Nil
	}

	count := 0
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key == nil {
			continue
		}
		dest := findEntry(entries, entry.Key)
		dest.Key = entry.Key
		dest.Value = entry.Value
		count++
	}

	t.entries = entries
	t.count = count
}

// growCapacity doubles a capacity, starting at 8.
func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}
