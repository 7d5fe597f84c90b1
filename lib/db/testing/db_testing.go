package testing

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"sync"
	"testing"
)

// EngineFactory creates a new, empty engine for one test
type EngineFactory func(t *testing.T) db.Engine

// RunEngineTests runs the conformance test suite for a db.Engine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("GetBatch", func(t *testing.T) {
			testGetBatch(t, factory(t))
		})

		t.Run("SeekForward", func(t *testing.T) {
			testSeekForward(t, factory(t))
		})

		t.Run("SeekReverse", func(t *testing.T) {
			testSeekReverse(t, factory(t))
		})

		t.Run("EmptyMap", func(t *testing.T) {
			testEmptyMap(t, factory(t))
		})

		t.Run("Maps", func(t *testing.T) {
			testMaps(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("Leases", func(t *testing.T) {
			testLeases(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// openMap opens a map or fails the test
func openMap(t testing.TB, engine db.Engine, name string) db.Map {
	t.Helper()
	m, err := engine.Open(name)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", name, err)
	}
	return m
}

// put stores all pairs (key, value, key, value, ...) or fails the test
func put(t testing.TB, m db.Map, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := m.Put([]byte(kv[i]), []byte(kv[i+1])); err != nil {
			t.Fatalf("Put(%q) failed: %v", kv[i], err)
		}
	}
}

// collect walks the iterator from its current position and closes it
func collect(t testing.TB, it db.Iterator) []string {
	t.Helper()
	defer it.Close()

	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Errorf("iterator error: %v", err)
	}
	return keys
}

// seek creates an iterator, seeks and returns the collected keys
func seek(t testing.TB, m db.Map, dir db.Direction, from []byte) []string {
	t.Helper()
	it, err := m.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	it.Seek(dir, from)
	return collect(t, it)
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// closeEngine closes the engine and fails the test on error (e.g. leaked handles)
func closeEngine(t testing.TB, engine db.Engine) {
	t.Helper()
	if err := engine.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "test")

	put(t, m, "test-key", "test-value1")

	h, err := m.Get([]byte("test-key"))
	if err != nil {
		t.Fatalf("Expected key to exist after Put, got %v", err)
	}
	if !bytes.Equal(h.Bytes(), []byte("test-value1")) {
		t.Errorf("Expected value %s, got %s", "test-value1", h.Bytes())
	}

	// overwriting does not change a handle that is still held
	put(t, m, "test-key", "test-value2")
	if !bytes.Equal(h.Bytes(), []byte("test-value1")) {
		t.Errorf("Held handle changed after overwrite: %s", h.Bytes())
	}
	if err := h.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}

	h, err = m.Get([]byte("test-key"))
	if err != nil {
		t.Fatalf("Expected key to exist after second Put, got %v", err)
	}
	if !bytes.Equal(h.Bytes(), []byte("test-value2")) {
		t.Errorf("Expected value %s, got %s", "test-value2", h.Bytes())
	}
	_ = h.Release()

	if _, err := m.Get([]byte("nonexistent-key")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent key, got %v", err)
	}
}

func testDelete(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "test")

	put(t, m, "a", "1", "b", "2")

	if err := m.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get([]byte("a")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Delete, got %v", err)
	}

	// deleting a missing key is not an error
	if err := m.Delete([]byte("missing")); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}

	if keys := seek(t, m, db.Forward, nil); !equalKeys(keys, []string{"b"}) {
		t.Errorf("Expected [b] after Delete, got %v", keys)
	}
}

func testGetBatch(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "test")

	put(t, m, "a", "1", "b", "2")

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("a")}
	results := m.GetBatch(keys)
	defer db.ReleaseAll(results)

	if len(results) != len(keys) {
		t.Fatalf("Expected %d results, got %d", len(keys), len(results))
	}

	expected := []string{"1", "2", "", "1"}
	for i, r := range results {
		if expected[i] == "" {
			if !errors.Is(r.Err, db.ErrNotFound) || r.Handle != nil {
				t.Errorf("result %d: expected ErrNotFound, got %v", i, r.Err)
			}
			continue
		}
		if !r.Found() {
			t.Errorf("result %d: expected value, got %v", i, r.Err)
			continue
		}
		if r.Handle.String() != expected[i] {
			t.Errorf("result %d: expected %s, got %s", i, expected[i], r.Handle.Bytes())
		}
	}
}

func testSeekForward(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "test")

	put(t, m, "b", "2", "d", "4", "a", "1", "c", "3")

	tests := []struct {
		name string
		from []byte
		want []string
	}{
		{"FromStart", nil, []string{"a", "b", "c", "d"}},
		{"FromExisting", []byte("b"), []string{"b", "c", "d"}},
		{"FromBetween", []byte("bb"), []string{"c", "d"}},
		{"BeforeFirst", []byte("0"), []string{"a", "b", "c", "d"}},
		{"AfterLast", []byte("e"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seek(t, m, db.Forward, tt.from); !equalKeys(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("Values", func(t *testing.T) {
		it, err := m.NewIterator()
		if err != nil {
			t.Fatalf("NewIterator failed: %v", err)
		}
		defer it.Close()

		if !it.Seek(db.Forward, []byte("c")) {
			t.Fatalf("Expected Seek to position the iterator")
		}
		if string(it.Value()) != "3" {
			t.Errorf("Expected value 3, got %s", it.Value())
		}

		// re-seeking an iterator repositions it
		if !it.Seek(db.Reverse, []byte("a")) || string(it.Key()) != "a" {
			t.Errorf("Expected re-seek to position at a, got %s", it.Key())
		}
	})
}

func testSeekReverse(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "test")

	put(t, m, "b", "2", "d", "4", "a", "1", "c", "3")

	tests := []struct {
		name string
		from []byte
		want []string
	}{
		{"FromEnd", nil, []string{"d", "c", "b", "a"}},
		{"FromExisting", []byte("c"), []string{"c", "b", "a"}},
		{"FromBetween", []byte("bb"), []string{"b", "a"}},
		{"AfterLast", []byte("z"), []string{"d", "c", "b", "a"}},
		{"BeforeFirst", []byte("0"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seek(t, m, db.Reverse, tt.from); !equalKeys(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func testEmptyMap(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "empty")

	for _, dir := range []db.Direction{db.Forward, db.Reverse} {
		it, err := m.NewIterator()
		if err != nil {
			t.Fatalf("NewIterator failed: %v", err)
		}
		if it.Seek(dir, nil) || it.Valid() {
			t.Errorf("%s: expected invalid iterator on empty map", dir)
		}
		if it.Next() {
			t.Errorf("%s: expected Next to return false", dir)
		}
		if err := it.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		// closing twice is allowed
		if err := it.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	}

	results := m.GetBatch([][]byte{[]byte("x")})
	if len(results) != 1 || !errors.Is(results[0].Err, db.ErrNotFound) {
		t.Errorf("Expected one ErrNotFound result, got %v", results)
	}
}

func testMaps(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)

	a := openMap(t, engine, "map-a")
	b := openMap(t, engine, "map-b")
	put(t, a, "key", "from-a")
	put(t, b, "key", "from-b", "only-b", "x")

	h, err := a.Get([]byte("key"))
	if err != nil || h.String() != "from-a" {
		t.Errorf("Expected from-a, got %v (%v)", h, err)
	}
	_ = h.Release()

	if _, err := a.Get([]byte("only-b")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected maps to be isolated, got %v", err)
	}
	if keys := seek(t, a, db.Forward, nil); !equalKeys(keys, []string{"key"}) {
		t.Errorf("Expected iterator to stay in its map, got %v", keys)
	}

	// opening a map twice gives access to the same data
	again := openMap(t, engine, "map-a")
	if again.Name() != "map-a" {
		t.Errorf("Expected name map-a, got %s", again.Name())
	}
	h, err = again.Get([]byte("key"))
	if err != nil || h.String() != "from-a" {
		t.Errorf("Expected reopened map to see from-a, got %v", err)
	}
	_ = h.Release()

	if names := engine.Names(); !equalKeys(names, []string{"map-a", "map-b"}) {
		t.Errorf("Expected names [map-a map-b], got %v", names)
	}
}

func testEdgeCases(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "edge")

	t.Run("EmptyValue", func(t *testing.T) {
		if err := m.Put([]byte("empty"), []byte{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		h, err := m.Get([]byte("empty"))
		if err != nil {
			t.Fatalf("Expected empty value to be found, got %v", err)
		}
		if len(h.Bytes()) != 0 {
			t.Errorf("Expected empty value, got %v", h.Bytes())
		}
		_ = h.Release()
	})

	t.Run("BinaryKeys", func(t *testing.T) {
		keys := [][]byte{{0x00}, {0x00, 0x00}, {0x01}, {0xff}, {0xff, 0x00}}
		for i, k := range keys {
			if err := m.Put(k, []byte{byte(i)}); err != nil {
				t.Fatalf("Put(%x) failed: %v", k, err)
			}
		}
		for i, k := range keys {
			h, err := m.Get(k)
			if err != nil {
				t.Errorf("Get(%x) failed: %v", k, err)
				continue
			}
			if !bytes.Equal(h.Bytes(), []byte{byte(i)}) {
				t.Errorf("Get(%x): expected %d, got %v", k, i, h.Bytes())
			}
			_ = h.Release()
		}

		it, err := m.NewIterator()
		if err != nil {
			t.Fatalf("NewIterator failed: %v", err)
		}
		defer it.Close()

		var prev []byte
		for it.Seek(db.Forward, []byte{0x00}); it.Valid(); it.Next() {
			if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
				t.Errorf("keys out of order: %x before %x", prev, it.Key())
			}
			prev = bytes.Clone(it.Key())
		}
	})

	t.Run("LargeValue", func(t *testing.T) {
		large := bytes.Repeat([]byte("x"), 1<<20)
		if err := m.Put([]byte("large"), large); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		h, err := m.Get([]byte("large"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(h.Bytes(), large) {
			t.Errorf("large value corrupted (len %d)", len(h.Bytes()))
		}
		_ = h.Release()
	})

	t.Run("InputNotRetained", func(t *testing.T) {
		key := []byte("mutable")
		value := []byte("original")
		if err := m.Put(key, value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		copy(value, "modified")

		h, err := m.Get([]byte("mutable"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if h.String() != "original" {
			t.Errorf("engine retained the caller's buffer: %s", h.Bytes())
		}
		_ = h.Release()
	})
}

func testLeases(t *testing.T, engine db.Engine) {
	m := openMap(t, engine, "leases")
	put(t, m, "a", "1", "b", "2")

	h, err := m.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	results := m.GetBatch([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	it, err := m.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}

	// one handle, two batch handles (c is missing) and one iterator
	if n := engine.Info().OpenLeases; n != 4 {
		t.Errorf("Expected 4 open leases, got %d", n)
	}

	_ = h.Release()
	_ = h.Release()
	db.ReleaseAll(results)
	_ = it.Close()

	if n := engine.Info().OpenLeases; n != 0 {
		t.Errorf("Expected 0 open leases after release, got %d", n)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func testClosed(t *testing.T, engine db.Engine) {
	m := openMap(t, engine, "closed")
	put(t, m, "a", "1")

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err := engine.Open("other"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Open, got %v", err)
	}
	if _, err := m.Get([]byte("a")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Get, got %v", err)
	}
	if err := m.Put([]byte("a"), []byte("2")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Put, got %v", err)
	}
	if _, err := m.NewIterator(); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from NewIterator, got %v", err)
	}
}

func testConcurrent(t *testing.T, engine db.Engine) {
	defer closeEngine(t, engine)
	m := openMap(t, engine, "concurrent")

	const (
		writers = 4
		perG    = 100
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				key := []byte(fmt.Sprintf("w%d-%03d", w, i))
				if err := m.Put(key, key); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
				h, err := m.Get(key)
				if err != nil {
					t.Errorf("Get after Put failed: %v", err)
					return
				}
				if !bytes.Equal(h.Bytes(), key) {
					t.Errorf("Expected %s, got %s", key, h.Bytes())
				}
				_ = h.Release()
			}
		}(w)
	}
	wg.Wait()

	if keys := seek(t, m, db.Forward, nil); len(keys) != writers*perG {
		t.Errorf("Expected %d keys, got %d", writers*perG, len(keys))
	}
}
