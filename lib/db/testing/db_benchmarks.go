package testing

import (
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"math/rand"
	"sync/atomic"
	"testing"
)

// BenchFactory creates a new, empty engine for one benchmark
type BenchFactory func(b *testing.B) db.Engine

// number of keys preloaded by the read benchmarks
const benchKeys = 10_000

// RunEngineBenchmarks runs all benchmarks for a db.Engine implementation
func RunEngineBenchmarks(b *testing.B, name string, factory BenchFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory(b))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory(b))
	})

	b.Run("GetBatch", func(b *testing.B) {
		benchmarkGetBatch(b, factory(b))
	})

	b.Run("Seek", func(b *testing.B) {
		benchmarkSeek(b, factory(b))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory(b))
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("key-%08d", i))
}

// preload opens a map and fills it with benchKeys entries
func preload(b *testing.B, engine db.Engine) db.Map {
	b.Helper()
	m := openMap(b, engine, "bench")
	value := make([]byte, 128)
	for i := 0; i < benchKeys; i++ {
		if err := m.Put(benchKey(i), value); err != nil {
			b.Fatalf("preload failed: %v", err)
		}
	}
	return m
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put operation
func benchmarkPut(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})
	m := openMap(b, engine, "bench")
	value := make([]byte, 128)

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := m.Put(benchKey(int(counter.Add(1))), value); err != nil {
				b.Errorf("Put failed: %v", err)
				return
			}
		}
	})
}

// Benchmark for Get operation on existing keys
func benchmarkGet(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})
	m := preload(b, engine)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			h, err := m.Get(benchKey(r.Intn(benchKeys)))
			if err != nil {
				b.Errorf("Get failed: %v", err)
				return
			}
			_ = h.Release()
		}
	})
}

// Benchmark for GetBatch with 16 keys, a quarter of them missing
func benchmarkGetBatch(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})
	m := preload(b, engine)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		keys := make([][]byte, 16)
		for pb.Next() {
			for i := range keys {
				keys[i] = benchKey(r.Intn(benchKeys + benchKeys/3))
			}
			db.ReleaseAll(m.GetBatch(keys))
		}
	})
}

// Benchmark for a seek followed by 10 steps
func benchmarkSeek(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})
	m := preload(b, engine)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			it, err := m.NewIterator()
			if err != nil {
				b.Errorf("NewIterator failed: %v", err)
				return
			}
			dir := db.Direction(r.Intn(2))
			it.Seek(dir, benchKey(r.Intn(benchKeys)))
			for i := 0; i < 10 && it.Valid(); i++ {
				it.Next()
			}
			_ = it.Close()
		}
	})
}

// Benchmark for a mix of 80% reads and 20% writes
func benchmarkMixedUsage(b *testing.B, engine db.Engine) {
	b.Cleanup(func() {
		engine.Close()
	})
	m := preload(b, engine)
	value := make([]byte, 128)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := benchKey(r.Intn(benchKeys))
			if r.Intn(5) == 0 {
				if err := m.Put(key, value); err != nil {
					b.Errorf("Put failed: %v", err)
					return
				}
				continue
			}
			if h, err := m.Get(key); err == nil {
				_ = h.Release()
			}
		}
	})
}
