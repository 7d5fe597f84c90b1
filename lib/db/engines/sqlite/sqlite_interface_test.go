package sqlite

import (
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	dbtesting "github.com/ValentinKolb/dbpool/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

func newEngine(t testing.TB) db.Engine {
	e, err := Open(filepath.Join(t.TempDir(), "data", "kv.sqlite"))
	require.NoError(t, err)
	return e
}

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "SQLite", func(t *testing.T) db.Engine {
		return newEngine(t)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "SQLite", func(b *testing.B) db.Engine {
		return newEngine(b)
	})
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestIteratorPaging(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	m, err := e.Open("paged")
	require.NoError(t, err)

	// more than two pages
	n := 2*pageSize + 7
	for i := 0; i < n; i++ {
		require.NoError(t, m.Put([]byte(fmt.Sprintf("k%05d", i)), []byte{byte(i)}))
	}

	for _, dir := range []db.Direction{db.Forward, db.Reverse} {
		t.Run(dir.String(), func(t *testing.T) {
			it, err := m.NewIterator()
			require.NoError(t, err)
			defer it.Close()

			var count int
			var prev []byte
			for it.Seek(dir, nil); it.Valid(); it.Next() {
				if prev != nil {
					if dir == db.Forward {
						assert.Greater(t, string(it.Key()), string(prev))
					} else {
						assert.Less(t, string(it.Key()), string(prev))
					}
				}
				prev = it.Key()
				count++
			}
			require.NoError(t, it.Error())
			assert.Equal(t, n, count)
		})
	}
}

func TestBatchLargerThanParamLimit(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	m, err := e.Open("big")
	require.NoError(t, err)

	keys := make([][]byte, maxBatchParams+10)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		if i%2 == 0 {
			require.NoError(t, m.Put(keys[i], keys[i]))
		}
	}

	results := m.GetBatch(keys)
	require.Len(t, results, len(keys))
	for i, r := range results {
		if i%2 == 0 {
			require.True(t, r.Found(), "key %d", i)
			assert.Equal(t, keys[i], r.Handle.Bytes())
		} else {
			assert.ErrorIs(t, r.Err, db.ErrNotFound)
		}
	}
	db.ReleaseAll(results)
	assert.Equal(t, int64(0), e.Info().OpenLeases)
}
