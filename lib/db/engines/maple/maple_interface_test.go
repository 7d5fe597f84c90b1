package maple

import (
	"errors"
	"github.com/ValentinKolb/dbpool/lib/db"
	dbtesting "github.com/ValentinKolb/dbpool/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "MapleDB", func(t *testing.T) db.Engine {
		return NewMapleDB()
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "MapleDB", func(b *testing.B) db.Engine {
		return NewMapleDB()
	})
}

func TestIteratorSnapshot(t *testing.T) {
	engine := NewMapleDB()
	m, err := engine.Open("snap")
	require.NoError(t, err)

	require.NoError(t, m.Put([]byte("a"), []byte("1")))
	require.NoError(t, m.Put([]byte("b"), []byte("2")))

	it, err := m.NewIterator()
	require.NoError(t, err)
	require.True(t, it.Seek(db.Forward, nil))

	// writes after the seek are not visible to the iterator
	require.NoError(t, m.Put([]byte("c"), []byte("3")))
	require.NoError(t, m.Delete([]byte("b")))

	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b"}, keys)
	require.NoError(t, it.Close())
	require.NoError(t, engine.Close())
}

func TestInfo(t *testing.T) {
	engine := NewMapleDB()
	defer engine.Close()

	for _, name := range []string{"x", "y"} {
		m, err := engine.Open(name)
		require.NoError(t, err)
		require.NoError(t, m.Put([]byte("k1"), make([]byte, 10)))
		require.NoError(t, m.Put([]byte("k2"), make([]byte, 100)))
	}

	info := engine.Info()
	assert.Equal(t, db.ImplMaple, info.DbType)
	assert.Equal(t, []string{"x", "y"}, info.Maps)
	assert.Equal(t, 2*(2+10+2+100), info.SizeBytes)

	meta, ok := info.Metadata.(Metadata)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"x": 2, "y": 2}, meta.Entries)
	assert.Equal(t, int64(4), meta.ValuesSampled)
	assert.InDelta(t, 1.0, meta.MapSizes.DistributionQuality, 1e-9)
}

func TestCloseWithLeakedHandle(t *testing.T) {
	engine := NewMapleDB()
	m, err := engine.Open("leak")
	require.NoError(t, err)
	require.NoError(t, m.Put([]byte("k"), []byte("v")))

	_, err = m.Get([]byte("k"))
	require.NoError(t, err)

	err = engine.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrLeaked))

	// a second close is a no-op
	assert.NoError(t, engine.Close())
}
