package dbpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/affinity"
	"github.com/ValentinKolb/dbpool/lib/affinity/mocks"
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/ValentinKolb/dbpool/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/dbpool/lib/db/testing"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"sync"
	"testing"
	"time"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newMap creates a maple engine with one map holding the given pairs. The
// engine is closed when the test ends and must not report leaked handles.
func newMap(t *testing.T, kv ...string) (db.Engine, db.Map) {
	t.Helper()
	engine := maple.NewMapleDB()
	t.Cleanup(func() {
		assert.NoError(t, engine.Close())
	})

	m, err := engine.Open("test")
	require.NoError(t, err)
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, m.Put([]byte(kv[i]), []byte(kv[i+1])))
	}
	return engine, m
}

// newPool creates a pool over two fake cores. It is shut down when the test
// ends, before the engine created earlier is closed.
func newPool(t *testing.T, cfg common.PoolConfig) *Pool {
	t.Helper()
	p, err := New(Server{Config: cfg, Affinity: affinity.None(2)})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func keys(ks ...string) [][]byte {
	out := make([][]byte, len(ks))
	for i, k := range ks {
		out[i] = []byte(k)
	}
	return out
}

// async runs fn in a goroutine and returns a channel receiving its error
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- fn()
	}()
	return ch
}

// asyncGet submits a single key lookup and releases the handle
func asyncGet(ctx context.Context, p *Pool, m db.Map, key string) <-chan error {
	return async(func() error {
		h, err := p.Get(ctx, m, []byte(key))
		if err != nil {
			return err
		}
		return h.Release()
	})
}

func requirePending(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("expected call to be pending, it returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func requireDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitFor):
		t.Fatalf("call did not return")
		return nil
	}
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNew(t *testing.T) {
	_, err := New(Server{Config: common.DefaultPoolConfig()})
	assert.Error(t, err, "affinity is required")

	p := newPool(t, common.PoolConfig{Workers: 3, QueueSize: 5})
	plan := p.Plan()
	assert.Equal(t, 3, plan.Workers)
	assert.Equal(t, []int{5}, plan.QueueSizes)

	stats := p.Stats()
	assert.Equal(t, 3, stats.Workers)
	assert.Equal(t, []int{5}, stats.QueueSizes)
	assert.Equal(t, []int{0}, stats.QueueDepths)
	assert.False(t, stats.Closed)
}

// --------------------------------------------------------------------------
// Lookups
// --------------------------------------------------------------------------

func TestGetBatch(t *testing.T) {
	_, m := newMap(t, "a", "1", "b", "2")
	p := newPool(t, common.PoolConfig{Workers: 2, QueueSize: 4})
	require.Equal(t, 1, p.Plan().Queues())
	require.Equal(t, []int{4}, p.Plan().QueueSizes)

	results, err := p.GetBatch(context.Background(), m, keys("a", "b", "c"))
	require.NoError(t, err)
	defer db.ReleaseAll(results)

	require.Len(t, results, 3)
	require.True(t, results[0].Found())
	assert.Equal(t, "1", results[0].Handle.String())
	require.True(t, results[1].Found())
	assert.Equal(t, "2", results[1].Handle.String())
	assert.False(t, results[2].Found())
	assert.ErrorIs(t, results[2].Err, db.ErrNotFound)
}

func TestGet(t *testing.T) {
	_, m := newMap(t, "a", "1")
	p := newPool(t, common.PoolConfig{Workers: 1})
	ctx := context.Background()

	h, err := p.Get(ctx, m, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), h.Bytes())
	require.NoError(t, h.Release())

	_, err = p.Get(ctx, m, []byte("missing"))
	assert.ErrorIs(t, err, db.ErrNotFound)

	assert.Equal(t, uint64(2), p.Stats().Commands)
}

func TestBatchOrderLarge(t *testing.T) {
	_, m := newMap(t)
	for i := 0; i < 100; i += 2 {
		require.NoError(t, m.Put([]byte(fmt.Sprintf("k%03d", i)), []byte(fmt.Sprintf("v%03d", i))))
	}
	p := newPool(t, common.PoolConfig{Workers: 2})

	// reverse order, every second key missing
	var ks []string
	for i := 99; i >= 0; i-- {
		ks = append(ks, fmt.Sprintf("k%03d", i))
	}
	results, err := p.GetBatch(context.Background(), m, keys(ks...))
	require.NoError(t, err)
	defer db.ReleaseAll(results)

	require.Len(t, results, len(ks))
	for i, r := range results {
		n := 99 - i
		if n%2 == 0 {
			require.True(t, r.Found(), ks[i])
			assert.Equal(t, fmt.Sprintf("v%03d", n), r.Handle.String())
		} else {
			assert.ErrorIs(t, r.Err, db.ErrNotFound, ks[i])
		}
	}
}

func TestInvalidCommand(t *testing.T) {
	_, m := newMap(t)
	p := newPool(t, common.PoolConfig{Workers: 1})
	ctx := context.Background()

	tests := []struct {
		name string
		m    db.Map
		keys [][]byte
	}{
		{"NilMap", nil, keys("a")},
		{"NoKeys", m, nil},
		{"EmptyKey", m, keys("a", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.GetBatch(ctx, tt.m, tt.keys)
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}

	_, err := p.Get(ctx, m, nil)
	assert.ErrorIs(t, err, ErrInvalidCommand)
	_, err = p.Seek(ctx, nil, db.Forward, nil)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	assert.Equal(t, uint64(0), p.Stats().Commands, "invalid commands are never enqueued")
}

// --------------------------------------------------------------------------
// Seek
// --------------------------------------------------------------------------

func TestSeek(t *testing.T) {
	_, m := newMap(t, "b", "2", "c", "3", "a", "1")
	p := newPool(t, common.PoolConfig{Workers: 2})
	ctx := context.Background()

	tests := []struct {
		name  string
		dir   db.Direction
		from  []byte
		first string
		all   []string
	}{
		{"Forward", db.Forward, nil, "a", []string{"a", "b", "c"}},
		{"Reverse", db.Reverse, nil, "c", []string{"c", "b", "a"}},
		{"ForwardFrom", db.Forward, []byte("b"), "b", []string{"b", "c"}},
		{"ReverseFrom", db.Reverse, []byte("bz"), "b", []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := p.Seek(ctx, m, tt.dir, tt.from)
			require.NoError(t, err)
			defer it.Close()

			require.True(t, it.Valid())
			assert.Equal(t, tt.first, string(it.Key()))

			var all []string
			for ; it.Valid(); it.Next() {
				all = append(all, string(it.Key()))
			}
			assert.Equal(t, tt.all, all)
		})
	}

	t.Run("PastEnd", func(t *testing.T) {
		it, err := p.Seek(ctx, m, db.Forward, []byte("z"))
		require.NoError(t, err)
		assert.False(t, it.Valid())
		require.NoError(t, it.Close())
	})
}

// --------------------------------------------------------------------------
// Backpressure
// --------------------------------------------------------------------------

func TestBackpressure(t *testing.T) {
	_, base := newMap(t, "a", "1")
	gated := dbtesting.NewGatedMap(base, 16)
	defer gated.Open()

	var logs bytes.Buffer
	common.SetOutput(&logs)
	defer common.SetOutput(os.Stdout)

	p := newPool(t, common.PoolConfig{Workers: 1, QueueSize: 2})
	ctx := context.Background()
	queue := p.queues[0]

	// the single worker blocks in the storage call
	first := asyncGet(ctx, p, gated, "a")
	<-gated.Entered

	// fill the queue
	second := asyncGet(ctx, p, gated, "a")
	third := asyncGet(ctx, p, gated, "a")
	require.Eventually(t, func() bool { return len(queue) == 2 }, waitFor, tick)

	// one more: the caller waits for a free slot instead of failing
	fourth := asyncGet(ctx, p, gated, "a")
	require.Eventually(t, func() bool { return p.Stats().QueueFull > 0 }, waitFor, tick)
	requirePending(t, fourth)
	assert.Equal(t, 2, len(queue))

	gated.Open()
	for _, ch := range []<-chan error{first, second, third, fourth} {
		assert.NoError(t, requireDone(t, ch))
	}
	assert.Equal(t, uint64(4), p.Stats().Commands)
	assert.Equal(t, int64(0), p.Stats().QueuedMax, "high water mark is only kept in diagnostics mode")
	assert.NotContains(t, logs.String(), "is full", "full queues are counted, not logged above debug level")
}

func TestConcurrentSubmission(t *testing.T) {
	_, m := newMap(t)
	for i := 0; i < 64; i++ {
		require.NoError(t, m.Put([]byte(fmt.Sprintf("k%02d", i)), []byte{byte(i)}))
	}
	p := newPool(t, common.PoolConfig{Workers: 2, QueueSize: 1})

	const (
		callers = 64
		calls   = 50
	)
	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				k1, k2 := (c+i)%64, (c*7+i)%64
				results, err := p.GetBatch(context.Background(), m, [][]byte{
					[]byte(fmt.Sprintf("k%02d", k1)),
					[]byte(fmt.Sprintf("k%02d", k2)),
				})
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, bytes.Equal(results[0].Handle.Bytes(), []byte{byte(k1)}))
				assert.True(t, bytes.Equal(results[1].Handle.Bytes(), []byte{byte(k2)}))
				db.ReleaseAll(results)
			}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatalf("submissions deadlocked")
	}
	assert.Equal(t, uint64(callers*calls), p.Stats().Commands)
}

func TestDiagnostics(t *testing.T) {
	_, base := newMap(t, "a", "1")
	gated := dbtesting.NewGatedMap(base, 16)
	defer gated.Open()

	p := newPool(t, common.PoolConfig{Workers: 1, QueueSize: 4, Diagnostics: true})
	ctx := context.Background()
	queue := p.queues[0]

	calls := []<-chan error{asyncGet(ctx, p, gated, "a")}
	<-gated.Entered
	for depth := 1; depth <= 2; depth++ {
		calls = append(calls, asyncGet(ctx, p, gated, "a"))
		require.Eventually(t, func() bool { return len(queue) == depth }, waitFor, tick)
	}
	require.Eventually(t, func() bool { return p.Stats().QueuedMax == 2 }, waitFor, tick)
	assert.Equal(t, int64(1), p.Stats().Busy)

	gated.Open()
	for _, ch := range calls {
		assert.NoError(t, requireDone(t, ch))
	}
	assert.Equal(t, int64(2), p.Stats().QueuedMax)
}

// --------------------------------------------------------------------------
// Cancellation
// --------------------------------------------------------------------------

func TestCancelBeforeExecution(t *testing.T) {
	_, base := newMap(t, "a", "1")
	gated := dbtesting.NewGatedMap(base, 16)
	defer gated.Open()
	counting := dbtesting.NewCountingMap(base)

	p := newPool(t, common.PoolConfig{Workers: 1, QueueSize: 4})
	queue := p.queues[0]

	t.Run("AlreadyCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.GetBatch(ctx, counting, keys("a", "b"))
		assert.ErrorIs(t, err, context.Canceled)
		_, err = p.Seek(ctx, counting, db.Forward, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(0), counting.Calls())
	})

	t.Run("CanceledWhileQueued", func(t *testing.T) {
		// occupy the worker
		blocker := asyncGet(context.Background(), p, gated, "a")
		<-gated.Entered

		ctx, cancel := context.WithCancel(context.Background())
		get := asyncGet(ctx, p, counting, "a")
		batch := async(func() error {
			_, err := p.GetBatch(ctx, counting, keys("a", "b"))
			return err
		})
		seek := async(func() error {
			_, err := p.Seek(ctx, counting, db.Forward, nil)
			return err
		})
		require.Eventually(t, func() bool { return len(queue) == 3 }, waitFor, tick)

		cancel()
		for _, ch := range []<-chan error{get, batch, seek} {
			assert.ErrorIs(t, requireDone(t, ch), context.Canceled)
		}

		gated.Open()
		assert.NoError(t, requireDone(t, blocker))

		// the worker skips all three commands without touching the map
		require.Eventually(t, func() bool { return p.Stats().Canceled == 3 }, waitFor, tick)
		assert.Equal(t, int64(0), counting.Calls())
	})
}

func TestCancelDuringExecution(t *testing.T) {
	engine, base := newMap(t, "a", "1")
	gated := dbtesting.NewGatedMap(base, 16)
	defer gated.Open()

	p := newPool(t, common.PoolConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	call := asyncGet(ctx, p, gated, "a")
	<-gated.Entered

	// the storage call is running, cancel the caller
	cancel()
	assert.ErrorIs(t, requireDone(t, call), context.Canceled)

	// the call completes, the result is released by the worker
	gated.Open()
	require.Eventually(t, func() bool { return p.Stats().Dropped == 1 }, waitFor, tick)
	assert.Equal(t, int64(0), engine.Info().OpenLeases)
	assert.Equal(t, uint64(0), p.Stats().Canceled)
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

func TestShutdown(t *testing.T) {
	engine, m := newMap(t, "a", "1")
	p := newPool(t, common.PoolConfig{Workers: 4})
	ctx := context.Background()

	h, err := p.Get(ctx, m, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, h.Release())

	p.Shutdown()
	p.Shutdown()
	p.Close()

	select {
	case <-p.Done():
	default:
		t.Fatalf("Done not closed after Shutdown")
	}

	stats := p.Stats()
	assert.True(t, stats.Closed)
	assert.Equal(t, 4, stats.Terminated, "every worker exited")

	for i := 0; i < 3; i++ {
		_, err := p.Get(ctx, m, []byte("a"))
		assert.ErrorIs(t, err, ErrDispatchClosed)
		_, err = p.GetBatch(ctx, m, keys("a", "b"))
		assert.ErrorIs(t, err, ErrDispatchClosed)
		_, err = p.Seek(ctx, m, db.Forward, nil)
		assert.ErrorIs(t, err, ErrDispatchClosed)
	}
	assert.Equal(t, int64(0), engine.Info().OpenLeases, "iterators of rejected seeks are closed")
}

func TestSeekAfterClose(t *testing.T) {
	engine, base := newMap(t, "a", "1")
	counting := dbtesting.NewCountingMap(base)
	p := newPool(t, common.PoolConfig{Workers: 1})
	p.Close()

	_, err := p.Seek(context.Background(), counting, db.Forward, nil)
	assert.ErrorIs(t, err, ErrDispatchClosed)
	assert.Equal(t, int64(0), counting.Iterators(), "no iterator is created for a closed pool")
	assert.Equal(t, int64(0), engine.Info().OpenLeases)
}

func TestShutdownDrainsQueue(t *testing.T) {
	_, base := newMap(t, "a", "1")
	gated := dbtesting.NewGatedMap(base, 16)
	defer gated.Open()

	p := newPool(t, common.PoolConfig{Workers: 1, QueueSize: 1})
	ctx := context.Background()

	running := asyncGet(ctx, p, gated, "a")
	<-gated.Entered
	queued := asyncGet(ctx, p, gated, "a")
	require.Eventually(t, func() bool { return len(p.queues[0]) == 1 }, waitFor, tick)
	blocked := asyncGet(ctx, p, gated, "a")
	requirePending(t, blocked)

	// closing rejects the caller waiting for a slot, queued work still runs
	p.Close()
	assert.ErrorIs(t, requireDone(t, blocked), ErrDispatchClosed)

	shutdown := async(func() error {
		p.Shutdown()
		return nil
	})
	requirePending(t, shutdown)

	gated.Open()
	assert.NoError(t, requireDone(t, running))
	assert.NoError(t, requireDone(t, queued))
	assert.NoError(t, requireDone(t, shutdown))
	assert.Equal(t, []int{0}, p.Stats().QueueDepths)
}

// --------------------------------------------------------------------------
// Routing
// --------------------------------------------------------------------------

func TestRouting(t *testing.T) {
	cfg := common.PoolConfig{Workers: 4, Queues: 2, Affinity: true}

	newMockPool := func(t *testing.T, ctrl *gomock.Controller) (*Pool, *mocks.MockAffinity, func() [][]int) {
		aff := mocks.NewMockAffinity(ctrl)
		aff.EXPECT().Cores().Return([]int{0, 1, 2, 3})

		var (
			mu     sync.Mutex
			pinned [][]int
		)
		aff.EXPECT().Pin(gomock.Any()).DoAndReturn(func(cores []int) error {
			mu.Lock()
			defer mu.Unlock()
			pinned = append(pinned, cores)
			return nil
		}).Times(4)

		p, err := New(Server{Config: cfg, Affinity: aff})
		require.NoError(t, err)
		t.Cleanup(p.Shutdown)

		return p, aff, func() [][]int {
			mu.Lock()
			defer mu.Unlock()
			return append([][]int(nil), pinned...)
		}
	}

	t.Run("SelectQueue", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p, aff, _ := newMockPool(t, ctrl)
		require.Equal(t, []int{0, 0, 1, 1}, p.Plan().Topology)

		gomock.InOrder(
			aff.EXPECT().Current().Return(3, true),
			aff.EXPECT().Current().Return(1, true),
			aff.EXPECT().Current().Return(99, true),
			aff.EXPECT().Current().Return(0, false),
		)
		assert.Equal(t, 1, p.selectQueue())
		assert.Equal(t, 0, p.selectQueue())
		assert.Equal(t, 0, p.selectQueue(), "core outside the table")
		assert.Equal(t, 0, p.selectQueue(), "current core unknown")
	})

	t.Run("WorkersPinnedToGroup", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p, _, pinned := newMockPool(t, ctrl)
		p.Shutdown()

		groups := pinned()
		require.Len(t, groups, 4)
		var low, high int
		for _, cores := range groups {
			switch {
			case assert.ObjectsAreEqual([]int{0, 1}, cores):
				low++
			case assert.ObjectsAreEqual([]int{2, 3}, cores):
				high++
			default:
				t.Errorf("unexpected pin set %v", cores)
			}
		}
		assert.Equal(t, 2, low)
		assert.Equal(t, 2, high)
	})

	t.Run("CommandLandsOnCoreQueue", func(t *testing.T) {
		_, base := newMap(t, "a", "1")
		gated := dbtesting.NewGatedMap(base, 16)
		defer gated.Open()

		ctrl := gomock.NewController(t)
		p, aff, _ := newMockPool(t, ctrl)
		aff.EXPECT().Current().Return(2, true).Times(3)

		// both workers of queue 1 block, the third command waits in queue 1
		ctx := context.Background()
		calls := []<-chan error{
			asyncGet(ctx, p, gated, "a"),
			asyncGet(ctx, p, gated, "a"),
		}
		<-gated.Entered
		<-gated.Entered
		calls = append(calls, asyncGet(ctx, p, gated, "a"))
		require.Eventually(t, func() bool {
			d := p.Stats().QueueDepths
			return d[0] == 0 && d[1] == 1
		}, waitFor, tick)

		gated.Open()
		for _, ch := range calls {
			assert.NoError(t, requireDone(t, ch))
		}
	})
}

// --------------------------------------------------------------------------
// Failures
// --------------------------------------------------------------------------

// panicMap panics on every read
type panicMap struct {
	db.Map
}

func (panicMap) Get([]byte) (*db.Handle, error) { panic("storage exploded") }

func (panicMap) GetBatch([][]byte) []db.Result { panic("storage exploded") }

// shortMap returns fewer results than keys
type shortMap struct {
	db.Map
}

func (s shortMap) GetBatch(keys [][]byte) []db.Result {
	return s.Map.GetBatch(keys[:len(keys)-1])
}

func TestWorkerPanic(t *testing.T) {
	engine, m := newMap(t, "a", "1", "b", "2")
	p := newPool(t, common.PoolConfig{Workers: 1})
	ctx := context.Background()

	_, err := p.Get(ctx, panicMap{m}, []byte("a"))
	assert.ErrorIs(t, err, ErrDispatchLost)
	_, err = p.GetBatch(ctx, panicMap{m}, keys("a", "b"))
	assert.ErrorIs(t, err, ErrDispatchLost)

	// a map breaking the order contract is treated the same way
	_, err = p.GetBatch(ctx, shortMap{m}, keys("a", "b"))
	assert.ErrorIs(t, err, ErrDispatchLost)
	assert.Equal(t, int64(0), engine.Info().OpenLeases)

	// the single worker survived and keeps serving
	h, err := p.Get(ctx, m, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "1", h.String())
	require.NoError(t, h.Release())

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Panics)
	assert.Equal(t, 0, stats.Terminated)
}

func TestStorageErrors(t *testing.T) {
	engine, base := newMap(t, "a", "1", "b", "2", "c", "3")
	boom := errors.New("disk on fire")
	failing := dbtesting.NewFailingMap(base, boom, "b")
	p := newPool(t, common.PoolConfig{Workers: 2})
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		_, err := p.Get(ctx, failing, []byte("b"))
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, db.ErrNotFound)

		h, err := p.Get(ctx, failing, []byte("a"))
		require.NoError(t, err)
		assert.Equal(t, "1", h.String())
		require.NoError(t, h.Release())
	})

	t.Run("GetBatch", func(t *testing.T) {
		results, err := p.GetBatch(ctx, failing, keys("a", "b", "c", "d"))
		require.NoError(t, err, "a storage error belongs to its key, not to the batch")
		defer db.ReleaseAll(results)

		require.Len(t, results, 4)
		require.True(t, results[0].Found())
		assert.Equal(t, "1", results[0].Handle.String())
		assert.ErrorIs(t, results[1].Err, boom)
		assert.Nil(t, results[1].Handle)
		require.True(t, results[2].Found())
		assert.Equal(t, "3", results[2].Handle.String())
		assert.ErrorIs(t, results[3].Err, db.ErrNotFound)
	})

	t.Run("Seek", func(t *testing.T) {
		failing.FailSeek = true
		defer func() { failing.FailSeek = false }()

		it, err := p.Seek(ctx, failing, db.Forward, nil)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, it)
		assert.Equal(t, int64(0), engine.Info().OpenLeases, "the failed iterator is closed")
	})

	stats := p.Stats()
	assert.Equal(t, uint64(0), stats.Panics)
	assert.Equal(t, uint64(0), stats.Dropped)
}

func TestWritePrometheus(t *testing.T) {
	_, m := newMap(t, "a", "1")
	p := newPool(t, common.PoolConfig{Workers: 1})

	h, err := p.Get(context.Background(), m, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, h.Release())

	var buf bytes.Buffer
	p.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `dbpool_commands_total{kind="get"} 1`)
	assert.Contains(t, out, `dbpool_workers 1`)
	assert.Contains(t, out, `dbpool_command_duration_seconds`)
}
