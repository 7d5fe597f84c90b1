package affinity

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"runtime"
	"testing"
)

func TestNone(t *testing.T) {
	a := None(4)
	assert.Equal(t, []int{0, 1, 2, 3}, a.Cores())

	_, ok := a.Current()
	assert.False(t, ok)
	assert.NoError(t, a.Pin([]int{1}))

	// the returned slice is a copy
	cores := a.Cores()
	cores[0] = 42
	assert.Equal(t, 0, a.Cores()[0])

	assert.Empty(t, None(-1).Cores())
}

func TestSystem(t *testing.T) {
	a := System()
	cores := a.Cores()
	require.NotEmpty(t, cores)
	assert.LessOrEqual(t, len(cores), runtime.NumCPU())

	for i := 1; i < len(cores); i++ {
		assert.Less(t, cores[i-1], cores[i], "cores must be sorted")
	}

	if runtime.GOOS != "linux" {
		return
	}

	t.Run("Current", func(t *testing.T) {
		core, ok := a.Current()
		require.True(t, ok)
		assert.GreaterOrEqual(t, core, 0)
	})

	t.Run("Pin", func(t *testing.T) {
		done := make(chan error)
		go func() {
			// the thread is never unlocked, it is discarded when the goroutine exits
			runtime.LockOSThread()
			if err := a.Pin(cores[:1]); err != nil {
				done <- err
				return
			}
			core, ok := a.Current()
			if ok && core != cores[0] {
				t.Errorf("running on core %d after pinning to %d", core, cores[0])
			}
			done <- nil
		}()
		assert.NoError(t, <-done)
	})

	t.Run("PinOutOfRange", func(t *testing.T) {
		assert.Error(t, a.Pin([]int{-1}))
	})
}
