package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_CompleteAndGet(t *testing.T) {
	f := New[int64]()
	assert.False(t, f.IsDone())

	f.Complete(42)
	assert.True(t, f.IsDone())

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestFuture_CompleteIsIdempotent(t *testing.T) {
	f := New[string]()
	f.Complete("first")
	f.Complete("second")
	f.Fail(errors.New("too late"))

	v, err := f.MustGet()
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestFuture_Fail(t *testing.T) {
	f := New[int]()
	f.Fail(errors.New("boom"))

	_, err := f.Get(context.Background())
	assert.Error(t, err)
}

func TestFuture_Completed(t *testing.T) {
	f := Completed[int64](-1)
	assert.True(t, f.IsDone())

	v, err := f.MustGet()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestFuture_ManyWaiters(t *testing.T) {
	f := New[int]()

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Get(context.Background())
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	f.Complete(7)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestFuture_GetRespectsContext(t *testing.T) {
	f := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
