package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()

	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(1)
	q.Push(2, 3)
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	q := New[string]()
	assert.Empty(t, q.Drain())

	q.Push("a", "b")
	assert.Equal(t, []string{"a", "b"}, q.Drain())
	assert.Zero(t, q.Len())

	q.Push("c")
	assert.Equal(t, []string{"c"}, q.Drain())
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.Drain(), 2000)
}
