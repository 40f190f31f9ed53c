package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[[]byte](4)
	assert.True(t, q.IsEmpty())

	q.Enqueue([]byte{1}, []byte{2})
	q.Enqueue([]byte{3})
	assert.Equal(t, 3, q.Length())

	head, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, []byte{1}, head)

	for _, want := range [][]byte{{1}, {2}, {3}} {
		got, ok := q.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok = q.Dequeue()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

func TestQueue_Reset(t *testing.T) {
	q := New[int](0)
	q.Enqueue(1, 2, 3)
	q.Reset()

	assert.Zero(t, q.Length())
	_, ok := q.Peek()
	assert.False(t, ok)

	q.Enqueue(9)
	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 9, v)
}
