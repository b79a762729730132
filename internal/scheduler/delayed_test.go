package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-vault-sync/models"
)

func delayedEntry(path string, readyAt time.Time) *taskEntry {
	return &taskEntry{
		task:      &models.Task{ID: path, Path: path},
		readyAt:   readyAt,
		heapIndex: -1,
	}
}

func TestDelayedQueue_PopsInReadyAtOrder(t *testing.T) {
	var q delayedQueue
	base := time.Unix(1000, 0)

	q.push(delayedEntry("c", base.Add(3*time.Second)))
	q.push(delayedEntry("a", base.Add(time.Second)))
	q.push(delayedEntry("b", base.Add(2*time.Second)))

	require.NotNil(t, q.peek())
	assert.Equal(t, "a", q.peek().task.Path)

	var order []string
	for e := q.pop(); e != nil; e = q.pop() {
		order = append(order, e.task.Path)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDelayedQueue_EmptyPeekAndPop(t *testing.T) {
	var q delayedQueue
	assert.Nil(t, q.peek())
	assert.Nil(t, q.pop())
}

func TestDelayedQueue_RemoveMiddleEntry(t *testing.T) {
	var q delayedQueue
	base := time.Unix(1000, 0)

	a := delayedEntry("a", base.Add(time.Second))
	b := delayedEntry("b", base.Add(2*time.Second))
	c := delayedEntry("c", base.Add(3*time.Second))
	q.push(a)
	q.push(b)
	q.push(c)

	q.remove(b)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, -1, b.heapIndex)

	// Removing twice is harmless.
	q.remove(b)
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, "a", q.pop().task.Path)
	assert.Equal(t, "c", q.pop().task.Path)
}
