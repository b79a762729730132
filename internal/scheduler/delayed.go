package scheduler

import "container/heap"

// delayedQueue is a min-heap of task entries keyed by readyAt. It carries
// both retry backoff delays and quota cooldown deferrals: one mechanism,
// polled by the admission loop against the scheduler's clock.
type delayedQueue []*taskEntry

func (q delayedQueue) Len() int { return len(q) }

func (q delayedQueue) Less(i, j int) bool { return q[i].readyAt.Before(q[j].readyAt) }

func (q delayedQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *delayedQueue) Push(x any) {
	e := x.(*taskEntry)
	e.heapIndex = len(*q)
	*q = append(*q, e)
}

func (q *delayedQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*q = old[:n-1]
	return e
}

func (q *delayedQueue) push(e *taskEntry) { heap.Push(q, e) }

func (q *delayedQueue) peek() *taskEntry {
	if len(*q) == 0 {
		return nil
	}
	return (*q)[0]
}

func (q *delayedQueue) pop() *taskEntry {
	if len(*q) == 0 {
		return nil
	}
	return heap.Pop(q).(*taskEntry)
}

func (q *delayedQueue) remove(e *taskEntry) {
	if e.heapIndex >= 0 && e.heapIndex < len(*q) && (*q)[e.heapIndex] == e {
		heap.Remove(q, e.heapIndex)
	}
}
