// Package queue implements the priority-ordered waiting list for requests
// that could not be dispatched immediately. Entries drain highest priority
// first; equal priorities drain in submission order.
//
// The queue is NOT internally synchronized. It is owned by the client's
// scheduler, which guards it (together with the active-request counter)
// under a single mutex so admission decisions are atomic.
package queue

import (
	"container/heap"
	"time"
)

// Entry is one parked request. It lives from enqueue until it is either
// released to dispatch (Ready is closed) or abandoned by its submitter.
type Entry struct {
	// Priority orders draining, highest first.
	Priority int

	// EnqueuedAt records when the entry was parked.
	EnqueuedAt time.Time

	// Ready is closed by the scheduler when the entry wins a dispatch
	// slot. The submitting goroutine blocks on it.
	Ready chan struct{}

	// Abandoned marks an entry whose submitter gave up (context done)
	// while still queued. The drain loop discards these instead of
	// releasing them. Guarded by the scheduler's mutex.
	Abandoned bool

	// seq breaks priority ties: lower sequence numbers (earlier
	// submissions) drain first.
	seq uint64

	// index is maintained by heap.Interface.
	index int
}

// Queue is a max-heap on (priority, -seq).
type Queue struct {
	entries entryHeap
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.entries)
	return q
}

// Push parks a new entry and returns it.
func (q *Queue) Push(priority int, now time.Time) *Entry {
	e := &Entry{
		Priority:   priority,
		EnqueuedAt: now,
		Ready:      make(chan struct{}),
		seq:        q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.entries, e)
	return e
}

// Pop removes and returns the highest-priority entry (FIFO within a
// priority), or nil when empty. Abandoned entries are returned too; the
// caller decides whether to discard them.
func (q *Queue) Pop() *Entry {
	if q.entries.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.entries).(*Entry)
}

// Len returns the number of parked entries, including abandoned ones not
// yet discarded by the drain loop.
func (q *Queue) Len() int {
	return q.entries.Len()
}

// entryHeap implements heap.Interface with priority-descending,
// sequence-ascending order.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
