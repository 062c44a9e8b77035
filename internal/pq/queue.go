// Package pq implements a min-heap priority queue of (priority, sequence,
// task) entries with tombstone-based removal, used as the event queue's
// backing store.
package pq

import (
	"container/heap"

	"github.com/pkg/errors"
)

// ErrEmpty is returned by Pop when no live entry remains.
var ErrEmpty = errors.New("priority queue: empty")

// entry is one slot in the heap. Tombstoned entries stay in the underlying
// slice (amortizing removal cost) and are skipped on Pop.
type entry struct {
	priority float64
	seq      uint64
	task     any
	removed  bool
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
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

// Queue is a min-heap ordered by (priority, insertion sequence), with
// amortized-O(log n) reschedule via tombstoning rather than re-sifting.
// Identity for the dedup map is the task value's own identity (it must be
// a pointer, or another comparable type whose equality means "same task");
// value-equal-but-distinct tasks are never considered the same entry.
type Queue struct {
	h       entryHeap
	entries map[any]*entry
	seq     uint64
	live    int
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{entries: make(map[any]*entry)}
}

// Add inserts task at priority. If task is already present, the prior entry
// is tombstoned first — this is the only supported way to reschedule a task.
func (q *Queue) Add(task any, priority float64) {
	if old, ok := q.entries[task]; ok {
		old.removed = true
		old.task = nil
		q.live--
	}
	e := &entry{priority: priority, seq: q.seq, task: task}
	q.seq++
	q.entries[task] = e
	heap.Push(&q.h, e)
	q.live++
}

// Pop removes and returns the lowest-priority live task. Returns ErrEmpty if
// no live entry remains, even if tombstoned entries are still in the heap.
func (q *Queue) Pop() (float64, any, error) {
	for q.h.Len() > 0 {
		e := heap.Pop(&q.h).(*entry)
		if e.removed {
			continue
		}
		delete(q.entries, e.task)
		q.live--
		return e.priority, e.task, nil
	}
	return 0, nil, ErrEmpty
}

// Len reports the number of live (non-tombstoned) entries.
func (q *Queue) Len() int { return q.live }
