package orchestrator

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"genbridge/internal/gen"
)

// Item is one pending snapshot waiting behind the active job.
type Item struct {
	ID        string
	CreatedAt time.Time
	Snapshot  *gen.Snapshot
}

func newItem(snap *gen.Snapshot) Item {
	return Item{ID: newID(), CreatedAt: time.Now(), Snapshot: snap}
}

func newID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Queue holds the ordered list of pending snapshots. Front-inserted items
// run before previously queued back-inserted items.
type Queue struct {
	mu    sync.Mutex
	items []Item
}

// PushBack appends a snapshot to the end of the queue.
func (q *Queue) PushBack(snap *gen.Snapshot) Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := newItem(snap)
	q.items = append(q.items, it)
	return it
}

// PushFront inserts a snapshot ahead of everything already queued.
func (q *Queue) PushFront(snap *gen.Snapshot) Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := newItem(snap)
	q.items = append([]Item{it}, q.items...)
	return it
}

// ReplaceAll discards the queue and inserts a single snapshot.
func (q *Queue) ReplaceAll(snap *gen.Snapshot) Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := newItem(snap)
	q.items = []Item{it}
	return it
}

// Remove deletes the item with the given id, reporting whether it existed.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every pending item.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// TakeNext pops and returns the head of the queue, or nil when empty.
func (q *Queue) TakeNext() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	return &it
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the pending items in run order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}
