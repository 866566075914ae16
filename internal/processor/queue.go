package processor

import "github.com/earthring/chunkstream/internal/chunk"

// Queue is an ordered backlog of chunk keys with set membership. It is not
// safe for concurrent use; Processor guards it.
type Queue struct {
	order   []chunk.Key
	members chunk.Set
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{members: chunk.NewSet()}
}

// Push appends key unless it is already queued. It reports whether the key
// was added.
func (q *Queue) Push(key chunk.Key) bool {
	if q.members.Has(key) {
		return false
	}
	q.members.Add(key)
	q.order = append(q.order, key)
	return true
}

// Has reports whether key is waiting in the queue.
func (q *Queue) Has(key chunk.Key) bool {
	return q.members.Has(key)
}

// Remove drops key from the queue. It reports whether the key was present.
func (q *Queue) Remove(key chunk.Key) bool {
	if !q.members.Has(key) {
		return false
	}
	q.members.Remove(key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// PopBatch removes and returns up to n keys from the front.
func (q *Queue) PopBatch(n int) []chunk.Key {
	if n > len(q.order) {
		n = len(q.order)
	}
	if n <= 0 {
		return nil
	}
	batch := make([]chunk.Key, n)
	copy(batch, q.order[:n])
	q.order = q.order[n:]
	for _, k := range batch {
		q.members.Remove(k)
	}
	return batch
}

// Len is the number of queued keys.
func (q *Queue) Len() int {
	return len(q.order)
}

// Keys returns the queued keys in order.
func (q *Queue) Keys() []chunk.Key {
	keys := make([]chunk.Key, len(q.order))
	copy(keys, q.order)
	return keys
}
