// Package queue provides the bounded candidate heap used during search.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem is one search candidate.
type PriorityQueueItem struct {
	ID       int64   // ID is the external id of the candidate.
	Distance float32 // Distance is the priority of the item in the queue.
}

// PriorityQueue implements heap.Interface over search candidates.
//
// With Max=true the root is the worst candidate (largest distance, then
// largest id), which is the shape needed for a bounded top-k heap: peek the
// root, replace it when a better candidate arrives.
type PriorityQueue struct {
	Max   bool
	Items []PriorityQueueItem
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less orders by distance with ids as tie break, inverted for max heaps.
func (pq *PriorityQueue) Less(i, j int) bool {
	a, b := pq.Items[i], pq.Items[j]
	if pq.Max {
		a, b = b, a
	}
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(PriorityQueueItem)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	old := pq.Items
	n := len(old)
	item := old[n-1]
	pq.Items = old[:n-1]
	return item
}

// Top returns the root element without removing it.
func (pq *PriorityQueue) Top() PriorityQueueItem {
	return pq.Items[0]
}

// TopK maintains at most k best candidates by ascending distance.
type TopK struct {
	k  int
	pq PriorityQueue
}

// NewTopK creates a bounded candidate collector for k results.
func NewTopK(k int) *TopK {
	return &TopK{
		k:  k,
		pq: PriorityQueue{Max: true, Items: make([]PriorityQueueItem, 0, k)},
	}
}

// Push offers a candidate. Worse candidates than the current k-th best are
// dropped; on equal distance the lower id wins.
func (t *TopK) Push(id int64, dist float32) {
	if t.pq.Len() < t.k {
		heap.Push(&t.pq, PriorityQueueItem{ID: id, Distance: dist})
		return
	}

	worst := t.pq.Top()
	if dist > worst.Distance || (dist == worst.Distance && id > worst.ID) {
		return
	}

	t.pq.Items[0] = PriorityQueueItem{ID: id, Distance: dist}
	heap.Fix(&t.pq, 0)
}

// Len returns the number of collected candidates.
func (t *TopK) Len() int { return t.pq.Len() }

// Results drains the heap and returns candidates by ascending distance,
// ties by ascending id. The collector is empty afterwards.
func (t *TopK) Results() []PriorityQueueItem {
	n := t.pq.Len()
	out := make([]PriorityQueueItem, n)
	for i := n - 1; i >= 0; i-- {
		out[i], _ = heap.Pop(&t.pq).(PriorityQueueItem)
	}
	return out
}
