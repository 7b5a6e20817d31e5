package ggraph

import "container/heap"

// heapEntry is a snapshot (score, node index) pushed at the moment a
// node becomes a candidate. Later changes to the node's lazy fields do
// not retroactively rewrite entries already in the heap — see §9.
type heapEntry struct {
	score float64
	idx   int
}

// nodeHeap is a binary min-heap of heapEntry ordered by score, with a
// deterministic tiebreak on node index (§9 "deterministic tiebreaks").
type nodeHeap []heapEntry

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].idx < h[j].idx
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) {
	*h = append(*h, x.(heapEntry))
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func pushEntry(h *nodeHeap, e heapEntry) { heap.Push(h, e) }

func popEntry(h *nodeHeap) heapEntry { return heap.Pop(h).(heapEntry) }

// replaceRoot swaps the current root's key for e and re-heapifies,
// mirroring heapq.heappushpop's net effect on the underlying heap used
// by correctHeapRootForLimitExcess (the Python original discards
// heappushpop's return value too; only the reordering matters).
func replaceRoot(h *nodeHeap, e heapEntry) {
	(*h)[0] = e
	heap.Fix(h, 0)
}
