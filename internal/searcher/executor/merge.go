package executor

import "container/heap"

// Hit is one scored document in a result set.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
	Shard int     `json:"shard"`
}

// hitLess orders hits ascending so the heap root is the weakest kept hit.
// Ties break on DocID to keep rankings deterministic across runs.
func hitLess(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

type hitHeap []Hit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return hitLess(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)         { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK keeps the k best hits seen so far using a bounded min-heap.
type topK struct {
	k int
	h hitHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(hitHeap, 0, k)}
}

func (t *topK) Consider(hit Hit) {
	if t.k <= 0 {
		return
	}
	if len(t.h) < t.k {
		heap.Push(&t.h, hit)
		return
	}
	if hitLess(t.h[0], hit) {
		t.h[0] = hit
		heap.Fix(&t.h, 0)
	}
}

// Results drains the heap into descending score order. The topK is empty
// afterwards.
func (t *topK) Results() []Hit {
	out := make([]Hit, len(t.h))
	for i := len(t.h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Hit)
	}
	return out
}

// mergeShardHits folds per-shard result lists into a single global top-k.
func mergeShardHits(shardHits [][]Hit, k int) []Hit {
	merged := newTopK(k)
	for _, hits := range shardHits {
		for _, hit := range hits {
			merged.Consider(hit)
		}
	}
	return merged.Results()
}
