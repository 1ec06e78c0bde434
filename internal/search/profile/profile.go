// Package profile records per-query-node timing trees for search requests.
//
// The profiler mirrors the structure of weight construction: each call to
// QueryBreakdown pushes a node so that nested weight creation attaches its
// breakdowns as children, and Pop restores the cursor once the node's
// weight is built. Rewrite timing is collected on detached breakdowns and
// only attributed to the profile once the rewrite succeeds.
package profile

import (
	"sync"
	"time"

	"github.com/strata-search/strata/internal/search/query"
)

// Phase identifies one timed stage of query execution.
type Phase string

const (
	PhaseRewrite Phase = "rewrite"
	PhaseWeight  Phase = "create_weight"
	PhaseMatch   Phase = "match"
	PhaseScore   Phase = "score"
)

// Phases lists all phases in execution order.
var Phases = []Phase{PhaseRewrite, PhaseWeight, PhaseMatch, PhaseScore}

// Breakdown accumulates wall-clock time and invocation counts per phase
// for a single query node. It is safe for concurrent use.
type Breakdown struct {
	mu      sync.Mutex
	started map[Phase]time.Time
	elapsed map[Phase]time.Duration
	counts  map[Phase]int64
}

// NewBreakdown returns an empty breakdown.
func NewBreakdown() *Breakdown {
	return &Breakdown{
		started: make(map[Phase]time.Time),
		elapsed: make(map[Phase]time.Duration),
		counts:  make(map[Phase]int64),
	}
}

// Start begins timing a phase. Each Start must be paired with a Stop.
func (b *Breakdown) Start(p Phase) {
	b.mu.Lock()
	b.started[p] = time.Now()
	b.mu.Unlock()
}

// Stop ends timing a phase, adding to its cumulative elapsed time and
// incrementing its count. Stop without a matching Start is ignored.
func (b *Breakdown) Stop(p Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, ok := b.started[p]
	if !ok {
		return
	}
	delete(b.started, p)
	b.elapsed[p] += time.Since(start)
	b.counts[p]++
}

// Elapsed returns the cumulative time spent in a phase.
func (b *Breakdown) Elapsed(p Phase) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elapsed[p]
}

// Count returns how many times a phase completed.
func (b *Breakdown) Count(p Phase) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[p]
}

// Merge folds another breakdown's completed timings into this one.
func (b *Breakdown) Merge(other *Breakdown) {
	other.mu.Lock()
	elapsed := make(map[Phase]time.Duration, len(other.elapsed))
	counts := make(map[Phase]int64, len(other.counts))
	for p, d := range other.elapsed {
		elapsed[p] = d
	}
	for p, c := range other.counts {
		counts[p] = c
	}
	other.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for p, d := range elapsed {
		b.elapsed[p] += d
	}
	for p, c := range counts {
		b.counts[p] += c
	}
}

// node is one entry in the profile tree.
type node struct {
	query     query.Query
	breakdown *Breakdown
	children  []*node
}

// RewriteRecord describes one successful rewrite round.
type RewriteRecord struct {
	Original  string        `json:"original"`
	Rewritten string        `json:"rewritten"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Profiler collects the timing tree for a single search request. It is
// not shared between requests.
type Profiler struct {
	mu          sync.Mutex
	roots       []*node
	stack       []*node
	rewrites    []RewriteRecord
	rewriteTime time.Duration
}

// NewProfiler returns an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// RewriteBreakdown returns a detached breakdown for timing one rewrite
// round. It is not part of the profile tree until AddRewrittenQuery
// attributes it, so a failed rewrite leaves no trace beyond the timer
// having run.
func (p *Profiler) RewriteBreakdown() *Breakdown {
	return NewBreakdown()
}

// AddRewrittenQuery records a successful rewrite round and folds the
// detached breakdown's rewrite time into the profiler totals.
func (p *Profiler) AddRewrittenQuery(original, rewritten query.Query, b *Breakdown) {
	elapsed := b.Elapsed(PhaseRewrite)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rewrites = append(p.rewrites, RewriteRecord{
		Original:  original.String(),
		Rewritten: rewritten.String(),
		Elapsed:   elapsed,
	})
	p.rewriteTime += elapsed
}

// RewriteTime returns the total time spent in successful rewrites.
func (p *Profiler) RewriteTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewriteTime
}

// Rewrites returns the recorded rewrite rounds.
func (p *Profiler) Rewrites() []RewriteRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RewriteRecord, len(p.rewrites))
	copy(out, p.rewrites)
	return out
}

// QueryBreakdown returns the breakdown for a query node, creating it as a
// child of the node currently being built. The node stays current until
// Pop so that nested weight construction attaches below it.
func (p *Profiler) QueryBreakdown(q query.Query) *Breakdown {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := &node{query: q, breakdown: NewBreakdown()}
	if len(p.stack) == 0 {
		p.roots = append(p.roots, n)
	} else {
		parent := p.stack[len(p.stack)-1]
		parent.children = append(parent.children, n)
	}
	p.stack = append(p.stack, n)
	return n.breakdown
}

// Pop marks the current node's weight construction as finished. Every
// QueryBreakdown must be paired with exactly one Pop.
func (p *Profiler) Pop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stack) > 0 {
		p.stack = p.stack[:len(p.stack)-1]
	}
}

// Result is one node of the reported profile tree.
type Result struct {
	Query     string        `json:"query"`
	Breakdown PhaseReport   `json:"breakdown"`
	Children  []*Result     `json:"children,omitempty"`
	TotalTime time.Duration `json:"total_time"`
}

// PhaseReport holds the per-phase timings and counts of one node.
type PhaseReport struct {
	WeightTime time.Duration `json:"create_weight_ns"`
	MatchTime  time.Duration `json:"match_ns"`
	MatchCount int64         `json:"match_count"`
	ScoreTime  time.Duration `json:"score_ns"`
	ScoreCount int64         `json:"score_count"`
}

// Results renders the collected tree. It must be called after execution
// has finished.
func (p *Profiler) Results() []*Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Result, 0, len(p.roots))
	for _, n := range p.roots {
		out = append(out, renderNode(n))
	}
	return out
}

func renderNode(n *node) *Result {
	report := PhaseReport{
		WeightTime: n.breakdown.Elapsed(PhaseWeight),
		MatchTime:  n.breakdown.Elapsed(PhaseMatch),
		MatchCount: n.breakdown.Count(PhaseMatch),
		ScoreTime:  n.breakdown.Elapsed(PhaseScore),
		ScoreCount: n.breakdown.Count(PhaseScore),
	}
	r := &Result{
		Query:     n.query.String(),
		Breakdown: report,
		TotalTime: report.WeightTime + report.MatchTime + report.ScoreTime,
	}
	for _, c := range n.children {
		child := renderNode(c)
		r.Children = append(r.Children, child)
		r.TotalTime += child.TotalTime
	}
	return r
}
