package index

import (
	"testing"
)

func addDoc(m *Memory, id string, title, body []string) {
	m.AddDocument(id, map[string][]string{"title": title, "body": body})
}

func TestMemoryAssignsOrdinalsInInsertionOrder(t *testing.T) {
	m := NewMemory()
	addDoc(m, "a", []string{"alpha"}, []string{"one"})
	addDoc(m, "b", []string{"beta"}, []string{"two"})
	addDoc(m, "c", []string{"gamma"}, []string{"three"})

	snap := m.Snapshot()
	if snap.DocCount() != 3 {
		t.Fatalf("DocCount = %d, want 3", snap.DocCount())
	}
	for ord, want := range []string{"a", "b", "c"} {
		got, ok := snap.ExternalID(uint32(ord))
		if !ok || got != want {
			t.Errorf("ExternalID(%d) = %q, %v, want %q", ord, got, ok, want)
		}
	}
	if _, ok := snap.ExternalID(3); ok {
		t.Error("ExternalID(3) should not resolve")
	}
}

func TestMemoryPostingsAndFrequencies(t *testing.T) {
	m := NewMemory()
	addDoc(m, "d1", []string{"go"}, []string{"go", "fast", "go"})
	addDoc(m, "d2", []string{"rust"}, []string{"go", "slow"})

	snap := m.Snapshot()
	pl := snap.Postings(Term{Field: "body", Text: "go"})
	if len(pl) != 2 {
		t.Fatalf("postings for body:go = %d entries, want 2", len(pl))
	}
	if pl[0].Doc != 0 || pl[0].Frequency != 2 {
		t.Errorf("doc 0 posting = %+v, want Doc=0 Frequency=2", pl[0])
	}
	if pl[1].Doc != 1 || pl[1].Frequency != 1 {
		t.Errorf("doc 1 posting = %+v, want Doc=1 Frequency=1", pl[1])
	}
	wantPositions := []int{0, 2}
	for i, pos := range pl[0].Positions {
		if pos != wantPositions[i] {
			t.Errorf("positions = %v, want %v", pl[0].Positions, wantPositions)
			break
		}
	}
}

func TestSnapshotTermStatistics(t *testing.T) {
	m := NewMemory()
	addDoc(m, "d1", nil, []string{"go", "go", "fast"})
	addDoc(m, "d2", nil, []string{"go"})
	addDoc(m, "d3", nil, []string{"slow"})

	snap := m.Snapshot()
	ts := snap.TermStatistics(Term{Field: "body", Text: "go"})
	if ts.DocFreq != 2 {
		t.Errorf("DocFreq = %d, want 2", ts.DocFreq)
	}
	if ts.TotalTermFreq != 3 {
		t.Errorf("TotalTermFreq = %d, want 3", ts.TotalTermFreq)
	}

	missing := snap.TermStatistics(Term{Field: "body", Text: "absent"})
	if missing.DocFreq != 0 || missing.TotalTermFreq != 0 {
		t.Errorf("stats for absent term = %+v, want zeros", missing)
	}
}

func TestSnapshotFieldStatistics(t *testing.T) {
	m := NewMemory()
	addDoc(m, "d1", []string{"alpha", "beta"}, []string{"one", "two", "three"})
	addDoc(m, "d2", []string{"alpha"}, nil)

	snap := m.Snapshot()
	fs := snap.FieldStatistics("title")
	if fs.DocCount != 2 {
		t.Errorf("title DocCount = %d, want 2", fs.DocCount)
	}
	if fs.SumTotalTermFreq != 3 {
		t.Errorf("title SumTotalTermFreq = %d, want 3", fs.SumTotalTermFreq)
	}
	// alpha appears in 2 docs, beta in 1.
	if fs.SumDocFreq != 3 {
		t.Errorf("title SumDocFreq = %d, want 3", fs.SumDocFreq)
	}

	unknown := snap.FieldStatistics("nope")
	if unknown.DocCount != 0 {
		t.Errorf("unknown field DocCount = %d, want 0", unknown.DocCount)
	}
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	m := NewMemory()
	addDoc(m, "d1", nil, []string{"stable"})

	snap := m.Snapshot()
	addDoc(m, "d2", nil, []string{"stable", "later"})

	if snap.DocCount() != 1 {
		t.Fatalf("snapshot DocCount changed to %d after later write", snap.DocCount())
	}
	ts := snap.TermStatistics(Term{Field: "body", Text: "stable"})
	if ts.DocFreq != 1 {
		t.Errorf("snapshot DocFreq = %d, want 1", ts.DocFreq)
	}
	if got := snap.Bitmap(Term{Field: "body", Text: "later"}).GetCardinality(); got != 0 {
		t.Errorf("snapshot sees %d docs for a term indexed after the snapshot", got)
	}
}

func TestRestoreDocumentMatchesAddDocument(t *testing.T) {
	direct := NewMemory()
	addDoc(direct, "d1", []string{"alpha"}, []string{"one", "two", "one"})

	restored := NewMemory()
	restored.RestoreDocument("d1",
		map[string]int{"title": 1, "body": 3},
		map[Term]Occurrence{
			{Field: "title", Text: "alpha"}: {Frequency: 1, Positions: []int{0}},
			{Field: "body", Text: "one"}:    {Frequency: 2, Positions: []int{0, 2}},
			{Field: "body", Text: "two"}:    {Frequency: 1, Positions: []int{1}},
		})

	ds, rs := direct.Snapshot(), restored.Snapshot()
	if ds.DocCount() != rs.DocCount() {
		t.Fatalf("doc counts differ: %d vs %d", ds.DocCount(), rs.DocCount())
	}
	for _, term := range ds.Terms() {
		want := ds.TermStatistics(term)
		got := rs.TermStatistics(term)
		if want != got {
			t.Errorf("stats for %s differ: %+v vs %+v", term, want, got)
		}
	}
	if ds.DocLength("body", 0) != rs.DocLength("body", 0) {
		t.Errorf("body lengths differ: %d vs %d", ds.DocLength("body", 0), rs.DocLength("body", 0))
	}
}
