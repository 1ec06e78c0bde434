package index

import "github.com/RoaringBitmap/roaring"

// Snapshot is an immutable point-in-time view of an index shard. One query
// executes against exactly one Snapshot; the Snapshot outlives any execution
// context built on top of it.
type Snapshot struct {
	extIDs     []string
	postings   map[Term]PostingList
	bitmaps    map[Term]*roaring.Bitmap
	docLengths map[string]map[uint32]int
	fields     map[string]FieldStatistics
	all        *roaring.Bitmap
}

// DocCount returns the number of documents visible in this snapshot.
func (s *Snapshot) DocCount() int64 {
	return int64(len(s.extIDs))
}

// ExternalID maps a snapshot-local ordinal back to the external document ID.
func (s *Snapshot) ExternalID(doc uint32) (string, bool) {
	if int(doc) >= len(s.extIDs) {
		return "", false
	}
	return s.extIDs[doc], true
}

// Postings returns the posting list for a term, or nil if the term does not
// occur. The returned slice must not be mutated.
func (s *Snapshot) Postings(t Term) PostingList {
	return s.postings[t]
}

// Bitmap returns the set of doc ordinals containing the term. The returned
// bitmap must not be mutated; callers clone before combining.
func (s *Snapshot) Bitmap(t Term) *roaring.Bitmap {
	if bm, ok := s.bitmaps[t]; ok {
		return bm
	}
	return roaring.New()
}

// All returns the set of every doc ordinal in the snapshot. The returned
// bitmap must not be mutated.
func (s *Snapshot) All() *roaring.Bitmap {
	return s.all
}

// DocLength returns the analyzed token count of a field in a document.
func (s *Snapshot) DocLength(field string, doc uint32) int {
	if lengths, ok := s.docLengths[field]; ok {
		return lengths[doc]
	}
	return 0
}

// TermStatistics computes local corpus statistics for a term from this
// snapshot alone.
func (s *Snapshot) TermStatistics(t Term) TermStatistics {
	stats := TermStatistics{Term: t}
	for _, p := range s.postings[t] {
		stats.DocFreq++
		stats.TotalTermFreq += int64(p.Frequency)
	}
	return stats
}

// FieldStatistics returns local corpus statistics for a field. Unknown
// fields yield zero-valued statistics.
func (s *Snapshot) FieldStatistics(field string) FieldStatistics {
	if fs, ok := s.fields[field]; ok {
		return fs
	}
	return FieldStatistics{Field: field}
}

// Fields returns the names of all fields present in the snapshot.
func (s *Snapshot) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for f := range s.fields {
		names = append(names, f)
	}
	return names
}

// Terms returns every indexed term. Intended for segment persistence and
// tests, not the query path.
func (s *Snapshot) Terms() []Term {
	terms := make([]Term, 0, len(s.postings))
	for t := range s.postings {
		terms = append(terms, t)
	}
	return terms
}
