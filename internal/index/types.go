// Package index implements the field-aware in-memory inverted index and the
// immutable point-in-time Snapshot that queries execute against.
package index

// Term identifies a single indexed term: a field name plus the analyzed text.
type Term struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

func (t Term) String() string {
	return t.Field + ":" + t.Text
}

// TermStatistics summarises a term's frequency within a corpus. The corpus
// may be the local snapshot or a virtual corpus aggregated across shards.
type TermStatistics struct {
	Term          Term  `json:"term"`
	DocFreq       int64 `json:"doc_freq"`
	TotalTermFreq int64 `json:"total_term_freq"`
}

// FieldStatistics summarises a field's corpus-level counts.
type FieldStatistics struct {
	Field            string `json:"field"`
	DocCount         int64  `json:"doc_count"`
	SumTotalTermFreq int64  `json:"sum_total_term_freq"`
	SumDocFreq       int64  `json:"sum_doc_freq"`
}

// Posting records one document's occurrences of a term. Doc is the
// snapshot-local ordinal, not the external document ID.
type Posting struct {
	Doc       uint32
	Frequency int
	Positions []int
}

// PostingList is a slice of postings ordered by ascending doc ordinal.
type PostingList []Posting

// Occurrence is the per-document term occurrence data used when restoring
// postings from a persisted segment.
type Occurrence struct {
	Frequency int
	Positions []int
}
