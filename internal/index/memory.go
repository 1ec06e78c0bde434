package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Memory is the mutable in-memory inverted index. Documents are assigned
// dense uint32 ordinals in insertion order; external IDs are kept in a side
// table. Per-term doc sets are mirrored into roaring bitmaps so boolean
// candidate operations stay cheap.
type Memory struct {
	mu sync.RWMutex

	postings map[Term]map[uint32]*Posting
	bitmaps  map[Term]*roaring.Bitmap

	extIDs []string
	ords   map[string]uint32

	// field → ordinal → analyzed length
	docLengths map[string]map[uint32]int
	// field → docs carrying the field
	fieldDocs map[string]*roaring.Bitmap
	// field → total analyzed tokens
	fieldTokens map[string]int64

	size int64
}

// NewMemory creates an empty Memory index.
func NewMemory() *Memory {
	return &Memory{
		postings:    make(map[Term]map[uint32]*Posting),
		bitmaps:     make(map[Term]*roaring.Bitmap),
		ords:        make(map[string]uint32),
		docLengths:  make(map[string]map[uint32]int),
		fieldDocs:   make(map[string]*roaring.Bitmap),
		fieldTokens: make(map[string]int64),
	}
}

// AddDocument indexes a document given its analyzed token streams, one per
// field, in token order. Re-adding an existing external ID is not supported;
// the caller deduplicates upstream.
func (m *Memory) AddDocument(extID string, fields map[string][]string) {
	occurrences := make(map[Term]*Occurrence)
	lengths := make(map[string]int, len(fields))
	for field, tokens := range fields {
		lengths[field] = len(tokens)
		for pos, tok := range tokens {
			t := Term{Field: field, Text: tok}
			occ, ok := occurrences[t]
			if !ok {
				occ = &Occurrence{Positions: make([]int, 0, 4)}
				occurrences[t] = occ
			}
			occ.Frequency++
			occ.Positions = append(occ.Positions, pos)
		}
	}

	occ := make(map[Term]Occurrence, len(occurrences))
	for t, o := range occurrences {
		occ[t] = *o
	}
	m.RestoreDocument(extID, lengths, occ)
}

// RestoreDocument inserts a document from already-computed occurrence data.
// Used both by AddDocument and by segment recovery at startup.
func (m *Memory) RestoreDocument(extID string, fieldLengths map[string]int, occurrences map[Term]Occurrence) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, exists := m.ords[extID]
	if !exists {
		ord = uint32(len(m.extIDs))
		m.ords[extID] = ord
		m.extIDs = append(m.extIDs, extID)
	}

	for field, length := range fieldLengths {
		if m.docLengths[field] == nil {
			m.docLengths[field] = make(map[uint32]int)
		}
		m.docLengths[field][ord] = length
		if m.fieldDocs[field] == nil {
			m.fieldDocs[field] = roaring.New()
		}
		m.fieldDocs[field].Add(ord)
		m.fieldTokens[field] += int64(length)
	}

	for t, occ := range occurrences {
		docs, ok := m.postings[t]
		if !ok {
			docs = make(map[uint32]*Posting)
			m.postings[t] = docs
			m.bitmaps[t] = roaring.New()
		}
		p := occ
		docs[ord] = &Posting{Doc: ord, Frequency: p.Frequency, Positions: p.Positions}
		m.bitmaps[t].Add(ord)
		m.size += int64(len(t.Field) + len(t.Text) + len(p.Positions)*8 + 48)
	}
	m.size += int64(len(extID) + 32)
}

// DocCount returns the number of indexed documents.
func (m *Memory) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.extIDs)
}

// Size returns an estimate of the index's memory footprint in bytes.
func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Snapshot materialises an immutable point-in-time view of the index. The
// returned Snapshot shares nothing mutable with the Memory index.
func (m *Memory) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		extIDs:     make([]string, len(m.extIDs)),
		postings:   make(map[Term]PostingList, len(m.postings)),
		bitmaps:    make(map[Term]*roaring.Bitmap, len(m.bitmaps)),
		docLengths: make(map[string]map[uint32]int, len(m.docLengths)),
		fields:     make(map[string]FieldStatistics, len(m.fieldDocs)),
		all:        roaring.New(),
	}
	copy(snap.extIDs, m.extIDs)
	if len(m.extIDs) > 0 {
		snap.all.AddRange(0, uint64(len(m.extIDs)))
	}

	for t, docs := range m.postings {
		pl := make(PostingList, 0, len(docs))
		it := m.bitmaps[t].Iterator()
		for it.HasNext() {
			ord := it.Next()
			p := docs[ord]
			positions := make([]int, len(p.Positions))
			copy(positions, p.Positions)
			pl = append(pl, Posting{Doc: ord, Frequency: p.Frequency, Positions: positions})
		}
		snap.postings[t] = pl
		snap.bitmaps[t] = m.bitmaps[t].Clone()
	}

	for field, lengths := range m.docLengths {
		dl := make(map[uint32]int, len(lengths))
		for ord, n := range lengths {
			dl[ord] = n
		}
		snap.docLengths[field] = dl
	}

	sumDocFreq := make(map[string]int64)
	for t, docs := range m.postings {
		sumDocFreq[t.Field] += int64(len(docs))
	}
	for field, docs := range m.fieldDocs {
		snap.fields[field] = FieldStatistics{
			Field:            field,
			DocCount:         int64(docs.GetCardinality()),
			SumTotalTermFreq: m.fieldTokens[field],
			SumDocFreq:       sumDocFreq[field],
		}
	}

	return snap
}
