package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Reader opens a segment file and exposes its document table and term
// postings. The dictionary is held in memory; postings are read on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   Header
	docs     []DocRecord
	dict     []DictEntry
	postBase int64
}

// OpenReader validates and opens the segment at path.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := Header{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DocsOffset: int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DocsSize:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[64:72])),
	}

	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DocsOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	var docs []DocRecord
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing document table: %w", err)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	sort.Slice(dict, func(i, j int) bool {
		if dict[i].Field != dict[j].Field {
			return dict[i].Field < dict[j].Field
		}
		return dict[i].Text < dict[j].Text
	})

	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		docs:     docs,
		dict:     dict,
		postBase: header.PostOffset,
	}, nil
}

// Docs returns the segment's document table.
func (r *Reader) Docs() []DocRecord {
	return r.docs
}

// Postings returns the persisted postings for a field-qualified term, or
// nil if the segment does not contain it.
func (r *Reader) Postings(field, text string) ([]TermPosting, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		if r.dict[i].Field != field {
			return r.dict[i].Field >= field
		}
		return r.dict[i].Text >= text
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Text != text {
		return nil, nil
	}
	entry := r.dict[idx]
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings []TermPosting
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// ReadAll streams every term entry in the segment with its postings loaded.
// Used for index recovery at startup.
func (r *Reader) ReadAll() ([]TermEntry, error) {
	entries := make([]TermEntry, 0, len(r.dict))
	for _, de := range r.dict {
		postings, err := r.Postings(de.Field, de.Text)
		if err != nil {
			return nil, fmt.Errorf("loading term %s:%s: %w", de.Field, de.Text, err)
		}
		entries = append(entries, TermEntry{
			Field:    de.Field,
			Text:     de.Text,
			Postings: postings,
		})
	}
	return entries, nil
}

// Terms returns the number of distinct terms in the segment.
func (r *Reader) Terms() int {
	return len(r.dict)
}

// DocCount returns the number of documents in the segment.
func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
