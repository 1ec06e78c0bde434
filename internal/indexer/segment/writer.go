// Package segment persists index contents as immutable on-disk segment
// files. A segment carries a fixed binary header, a JSON document table, a
// postings region, a JSON term dictionary, and a checksummed footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// MagicBytes identifies a valid .stseg segment file ("STSG").
const (
	MagicBytes    uint32 = 0x53545347
	FormatVersion uint32 = 1
	HeaderSize    int    = 72
	FooterSize    int    = 16
)

// Header is the fixed-size block written at the start of every segment.
type Header struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	CreatedAt   int64
	DocsOffset  int64
	DocsSize    int64
	PostOffset  int64
	PostSize    int64
	DictOffset  int64
	DictSize    int64
}

// DocRecord is a persisted document: its external ID and per-field analyzed
// lengths. Postings reference documents by external ID so segments survive
// ordinal reassignment across restarts.
type DocRecord struct {
	ID           string         `json:"id"`
	FieldLengths map[string]int `json:"lens"`
}

// TermPosting is one document's occurrences of a term, persisted form.
type TermPosting struct {
	DocID     string `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

// TermEntry groups all postings for one field-qualified term.
type TermEntry struct {
	Field    string        `json:"field"`
	Text     string        `json:"text"`
	Postings []TermPosting `json:"-"`
}

// DictEntry locates a term's postings block within the postings region.
type DictEntry struct {
	Field      string `json:"field"`
	Text       string `json:"text"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"df"`
}

// Writer serialises document and term data into new .stseg segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing the given documents
// and term entries. It writes to a .tmp file first and renames on success.
func (w *Writer) Write(docs []DocRecord, entries []TermEntry) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d.stseg", time.Now().UnixNano())
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(docs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	docsStart, _ := f.Seek(0, 1)
	docsData, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("marshaling document table: %w", err)
	}
	if _, err := f.Write(docsData); err != nil {
		return "", fmt.Errorf("writing document table: %w", err)
	}

	postingsStart, _ := f.Seek(0, 1)
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		offset, _ := f.Seek(0, 1)
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %s:%s: %w", entry.Field, entry.Text, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %s:%s: %w", entry.Field, entry.Text, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Text:       entry.Text,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
	}
	postingsEnd, _ := f.Seek(0, 1)

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictEnd, _ := f.Seek(0, 1)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(docsData))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(docsStart))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(len(docsData)))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(postingsEnd-postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(postingsEnd))
	binary.LittleEndian.PutUint64(headerBytes[64:72], uint64(dictEnd-postingsEnd))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
