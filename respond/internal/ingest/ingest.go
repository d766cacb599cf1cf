// Package ingest turns raw uploads into batches of event records.
package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/secureops/workbench/respond/internal/payload"
)

// DefaultFilename is used when an upload carries no name.
const DefaultFilename = "upload.jsonl"

// Tags are attached to every event of a batch.
type Tags struct {
	Source string
	Host   string
	User   string
}

// Record is one event to be stored. User overrides the batch user when set.
type Record struct {
	User string
	Raw  payload.Value
}

// Batch is one ingestion unit: the exact bytes received, their hash and the
// records parsed out of them.
type Batch struct {
	Filename string
	Data     []byte
	SHA256   string
	Tags     Tags
	Records  []Record

	// Skipped counts non-blank lines that were not valid JSON.
	Skipped int
}

// ParseJSONL splits data into lines and decodes each non-blank line as one
// JSON document. Lines that do not parse are skipped, never fatal.
func ParseJSONL(filename string, data []byte, tags Tags) *Batch {
	b := newBatch(filename, data, tags)
	lines := bytes.FieldsFunc(data, func(r rune) bool { return r == '\n' || r == '\r' })
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, err := payload.Decode(line)
		if err != nil {
			b.Skipped++
			continue
		}
		b.Records = append(b.Records, Record{Raw: v})
	}
	return b
}

// NewBatch builds a batch from records produced elsewhere, such as a pull
// connector, together with the serialized bytes it stores as evidence.
func NewBatch(filename string, data []byte, tags Tags, records []Record) *Batch {
	b := newBatch(filename, data, tags)
	b.Records = records
	return b
}

func newBatch(filename string, data []byte, tags Tags) *Batch {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = DefaultFilename
	}
	sum := sha256.Sum256(data)
	return &Batch{
		Filename: filename,
		Data:     data,
		SHA256:   hex.EncodeToString(sum[:]),
		Tags:     tags,
	}
}

// EncodeJSONL serializes values one per line with a trailing newline each.
func EncodeJSONL(values []payload.Value) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range values {
		line, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// StorageKey is where the raw bytes of an import are kept.
func StorageKey(jobID, filename string) string {
	return "imports/" + jobID + "/" + SafeFilename(filename)
}

// SafeFilename reduces a client-supplied name to its final path element.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return DefaultFilename
	}
	return name
}
