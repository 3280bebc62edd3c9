package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/viant/sqlite-facevec/aggregate"
	"github.com/viant/sqlite-facevec/photos"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encoding is one line of encoder output. Identity may be omitted, in which
// case it is derived from Label.
type Encoding struct {
	Identity string    `json:"identity,omitempty"`
	Label    string    `json:"label"`
	Vector   []float64 `json:"vector,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Batch groups the photos of one identity.
type Batch struct {
	IdentityID string
	Photos     []aggregate.Photo
}

// IsEncodingFile reports whether path looks like encoder output.
func IsEncodingFile(path string) bool {
	p := strings.ToLower(path)
	for _, suffix := range []string{".jsonl", ".ndjson", ".jsonl.zst", ".ndjson.zst"} {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// ReadEncodings reads encoder JSON lines from r, zstd-compressed or plain,
// and groups them by identity in order of first appearance. A line with a
// non-empty error becomes a failed photo.
func ReadEncodings(r io.Reader) ([]Batch, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	var batches []Batch
	positions := map[string]int{}
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var e Encoding
		if err := gojson.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("archive: encodings line %d: %w", line, err)
		}
		id := e.Identity
		if id == "" {
			id = photos.IdentityFromFilename(e.Label)
		}
		if id == "" {
			return nil, fmt.Errorf("archive: encodings line %d: no identity for label %q", line, e.Label)
		}
		photo := aggregate.Photo{Label: e.Label, Vector: e.Vector}
		if e.Error != "" {
			photo = aggregate.Photo{Label: e.Label, Err: errors.New(e.Error)}
		}
		batches = appendPhotos(batches, positions, id, photo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return batches, nil
}

// MergeBatches folds batches of the same identity into one, keeping the
// order of first appearance and the photo order within each identity.
func MergeBatches(batches []Batch) []Batch {
	var merged []Batch
	positions := map[string]int{}
	for _, b := range batches {
		merged = appendPhotos(merged, positions, b.IdentityID, b.Photos...)
	}
	return merged
}

func appendPhotos(batches []Batch, positions map[string]int, id string, items ...aggregate.Photo) []Batch {
	pos, ok := positions[id]
	if !ok {
		pos = len(batches)
		positions[id] = pos
		batches = append(batches, Batch{IdentityID: id})
	}
	batches[pos].Photos = append(batches[pos].Photos, items...)
	return batches
}

// ErrNoEncoding is returned by a lookup encoder for a photo absent from the
// encoder output.
var ErrNoEncoding = errors.New("archive: no encoding for photo")

// LookupEncoder serves pre-computed encodings keyed by photo base name.
func LookupEncoder(batches []Batch) aggregate.EncodeFunc {
	byLabel := map[string]aggregate.Photo{}
	for _, b := range batches {
		for _, p := range b.Photos {
			byLabel[filepath.Base(p.Label)] = p
		}
	}
	return func(ctx context.Context, path string) ([]float64, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, ok := byLabel[filepath.Base(path)]
		if !ok {
			return nil, ErrNoEncoding
		}
		if p.Err != nil {
			return nil, p.Err
		}
		return p.Vector, nil
	}
}
