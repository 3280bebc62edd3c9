package archive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/vector"
)

// importBatchSize bounds records per AppendBatch during Import.
const importBatchSize = 1000

// maxLine is the largest JSON line accepted by readers.
const maxLine = 16 << 20

// entry is one exported record. Vector holds the store BLOB encoding so NaN
// and signed zero survive the round trip.
type entry struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	Vector    []byte    `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// Export writes every record of store to w in id order and returns the
// number written.
func Export(ctx context.Context, store feature.Store, w io.Writer) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	bw := bufio.NewWriter(zw)
	count := 0
	err = store.Scan(ctx, func(r feature.Record) error {
		blob, err := vector.EncodeVector(r.Vector)
		if err != nil {
			return fmt.Errorf("archive: record %d: %w", r.ID, err)
		}
		line, err := gojson.Marshal(entry{
			ID:        r.ID,
			Identity:  r.IdentityID,
			Label:     r.SourceLabel,
			Kind:      string(r.Kind),
			Vector:    blob,
			CreatedAt: r.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("archive: record %d: %w", r.ID, err)
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return count, err
	}
	if err := bw.Flush(); err != nil {
		_ = zw.Close()
		return count, err
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("archive: %w", err)
	}
	return count, nil
}

// Import appends every record read from r to store. Records get new ids;
// identity, label and kind are preserved, so imported aggregates follow
// the latest-wins rule relative to existing rows.
func Import(ctx context.Context, r io.Reader, store feature.Store) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	var batch []feature.Record
	count := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := store.AppendBatch(ctx, batch); err != nil {
			return err
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var e entry
		if err := gojson.Unmarshal(data, &e); err != nil {
			return count, fmt.Errorf("archive: line %d: %w", line, err)
		}
		vec, err := vector.DecodeVector(e.Vector)
		if err != nil {
			return count, fmt.Errorf("archive: line %d: %w", line, err)
		}
		batch = append(batch, feature.Record{
			IdentityID:  e.Identity,
			SourceLabel: e.Label,
			Kind:        feature.Kind(e.Kind),
			Vector:      vec,
		})
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("archive: %w", err)
	}
	return count, flush()
}
