package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxImportLine = 4 << 20

// Import reads newline-delimited JSON product records from r and inserts them
// in batches of batchSize. Blank lines are ignored. It returns the number of
// records written.
func Import(ctx context.Context, w Writer, r io.Reader, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxImportLine)

	written := 0
	batch := make([]ProductRecord, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.Insert(ctx, batch...); err != nil {
			return fmt.Errorf("insert batch ending at record %d: %w", written+len(batch), err)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec ProductRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return written, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.ID) == "" {
			return written, fmt.Errorf("line %d: missing id", line)
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return written, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return written, flush()
}
