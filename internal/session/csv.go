package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/srg/senselog/internal/protocol"
)

// CSVSink serializes a session snapshot to a delimited file, one row
// per reading, columns in protocol schema order.
type CSVSink struct {
	Path string
}

// Write persists the session snapshot to c.Path, creating or
// overwriting the file.
func (c *CSVSink) Write(s *Session) error {
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.Path, err)
	}

	if err := writeCSV(f, s); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.Path, err)
	}
	return nil
}

// writeCSV streams the snapshot as CSV to w. Split out from Write so
// tests can assert on output without touching the filesystem.
func writeCSV(w io.Writer, s *Session) error {
	cw := csv.NewWriter(w)
	schema := protocol.Schema()

	if err := cw.Write(protocol.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, 0, schema.Len())
	for _, r := range s.Snapshot() {
		row = row[:0]
		for pair := schema.Oldest(); pair != nil; pair = pair.Next() {
			row = append(row, pair.Value(r))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
