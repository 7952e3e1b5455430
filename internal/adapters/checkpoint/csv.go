package checkpoint

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/sieve/internal/domain/model"
)

// CSV stores results in a single CSV file, rewritten atomically on Save.
type CSV struct {
	path string
}

// NewCSV returns a CSV store at path. The file is created on first Save.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Load reads all rows. Columns are matched by name so extra columns added by
// hand are tolerated; only id is required.
func (c *CSV) Load(_ context.Context) ([]model.Result, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrMalformed, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.TrimSpace(name)] = i
	}
	if _, ok := index["id"]; !ok {
		return nil, fmt.Errorf("%w: %s has no id column", ErrMalformed, c.path)
	}

	var results []model.Result
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %w", ErrMalformed, err)
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		r, err := decodeRow(get)
		if err != nil {
			return nil, err
		}
		r.ID = strings.TrimSpace(r.ID)
		results = append(results, r)
	}
	if err := validateIDs(results); err != nil {
		return nil, err
	}
	return results, nil
}

// Save writes results to a temporary file next to the target and renames it
// into place, so readers never observe a partial checkpoint.
func (c *CSV) Save(_ context.Context, results []model.Result) error {
	if err := validateIDs(results); err != nil {
		return err
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeCSV(tmp, results); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	committed = true
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (c *CSV) Close() error { return nil }

func writeCSV(w io.Writer, results []model.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(encodeRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
