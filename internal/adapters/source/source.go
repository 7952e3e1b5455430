// Package source reads screening items and pilot labels from CSV files.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/okian/sieve/internal/domain/model"
)

// Column aliases, first match wins.
//
//nolint:gochecknoglobals // header contract
var (
	idColumns     = []string{"id", "record_id"}
	sourceColumns = []string{"source", "search_source", "source_database"}
	labelColumns  = []string{"label", "decision", "human_decision", "adjudicated_decision"}
)

type header map[string]int

func readHeader(cr *csv.Reader) (header, error) {
	row, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrMalformed, err)
	}
	h := make(header, len(row))
	for i, col := range row {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		name := strings.ToLower(strings.TrimSpace(col))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h, nil
}

// index returns the position of the first alias present, or -1.
func (h header) index(aliases ...string) int {
	for _, a := range aliases {
		if i, ok := h[a]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ReadItems reads items from CSV. Columns are matched case-insensitively;
// only title is required. Without an id column, items are numbered 1..n in
// file order. Blank or duplicate ids are rejected.
func ReadItems(r io.Reader) ([]model.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	titleIdx := h.index("title")
	if titleIdx < 0 {
		return nil, fmt.Errorf("%w: missing required column %q", ErrMalformed, "title")
	}
	idIdx := h.index(idColumns...)
	abstractIdx := h.index("abstract")
	keywordsIdx := h.index("keywords")
	yearIdx := h.index("year")
	sourceIdx := h.index(sourceColumns...)

	var items []model.Item
	seen := make(map[string]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %w", ErrMalformed, err)
		}

		id := strconv.Itoa(len(items) + 1)
		if idIdx >= 0 {
			id = field(rec, idIdx)
			if id == "" {
				return nil, fmt.Errorf("%w: line %d: blank id", ErrMalformed, line)
			}
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate id %q (first on line %d)", ErrMalformed, line, id, prev)
		}
		seen[id] = line

		items = append(items, model.Item{
			ID:       id,
			Title:    field(rec, titleIdx),
			Abstract: field(rec, abstractIdx),
			Keywords: field(rec, keywordsIdx),
			Year:     field(rec, yearIdx),
			Source:   field(rec, sourceIdx),
		})
	}
}

// ReadItemsFile opens path and reads items from it.
func ReadItemsFile(path string) ([]model.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open items: %w", err)
	}
	defer func() { _ = f.Close() }()
	items, err := ReadItems(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// ReadLabels reads human screening labels keyed by item id.
func ReadLabels(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idIdx := h.index(idColumns...)
	labelIdx := h.index(labelColumns...)
	if idIdx < 0 || labelIdx < 0 {
		return nil, fmt.Errorf("%w: labels need an id column and one of %s", ErrMalformed, strings.Join(labelColumns, ", "))
	}

	labels := make(map[string]string)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return labels, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %w", ErrMalformed, err)
		}
		id := field(rec, idIdx)
		if id == "" {
			continue
		}
		labels[id] = field(rec, labelIdx)
	}
}

// ReadLabelsFile opens path and reads labels from it.
func ReadLabelsFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadLabels(f)
}
