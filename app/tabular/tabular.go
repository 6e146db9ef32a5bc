// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Row maps a column name to the raw cell value.
type Row map[string]string

type Table struct {
	Header []string
	Rows   []Row
}

// Key joins the values of the key columns of a row; it is the entity id used by UpdateRows.
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}

func ReadFile(path string, delimiter rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f, delimiter)
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w", path, err)
	}
	return t, nil
}

func Read(r io.Reader, delimiter rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	t := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

type Options struct {
	Delimiter  rune
	KeyColumns []string // columns whose joined values identify the entity of a row
}

// UpdateRows rewrites the table at path, overlaying updates[key] on every row whose key matches.
// Rows without an update and the header are written unchanged. The original file is replaced atomically
// and keeps its mode.
func UpdateRows(path string, updates map[string]map[string]string, opts Options) (retErr error) {
	if len(updates) == 0 {
		return nil
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if len(opts.KeyColumns) == 0 {
		return fmt.Errorf("no key columns given for %v", path)
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	reader := csv.NewReader(in)
	reader.Comma = opts.Delimiter
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading header of %v: %w", path, err)
	}
	index := map[string]int{}
	for i, col := range header {
		index[col] = i
	}
	for _, col := range opts.KeyColumns {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("key column %v not found in %v", col, path)
		}
	}
	for _, cols := range updates {
		for col := range cols {
			if _, ok := index[col]; !ok {
				return fmt.Errorf("column %v not found in %v", col, path)
			}
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	writer := csv.NewWriter(tmp)
	writer.Comma = opts.Delimiter
	if err := writer.Write(header); err != nil {
		return err
	}
	keyParts := make([]string, len(opts.KeyColumns))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %v: %w", path, err)
		}
		for i, col := range opts.KeyColumns {
			keyParts[i] = record[index[col]]
		}
		if cols, ok := updates[Key(keyParts...)]; ok {
			record = slices.Clone(record)
			for col, val := range cols {
				record[index[col]] = val
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %v: %w", path, err)
	}
	return nil
}
