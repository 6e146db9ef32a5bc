// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"migration/app/logging"
	"migration/app/tabular"
	"migration/app/tree"
	"regexp"
	"slices"
	"strings"
)

// InputError is a malformed cell in the source table. It aborts the import.
type InputError struct {
	Row    int // 1-based data row, the header not counted
	Column string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("row %d, column %v: %v", e.Row, e.Column, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

type Options struct {
	ManagedPrefix        string
	OrganizationalPrefix string
	DatasetJsonKeys      []string
	DatafileJsonKeys     []string
}

type Importer struct {
	opts         Options
	datasetJson  map[string]bool
	datafileJson map[string]bool
	logger       *slog.Logger
}

var spaces = regexp.MustCompile(` {2,}`)

func New(opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.Logger
	}
	return &Importer{
		opts:         opts,
		datasetJson:  toSet(opts.DatasetJsonKeys),
		datafileJson: toSet(opts.DatafileJsonKeys),
		logger:       logger,
	}
}

func toSet(keys []string) map[string]bool {
	res := map[string]bool{}
	for _, k := range keys {
		res[k] = true
	}
	return res
}

func clean(s string) string {
	return spaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

// typed coerces the TRUE/FALSE literals to booleans.
func typed(s string) tree.Value {
	switch s {
	case "TRUE":
		return tree.Bool(true)
	case "FALSE":
		return tree.Bool(false)
	}
	return tree.String(s)
}

func decode(s string) (tree.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return tree.Structured{V: v}, nil
}

// split returns the namespace and the field name of a column: "dv.title" -> ("dv", "title").
// pathSegment checks a value used as a single file or folder name in the ingest tree.
func pathSegment(s string) error {
	if s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return fmt.Errorf("%q is not usable as a file or folder name", s)
	}
	return nil
}

func split(column string) (string, string) {
	parts := strings.Split(column, ".")
	if len(parts) < 2 {
		return "", column
	}
	return parts[0], parts[1]
}

func sortedColumns(row tabular.Row) []string {
	return slices.Sorted(maps.Keys(row))
}

// ImportDatasets builds the dataset records from the datasets table, in row order.
// Rows without a parent collection id are left out.
func (im *Importer) ImportDatasets(rows []tabular.Row) (*tree.Datasets, error) {
	datasets, err := im.importDatasets(rows, true)
	if err != nil {
		return nil, err
	}
	im.logger.Info("datasets imported", "count", datasets.Len())
	return datasets, nil
}

// ImportUpdates reads the rows of an update table. They follow the datasets table
// layout but need no parent collection id.
func (im *Importer) ImportUpdates(rows []tabular.Row) (*tree.Datasets, error) {
	return im.importDatasets(rows, false)
}

func (im *Importer) importDatasets(rows []tabular.Row, requireParent bool) (*tree.Datasets, error) {
	datasets := tree.NewDatasets()
	for i, row := range rows {
		var id, dataverseId string
		metadata, org, extra := tree.Metadata{}, tree.Metadata{}, tree.Metadata{}
		for _, column := range sortedColumns(row) {
			raw := clean(row[column])
			if raw == "" {
				continue
			}
			namespace, key := split(column)
			switch namespace {
			case im.opts.ManagedPrefix:
				if key == "otherId" {
					raw = strings.ReplaceAll(raw, "!", "_")
				}
				if im.datasetJson[key] {
					v, err := decode(raw)
					if err != nil {
						return nil, &InputError{Row: i + 1, Column: column, Err: err}
					}
					metadata[key] = v
				} else {
					metadata[key] = typed(raw)
				}
			case im.opts.OrganizationalPrefix:
				switch key {
				case "dataset_id":
					if err := pathSegment(raw); err != nil {
						return nil, &InputError{Row: i + 1, Column: column, Err: err}
					}
					id = raw
				case "dataverse_id":
					dataverseId = raw
				default:
					org[key] = typed(raw)
				}
			default:
				extra[column] = typed(raw)
			}
		}
		if requireParent && dataverseId == "" {
			continue
		}
		if id == "" {
			im.logger.Warn("dataset row without id skipped", "row", i+1)
			continue
		}
		ds := tree.NewDataset(id, dataverseId)
		ds.Metadata, ds.Org, ds.Extra = metadata, org, extra
		datasets.Put(id, ds)
	}
	return datasets, nil
}

// ImportDatafiles attaches the datafiles flagged for upload to their datasets.
// A datafile whose dataset is not in datasets is dropped.
func (im *Importer) ImportDatafiles(datasets *tree.Datasets, rows []tabular.Row) error {
	count := 0
	toUpload := im.opts.OrganizationalPrefix + ".to_upload"
	for i, row := range rows {
		if row[toUpload] != "TRUE" {
			continue
		}
		df := &tree.Datafile{Metadata: tree.Metadata{}, Org: tree.Metadata{}}
		for _, column := range sortedColumns(row) {
			raw := row[column]
			if clean(raw) == "" {
				continue
			}
			namespace, key := split(column)
			switch namespace {
			case im.opts.ManagedPrefix:
				if im.datafileJson[key] {
					v, err := decode(clean(raw))
					if err != nil {
						return &InputError{Row: i + 1, Column: column, Err: err}
					}
					if key == "categories" {
						categories, err := stringList(v)
						if err != nil {
							return &InputError{Row: i + 1, Column: column, Err: err}
						}
						df.Categories = categories
					}
					df.Metadata[key] = v
					continue
				}
				if key == "title" {
					raw = strings.ReplaceAll(raw, ";", " - ")
					raw = strings.ReplaceAll(raw, "'", `\'`)
				}
				df.Metadata[key] = typed(clean(raw))
			case im.opts.OrganizationalPrefix:
				switch key {
				case "datafile_id", "dataset_id", "filename":
					if err := pathSegment(clean(raw)); err != nil {
						return &InputError{Row: i + 1, Column: column, Err: err}
					}
				}
				switch key {
				case "datafile_id":
					df.Id = clean(raw)
				case "dataset_id":
					df.DatasetId = clean(raw)
				case "filename":
					df.Filename = clean(raw)
				default:
					df.Org[key] = typed(clean(raw))
				}
			}
		}
		ds, ok := datasets.Get(df.DatasetId)
		if !ok {
			continue
		}
		if df.Id == "" || df.Filename == "" {
			im.logger.Warn("datafile row without id or filename skipped", "row", i+1, "dataset", df.DatasetId)
			continue
		}
		ds.AddDatafile(df)
		count++
	}
	im.logger.Info("datafiles imported", "count", count)
	return nil
}

func stringList(v tree.Value) ([]string, error) {
	s, _ := v.(tree.Structured)
	list, ok := s.V.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON list of strings")
	}
	res := make([]string, 0, len(list))
	for _, e := range list {
		str, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected a JSON list of strings, found %v", e)
		}
		res = append(res, str)
	}
	return res, nil
}
