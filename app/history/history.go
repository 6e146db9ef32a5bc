// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

// Package history persists the per-dataset ledger of completed lifecycle steps.
// A step whose date is set in the ledger is never repeated.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// TimeFormat is the layout of every date in the ledger.
const TimeFormat = "2006-01-02 15:04:05"

var ErrNotFound = errors.New("history not found")

type Record struct {
	CreationDate       string                    `json:"creation_date"`
	DatasetId          string                    `json:"dataset_id"`
	DatasetFoldername  string                    `json:"dataset_foldername"`
	UploadDate         string                    `json:"upload_date,omitempty"`
	Pid                string                    `json:"pid,omitempty"`
	DataverseDatasetId string                    `json:"dataverse_datasetId,omitempty"`
	PublicationDate    string                    `json:"publication_date,omitempty"`
	DestructionDate    string                    `json:"destruction_date,omitempty"`
	DeletionDate       string                    `json:"deletion_date,omitempty"`
	UpdateDate         []string                  `json:"update_date,omitempty"`
	Datafiles          map[string]DatafileRecord `json:"datafiles,omitempty"`
}

type DatafileRecord struct {
	UploadDate string `json:"upload_date,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

func (r *Record) DatafileUploaded(datafileId string) bool {
	return r.Datafiles[datafileId].UploadDate != ""
}

// MarkUploaded sets the upload date and the pid, unless they are already set.
func (r *Record) MarkUploaded(ts, pid string) {
	if r.UploadDate == "" {
		r.UploadDate = ts
	}
	if r.Pid == "" {
		r.Pid = pid
	}
}

func (r *Record) MarkDatafileUploaded(datafileId, filename, ts string) {
	if r.Datafiles == nil {
		r.Datafiles = map[string]DatafileRecord{}
	}
	if r.DatafileUploaded(datafileId) {
		return
	}
	r.Datafiles[datafileId] = DatafileRecord{UploadDate: ts, Filename: filename}
}

// verifyFollows returns an error when r clears or changes a set-once field of prev.
func (r *Record) verifyFollows(prev *Record) error {
	setOnce := []struct {
		name      string
		old, next string
	}{
		{"upload_date", prev.UploadDate, r.UploadDate},
		{"pid", prev.Pid, r.Pid},
		{"publication_date", prev.PublicationDate, r.PublicationDate},
		{"destruction_date", prev.DestructionDate, r.DestructionDate},
		{"deletion_date", prev.DeletionDate, r.DeletionDate},
	}
	for _, f := range setOnce {
		if f.old != "" && f.old != f.next {
			return fmt.Errorf("%v of dataset %v is already set to %q", f.name, prev.DatasetId, f.old)
		}
	}
	for id, df := range prev.Datafiles {
		if df.UploadDate != "" && r.Datafiles[id].UploadDate != df.UploadDate {
			return fmt.Errorf("upload_date of datafile %v of dataset %v is already set", id, prev.DatasetId)
		}
	}
	if len(r.UpdateDate) < len(prev.UpdateDate) {
		return fmt.Errorf("update_date of dataset %v can only grow", prev.DatasetId)
	}
	return nil
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Ledger struct {
	clock Clock
}

// NewLedger returns a ledger stamping dates with clock; a nil clock uses the system time.
func NewLedger(clock Clock) *Ledger {
	if clock == nil {
		clock = systemClock{}
	}
	return &Ledger{clock: clock}
}

func (l *Ledger) Timestamp() string {
	return l.clock.Now().Format(TimeFormat)
}

// Path returns the ledger file of the dataset directory; the dataset id is the directory name.
func Path(datasetDir string) string {
	id := filepath.Base(datasetDir)
	return filepath.Join(datasetDir, id+"_history.json")
}

func (l *Ledger) Read(datasetDir string) (*Record, error) {
	b, err := os.ReadFile(Path(datasetDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, filepath.Base(datasetDir))
	}
	if err != nil {
		return nil, err
	}
	r := &Record{}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("history %v is not valid: %w", Path(datasetDir), err)
	}
	return r, nil
}

// Save overwrites the ledger of the dataset. Dates that are already persisted can not be cleared or changed.
func (l *Ledger) Save(datasetDir string, r *Record) error {
	prev, err := l.Read(datasetDir)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if prev != nil {
		if err := r.verifyFollows(prev); err != nil {
			return err
		}
	}
	return write(datasetDir, r)
}

// Initialize creates a fresh record when overwrite is set or no record exists yet,
// otherwise it re-saves the existing one.
func (l *Ledger) Initialize(datasetDir, datasetId string, overwrite bool) (*Record, error) {
	if !overwrite {
		r, err := l.Read(datasetDir)
		if err == nil {
			return r, write(datasetDir, r)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	r := &Record{
		CreationDate:      l.Timestamp(),
		DatasetId:         datasetId,
		DatasetFoldername: filepath.Base(datasetDir),
	}
	return r, write(datasetDir, r)
}

func write(datasetDir string, r *Record) (retErr error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	path := Path(datasetDir)
	tmp, err := os.CreateTemp(datasetDir, ".history.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if retErr != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
