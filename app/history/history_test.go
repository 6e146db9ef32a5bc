// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

func datasetDir(t *testing.T, id string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestReadNotFound(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Read(datasetDir(t, "DS1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInitialize(t *testing.T) {
	clock := &fixedClock{time.Date(2020, 4, 25, 10, 30, 0, 0, time.UTC)}
	l := NewLedger(clock)
	dir := datasetDir(t, "DS1")

	r, err := l.Initialize(dir, "DS1", false)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if r.CreationDate != "2020-04-25 10:30:00" || r.DatasetId != "DS1" || r.DatasetFoldername != "DS1" {
		t.Errorf("record = %+v", r)
	}
	if _, err := os.Stat(filepath.Join(dir, "DS1_history.json")); err != nil {
		t.Fatalf("history file missing: %v", err)
	}

	r.MarkUploaded("2020-04-25 11:00:00", "doi:10.11587/ABC123")
	if err := l.Save(dir, r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock.t = clock.t.Add(time.Hour)
	kept, err := l.Initialize(dir, "DS1", false)
	if err != nil {
		t.Fatal(err)
	}
	if kept.Pid != "doi:10.11587/ABC123" || kept.CreationDate != "2020-04-25 10:30:00" {
		t.Errorf("existing record not preserved: %+v", kept)
	}

	fresh, err := l.Initialize(dir, "DS1", true)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Pid != "" || fresh.CreationDate != "2020-04-25 11:30:00" {
		t.Errorf("overwrite did not reset: %+v", fresh)
	}
}

func TestLedgerFileMode(t *testing.T) {
	l := NewLedger(nil)
	dir := datasetDir(t, "DS1")
	r, err := l.Initialize(dir, "DS1", false)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("new ledger mode = %v", info.Mode().Perm())
	}

	if err := os.Chmod(Path(dir), 0o664); err != nil {
		t.Fatal(err)
	}
	r.MarkUploaded("2020-04-25 11:00:00", "doi:10.11587/ABC123")
	if err := l.Save(dir, r); err != nil {
		t.Fatal(err)
	}
	if info, err = os.Stat(Path(dir)); err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o664 {
		t.Errorf("saved ledger mode = %v", info.Mode().Perm())
	}
}

func TestSaveRefusesToClearDates(t *testing.T) {
	l := NewLedger(nil)
	dir := datasetDir(t, "DS1")
	r, err := l.Initialize(dir, "DS1", false)
	if err != nil {
		t.Fatal(err)
	}
	r.MarkUploaded("2020-04-25 11:00:00", "doi:10.11587/ABC123")
	r.MarkDatafileUploaded("F1", "f.sav", "2020-04-25 11:05:00")
	if err := l.Save(dir, r); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(r *Record)
	}{
		{"upload date", func(r *Record) { r.UploadDate = "" }},
		{"pid", func(r *Record) { r.Pid = "doi:10.11587/OTHER" }},
		{"datafile", func(r *Record) { delete(r.Datafiles, "F1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := l.Read(dir)
			if err != nil {
				t.Fatal(err)
			}
			tt.modify(r)
			if err := l.Save(dir, r); err == nil {
				t.Error("expected error")
			}
		})
	}

	r, _ = l.Read(dir)
	r.MarkUploaded("2021-01-01 00:00:00", "doi:10.11587/OTHER")
	r.UpdateDate = append(r.UpdateDate, "2021-01-01 00:00:00")
	if err := l.Save(dir, r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	r, _ = l.Read(dir)
	if r.Pid != "doi:10.11587/ABC123" || r.UploadDate != "2020-04-25 11:00:00" || len(r.UpdateDate) != 1 {
		t.Errorf("record = %+v", r)
	}
	if !r.DatafileUploaded("F1") || r.Datafiles["F1"].Filename != "f.sav" {
		t.Errorf("datafiles = %+v", r.Datafiles)
	}
}

func TestReadLegacyRecord(t *testing.T) {
	dir := datasetDir(t, "DS7")
	legacy := `{"creation_date": "2020-03-24 09:00:00", "dataset_id": "DS7", "dataset_foldername": "DS7",
"upload_date": "2020-03-24 10:00:00", "pid": "doi:10.11587/X", "dataverse_datasetId": "42",
"datafiles": {"F1": {"upload_date": "2020-03-24 10:05:00", "filename": "f.sav"}}}`
	if err := os.WriteFile(filepath.Join(dir, "DS7_history.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := NewLedger(nil).Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.DataverseDatasetId != "42" || !r.DatafileUploaded("F1") || r.DatafileUploaded("F2") {
		t.Errorf("record = %+v", r)
	}
}
