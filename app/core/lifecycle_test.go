// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"context"
	"migration/app/tree"
	"reflect"
	"testing"
	"time"
)

func runCreate(t *testing.T, e *env) *tree.Datasets {
	t.Helper()
	datasets := testDatasets()
	if err := e.orch.Run(context.Background(), datasets, false, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	e.repo.calls = nil
	e.sleeper.pauses = nil
	return datasets
}

func TestPublishDatasets(t *testing.T) {
	e := newEnv(t)
	datasets := runCreate(t, e)
	ctx := context.Background()
	if err := e.orch.PublishDatasets(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); !reflect.DeepEqual(got, []string{"publish doi:10.5072/PID-dv1 major"}) {
		t.Errorf("calls = %v", got)
	}
	if r := e.record(t, "DS1"); r.PublicationDate != ts {
		t.Errorf("publication date = %q", r.PublicationDate)
	}
	if r := e.record(t, "DS2"); r.PublicationDate != "" {
		t.Errorf("DS2 not marked to publish but published at %q", r.PublicationDate)
	}
	if ds := row(t, e.cfg.DatasetsCsv(), "DS1", "org.dataset_id"); ds["org.is_published"] != "TRUE" || ds["org.doi"] != "doi:10.5072/PID-dv1" {
		t.Errorf("datasets row = %v", ds)
	}

	// the table still says is_published FALSE in memory, the ledger stops the second call
	if err := e.orch.PublishDatasets(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); len(got) != 1 {
		t.Errorf("published twice: %v", got)
	}
}

func TestPublishBeforeUploadUsesTableDoi(t *testing.T) {
	e := newEnv(t)
	datasets := testDatasets()
	ds1, _ := datasets.Get("DS1")
	ds1.Org["doi"] = tree.String("doi:10.5072/OLD")
	ctx := context.Background()
	if err := e.orch.Setup(ctx, datasets, false, false); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.PublishDatasets(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); !reflect.DeepEqual(got, []string{"publish doi:10.5072/OLD major"}) {
		t.Errorf("calls = %v", got)
	}
	if r := e.record(t, "DS1"); r.PublicationDate != ts || r.UploadDate != "" {
		t.Errorf("ledger = %+v", r)
	}
}

func TestPidBoundStagesAfterPublishBeforeUpload(t *testing.T) {
	e := newEnv(t)
	datasets := testDatasets()
	ds1, _ := datasets.Get("DS1")
	ds1.Org["doi"] = tree.String("doi:10.5072/OLD")
	ctx := context.Background()
	if err := e.orch.Setup(ctx, datasets, false, false); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.PublishDatasets(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.EmitDatafileJSON(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.UploadDatafiles(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.DestroyDatasets(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); !reflect.DeepEqual(got, []string{"publish doi:10.5072/OLD major"}) {
		t.Errorf("calls = %v", got)
	}
	r := e.record(t, "DS1")
	if r.Pid != "" || r.DestructionDate != "" || len(r.Datafiles) != 0 {
		t.Errorf("ledger = %+v", r)
	}
	if df := row(t, e.cfg.DatafilesCsv(), "DS1/F1", "org.dataset_id", "org.datafile_id"); df["org.is_uploaded"] != "FALSE" {
		t.Errorf("datafiles row = %v", df)
	}
}

func TestPublishSkipsPublishedInTable(t *testing.T) {
	e := newEnv(t)
	datasets := runCreate(t, e)
	ds1, _ := datasets.Get("DS1")
	ds1.Org["is_published"] = tree.Bool(true)
	if err := e.orch.PublishDatasets(context.Background(), datasets); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); len(got) != 0 {
		t.Errorf("calls = %v", got)
	}
	if c := e.orch.Report().Counts(stagePublishDatasets); c.Skipped != 2 {
		t.Errorf("counts = %+v", c)
	}
}

func updateRows(t *testing.T, e *env) *tree.Datasets {
	t.Helper()
	writeFile(t, e.cfg.DatasetsUpdateCsv(), "org.dataset_id,dv.title,org.to_update,org.is_updated\n"+
		"DS1,New title,TRUE,FALSE\n"+
		"DS2,Other,TRUE,\n")
	updates := tree.NewDatasets()
	ds1 := tree.NewDataset("DS1", "")
	ds1.Metadata["title"] = tree.String("New title")
	ds1.Org["to_update"] = tree.Bool(true)
	ds1.Org["is_updated"] = tree.Bool(false)
	updates.Put(ds1.Id, ds1)
	ds2 := tree.NewDataset("DS2", "")
	ds2.Metadata["title"] = tree.String("Other")
	ds2.Org["to_update"] = tree.Bool(true)
	updates.Put(ds2.Id, ds2)
	return updates
}

func TestUpdateDatasets(t *testing.T) {
	e := newEnv(t)
	runCreate(t, e)
	updates := updateRows(t, e)
	ctx := context.Background()
	if err := e.orch.UpdateDatasets(ctx, updates); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); !reflect.DeepEqual(got, []string{"edit doi:10.5072/PID-dv1 true"}) {
		t.Errorf("calls = %v", got)
	}
	if r := e.record(t, "DS1"); !reflect.DeepEqual(r.UpdateDate, []string{ts}) {
		t.Errorf("update dates = %v", r.UpdateDate)
	}
	row1 := row(t, e.cfg.DatasetsUpdateCsv(), "DS1", "org.dataset_id")
	if row1["org.is_updated"] != "TRUE" || row1["org.to_update"] != "FALSE" {
		t.Errorf("update row = %v", row1)
	}
	if row2 := row(t, e.cfg.DatasetsUpdateCsv(), "DS2", "org.dataset_id"); row2["org.to_update"] != "TRUE" {
		t.Errorf("row without is_updated was changed: %v", row2)
	}
	if !reflect.DeepEqual(e.sleeper.pauses, []time.Duration{4 * time.Second}) {
		t.Errorf("pauses = %v", e.sleeper.pauses)
	}
}

func TestUpdateRequiresUpload(t *testing.T) {
	e := newEnv(t)
	updates := updateRows(t, e)
	if err := e.orch.Setup(context.Background(), testDatasets(), false, false); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.UpdateDatasets(context.Background(), updates); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); len(got) != 0 {
		t.Errorf("calls = %v", got)
	}
}

func TestDestroyIsTerminal(t *testing.T) {
	e := newEnv(t)
	datasets := runCreate(t, e)
	ctx := context.Background()
	if err := e.orch.DestroyDatasets(ctx, datasets); err != nil {
		t.Fatal(err)
	}
	want := []string{"destroy doi:10.5072/PID-dv1", "destroy doi:10.5072/PID-dv2"}
	if got := e.repo.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v", got)
	}
	if r := e.record(t, "DS1"); r.DestructionDate != ts {
		t.Errorf("destruction date = %q", r.DestructionDate)
	}

	for name, op := range map[string]func(context.Context, *tree.Datasets) error{
		"publish": e.orch.PublishDatasets,
		"destroy": e.orch.DestroyDatasets,
		"delete":  e.orch.DeleteDatasets,
		"upload":  e.orch.UploadDatafiles,
	} {
		t.Run(name, func(t *testing.T) {
			if err := op(ctx, datasets); err != nil {
				t.Fatal(err)
			}
			if got := e.repo.Calls(); len(got) != 2 {
				t.Errorf("call after destroy: %v", got[2:])
			}
		})
	}
}

func TestDeleteDatasets(t *testing.T) {
	e := newEnv(t)
	datasets := runCreate(t, e)
	if err := e.orch.DeleteDatasets(context.Background(), datasets); err != nil {
		t.Fatal(err)
	}
	want := []string{"delete doi:10.5072/PID-dv1", "delete doi:10.5072/PID-dv2"}
	if got := e.repo.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v", got)
	}
	if r := e.record(t, "DS2"); r.DeletionDate != ts {
		t.Errorf("deletion date = %q", r.DeletionDate)
	}
	if !reflect.DeepEqual(e.sleeper.pauses, []time.Duration{3 * time.Second, 3 * time.Second}) {
		t.Errorf("pauses = %v", e.sleeper.pauses)
	}
}

func TestDestroyBeforeUploadIsRefused(t *testing.T) {
	e := newEnv(t)
	datasets := testDatasets()
	if err := e.orch.Setup(context.Background(), datasets, false, false); err != nil {
		t.Fatal(err)
	}
	if err := e.orch.DestroyDatasets(context.Background(), datasets); err != nil {
		t.Fatal(err)
	}
	if got := e.repo.Calls(); len(got) != 0 {
		t.Errorf("calls = %v", got)
	}
	if c := e.orch.Report().Counts(stageDestroyDatasets); c.Skipped != 2 {
		t.Errorf("counts = %+v", c)
	}
}
