// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

// Package core drives datasets and datafiles through their lifecycle against the repository.
// Every remote mutation is gated by the history ledger of the dataset and recorded in it afterwards.
package core

import (
	"context"
	"errors"
	"log/slog"
	"migration/app/config"
	"migration/app/dataverse"
	"migration/app/history"
	"migration/app/oais"
	"migration/app/tabular"
	"migration/app/tree"
)

// Repository is the remote repository as seen by the orchestrator. *dataverse.Client implements it.
type Repository interface {
	CreateDataset(ctx context.Context, alias string, datasetJson []byte) (dataverse.CreatedDataset, error)
	GetDataset(ctx context.Context, id string, isPid bool) (dataverse.DatasetInfo, error)
	UploadDatafile(ctx context.Context, pid, filePath string, jsonData []byte) (*dataverse.Response, error)
	PublishDataset(ctx context.Context, pid, releaseType string) (*dataverse.Response, error)
	DestroyDataset(ctx context.Context, pid string) (*dataverse.Response, error)
	DeleteDataset(ctx context.Context, pid string) (*dataverse.Response, error)
	EditDatasetMetadata(ctx context.Context, pid string, fieldsJson []byte, replace bool) (*dataverse.Response, error)
}

const (
	stageSetup           = "setup"
	stageDatasetJSON     = "datasets json"
	stageUploadDatasets  = "upload datasets"
	stageDatafileJSON    = "datafiles json"
	stageUploadDatafiles = "upload datafiles"
	stagePublishDatasets = "publish datasets"
	stageUpdateDatasets  = "update datasets"
	stageDestroyDatasets = "destroy datasets"
	stageDeleteDatasets  = "delete datasets"
)

type Orchestrator struct {
	cfg     config.Config
	repo    Repository
	builder *oais.Builder
	ledger  *history.Ledger
	logger  *slog.Logger
	sleeper Sleeper
	report  *Report
}

func New(cfg config.Config, repo Repository, builder *oais.Builder, ledger *history.Ledger, report *Report, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		repo:    repo,
		builder: builder,
		ledger:  ledger,
		logger:  logger,
		sleeper: timerSleeper{},
		report:  report,
	}
}

func (o *Orchestrator) SetSleeper(s Sleeper) {
	o.sleeper = s
}

func (o *Orchestrator) Report() *Report {
	return o.report
}

func (o *Orchestrator) column(name string) string {
	return o.cfg.OrganizationalPrefix + "." + name
}

// limit applies the max_entities cap to a stage.
func limit[T any](values []T, max int) []T {
	if max > 0 && len(values) > max {
		return values[:max]
	}
	return values
}

func (o *Orchestrator) datasets(datasets *tree.Datasets) []*tree.Dataset {
	return limit(datasets.Values(), o.cfg.MaxEntities)
}

// record reads the ledger of a dataset; a missing ledger is returned as nil without error.
func (o *Orchestrator) record(datasetDir string) (*history.Record, error) {
	r, err := o.ledger.Read(datasetDir)
	if errors.Is(err, history.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// Run executes the create pipeline: setup, datasets json, upload datasets, datafiles json, upload datafiles.
func (o *Orchestrator) Run(ctx context.Context, datasets *tree.Datasets, clean, overwrite bool) error {
	if err := o.Setup(ctx, datasets, clean, overwrite); err != nil {
		return err
	}
	if err := o.EmitDatasetJSON(ctx, datasets); err != nil {
		return err
	}
	if err := o.UploadDatasets(ctx, datasets); err != nil {
		return err
	}
	if err := o.EmitDatafileJSON(ctx, datasets); err != nil {
		return err
	}
	return o.UploadDatafiles(ctx, datasets)
}

func (o *Orchestrator) flush(path string, updates map[string]map[string]string, keyColumns ...string) error {
	if len(updates) == 0 {
		return nil
	}
	err := tabular.UpdateRows(path, updates, tabular.Options{Delimiter: o.cfg.DelimiterRune(), KeyColumns: keyColumns})
	if err != nil {
		o.logger.Error("updating table failed", "file", path, "err", err)
		return err
	}
	o.logger.Info("table updated", "file", path, "rows", len(updates))
	return nil
}

type StatusLine struct {
	DatasetId         string `json:"datasetId"`
	State             string `json:"state"`
	Pid               string `json:"pid,omitempty"`
	DatafilesUploaded int    `json:"datafilesUploaded"`
	Datafiles         int    `json:"datafiles"`
}

// Status reports the derived lifecycle state of every dataset.
func (o *Orchestrator) Status(datasets *tree.Datasets) ([]StatusLine, error) {
	res := []StatusLine{}
	for _, ds := range datasets.Values() {
		dir := o.cfg.DatasetDir(ds.Id)
		r, err := o.record(dir)
		if err != nil {
			return nil, err
		}
		line := StatusLine{DatasetId: ds.Id, State: DatasetState(r, dir).String(), Datafiles: ds.Datafiles.Len()}
		if r != nil {
			line.Pid = r.Pid
			for _, id := range ds.Datafiles.Ids() {
				if r.DatafileUploaded(id) {
					line.DatafilesUploaded++
				}
			}
		}
		res = append(res, line)
	}
	return res, nil
}
