// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"context"
	"errors"
	"fmt"
	"migration/app/dataverse"
	"migration/app/oais"
	"migration/app/tabular"
	"migration/app/tree"
)

// EmitDatafileJSON writes the upload JSON of every datafile of an uploaded dataset into its AIP.
func (o *Orchestrator) EmitDatafileJSON(ctx context.Context, datasets *tree.Datasets) error {
	for _, ds := range o.datasets(datasets) {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := o.logger.With("dataset", ds.Id)
		dir := o.cfg.DatasetDir(ds.Id)
		r, err := o.record(dir)
		if err != nil {
			return err
		}
		if d := Check(EmitDatafileJSON, r, dir); !d.Allowed {
			o.report.skipped(stageDatafileJSON)
			logger.Info("datafiles json skipped", "reason", d.Reason)
			continue
		}
		if !ds.HasDatafiles() {
			logger.Warn("dataset has no datafiles")
			continue
		}
		for _, df := range ds.Datafiles.Values() {
			b, err := dataverse.DatafileJSON(df, r.Pid)
			if err != nil {
				o.report.failed(stageDatafileJSON)
				logger.Error("datafile json failed", "datafile", df.Id, "err", err)
				continue
			}
			if err := o.builder.WriteAIPFile(ctx, oais.DatafileJSONPath(dir, ds.Id, df.Id), b); err != nil {
				return fmt.Errorf("writing json of datafile %v/%v: %w", ds.Id, df.Id, err)
			}
			o.report.done(stageDatafileJSON)
		}
	}
	o.logger.Info("datafiles json completed")
	return nil
}

// UploadDatafiles uploads the DIP copy of every datafile not yet recorded in the ledger.
func (o *Orchestrator) UploadDatafiles(ctx context.Context, datasets *tree.Datasets) error {
	updates := map[string]map[string]string{}
	flush := func(err error) error {
		return errors.Join(err, o.flush(o.cfg.DatafilesCsv(), updates, o.column("dataset_id"), o.column("datafile_id")))
	}
	for _, ds := range o.datasets(datasets) {
		if err := ctx.Err(); err != nil {
			return flush(err)
		}
		logger := o.logger.With("dataset", ds.Id)
		dir := o.cfg.DatasetDir(ds.Id)
		r, err := o.record(dir)
		if err != nil {
			return flush(err)
		}
		if d := Check(UploadDatafile, r, dir); !d.Allowed {
			o.report.skipped(stageUploadDatafiles)
			logger.Info("datafiles upload skipped", "reason", d.Reason)
			continue
		}
		for _, df := range ds.Datafiles.Values() {
			if err := ctx.Err(); err != nil {
				return flush(err)
			}
			if r.DatafileUploaded(df.Id) {
				o.report.skipped(stageUploadDatafiles)
				continue
			}
			dfLogger := logger.With("datafile", df.Id, "filename", df.Filename)
			b, err := dataverse.DatafileJSON(df, r.Pid)
			if err != nil {
				o.report.failed(stageUploadDatafiles)
				dfLogger.Error("datafile json failed", "err", err)
				continue
			}
			ts := o.ledger.Timestamp()
			_, err = o.repo.UploadDatafile(ctx, r.Pid, oais.DipPath(dir, df.Filename), b)
			if err == nil {
				r.MarkDatafileUploaded(df.Id, df.Filename, ts)
				if err := o.ledger.Save(dir, r); err != nil {
					return flush(err)
				}
				updates[tabular.Key(ds.Id, df.Id)] = map[string]string{o.column("is_uploaded"): "TRUE"}
				o.report.done(stageUploadDatafiles)
				dfLogger.Info("datafile uploaded", "pid", r.Pid)
			} else {
				if canceled(ctx, err) {
					return flush(err)
				}
				o.report.failed(stageUploadDatafiles)
				dfLogger.Error("datafile could not be uploaded", "pid", r.Pid, "err", err)
			}
			if err := o.pause(ctx, o.datafilePause(df.Filename)); err != nil {
				return flush(err)
			}
		}
	}
	if err := flush(nil); err != nil {
		return err
	}
	o.logger.Info("upload datafiles completed")
	return nil
}
