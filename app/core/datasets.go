// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"migration/app/config"
	"migration/app/dataverse"
	"migration/app/history"
	"migration/app/tree"
	"strconv"
)

// canceled reports whether err ends the whole run rather than one entity.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// UploadDatasets creates every dataset not yet uploaded and writes the pid back to the datasets table.
func (o *Orchestrator) UploadDatasets(ctx context.Context, datasets *tree.Datasets) error {
	updates := map[string]map[string]string{}
	flush := func(err error) error {
		return errors.Join(err, o.flush(o.cfg.DatasetsCsv(), updates, o.column("dataset_id")))
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
		if d := Check(CreateDataset, r, dir); !d.Allowed {
			o.report.skipped(stageUploadDatasets)
			logger.Info("dataset upload skipped", "reason", d.Reason)
			continue
		}
		pid, err := o.createDataset(ctx, ds, dir, r, logger)
		if err == nil {
			if err := o.ledger.Save(dir, r); err != nil {
				return flush(err)
			}
			updates[ds.Id] = map[string]string{o.column("doi"): pid, o.column("is_uploaded"): "TRUE"}
			o.report.done(stageUploadDatasets)
			logger.Info("dataset created", "pid", pid)
		} else {
			if canceled(ctx, err) {
				return flush(err)
			}
			o.report.failed(stageUploadDatasets)
			logger.Error("dataset could not be created", "err", err)
		}
		if err := o.pause(ctx, o.cfg.Pauses.Dataset); err != nil {
			return flush(err)
		}
	}
	if err := flush(nil); err != nil {
		return err
	}
	o.logger.Info("upload datasets completed")
	return nil
}

// createDataset calls the repository and fills the record; the caller saves it.
// When the create response carries no pid, the database id is saved before the lookup
// so that a later run resumes with the lookup instead of creating the dataset again.
func (o *Orchestrator) createDataset(ctx context.Context, ds *tree.Dataset, dir string, r *history.Record, logger *slog.Logger) (string, error) {
	ts := o.ledger.Timestamp()
	dbId := r.DataverseDatasetId
	if dbId == "" {
		payload, unknown, err := dataverse.DatasetJSON(ds.Metadata)
		if err != nil {
			return "", err
		}
		if len(unknown) > 0 {
			logger.Warn("metadata fields not mapped", "fields", unknown)
		}
		created, err := o.repo.CreateDataset(ctx, ds.DataverseId, payload)
		if err != nil {
			return "", err
		}
		if created.PersistentId != "" {
			r.MarkUploaded(ts, created.PersistentId)
			return created.PersistentId, nil
		}
		if created.Id == 0 {
			return "", &dataverse.ProtocolError{Op: "create dataset", Status: "OK", Message: "no persistentId in response"}
		}
		dbId = strconv.FormatInt(created.Id, 10)
		r.DataverseDatasetId = dbId
		if err := o.ledger.Save(dir, r); err != nil {
			return "", err
		}
	} else {
		logger.Info("resuming identifier lookup", "dataverse_datasetId", dbId)
	}
	info, err := o.repo.GetDataset(ctx, dbId, false)
	if err != nil {
		return "", fmt.Errorf("dataset %v created, reading its identifier failed: %w", dbId, err)
	}
	if info.Identifier == "" {
		return "", &dataverse.ProtocolError{Op: "get dataset", Status: "OK", Message: "no identifier in response"}
	}
	pid := o.cfg.DoiPrefix + "/" + info.Identifier
	r.MarkUploaded(ts, pid)
	return pid, nil
}

// PublishDatasets publishes the datasets marked to_publish and not yet published, as a major version.
func (o *Orchestrator) PublishDatasets(ctx context.Context, datasets *tree.Datasets) error {
	updates := map[string]map[string]string{}
	flush := func(err error) error {
		return errors.Join(err, o.flush(o.cfg.DatasetsCsv(), updates, o.column("dataset_id")))
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
		d := Check(PublishDataset, r, dir)
		pid := ds.Doi()
		if r != nil && r.Pid != "" {
			pid = r.Pid
		}
		switch {
		case !d.Allowed:
		case !ds.Org.Bool("to_publish"):
			d = refuse("not marked to publish")
		case ds.Org.Bool("is_published"):
			d = refuse("already published")
		case r.PublicationDate != "":
			d = refuse("already published")
		case pid == "":
			d = refuse("no pid")
		}
		if !d.Allowed {
			o.report.skipped(stagePublishDatasets)
			logger.Info("dataset publish skipped", "reason", d.Reason)
			continue
		}
		ts := o.ledger.Timestamp()
		_, err = o.repo.PublishDataset(ctx, pid, "major")
		if err == nil {
			r.PublicationDate = ts
			if err := o.ledger.Save(dir, r); err != nil {
				return flush(err)
			}
			updates[ds.Id] = map[string]string{o.column("is_published"): "TRUE"}
			o.report.done(stagePublishDatasets)
			logger.Info("dataset published", "pid", pid)
		} else {
			if canceled(ctx, err) {
				return flush(err)
			}
			o.report.failed(stagePublishDatasets)
			logger.Error("dataset could not be published", "pid", pid, "err", err)
		}
		if err := o.pause(ctx, o.cfg.Pauses.Dataset); err != nil {
			return flush(err)
		}
	}
	if err := flush(nil); err != nil {
		return err
	}
	o.logger.Info("publish datasets completed")
	return nil
}

// UpdateDatasets replaces the configured fields of the datasets in the update table
// that are marked to_update and not yet updated. The update table is rewritten afterwards.
func (o *Orchestrator) UpdateDatasets(ctx context.Context, updates *tree.Datasets) error {
	tableUpdates := map[string]map[string]string{}
	flush := func(err error) error {
		return errors.Join(err, o.flush(o.cfg.DatasetsUpdateCsv(), tableUpdates, o.column("dataset_id")))
	}
	for _, ds := range o.datasets(updates) {
		if err := ctx.Err(); err != nil {
			return flush(err)
		}
		toUpdate, isUpdated := ds.Org["to_update"], ds.Org["is_updated"]
		if toUpdate != tree.Bool(true) || isUpdated != tree.Bool(false) {
			o.report.skipped(stageUpdateDatasets)
			continue
		}
		logger := o.logger.With("dataset", ds.Id)
		dir := o.cfg.DatasetDir(ds.Id)
		r, err := o.record(dir)
		if err != nil {
			return flush(err)
		}
		if d := Check(UpdateDataset, r, dir); !d.Allowed {
			o.report.skipped(stageUpdateDatasets)
			logger.Info("dataset update skipped", "reason", d.Reason)
			continue
		}
		body, err := dataverse.EditFieldsJSON(ds.Metadata, o.cfg.UpdateFields)
		if err != nil {
			o.report.failed(stageUpdateDatasets)
			logger.Error("dataset update failed", "pid", r.Pid, "err", err)
			continue
		}
		ts := o.ledger.Timestamp()
		_, err = o.repo.EditDatasetMetadata(ctx, r.Pid, body, true)
		if err == nil {
			r.UpdateDate = append(r.UpdateDate, ts)
			if err := o.ledger.Save(dir, r); err != nil {
				return flush(err)
			}
			tableUpdates[ds.Id] = map[string]string{o.column("is_updated"): "TRUE", o.column("to_update"): "FALSE"}
			o.report.done(stageUpdateDatasets)
			logger.Info("dataset updated", "pid", r.Pid)
		} else {
			if canceled(ctx, err) {
				return flush(err)
			}
			o.report.failed(stageUpdateDatasets)
			logger.Error("dataset could not be updated", "pid", r.Pid, "err", err)
		}
		if err := o.pause(ctx, o.cfg.Pauses.Update); err != nil {
			return flush(err)
		}
	}
	if err := flush(nil); err != nil {
		return err
	}
	o.logger.Info("update datasets completed")
	return nil
}

// DestroyDatasets destroys every uploaded dataset. The ledger records the destruction date.
func (o *Orchestrator) DestroyDatasets(ctx context.Context, datasets *tree.Datasets) error {
	return o.remove(ctx, datasets, DestroyDataset, stageDestroyDatasets, o.cfg.Pauses.Dataset,
		o.repo.DestroyDataset, func(r *history.Record, ts string) { r.DestructionDate = ts })
}

// DeleteDatasets deletes the draft version of every uploaded dataset. The ledger records the deletion date.
func (o *Orchestrator) DeleteDatasets(ctx context.Context, datasets *tree.Datasets) error {
	return o.remove(ctx, datasets, DeleteDataset, stageDeleteDatasets, o.cfg.Pauses.Delete,
		o.repo.DeleteDataset, func(r *history.Record, ts string) { r.DeletionDate = ts })
}

func (o *Orchestrator) remove(ctx context.Context, datasets *tree.Datasets, op Operation, stage string, pause config.Duration,
	call func(ctx context.Context, pid string) (*dataverse.Response, error), mark func(r *history.Record, ts string)) error {
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
		if d := Check(op, r, dir); !d.Allowed {
			o.report.skipped(stage)
			logger.Info(op.String()+" skipped", "reason", d.Reason)
			continue
		}
		ts := o.ledger.Timestamp()
		_, err = call(ctx, r.Pid)
		if err == nil {
			mark(r, ts)
			if err := o.ledger.Save(dir, r); err != nil {
				return err
			}
			o.report.done(stage)
			logger.Info(op.String()+" done", "pid", r.Pid)
		} else {
			if canceled(ctx, err) {
				return err
			}
			o.report.failed(stage)
			logger.Error(op.String()+" failed", "pid", r.Pid, "err", err)
		}
		if err := o.pause(ctx, pause); err != nil {
			return err
		}
	}
	o.logger.Info(stage + " completed")
	return nil
}
