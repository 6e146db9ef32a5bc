// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"context"
	"fmt"
	"migration/app/dataverse"
	"migration/app/oais"
	"migration/app/tree"
	"os"
)

// Setup builds the staging tree of every dataset and stages its datafiles.
// A filesystem error stops the run.
func (o *Orchestrator) Setup(ctx context.Context, datasets *tree.Datasets, clean, overwrite bool) error {
	ingestDir := o.cfg.IngestDir()
	if clean {
		if err := oais.CleanIngest(ingestDir); err != nil {
			return err
		}
		o.logger.Info("ingest directory cleaned", "dir", ingestDir)
	}
	if err := os.MkdirAll(ingestDir, 0o755); err != nil {
		return err
	}
	for _, ds := range o.datasets(datasets) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.setupDataset(ctx, ds, overwrite); err != nil {
			o.report.failed(stageSetup)
			o.logger.Error("setup failed", "dataset", ds.Id, "err", err)
			return fmt.Errorf("setting up dataset %v: %w", ds.Id, err)
		}
		o.report.done(stageSetup)
	}
	o.logger.Info("setup completed")
	return nil
}

func (o *Orchestrator) setupDataset(ctx context.Context, ds *tree.Dataset, overwrite bool) error {
	dir := o.cfg.DatasetDir(ds.Id)
	if _, err := o.builder.SetupTree(dir, ds.Id, o.cfg.TermsOfUseFile(), o.cfg.TermsOfAccessFile(), overwrite); err != nil {
		return err
	}
	for _, df := range ds.Datafiles.Values() {
		sip := oais.SipPath(dir, df.Filename)
		if _, err := o.builder.StageRawToSip(ctx, df.Filename, sip, overwrite); err != nil {
			return err
		}
		if _, err := o.builder.StageSipToAip(ctx, sip, oais.AipPath(dir, df.Filename), overwrite); err != nil {
			return err
		}
		if _, err := o.builder.StageAipToDip(dir, df.Filename, oais.Classify(df.Categories), overwrite); err != nil {
			return err
		}
	}
	return nil
}

// EmitDatasetJSON writes the native JSON of every dataset into its AIP.
func (o *Orchestrator) EmitDatasetJSON(ctx context.Context, datasets *tree.Datasets) error {
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
		if d := Check(EmitDatasetJSON, r, dir); !d.Allowed {
			o.report.skipped(stageDatasetJSON)
			logger.Info("dataset json skipped", "reason", d.Reason)
			continue
		}
		b, unknown, err := dataverse.DatasetJSON(ds.Metadata)
		if err != nil {
			o.report.failed(stageDatasetJSON)
			logger.Error("dataset json failed", "err", err)
			continue
		}
		if len(unknown) > 0 {
			logger.Warn("metadata fields not mapped", "fields", unknown)
		}
		if err := o.builder.WriteAIPFile(ctx, oais.DatasetJSONPath(dir, ds.Id), b); err != nil {
			return fmt.Errorf("writing json of dataset %v: %w", ds.Id, err)
		}
		o.report.done(stageDatasetJSON)
	}
	o.logger.Info("datasets json completed")
	return nil
}
