// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"migration/app/config"
	"migration/app/core"
	"migration/app/dataverse"
	"migration/app/history"
	"migration/app/importer"
	"migration/app/logging"
	"migration/app/oais"
	"migration/app/tabular"
	"migration/app/tree"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var configFile = os.Getenv("MIGRATION_CONFIG_FILE")

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// migration holds what one command needs. The caller must defer close().
type migration struct {
	cfg     config.Config
	runId   string
	logger  *slog.Logger
	logFile *os.File
	lock    *core.RunLock
	client  *dataverse.Client
	ledger  *history.Ledger
	orch    *core.Orchestrator
	closers []io.Closer
}

func readConfig() (config.Config, error) {
	if configFile == "" {
		configFile = "config.toml"
	}
	cfg, err := config.ReadFromFile(configFile)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

// needs are the resources a command wires besides the repository client.
type needs uint8

const (
	needLock    needs = 1 << iota // run lock held until close
	needSource                    // raw source, may dial SFTP
	needReplica                   // S3 replica of the AIP
)

var commandNeeds = map[string]needs{
	"setup":            needLock | needSource | needReplica,
	"run":              needLock | needSource | needReplica,
	"datasets-json":    needLock | needReplica,
	"datafiles-json":   needLock | needReplica,
	"upload-datasets":  needLock,
	"upload-datafiles": needLock,
	"publish":          needLock,
	"destroy":          needLock,
	"delete":           needLock,
	"update-datasets":  needLock,
	"redetect":         0,
	"status":           0,
}

// newMigration reads the config and wires the orchestrator with what command needs.
func newMigration(ctx context.Context, command string) (*migration, error) {
	need := commandNeeds[command]
	cfg, err := readConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	m := &migration{cfg: cfg, runId: uuid.New().String()}
	m.logger, m.logFile, err = logging.NewRunLogger(cfg.LogDir, m.runId)
	if err != nil {
		return nil, err
	}
	m.logger.Info("run started", "command", command, "instance", cfg.Instance, "dataDir", cfg.DataDir)

	if need&needLock != 0 {
		rdb, err := config.NewRedis(cfg)
		if err != nil {
			m.close()
			return nil, err
		}
		if rdb != nil && !config.RedisReady(ctx, rdb) {
			m.close()
			return nil, fmt.Errorf("redis at %v is not reachable", cfg.RedisHost)
		}
		lock := core.NewRunLock(rdb, cfg.IngestDir())
		if err := lock.Acquire(ctx); err != nil {
			m.close()
			return nil, err
		}
		m.lock = lock
	}

	var source oais.Source
	if need&needSource != 0 {
		if source, err = m.source(); err != nil {
			m.close()
			return nil, err
		}
	}
	var replica oais.Replica
	if need&needReplica != 0 && cfg.Replica.AWSBucket != "" {
		replica, err = oais.NewS3Replica(ctx, cfg.Replica)
		if err != nil {
			m.close()
			return nil, fmt.Errorf("creating replica: %w", err)
		}
	}
	m.ledger = history.NewLedger(nil)
	builder, err := oais.NewBuilder(m.ledger, source, oais.Options{HashType: cfg.FixityHash(), Replica: replica, Logger: m.logger})
	if err != nil {
		m.close()
		return nil, err
	}
	m.client = dataverse.NewClient(cfg.BaseUrl, cfg.ApiToken)
	m.orch = core.New(cfg, m.client, builder, m.ledger, core.NewReport(m.runId), m.logger)
	return m, nil
}

func (m *migration) source() (oais.Source, error) {
	if m.cfg.Raw.Type != "sftp" {
		return oais.LocalSource{Dir: m.cfg.RawDir}, nil
	}
	pass, err := config.ReadSecretFile(m.cfg.Raw.PathToSftpPassword)
	if err != nil {
		return nil, err
	}
	s, err := oais.NewSFTPSource(m.cfg.Raw.SftpUrl, m.cfg.Raw.SftpUser, pass, m.cfg.Raw.SftpDir)
	if err != nil {
		return nil, fmt.Errorf("connecting to %v: %w", m.cfg.Raw.SftpUrl, err)
	}
	m.closers = append(m.closers, s)
	return s, nil
}

func (m *migration) close() {
	if m.orch != nil && len(m.orch.Report().Stages) > 0 {
		report := m.orch.Report()
		report.Print(os.Stdout)
		if path, err := report.Write(m.cfg.LogDir); err != nil {
			m.logger.Error("writing report failed", "err", err)
		} else {
			m.logger.Info("run finished", "report", path, "failures", report.Failures())
		}
	}
	if m.lock != nil {
		if err := m.lock.Release(context.Background()); err != nil {
			m.logger.Error("releasing run lock failed", "err", err)
		}
	}
	for _, c := range m.closers {
		c.Close()
	}
	if m.logFile != nil {
		m.logFile.Close()
	}
}

func (m *migration) importer() *importer.Importer {
	return importer.New(importer.Options{
		ManagedPrefix:        m.cfg.ManagedPrefix,
		OrganizationalPrefix: m.cfg.OrganizationalPrefix,
		DatasetJsonKeys:      m.cfg.DatasetJsonKeys,
		DatafileJsonKeys:     m.cfg.DatafileJsonKeys,
	}, m.logger)
}

// datasets imports the datasets table and attaches the datafiles table to it.
func (m *migration) datasets() (*tree.Datasets, error) {
	table, err := tabular.ReadFile(m.cfg.DatasetsCsv(), m.cfg.DelimiterRune())
	if err != nil {
		return nil, err
	}
	im := m.importer()
	datasets, err := im.ImportDatasets(table.Rows)
	if err != nil {
		return nil, fmt.Errorf("importing %v: %w", m.cfg.DatasetsCsv(), err)
	}
	table, err = tabular.ReadFile(m.cfg.DatafilesCsv(), m.cfg.DelimiterRune())
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("no datafiles table", "file", m.cfg.DatafilesCsv())
		return datasets, nil
	}
	if err != nil {
		return nil, err
	}
	if err := im.ImportDatafiles(datasets, table.Rows); err != nil {
		return nil, fmt.Errorf("importing %v: %w", m.cfg.DatafilesCsv(), err)
	}
	return datasets, nil
}

func (m *migration) updates() (*tree.Datasets, error) {
	table, err := tabular.ReadFile(m.cfg.DatasetsUpdateCsv(), m.cfg.DelimiterRune())
	if err != nil {
		return nil, err
	}
	updates, err := m.importer().ImportUpdates(table.Rows)
	if err != nil {
		return nil, fmt.Errorf("importing %v: %w", m.cfg.DatasetsUpdateCsv(), err)
	}
	return updates, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// datasetsCommand runs stage on the imported datasets.
func datasetsCommand(use, short string, stage func(ctx context.Context, m *migration, datasets *tree.Datasets) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			m, err := newMigration(ctx, use)
			if err != nil {
				return err
			}
			defer m.close()
			datasets, err := m.datasets()
			if err != nil {
				m.logger.Error("import failed", "err", err)
				return err
			}
			if err := stage(ctx, m, datasets); err != nil {
				m.logger.Error(use+" failed", "err", err)
				return err
			}
			return nil
		},
	}
}

var rootCmd = &cobra.Command{
	Use:          "migration",
	Short:        "Migrate NESSTAR datasets into a Dataverse installation",
	SilenceUsage: true,
}

var setupCmd = datasetsCommand("setup", "Build the SIP/AIP/DIP tree of every dataset", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
	return m.orch.Setup(ctx, ds, clean, overwrite)
})

var runCmd = datasetsCommand("run", "Setup, emit JSON and upload datasets and datafiles", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
	return m.orch.Run(ctx, ds, clean, overwrite)
})

var clean, overwrite bool

var updateDatasetsCmd = &cobra.Command{
	Use:   "update-datasets",
	Short: "Replace the update fields of the datasets in the update table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		m, err := newMigration(ctx, "update-datasets")
		if err != nil {
			return err
		}
		defer m.close()
		updates, err := m.updates()
		if err != nil {
			m.logger.Error("import failed", "err", err)
			return err
		}
		return m.orch.UpdateDatasets(ctx, updates)
	},
}

var redetectCmd = &cobra.Command{
	Use:   "redetect",
	Short: "Trigger the datatype redetection of the datafiles in the id list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		m, err := newMigration(ctx, "redetect")
		if err != nil {
			return err
		}
		defer m.close()
		ids, err := dataverse.ReadFileIds(m.cfg.RedetectIdsFile())
		if err != nil {
			return err
		}
		res, err := dataverse.NewRedetector(m.client, m.cfg.RedetectRPS, m.logger).Run(ctx, ids)
		m.logger.Info("redetect completed", "done", res.Done, "failed", res.Failed)
		fmt.Printf("redetected %d of %d datafiles, %d failed\n", res.Done, len(ids), res.Failed)
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the lifecycle state of every dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigration(cmd.Context(), "status")
		if err != nil {
			return err
		}
		defer m.close()
		datasets, err := m.datasets()
		if err != nil {
			return err
		}
		lines, err := m.orch.Status(datasets)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATASET\tSTATE\tPID\tDATAFILES")
		for _, l := range lines {
			fmt.Fprintf(tw, "%v\t%v\t%v\t%d/%d\n", l.DatasetId, l.State, l.Pid, l.DatafilesUploaded, l.Datafiles)
		}
		return tw.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history DATASET_ID",
	Short: "Print the ledger of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		r, err := history.NewLedger(nil).Read(cfg.DatasetDir(args[0]))
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "Config file (.toml, .yaml or .json), defaults to $MIGRATION_CONFIG_FILE or config.toml")

	for _, cmd := range []*cobra.Command{setupCmd, runCmd} {
		cmd.Flags().BoolVar(&clean, "clean", false, "Remove every dataset directory in the ingest directory first")
		cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Copy staged files and reset ledgers even when they exist")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(datasetsCommand("datasets-json", "Write the native JSON of every dataset into its AIP", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.EmitDatasetJSON(ctx, ds)
	}))
	rootCmd.AddCommand(datasetsCommand("upload-datasets", "Create the datasets that are not uploaded yet", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.UploadDatasets(ctx, ds)
	}))
	rootCmd.AddCommand(datasetsCommand("datafiles-json", "Write the upload JSON of every datafile into its AIP", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.EmitDatafileJSON(ctx, ds)
	}))
	rootCmd.AddCommand(datasetsCommand("upload-datafiles", "Upload the datafiles that are not uploaded yet", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.UploadDatafiles(ctx, ds)
	}))
	rootCmd.AddCommand(datasetsCommand("publish", "Publish the datasets marked to publish", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.PublishDatasets(ctx, ds)
	}))
	rootCmd.AddCommand(datasetsCommand("destroy", "Destroy every uploaded dataset", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.DestroyDatasets(ctx, ds)
	}))
	rootCmd.AddCommand(datasetsCommand("delete", "Delete the draft of every uploaded dataset", func(ctx context.Context, m *migration, ds *tree.Datasets) error {
		return m.orch.DeleteDatasets(ctx, ds)
	}))
	rootCmd.AddCommand(updateDatasetsCmd)
	rootCmd.AddCommand(redetectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}
