// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

// Package oais builds the per-dataset staging tree. Files only move forward: raw -> SIP -> AIP -> DIP.
package oais

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"migration/app/history"
	"migration/app/logging"
	"os"
	"path/filepath"
	"slices"
)

const (
	SipFolder = "SIP"
	AipFolder = "AIP"
	DipFolder = "DIP"

	TermsOfUseFilename    = "terms-of-use.html"
	TermsOfAccessFilename = "terms-of-access.html"
)

// Category is the role of a datafile in the dissemination package.
type Category string

const (
	Unclassified  Category = ""
	Documentation Category = "documentation"
	Data          Category = "data"
)

// Classify maps the datafile categories to a Category; Documentation wins over Data.
func Classify(categories []string) Category {
	if slices.Contains(categories, "Documentation") {
		return Documentation
	}
	if slices.Contains(categories, "Data") {
		return Data
	}
	return Unclassified
}

// Transformer writes the archival form of a submitted file.
type Transformer interface {
	Transform(ctx context.Context, filename string, dst io.Writer, src io.Reader) error
}

// CopyTransformer archives files unchanged.
type CopyTransformer struct{}

func (CopyTransformer) Transform(_ context.Context, _ string, dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}

type Options struct {
	HashType    string      // fixity check of the AIP copy; empty disables it
	Transformer Transformer // nil: CopyTransformer
	Replica     Replica     // nil: no replica
	Logger      *slog.Logger
}

type Builder struct {
	ledger      *history.Ledger
	source      Source
	hashType    string
	transformer Transformer
	replica     Replica
	logger      *slog.Logger
	verify      func(path, hashType string, expected []byte) error
}

func NewBuilder(ledger *history.Ledger, source Source, opts Options) (*Builder, error) {
	if opts.HashType != "" {
		if _, err := getHash(opts.HashType); err != nil {
			return nil, err
		}
	}
	if opts.Transformer == nil {
		opts.Transformer = CopyTransformer{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Logger
	}
	return &Builder{
		ledger:      ledger,
		source:      source,
		hashType:    opts.HashType,
		transformer: opts.Transformer,
		replica:     opts.Replica,
		logger:      opts.Logger,
		verify:      verify,
	}, nil
}

func SipPath(datasetDir, filename string) string {
	return filepath.Join(datasetDir, SipFolder, filename)
}

func AipPath(datasetDir, filename string) string {
	return filepath.Join(datasetDir, AipFolder, filename)
}

func DipPath(datasetDir, filename string) string {
	return filepath.Join(datasetDir, DipFolder, filename)
}

func DatasetJSONPath(datasetDir, datasetId string) string {
	return AipPath(datasetDir, datasetId+"_dataset.json")
}

func DatafileJSONPath(datasetDir, datasetId, datafileId string) string {
	return AipPath(datasetDir, datasetId+"_"+datafileId+"_datafile.json")
}

// SetupTree creates the SIP, AIP and DIP directories, copies the legal texts into DIP
// and initializes the history ledger of the dataset.
func (b *Builder) SetupTree(datasetDir, datasetId, termsOfUseSrc, termsOfAccessSrc string, overwrite bool) (*history.Record, error) {
	for _, dir := range []string{datasetDir, filepath.Join(datasetDir, SipFolder), filepath.Join(datasetDir, AipFolder), filepath.Join(datasetDir, DipFolder)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if _, err := copyFile(termsOfUseSrc, DipPath(datasetDir, TermsOfUseFilename), overwrite); err != nil {
		return nil, err
	}
	if _, err := copyFile(termsOfAccessSrc, DipPath(datasetDir, TermsOfAccessFilename), overwrite); err != nil {
		return nil, err
	}
	return b.ledger.Initialize(datasetDir, datasetId, overwrite)
}

// StageRawToSip copies the raw file name from the source to dst. It reports whether it copied.
func (b *Builder) StageRawToSip(ctx context.Context, name, dst string, overwrite bool) (bool, error) {
	if !overwrite && exists(dst) {
		return false, nil
	}
	if b.source == nil {
		return false, fmt.Errorf("no raw source configured to stage %v", name)
	}
	src, err := b.source.Open(ctx, name)
	if err != nil {
		return false, err
	}
	defer src.Close()
	err = writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}, nil)
	return err == nil, err
}

// StageSipToAip writes the archival form of src to dst, verifies its fixity
// and replicates it when a replica is configured. A copy failing the fixity
// check is never moved into place.
func (b *Builder) StageSipToAip(ctx context.Context, src, dst string, overwrite bool) (bool, error) {
	if !overwrite && exists(dst) {
		return false, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	var hasher io.Writer = io.Discard
	var check func(tmp string) error
	if b.hashType != "" {
		h, _ := getHash(b.hashType)
		hasher = h
		check = func(tmp string) error {
			err := b.verify(tmp, b.hashType, h.Sum(nil))
			var fixityErr *FixityError
			if errors.As(err, &fixityErr) {
				fixityErr.Path = dst
			}
			return err
		}
	}
	err = writeAtomic(dst, func(w io.Writer) error {
		return b.transformer.Transform(ctx, filepath.Base(src), io.MultiWriter(w, hasher), in)
	}, check)
	if err != nil {
		return false, err
	}
	return true, b.replicate(ctx, dst)
}

// StageAipToDip copies the file from AIP to DIP. The category does not change the destination yet.
func (b *Builder) StageAipToDip(datasetDir, filename string, category Category, overwrite bool) (bool, error) {
	copied, err := copyFile(AipPath(datasetDir, filename), DipPath(datasetDir, filename), overwrite)
	if copied {
		b.logger.Debug("file disseminated", "dataset", filepath.Base(datasetDir), "file", filename, "category", string(category))
	}
	return copied, err
}

// WriteAIPFile writes generated metadata into the AIP, replacing an older version.
func (b *Builder) WriteAIPFile(ctx context.Context, path string, data []byte) error {
	err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, nil)
	if err != nil {
		return err
	}
	return b.replicate(ctx, path)
}

func (b *Builder) replicate(ctx context.Context, path string) error {
	if b.replica == nil {
		return nil
	}
	aipDir := filepath.Dir(path)
	datasetId := filepath.Base(filepath.Dir(aipDir))
	key := datasetId + "/" + filepath.Base(aipDir) + "/" + filepath.Base(path)
	uploaded, err := b.replica.Put(ctx, key, path)
	if err != nil {
		return err
	}
	if uploaded {
		b.logger.Info("replicated", "dataset", datasetId, "key", key)
	}
	return nil
}

// CleanIngest removes every directory inside ingestDir. Plain files are kept.
func CleanIngest(ingestDir string) error {
	entries, err := os.ReadDir(ingestDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := os.RemoveAll(filepath.Join(ingestDir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string, overwrite bool) (bool, error) {
	if !overwrite && exists(dst) {
		return false, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()
	err = writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}, nil)
	return err == nil, err
}

// writeAtomic fills a temp file next to path, runs check on it when set and renames it
// into place. The file keeps the mode of the file it replaces, 0644 for a new one.
func writeAtomic(path string, fill func(w io.Writer) error, check func(tmp string) error) (retErr error) {
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
	if err := fill(tmp); err != nil {
		return fmt.Errorf("writing %v: %w", path, err)
	}
	if err := tmp.Chmod(fileMode(path)); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if check != nil {
		if err := check(tmp.Name()); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), path)
}

func fileMode(path string) fs.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
