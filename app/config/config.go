// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything a migration run needs. It is read once at start and passed by value.
type Config struct {
	Instance       string `toml:"instance" yaml:"instance" json:"instance"`                      // development, production or localhost-t550
	BaseUrl        string `toml:"base_url" yaml:"base_url" json:"baseUrl"`                       // url of the Dataverse installation
	ApiToken       string `toml:"api_token" yaml:"api_token" json:"apiToken"`                    // prefer env API_TOKEN or path_to_api_token
	PathToApiToken string `toml:"path_to_api_token" yaml:"path_to_api_token" json:"pathToApiToken"`
	EnvFile        string `toml:"env_file" yaml:"env_file" json:"envFile"` // dotenv file loaded before the env overrides are applied
	DoiPrefix      string `toml:"doi_prefix" yaml:"doi_prefix" json:"doiPrefix"`
	DataverseAlias string `toml:"dataverse_alias" yaml:"dataverse_alias" json:"dataverseAlias"`

	DataDir                string `toml:"data_dir" yaml:"data_dir" json:"dataDir"`
	RawDir                 string `toml:"raw_dir" yaml:"raw_dir" json:"rawDir"`
	IngestFoldername       string `toml:"ingest_foldername" yaml:"ingest_foldername" json:"ingestFoldername"`
	DatasetsFilename       string `toml:"datasets_filename" yaml:"datasets_filename" json:"datasetsFilename"`
	DatafilesFilename      string `toml:"datafiles_filename" yaml:"datafiles_filename" json:"datafilesFilename"`
	DatasetsUpdateFilename string `toml:"datasets_update_filename" yaml:"datasets_update_filename" json:"datasetsUpdateFilename"`
	RedetectIdsFilename    string `toml:"redetect_ids_filename" yaml:"redetect_ids_filename" json:"redetectIdsFilename"`
	TermsOfUseFilename     string `toml:"terms_of_use_filename" yaml:"terms_of_use_filename" json:"termsOfUseFilename"`
	TermsOfAccessFilename  string `toml:"terms_of_access_filename" yaml:"terms_of_access_filename" json:"termsOfAccessFilename"`
	LogDir                 string `toml:"log_dir" yaml:"log_dir" json:"logDir"`

	Delimiter            string   `toml:"delimiter" yaml:"delimiter" json:"delimiter"`
	MaxEntities          int      `toml:"max_entities" yaml:"max_entities" json:"maxEntities"` // <= 0: unlimited
	ManagedPrefix        string   `toml:"managed_prefix" yaml:"managed_prefix" json:"managedPrefix"`
	OrganizationalPrefix string   `toml:"organizational_prefix" yaml:"organizational_prefix" json:"organizationalPrefix"`
	DatasetJsonKeys      []string `toml:"dataset_json_keys" yaml:"dataset_json_keys" json:"datasetJsonKeys"`
	DatafileJsonKeys     []string `toml:"datafile_json_keys" yaml:"datafile_json_keys" json:"datafileJsonKeys"`
	UpdateFields         []string `toml:"update_fields" yaml:"update_fields" json:"updateFields"`

	RedisHost           string  `toml:"redis_host" yaml:"redis_host" json:"redisHost"` // empty: no run lock
	RedisDB             int     `toml:"redis_db" yaml:"redis_db" json:"redisDB"`
	PathToRedisPassword string  `toml:"path_to_redis_password" yaml:"path_to_redis_password" json:"pathToRedisPassword"`
	RedetectRPS         float64 `toml:"redetect_rps" yaml:"redetect_rps" json:"redetectRPS"`

	Pauses  Pauses        `toml:"pauses" yaml:"pauses" json:"pauses"`
	Fixity  FixityConfig  `toml:"fixity" yaml:"fixity" json:"fixity"`
	Raw     RawConfig     `toml:"raw" yaml:"raw" json:"raw"`
	Replica ReplicaConfig `toml:"replica" yaml:"replica" json:"replica"`
}

// Pauses are the fixed sleeps after mutating remote calls.
type Pauses struct {
	Dataset             Duration `toml:"dataset" yaml:"dataset" json:"dataset"`
	Datafile            Duration `toml:"datafile" yaml:"datafile" json:"datafile"`
	LargeFile           Duration `toml:"large_file" yaml:"large_file" json:"largeFile"`
	Delete              Duration `toml:"delete" yaml:"delete" json:"delete"`
	Update              Duration `toml:"update" yaml:"update" json:"update"`
	LargeFileExtensions []string `toml:"large_file_extensions" yaml:"large_file_extensions" json:"largeFileExtensions"`
}

type FixityConfig struct {
	Hash string `toml:"hash" yaml:"hash" json:"hash"` // MD5 (default), SHA-1, SHA-256, SHA-512 or "none"
}

// RawConfig selects where the raw NESSTAR exports are read from.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RawConfig struct {
	Type               string `toml:"type" yaml:"type" json:"type"` // "local" (default) or "sftp"
	SftpUrl            string `toml:"sftp_url,omitempty" yaml:"sftp_url,omitempty" json:"sftpUrl,omitempty"`
	SftpUser           string `toml:"sftp_user,omitempty" yaml:"sftp_user,omitempty" json:"sftpUser,omitempty"`
	SftpDir            string `toml:"sftp_dir,omitempty" yaml:"sftp_dir,omitempty" json:"sftpDir,omitempty"`
	PathToSftpPassword string `toml:"path_to_sftp_password,omitempty" yaml:"path_to_sftp_password,omitempty" json:"pathToSftpPassword,omitempty"`
}

// Environment variables used for credentials: set these variables when the replica is enabled
// * Access Key ID:     AWS_ACCESS_KEY_ID or AWS_ACCESS_KEY
// * Secret Access Key: AWS_SECRET_ACCESS_KEY or AWS_SECRET_KEY
type ReplicaConfig struct {
	AWSEndpoint  string `toml:"aws_endpoint" yaml:"aws_endpoint" json:"awsEndpoint"`
	AWSRegion    string `toml:"aws_region" yaml:"aws_region" json:"awsRegion"`
	AWSPathstyle bool   `toml:"aws_pathstyle" yaml:"aws_pathstyle" json:"awsPathstyle"`
	AWSBucket    string `toml:"aws_bucket" yaml:"aws_bucket" json:"awsBucket"` // empty: no replica
	Prefix       string `toml:"prefix" yaml:"prefix" json:"prefix"`
}

type profile struct {
	baseUrl        string
	doiPrefix      string
	dataverseAlias string
}

var profiles = map[string]profile{
	"development":    {"https://dev.vdc.ac", "doi:10.5072", "gfk_test"},
	"production":     {"https://data.aussda.at", "doi:10.11587", "gfk"},
	"localhost-t550": {"http://localhost:8085", "doi:10.5072", "gfk_test"},
}

var DefaultDatasetJsonKeys = []string{
	"otherId", "series", "author", "dsDescription", "subject", "keyword",
	"topicClassification", "language", "grantNumber", "dateOfCollection", "kindOfData",
	"dataSources", "otherReferences", "contributor", "relatedDatasets", "relatedMaterial",
	"datasetContact", "distributor", "producer", "publication", "software",
	"timePeriodCovered", "geographicUnit", "geographicBoundingBox", "geographicCoverage",
	"socialScienceNotes", "unitOfAnalysis", "universe", "targetSampleActualSize",
}

// ReadFromFile reads a Config, choosing the decoder by file extension, and applies env overrides and defaults.
func ReadFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	cfg, err := Read(f, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	cfg.readSecrets()
	cfg.applyDefaults()
	return cfg, nil
}

// Read decodes a Config from r; ext selects the format (".toml", ".yaml", ".yml" or ".json").
func Read(r io.Reader, ext string) (Config, error) {
	cfg := Config{}
	var err error
	switch strings.ToLower(ext) {
	case ".toml", "":
		_, err = toml.NewDecoder(r).Decode(&cfg)
	case ".yaml", ".yml":
		err = yaml.NewDecoder(r).Decode(&cfg)
	case ".json":
		err = json.NewDecoder(r).Decode(&cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil && err != io.EOF {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadEnv() error {
	if c.EnvFile != "" {
		env, err := godotenv.Read(c.EnvFile)
		if err != nil {
			return fmt.Errorf("loading env file %v: %w", c.EnvFile, err)
		}
		// the process environment wins over the env file
		for k, v := range env {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}
	if v := os.Getenv("INSTANCE"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		c.ApiToken = v
	}
	if v := os.Getenv("DATA_DIRNAME"); v != "" {
		c.DataDir = v
	}
	return nil
}

func (c *Config) readSecrets() {
	if c.ApiToken == "" && c.PathToApiToken != "" {
		if b, err := os.ReadFile(c.PathToApiToken); err == nil {
			c.ApiToken = strings.TrimSpace(string(b))
		}
	}
}

// ReadSecretFile returns the trimmed content of path, or an empty string when path is empty.
func ReadSecretFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret from %v: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *Config) applyDefaults() {
	if p, ok := profiles[c.Instance]; ok {
		c.BaseUrl = orDefault(c.BaseUrl, p.baseUrl)
		c.DoiPrefix = orDefault(c.DoiPrefix, p.doiPrefix)
		c.DataverseAlias = orDefault(c.DataverseAlias, p.dataverseAlias)
	}
	c.BaseUrl = strings.TrimSuffix(c.BaseUrl, "/")
	c.RawDir = orDefault(c.RawDir, filepath.Join(c.DataDir, "raw"))
	c.IngestFoldername = orDefault(c.IngestFoldername, "ingest")
	c.DatasetsFilename = orDefault(c.DatasetsFilename, "datasets.csv")
	c.DatafilesFilename = orDefault(c.DatafilesFilename, "datafiles.csv")
	c.DatasetsUpdateFilename = orDefault(c.DatasetsUpdateFilename, "datasets_updated.csv")
	c.RedetectIdsFilename = orDefault(c.RedetectIdsFilename, "df_id.json")
	c.TermsOfUseFilename = orDefault(c.TermsOfUseFilename, "terms-of-use_suf_v1.4.html")
	c.TermsOfAccessFilename = orDefault(c.TermsOfAccessFilename, "terms-of-access_suf_v1.4.html")
	c.LogDir = orDefault(c.LogDir, filepath.Join(c.DataDir, "log"))
	c.Delimiter = orDefault(c.Delimiter, ",")
	c.ManagedPrefix = orDefault(c.ManagedPrefix, "dv")
	c.OrganizationalPrefix = orDefault(c.OrganizationalPrefix, "org")
	c.Raw.Type = orDefault(c.Raw.Type, "local")
	c.Fixity.Hash = orDefault(c.Fixity.Hash, "MD5")
	if c.DatasetJsonKeys == nil {
		c.DatasetJsonKeys = DefaultDatasetJsonKeys
	}
	if c.DatafileJsonKeys == nil {
		c.DatafileJsonKeys = []string{"categories"}
	}
	if c.UpdateFields == nil {
		c.UpdateFields = []string{"geographicCoverage"}
	}
	if c.RedetectRPS <= 0 {
		c.RedetectRPS = 2
	}
	p := &c.Pauses
	p.Dataset = p.Dataset.orDefault(time.Second)
	p.Datafile = p.Datafile.orDefault(2 * time.Second)
	p.LargeFile = p.LargeFile.orDefault(30 * time.Second)
	p.Delete = p.Delete.orDefault(2 * time.Second)
	p.Update = p.Update.orDefault(2 * time.Second)
	if p.LargeFileExtensions == nil {
		p.LargeFileExtensions = []string{".sav", ".dta"}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Validate reports settings without which no remote stage can run.
func (c Config) Validate() error {
	missing := []string{}
	if c.BaseUrl == "" {
		missing = append(missing, "base_url")
	}
	if c.ApiToken == "" {
		missing = append(missing, "api_token")
	}
	if c.DataDir == "" {
		missing = append(missing, "data_dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %v", strings.Join(missing, ", "))
	}
	if len([]rune(c.Delimiter)) != 1 {
		return fmt.Errorf("delimiter must be a single character, found %q", c.Delimiter)
	}
	if c.Raw.Type != "local" && c.Raw.Type != "sftp" {
		return fmt.Errorf("unsupported raw source type: %v", c.Raw.Type)
	}
	return nil
}

func (c Config) IngestDir() string {
	return filepath.Join(c.DataDir, c.IngestFoldername)
}

func (c Config) DatasetDir(datasetId string) string {
	return filepath.Join(c.IngestDir(), datasetId)
}

func (c Config) DatasetsCsv() string {
	return filepath.Join(c.DataDir, c.DatasetsFilename)
}

func (c Config) DatafilesCsv() string {
	return filepath.Join(c.DataDir, c.DatafilesFilename)
}

func (c Config) DatasetsUpdateCsv() string {
	return filepath.Join(c.DataDir, c.DatasetsUpdateFilename)
}

func (c Config) RedetectIdsFile() string {
	return filepath.Join(c.DataDir, c.RedetectIdsFilename)
}

func (c Config) TermsOfUseFile() string {
	return filepath.Join(c.DataDir, c.TermsOfUseFilename)
}

func (c Config) TermsOfAccessFile() string {
	return filepath.Join(c.DataDir, c.TermsOfAccessFilename)
}

// FixityHash is the hash type of the SIP to AIP check; empty when the check is off.
func (c Config) FixityHash() string {
	if strings.EqualFold(c.Fixity.Hash, "none") {
		return ""
	}
	return c.Fixity.Hash
}

func (c Config) DelimiterRune() rune {
	r := []rune(c.Delimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}
