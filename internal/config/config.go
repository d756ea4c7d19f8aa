package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the monthly load job.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Schedule  Schedule  `yaml:"schedule"`
	Source    Source    `yaml:"source"`
	Warehouse Warehouse `yaml:"warehouse"`
	Archive   Archive   `yaml:"archive"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
}

// Storage holds paths for local persistence.
type Storage struct {
	DataDir        string `yaml:"data_dir"`
	SnapshotFormat string `yaml:"snapshot_format"` // "csv" or "parquet"
}

// Schedule controls the run gate.
type Schedule struct {
	IntervalDays int `yaml:"interval_days"`
}

// Source selects and configures the dataset source.
type Source struct {
	Kind string `yaml:"kind"` // "sample", "http", "alpaca"
	URL  string `yaml:"url"`
	Rows int    `yaml:"rows"`
}

// Warehouse holds the target table and connection settings.
type Warehouse struct {
	Driver     string `yaml:"driver"` // "snowflake", "postgres", "sqlite"
	Table      string `yaml:"table"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Account    string `yaml:"account"`
	Warehouse  string `yaml:"warehouse"`
	Database   string `yaml:"database"`
	Schema     string `yaml:"schema"`
	Role       string `yaml:"role"`
	SQLitePath string `yaml:"sqlite_path"`
	BatchSize  int    `yaml:"batch_size"`
}

// Archive configures optional upload of snapshots to S3-compatible storage.
// It is disabled when Endpoint is empty.
type Archive struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether snapshot archiving is configured.
func (a Archive) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != ""
}

// Alpaca holds credentials for the asset-universe source.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	DefaultDataDir      = "./monthly_data"
	DefaultIntervalDays = 30
	DefaultTable        = "MONTHLY_PUBLIC_DATA"
	DefaultSourceRows   = 10
	DefaultBatchSize    = 500
)

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:        DefaultDataDir,
			SnapshotFormat: "csv",
		},
		Schedule: Schedule{IntervalDays: DefaultIntervalDays},
		Source: Source{
			Kind: "sample",
			Rows: DefaultSourceRows,
		},
		Warehouse: Warehouse{
			Driver:    "snowflake",
			Table:     DefaultTable,
			Warehouse: "COMPUTE_WH",
			Database:  "JOSADMIN",
			Schema:    "PUBLIC",
			Role:      "ACCOUNTADMIN",
			BatchSize: DefaultBatchSize,
		},
		Archive: Archive{Region: "us-east-1"},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// StatePath returns the location of the last-run state file.
func (c *Config) StatePath() string {
	return filepath.Join(c.Storage.DataDir, "last_run.txt")
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load builds a Config from defaults, the optional YAML file at path, and
// environment variable overrides, in that order. An empty path skips the
// file. The result is not validated; call Validate before doing any I/O.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.Warehouse.SQLitePath == "" {
		cfg.Warehouse.SQLitePath = filepath.Join(cfg.Storage.DataDir, "warehouse.db")
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	// DATA_SAVE_PATH is the historical name; DATA_DIR wins when both are set.
	if v := os.Getenv("DATA_SAVE_PATH"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SNAPSHOT_FORMAT"); v != "" {
		cfg.Storage.SnapshotFormat = v
	}

	if v := os.Getenv("RUN_INTERVAL_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RUN_INTERVAL_DAYS: %w", err)
		}
		cfg.Schedule.IntervalDays = n
	}

	if v := os.Getenv("SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("SOURCE_URL"); v != "" {
		cfg.Source.URL = v
	}
	if v := os.Getenv("SOURCE_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SOURCE_ROWS: %w", err)
		}
		cfg.Source.Rows = n
	}

	if v := os.Getenv("WAREHOUSE_DRIVER"); v != "" {
		cfg.Warehouse.Driver = v
	}
	if v := os.Getenv("WAREHOUSE_TABLE"); v != "" {
		cfg.Warehouse.Table = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Warehouse.SQLitePath = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Warehouse.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Warehouse.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_WAREHOUSE"); v != "" {
		cfg.Warehouse.Warehouse = v
	}
	if v := os.Getenv("SNOWFLAKE_DATABASE"); v != "" {
		cfg.Warehouse.Database = v
	}
	if v := os.Getenv("SNOWFLAKE_SCHEMA"); v != "" {
		cfg.Warehouse.Schema = v
	}
	if v := os.Getenv("SNOWFLAKE_ROLE"); v != "" {
		cfg.Warehouse.Role = v
	}

	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}
	if v := os.Getenv("ARCHIVE_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse ARCHIVE_USE_SSL: %w", err)
		}
		cfg.Archive.UseSSL = b
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ErrMissingCredentials is returned by Validate when the warehouse user,
// password or account is not set for a driver that needs them.
var ErrMissingCredentials = errors.New("warehouse credentials are not fully set")

// Validate checks that the configuration is complete enough to start a
// cycle. It performs no I/O.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir is required")
	}
	switch c.Storage.SnapshotFormat {
	case "csv", "parquet":
	default:
		return fmt.Errorf("unsupported snapshot format %q", c.Storage.SnapshotFormat)
	}
	if c.Schedule.IntervalDays < 0 {
		return errors.New("schedule.interval_days must be >= 0")
	}

	switch c.Source.Kind {
	case "sample":
		if c.Source.Rows < 0 {
			return errors.New("source.rows must be >= 0")
		}
	case "http":
		if strings.TrimSpace(c.Source.URL) == "" {
			return errors.New("source.url is required for the http source")
		}
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return errors.New("alpaca api key and secret are required for the alpaca source")
		}
	default:
		return fmt.Errorf("unsupported source kind %q", c.Source.Kind)
	}

	w := c.Warehouse
	switch w.Driver {
	case "snowflake", "postgres":
		var missing []string
		if w.User == "" {
			missing = append(missing, "user")
		}
		if w.Password == "" {
			missing = append(missing, "password")
		}
		if w.Account == "" {
			missing = append(missing, "account")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: missing %s", ErrMissingCredentials, strings.Join(missing, ", "))
		}
	case "sqlite":
		if w.SQLitePath == "" {
			return errors.New("warehouse.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported warehouse driver %q", w.Driver)
	}
	if strings.TrimSpace(w.Table) == "" {
		return errors.New("warehouse.table is required")
	}
	if w.BatchSize < 1 {
		return errors.New("warehouse.batch_size must be >= 1")
	}

	if c.Archive.Enabled() {
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket is required when archive.endpoint is set")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return errors.New("archive access key and secret key are required")
		}
		if strings.Contains(c.Archive.Endpoint, "://") {
			return fmt.Errorf("archive endpoint must not include scheme: %q", c.Archive.Endpoint)
		}
	}
	return nil
}
