package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// Project config file names, looked up in the working directory.
const (
	ProjectConfigFile    = ".fuzzysearch.yaml"
	ProjectConfigFileAlt = ".fuzzysearch.yml"

	// ConfigFileEnv names a config file that replaces the project file lookup.
	ConfigFileEnv = "FUZZYSEARCH_CONFIG"
)

// Defaults.
const (
	DefaultBackend      = "mongo"
	DefaultURI          = "mongodb://localhost:27017/"
	DefaultDatabase     = "demo"
	DefaultCollection   = "fuzzy"
	DefaultField        = "soundex"
	DefaultIndexName    = "soundexIndex"
	DefaultBatchSize    = 100
	DefaultFetchTimeout = 5 * time.Second
	DefaultMaxAttempts  = 10
	DefaultBaseDelay    = 50 * time.Millisecond
	DefaultLogLevel     = "info"
	DefaultLogMaxSizeMB = 10
	DefaultLogMaxFiles  = 5
)

// Config represents the complete fuzzysearch configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Backfill BackfillConfig `yaml:"backfill" json:"backfill"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Backend is "mongo" (default) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// URI is the MongoDB connection string. A database named in the URI
	// takes precedence over Database.
	URI string `yaml:"uri" json:"uri"`

	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`

	// SQLitePath is the database file for the sqlite backend.
	// Empty means <data dir>/<database>.db.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

// BackfillConfig configures the code backfill pass.
type BackfillConfig struct {
	// Fields are "array.leaf" paths to encode. Empty skips the backfill.
	Fields []string `yaml:"fields" json:"fields"`

	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`

	// RateLimit caps bulk submissions per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// LockDir holds the per-collection run locks.
	LockDir string `yaml:"lock_dir" json:"lock_dir"`
}

// IndexConfig names the secondary index on the code array.
type IndexConfig struct {
	Name  string `yaml:"name" json:"name"`
	Field string `yaml:"field" json:"field"`
}

// SearchConfig holds default search predicates.
type SearchConfig struct {
	Predicates []string `yaml:"predicates" json:"predicates"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files" json:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Backend:    DefaultBackend,
			URI:        DefaultURI,
			Database:   DefaultDatabase,
			Collection: DefaultCollection,
		},
		Backfill: BackfillConfig{
			BatchSize:    DefaultBatchSize,
			FetchTimeout: DefaultFetchTimeout,
			MaxAttempts:  DefaultMaxAttempts,
			BaseDelay:    DefaultBaseDelay,
			LockDir:      filepath.Join(DataDir(), "locks"),
		},
		Index: IndexConfig{
			Name:  DefaultIndexName,
			Field: DefaultField,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			MaxSizeMB: DefaultLogMaxSizeMB,
			MaxFiles:  DefaultLogMaxFiles,
		},
	}
}

// DataDir returns ~/.fuzzysearch, the home of local databases, locks and logs.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fuzzysearch")
	}
	return filepath.Join(home, ".fuzzysearch")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/fuzzysearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/fuzzysearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fuzzysearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "fuzzysearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "fuzzysearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// ProjectConfigPath returns the project config file in dir, or "" if none exists.
// The .yaml name wins over .yml.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := &Config{}
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUserConfig returns defaults merged with the user config only.
func LoadUserConfig() (*Config, error) {
	cfg := NewConfig()
	userCfg, err := loadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}
	return cfg, nil
}

// Load loads configuration for the given working directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/fuzzysearch/config.yaml)
//  3. Project config (.fuzzysearch.yaml in dir, or the FUZZYSEARCH_CONFIG file)
//  4. Environment variables (FUZZYSEARCH_*)
//
// CLI flags are applied by the caller, which then calls Validate.
func Load(dir string) (*Config, error) {
	cfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if !fileExists(path) {
			return nil, apperrors.New(apperrors.ErrCodeConfigNotFound, "config file not found", nil).
				WithDetail("path", path).
				WithSuggestion("unset " + ConfigFileEnv + " or point it at an existing file")
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.ConfigError("failed to read config file", err).
			WithDetail("path", path)
	}

	// Parse into a temporary struct so only the keys present override
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return apperrors.ConfigError("failed to parse config file", err).
			WithDetail("path", path).
			WithSuggestion("check the YAML syntax, durations are written like 5s or 50ms")
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = strings.ToLower(other.Store.Backend)
	}
	if other.Store.URI != "" {
		c.Store.URI = other.Store.URI
	}
	if other.Store.Database != "" {
		c.Store.Database = other.Store.Database
	}
	if other.Store.Collection != "" {
		c.Store.Collection = other.Store.Collection
	}
	if other.Store.SQLitePath != "" {
		c.Store.SQLitePath = other.Store.SQLitePath
	}

	// Backfill
	if len(other.Backfill.Fields) > 0 {
		c.Backfill.Fields = append([]string(nil), other.Backfill.Fields...)
	}
	if other.Backfill.BatchSize != 0 {
		c.Backfill.BatchSize = other.Backfill.BatchSize
	}
	if other.Backfill.FetchTimeout != 0 {
		c.Backfill.FetchTimeout = other.Backfill.FetchTimeout
	}
	if other.Backfill.MaxAttempts != 0 {
		c.Backfill.MaxAttempts = other.Backfill.MaxAttempts
	}
	if other.Backfill.BaseDelay != 0 {
		c.Backfill.BaseDelay = other.Backfill.BaseDelay
	}
	if other.Backfill.RateLimit != 0 {
		c.Backfill.RateLimit = other.Backfill.RateLimit
	}
	if other.Backfill.LockDir != "" {
		c.Backfill.LockDir = other.Backfill.LockDir
	}

	// Index
	if other.Index.Name != "" {
		c.Index.Name = other.Index.Name
	}
	if other.Index.Field != "" {
		c.Index.Field = other.Index.Field
	}

	// Search
	if len(other.Search.Predicates) > 0 {
		c.Search.Predicates = append([]string(nil), other.Search.Predicates...)
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
	if other.Logging.MaxAgeDays != 0 {
		c.Logging.MaxAgeDays = other.Logging.MaxAgeDays
	}
}

// applyEnvOverrides applies FUZZYSEARCH_* variables. Unparseable numeric
// values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FUZZYSEARCH_URI"); v != "" {
		c.Store.URI = v
	}
	if v := os.Getenv("FUZZYSEARCH_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("FUZZYSEARCH_COLLECTION"); v != "" {
		c.Store.Collection = v
	}
	if v := os.Getenv("FUZZYSEARCH_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FUZZYSEARCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Backfill.BatchSize = n
		}
	}
	if v := os.Getenv("FUZZYSEARCH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Backfill.MaxAttempts = n
		}
	}
	if v := os.Getenv("FUZZYSEARCH_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Backfill.BaseDelay = d
		}
	}
	if v := os.Getenv("FUZZYSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if !store.ValidBackend(c.Store.Backend) {
		return apperrors.ConfigError(fmt.Sprintf("store.backend must be 'mongo' or 'sqlite', got %q", c.Store.Backend), nil)
	}
	if c.Store.Collection == "" {
		return apperrors.ConfigError("store.collection must not be empty", nil).
			WithSuggestion("pass --collectionName or set store.collection")
	}

	if _, err := document.ParseFieldPaths(c.Backfill.Fields); err != nil {
		return err
	}
	if c.Backfill.BatchSize <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("backfill.batch_size must be positive, got %d", c.Backfill.BatchSize), nil)
	}
	if c.Backfill.MaxAttempts <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("backfill.max_attempts must be positive, got %d", c.Backfill.MaxAttempts), nil)
	}
	if c.Backfill.FetchTimeout <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("backfill.fetch_timeout must be positive, got %s", c.Backfill.FetchTimeout), nil)
	}
	if c.Backfill.BaseDelay <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("backfill.base_delay must be positive, got %s", c.Backfill.BaseDelay), nil)
	}
	if c.Backfill.RateLimit < 0 {
		return apperrors.ConfigError(fmt.Sprintf("backfill.rate_limit must be non-negative, got %g", c.Backfill.RateLimit), nil)
	}

	if c.Index.Name == "" || c.Index.Field == "" {
		return apperrors.ConfigError("index.name and index.field must not be empty", nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return apperrors.ConfigError(fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level), nil)
	}

	return nil
}

// ResolveDatabase returns the database to operate on. For the mongo backend
// a database named in the connection string wins over store.database.
func (c *Config) ResolveDatabase() (string, error) {
	if !strings.EqualFold(c.Store.Backend, string(store.BackendSQLite)) && c.Store.URI != "" {
		cs, err := connstring.Parse(c.Store.URI)
		if err != nil {
			return "", apperrors.ConfigError("invalid connection string", err).
				WithSuggestion("use the form mongodb://host:port/database")
		}
		if cs.Database != "" {
			return cs.Database, nil
		}
	}

	if c.Store.Database != "" {
		return c.Store.Database, nil
	}

	return "", apperrors.New(apperrors.ErrCodeDatabaseUnresolved, "a database name is required", nil).
		WithSuggestion("pass --dbName or put it in the connection string")
}

// ResolveSQLitePath returns the sqlite file for database.
func (c *Config) ResolveSQLitePath(database string) string {
	if c.Store.SQLitePath != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(DataDir(), "data", database+".db")
}

// YAML renders the configuration for `config show`.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// JSON renders the configuration for `config show --json`.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
