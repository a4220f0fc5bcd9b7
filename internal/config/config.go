package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "pgpromote.yaml"
)

// DefaultExcludedSchemas are never introspected unless the config overrides them.
var DefaultExcludedSchemas = []string{"pg_catalog", "information_schema", "pg_toast"}

// Config is the top-level configuration.
type Config struct {
	Version         int            `yaml:"version"`
	Source          DatabaseConfig `yaml:"source"`
	Destination     DatabaseConfig `yaml:"destination"`
	ExcludedSchemas []string       `yaml:"excluded_schemas,omitempty"`
	Output          OutputConfig   `yaml:"output,omitempty"`
	Backup          BackupConfig   `yaml:"backup,omitempty"`
	AWS             AWSConfig      `yaml:"aws,omitempty"`
	Logging         LogConfig      `yaml:"logging,omitempty"`
}

// DatabaseConfig is one side of the comparison. Source is the development
// database that leads, Destination is production.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl,omitempty"`
}

// OutputConfig names the artifact directory and files.
type OutputConfig struct {
	Directory          string `yaml:"directory,omitempty"`
	SourceSchemaFile   string `yaml:"source_schema_file,omitempty"`
	DestSchemaFile     string `yaml:"destination_schema_file,omitempty"`
	DiffReportFile     string `yaml:"diff_report_file,omitempty"`
	MigrationFile      string `yaml:"migration_file,omitempty"`
	RollbackFile       string `yaml:"rollback_file,omitempty"`
	StateFile          string `yaml:"state_file,omitempty"`
	WriteSnapshotsYAML bool   `yaml:"write_snapshots_yaml,omitempty"`
}

// BackupConfig controls the pre-migration dump.
type BackupConfig struct {
	Required       *bool  `yaml:"required,omitempty"` // default true
	DumpCommand    string `yaml:"dump_command,omitempty"`
	RestoreCommand string `yaml:"restore_command,omitempty"`
}

// AWSConfig enables archiving backups and scripts to S3.
type AWSConfig struct {
	Region   string `yaml:"region,omitempty"`
	Profile  string `yaml:"profile,omitempty"`
	S3Bucket string `yaml:"s3_bucket,omitempty"`
	S3Prefix string `yaml:"s3_prefix,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default <output>/logs
}

// Load reads and parses the config file from the given path. A .env file in
// the working directory is loaded first so secret references and PGPROMOTE_*
// overrides can come from it. A missing config file at the default path is
// not an error: the configuration is then built from the environment alone.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := &Config{Version: CurrentVersion}
	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	path = ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports missing connection fields.
func (c *Config) Validate() error {
	var problems []string
	for _, side := range []struct {
		name string
		db   DatabaseConfig
	}{{"source", c.Source}, {"destination", c.Destination}} {
		if side.db.Host == "" {
			problems = append(problems, side.name+".host is required")
		}
		if side.db.Database == "" {
			problems = append(problems, side.name+".database is required")
		}
		if side.db.Username == "" {
			problems = append(problems, side.name+".username is required")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BackupRequired reports whether a migration must be preceded by a dump.
func (c *Config) BackupRequired() bool {
	return c.Backup.Required == nil || *c.Backup.Required
}

// OutputPath joins name onto the output directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Output.Directory, name)
}

func (c *Config) applyDefaults() {
	for _, db := range []*DatabaseConfig{&c.Source, &c.Destination} {
		if db.Port == 0 {
			db.Port = 5432
		}
	}
	if len(c.ExcludedSchemas) == 0 {
		c.ExcludedSchemas = append([]string(nil), DefaultExcludedSchemas...)
	}

	o := &c.Output
	if o.Directory == "" {
		o.Directory = "migration_output"
	}
	o.Directory = ExpandHome(o.Directory)
	defaults := []struct {
		field *string
		value string
	}{
		{&o.SourceSchemaFile, "local_schema.sql"},
		{&o.DestSchemaFile, "production_schema.sql"},
		{&o.DiffReportFile, "schema_diff_report.txt"},
		{&o.MigrationFile, "migration_script.sql"},
		{&o.RollbackFile, "rollback_script.sql"},
		{&o.StateFile, "state.yaml"},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}

	if c.Backup.DumpCommand == "" {
		c.Backup.DumpCommand = "pg_dump"
	}
	if c.Backup.RestoreCommand == "" {
		c.Backup.RestoreCommand = "psql"
	}
	if c.AWS.S3Prefix == "" {
		c.AWS.S3Prefix = "pgpromote"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = filepath.Join(o.Directory, "logs")
	}
}

// applyEnv overlays PGPROMOTE_SOURCE_* and PGPROMOTE_DEST_* variables.
func (c *Config) applyEnv() error {
	sides := []struct {
		prefix string
		db     *DatabaseConfig
	}{
		{"PGPROMOTE_SOURCE_", &c.Source},
		{"PGPROMOTE_DEST_", &c.Destination},
	}
	for _, side := range sides {
		if v := os.Getenv(side.prefix + "HOST"); v != "" {
			side.db.Host = v
		}
		if v := os.Getenv(side.prefix + "PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%sPORT: %w", side.prefix, err)
			}
			side.db.Port = port
		}
		if v := os.Getenv(side.prefix + "DATABASE"); v != "" {
			side.db.Database = v
		}
		if v := os.Getenv(side.prefix + "USER"); v != "" {
			side.db.Username = v
		}
		if v := os.Getenv(side.prefix + "PASSWORD"); v != "" {
			side.db.Password = v
		}
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Source.Password, err = ResolveValue(c.Source.Password)
	if err != nil {
		return fmt.Errorf("source password: %w", err)
	}
	c.Destination.Password, err = ResolveValue(c.Destination.Password)
	if err != nil {
		return fmt.Errorf("destination password: %w", err)
	}
	return nil
}

// ResolveValue resolves a ${PROVIDER:ref} secret reference. Values without a
// reference are returned unchanged.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider, ref := matches[1], matches[2]
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
