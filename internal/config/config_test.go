package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgpromote.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  host: localhost
  database: app_dev
  username: dev
  password: devpass
destination:
  host: prod.internal
  port: 6432
  database: app
  username: deploy
  password: prodpass
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Source.Port != 5432 {
		t.Errorf("expected default source port 5432, got %d", cfg.Source.Port)
	}
	if cfg.Destination.Port != 6432 {
		t.Errorf("expected destination port 6432, got %d", cfg.Destination.Port)
	}
	if len(cfg.ExcludedSchemas) != 3 || cfg.ExcludedSchemas[0] != "pg_catalog" {
		t.Errorf("unexpected default excluded schemas: %v", cfg.ExcludedSchemas)
	}
	if cfg.Output.Directory != "migration_output" {
		t.Errorf("expected default output directory, got %s", cfg.Output.Directory)
	}
	if cfg.Output.MigrationFile != "migration_script.sql" {
		t.Errorf("expected default migration file, got %s", cfg.Output.MigrationFile)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if !cfg.BackupRequired() {
		t.Error("expected backup to be required by default")
	}
	if cfg.Backup.DumpCommand != "pg_dump" {
		t.Errorf("expected default dump command pg_dump, got %s", cfg.Backup.DumpCommand)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadInvalidVersion(t *testing.T) {
	path := writeConfig(t, "version: 99\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  host: localhost
  database: app_dev
  username: dev
destination:
  host: prod.internal
  database: app
  username: deploy
`)
	t.Setenv("PGPROMOTE_DEST_HOST", "replica.internal")
	t.Setenv("PGPROMOTE_DEST_PORT", "5433")
	t.Setenv("PGPROMOTE_SOURCE_PASSWORD", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Destination.Host != "replica.internal" {
		t.Errorf("Destination.Host = %q, want %q", cfg.Destination.Host, "replica.internal")
	}
	if cfg.Destination.Port != 5433 {
		t.Errorf("Destination.Port = %d, want 5433", cfg.Destination.Port)
	}
	if cfg.Source.Password != "from-env" {
		t.Errorf("Source.Password = %q, want %q", cfg.Source.Password, "from-env")
	}
}

func TestLoadBadPortEnv(t *testing.T) {
	path := writeConfig(t, "version: 1\n")
	t.Setenv("PGPROMOTE_SOURCE_PORT", "not-a-port")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestLoadSecretReference(t *testing.T) {
	path := writeConfig(t, `version: 1
destination:
  host: prod.internal
  database: app
  username: deploy
  password: "${ENV:PROD_DB_PASSWORD}"
`)
	t.Setenv("PROD_DB_PASSWORD", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Destination.Password != "s3cret" {
		t.Errorf("Destination.Password = %q, want %q", cfg.Destination.Password, "s3cret")
	}
}

func TestBackupRequiredExplicitFalse(t *testing.T) {
	path := writeConfig(t, `version: 1
backup:
  required: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackupRequired() {
		t.Error("expected backup.required: false to be honoured")
	}
}

func TestValidateMissingFields(t *testing.T) {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty connection settings")
	}
}

func TestResolveEnvSecret(t *testing.T) {
	t.Setenv("TEST_SECRET", "mysecret")
	val, err := ResolveValue("${ENV:TEST_SECRET}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "mysecret" {
		t.Errorf("expected mysecret, got %s", val)
	}
}

func TestResolveEnvSecretUnset(t *testing.T) {
	t.Setenv("TEST_SECRET_UNSET", "")
	if _, err := ResolveValue("${ENV:TEST_SECRET_UNSET}"); err == nil {
		t.Fatal("expected error for unset variable")
	}
}

func TestResolvePlainValue(t *testing.T) {
	val, err := ResolveValue("plaintext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plaintext" {
		t.Errorf("expected plaintext, got %s", val)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pgpromote.yaml")
	cfg := &Config{
		Version:     CurrentVersion,
		Source:      DatabaseConfig{Host: "localhost", Database: "dev", Username: "u"},
		Destination: DatabaseConfig{Host: "prod", Database: "prod", Username: "u"},
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Destination.Host != "prod" {
		t.Errorf("Destination.Host = %q, want %q", loaded.Destination.Host, "prod")
	}
}
