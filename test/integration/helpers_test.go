//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/reloquent/pgpromote/internal/config"
	"github.com/reloquent/pgpromote/internal/database"
)

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("PGPROMOTE_TEST_PG_HOST") == "" && os.Getenv("PGPROMOTE_TEST_PG_PORT") == "" {
		t.Skip("skipping: PGPROMOTE_TEST_PG_HOST/PORT not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func serverConfig(dbName string) config.DatabaseConfig {
	port, _ := strconv.Atoi(envOrDefault("PGPROMOTE_TEST_PG_PORT", "25432"))
	return config.DatabaseConfig{
		Host:     envOrDefault("PGPROMOTE_TEST_PG_HOST", "localhost"),
		Port:     port,
		Database: dbName,
		Username: envOrDefault("PGPROMOTE_TEST_PG_USER", "postgres"),
		Password: envOrDefault("PGPROMOTE_TEST_PG_PASSWORD", "postgres"),
	}
}

// exec runs each statement on its own, outside any transaction block.
func exec(t *testing.T, dbName string, stmts ...string) {
	t.Helper()
	ctx := context.Background()
	conn, err := database.NewPostgresFactory(database.FromConfig(serverConfig(dbName)), nil).Open(ctx)
	if err != nil {
		t.Fatalf("connecting to %s: %v", dbName, err)
	}
	defer conn.Close()
	for _, stmt := range stmts {
		if err := conn.ExecScript(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
}

// freshDatabases creates empty source and destination databases and drops
// them when the test ends.
func freshDatabases(t *testing.T) (string, string) {
	t.Helper()
	admin := envOrDefault("PGPROMOTE_TEST_PG_DATABASE", "postgres")
	src, dst := "pgpromote_it_source", "pgpromote_it_destination"
	for _, db := range []string{src, dst} {
		exec(t, admin, "DROP DATABASE IF EXISTS "+db, "CREATE DATABASE "+db)
	}
	t.Cleanup(func() {
		exec(t, admin, "DROP DATABASE IF EXISTS "+src, "DROP DATABASE IF EXISTS "+dst)
	})
	return src, dst
}

func loadConfig(t *testing.T, src, dst string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	s, d := serverConfig(src), serverConfig(dst)
	body := fmt.Sprintf(`version: 1
source: {host: %q, port: %d, database: %q, username: %q, password: %q}
destination: {host: %q, port: %d, database: %q, username: %q, password: %q}
output:
  directory: %q
backup:
  required: false
`, s.Host, s.Port, s.Database, s.Username, s.Password,
		d.Host, d.Port, d.Database, d.Username, d.Password,
		filepath.Join(dir, "out"))
	path := filepath.Join(dir, "pgpromote.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}
