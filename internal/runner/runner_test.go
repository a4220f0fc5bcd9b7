package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloquent/pgpromote/internal/database"
	"github.com/reloquent/pgpromote/internal/safety"
)

const cleanScript = "BEGIN;\nCREATE TABLE IF NOT EXISTS public.orders ();\nCOMMIT;\n"

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migration_script.sql")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newRunner(t *testing.T, factory *database.MockFactory) *Runner {
	t.Helper()
	r := New(Options{
		Factory:   factory,
		Database:  database.Config{Host: "prod.internal", Port: 5432, Database: "app", User: "deploy", Password: "s3cret"},
		BackupDir: t.TempDir(),
	})
	r.now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }
	return r
}

func TestExecuteAppliesValidScript(t *testing.T) {
	factory := &database.MockFactory{Name: "prod"}
	path := writeScript(t, cleanScript)

	res, err := newRunner(t, factory).Execute(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, Executed, res.Outcome)
	assert.Equal(t, 1, factory.Opened)
	assert.Equal(t, []string{cleanScript}, factory.Conn.Executed)
	assert.True(t, factory.Conn.Closed)
}

func TestExecuteDryRunNeverConnects(t *testing.T) {
	factory := &database.MockFactory{}
	res, err := newRunner(t, factory).Execute(context.Background(), writeScript(t, cleanScript), true)
	require.NoError(t, err)
	assert.Equal(t, Validated, res.Outcome)
	assert.True(t, res.DryRun)
	assert.Equal(t, 0, factory.Opened)
}

func TestExecuteRejectsDeniedScript(t *testing.T) {
	factory := &database.MockFactory{}
	res, err := newRunner(t, factory).Execute(context.Background(), writeScript(t, "BEGIN;\nDROP TABLE users;\nCOMMIT;\n"), false)

	var vr *safety.ValidationRejected
	require.ErrorAs(t, err, &vr)
	assert.Equal(t, Rejected, res.Outcome)
	assert.Equal(t, 0, factory.Opened, "rejected scripts must never reach the database")
}

func TestExecuteMissingScript(t *testing.T) {
	res, err := newRunner(t, &database.MockFactory{}).Execute(context.Background(), filepath.Join(t.TempDir(), "nope.sql"), false)
	require.Error(t, err)
	assert.Equal(t, Failed, res.Outcome)
}

func TestExecuteReportsFailingStatement(t *testing.T) {
	cause := errors.New(`relation "orders" already exists`)
	factory := &database.MockFactory{Conn: &database.MockConn{
		ExecErr: &database.ScriptError{Line: 2, Statement: "CREATE TABLE IF NOT EXISTS public.orders ();", Err: cause},
	}}

	res, err := newRunner(t, factory).Execute(context.Background(), writeScript(t, cleanScript), false)
	var fail *ExecutionFailure
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 2, fail.Line)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "line 2")
	assert.True(t, factory.Conn.Closed)
}

func TestExecuteOpenFailure(t *testing.T) {
	factory := &database.MockFactory{OpenErr: errors.New("connection refused")}
	res, err := newRunner(t, factory).Execute(context.Background(), writeScript(t, cleanScript), false)
	require.Error(t, err)
	assert.Equal(t, Failed, res.Outcome)
}

func TestRollbackUsesRollbackPolicy(t *testing.T) {
	path := writeScript(t, "BEGIN;\nDROP TABLE IF EXISTS public.orders;\nCOMMIT;\n")

	factory := &database.MockFactory{}
	res, err := newRunner(t, factory).Rollback(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, Executed, res.Outcome)

	_, err = newRunner(t, &database.MockFactory{}).Execute(context.Background(), path, false)
	var vr *safety.ValidationRejected
	assert.ErrorAs(t, err, &vr)
}

func TestCreateBackup(t *testing.T) {
	r := newRunner(t, &database.MockFactory{})

	var gotName string
	var gotArgs, gotEnv []string
	r.run = func(_ context.Context, name string, args, env []string) (string, error) {
		gotName, gotArgs, gotEnv = name, args, env
		for _, a := range args {
			if file, ok := strings.CutPrefix(a, "--file="); ok {
				return "", os.WriteFile(file, []byte("-- dump\n"), 0o644)
			}
		}
		return "", errors.New("no --file argument")
	}

	path, err := r.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backup_pre_migration_20261019_093000.sql", filepath.Base(path))
	assert.FileExists(t, path)
	assert.Equal(t, "pg_dump", gotName)
	assert.True(t, slices.Contains(gotEnv, "PGPASSWORD=s3cret"))
	for _, a := range gotArgs {
		assert.NotContains(t, a, "s3cret", "password must not be passed as an argument")
	}
}

func TestCreateBackupFailure(t *testing.T) {
	r := newRunner(t, &database.MockFactory{})
	r.run = func(_ context.Context, _ string, args, _ []string) (string, error) {
		for _, a := range args {
			if file, ok := strings.CutPrefix(a, "--file="); ok {
				_ = os.WriteFile(file, []byte("partial"), 0o644)
			}
		}
		return "pg_dump: error: connection to server failed\n", errors.New("exit status 1")
	}

	path, err := r.CreateBackup(context.Background())
	var bf *BackupFailure
	require.ErrorAs(t, err, &bf)
	assert.Empty(t, path)
	assert.Equal(t, "dump", bf.Op)
	assert.Contains(t, err.Error(), "connection to server failed")

	entries, err := os.ReadDir(r.backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial dump should be removed")
}

func TestRestoreBackup(t *testing.T) {
	r := newRunner(t, &database.MockFactory{})
	dump := filepath.Join(t.TempDir(), BackupFileName("20261019_093000"))
	require.NoError(t, os.WriteFile(dump, []byte("-- dump\n"), 0o644))

	var gotName string
	var gotArgs []string
	r.run = func(_ context.Context, name string, args, _ []string) (string, error) {
		gotName, gotArgs = name, args
		return "", nil
	}

	require.NoError(t, r.RestoreBackup(context.Background(), dump))
	assert.Equal(t, "psql", gotName)
	assert.Contains(t, gotArgs, "--single-transaction")
	assert.Contains(t, gotArgs, "--file="+dump)

	assert.Error(t, r.RestoreBackup(context.Background(), filepath.Join(t.TempDir(), "missing.sql")))
}
