package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BackupFailure means the dump or restore tool did not succeed.
type BackupFailure struct {
	Op       string // dump or restore
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BackupFailure) Error() string {
	msg := fmt.Sprintf("%s with %s failed", e.Op, e.Command)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackupFailure) Unwrap() error { return e.Err }

// CommandFunc runs an external program and returns what it wrote to stderr.
type CommandFunc func(ctx context.Context, name string, args, env []string) (stderr string, err error)

func execCommand(ctx context.Context, name string, args, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// BackupFileName is the dump file name for a backup taken at ts.
func BackupFileName(ts string) string {
	return "backup_pre_migration_" + ts + ".sql"
}

// CreateBackup dumps the destination to a timestamped file in the backup
// directory and returns its path. Credentials reach the tool through its
// environment only.
func (r *Runner) CreateBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	path := filepath.Join(r.backupDir, BackupFileName(r.now().Format("20060102_150405")))

	args := []string{"--format=plain", "--no-password", "--file=" + path}
	r.logger.Info("creating backup", "command", r.dumpCommand, "target", r.db.String(), "path", path)
	if err := r.runTool(ctx, "dump", r.dumpCommand, args); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			r.logger.Warn("removing partial backup", "path", path, "error", rmErr)
		}
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &BackupFailure{Op: "dump", Command: r.dumpCommand, Err: fmt.Errorf("no dump written: %w", err)}
	}
	r.logger.Info("backup created", "path", path, "bytes", info.Size())
	return path, nil
}

// RestoreBackup replays a plain dump into the destination in a single
// transaction, stopping at the first error.
func (r *Runner) RestoreBackup(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	args := []string{"--no-password", "--single-transaction", "--set=ON_ERROR_STOP=1", "--quiet", "--file=" + path}
	r.logger.Info("restoring backup", "command", r.restoreCommand, "target", r.db.String(), "path", path)
	if err := r.runTool(ctx, "restore", r.restoreCommand, args); err != nil {
		return err
	}
	r.logger.Info("backup restored", "path", path)
	return nil
}

func (r *Runner) runTool(ctx context.Context, op, command string, args []string) error {
	env := append(os.Environ(), r.db.Env()...)
	stderr, err := r.run(ctx, command, args, env)
	if err == nil {
		return nil
	}
	fail := &BackupFailure{Op: op, Command: command, Stderr: stderr, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		fail.ExitCode = exitErr.ExitCode()
	}
	r.logger.Error(op+" failed", "command", command, "error", fail)
	return fail
}
