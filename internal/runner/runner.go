// Package runner applies validated scripts to the destination database and
// manages the dump taken before a migration.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reloquent/pgpromote/internal/database"
	"github.com/reloquent/pgpromote/internal/logging"
	"github.com/reloquent/pgpromote/internal/safety"
)

// Outcome is the terminal state of one run.
type Outcome string

const (
	Validated Outcome = "validated"
	Executed  Outcome = "executed"
	Rejected  Outcome = "rejected"
	Failed    Outcome = "failed"
)

// ExecutionFailure means the database refused a validated script. The
// transaction was rolled back.
type ExecutionFailure struct {
	Script    string
	Line      int
	Statement string
	Err       error
}

func (e *ExecutionFailure) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("executing %s: line %d (%s): %v", e.Script, e.Line, e.Statement, e.Err)
	}
	return fmt.Sprintf("executing %s: %v", e.Script, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// Result summarizes one Execute or Rollback call.
type Result struct {
	Script   string
	DryRun   bool
	Outcome  Outcome
	Duration time.Duration
}

// Options configure a Runner.
type Options struct {
	// Factory opens connections to the destination.
	Factory database.Factory
	// Database supplies credentials to the dump and restore tools.
	Database       database.Config
	BackupDir      string
	DumpCommand    string
	RestoreCommand string
	Logger         *slog.Logger
}

// Runner validates and applies scripts against the destination. Each call
// opens its own connection and closes it before returning.
type Runner struct {
	factory  database.Factory
	db       database.Config
	forward  *safety.Gate
	rollback *safety.Gate

	backupDir      string
	dumpCommand    string
	restoreCommand string

	logger *slog.Logger
	run    CommandFunc
	now    func() time.Time
}

// New creates a Runner.
func New(opts Options) *Runner {
	logger := logging.OrDiscard(opts.Logger)
	r := &Runner{
		factory:        opts.Factory,
		db:             opts.Database,
		forward:        safety.NewGate(safety.ForwardPolicy, logger),
		rollback:       safety.NewGate(safety.RollbackPolicy, logger),
		backupDir:      opts.BackupDir,
		dumpCommand:    opts.DumpCommand,
		restoreCommand: opts.RestoreCommand,
		logger:         logger,
		run:            execCommand,
		now:            time.Now,
	}
	if r.dumpCommand == "" {
		r.dumpCommand = "pg_dump"
	}
	if r.restoreCommand == "" {
		r.restoreCommand = "psql"
	}
	return r
}

// Execute validates the migration script at path and, unless dryRun is
// set, applies it in one transaction.
func (r *Runner) Execute(ctx context.Context, path string, dryRun bool) (*Result, error) {
	return r.apply(ctx, r.forward, path, dryRun)
}

// Rollback applies a rollback script the same way Execute applies a
// migration, under the rollback policy.
func (r *Runner) Rollback(ctx context.Context, path string, dryRun bool) (*Result, error) {
	return r.apply(ctx, r.rollback, path, dryRun)
}

func (r *Runner) apply(ctx context.Context, gate *safety.Gate, path string, dryRun bool) (*Result, error) {
	start := r.now()
	res := &Result{Script: path, DryRun: dryRun}

	script, err := gate.ValidateFile(path)
	if err != nil {
		var vr *safety.ValidationRejected
		if errors.As(err, &vr) {
			res.Outcome = Rejected
		} else {
			res.Outcome = Failed
		}
		return res, err
	}

	if dryRun {
		res.Outcome = Validated
		r.logger.Info("dry run: script validated", "path", path, "policy", gate.Policy().Name)
		return res, nil
	}

	r.logger.Info("applying script", "path", path, "target", r.factory.Describe(), "policy", gate.Policy().Name)
	conn, err := r.factory.Open(ctx)
	if err != nil {
		res.Outcome = Failed
		return res, fmt.Errorf("connecting to %s: %w", r.factory.Describe(), err)
	}
	defer conn.Close()

	if err := conn.ExecScript(ctx, script); err != nil {
		res.Outcome = Failed
		fail := &ExecutionFailure{Script: path, Err: err}
		var se *database.ScriptError
		if errors.As(err, &se) {
			fail.Line, fail.Statement, fail.Err = se.Line, se.Statement, se.Err
		}
		r.logger.Error("script failed", "path", path, "line", fail.Line, "error", fail.Err)
		return res, fail
	}

	res.Outcome = Executed
	res.Duration = r.now().Sub(start)
	r.logger.Info("script applied", "path", path, "duration", res.Duration)
	return res, nil
}
