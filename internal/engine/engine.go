package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reloquent/pgpromote/internal/aws"
	"github.com/reloquent/pgpromote/internal/catalog"
	"github.com/reloquent/pgpromote/internal/config"
	"github.com/reloquent/pgpromote/internal/database"
	"github.com/reloquent/pgpromote/internal/diff"
	"github.com/reloquent/pgpromote/internal/extract"
	"github.com/reloquent/pgpromote/internal/logging"
	"github.com/reloquent/pgpromote/internal/report"
	"github.com/reloquent/pgpromote/internal/runner"
	"github.com/reloquent/pgpromote/internal/schema"
	"github.com/reloquent/pgpromote/internal/state"
	"github.com/reloquent/pgpromote/internal/synth"
)

// ErrNoScript is returned when migrate or rollback finds no script to run.
var ErrNoScript = errors.New("no script found")

// Engine is the promotion pipeline shared by all commands.
type Engine struct {
	Config *config.Config
	State  *state.State
	Logger *slog.Logger

	// AWSClient archives artifacts when aws.s3_bucket is set. It is created
	// on first use unless injected.
	AWSClient aws.Client

	statePath   string
	source      database.Factory
	destination database.Factory
	builder     *extract.Builder
	runner      *runner.Runner
	now         func() time.Time
}

// New creates an Engine that connects to the databases named in cfg.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	logger = logging.OrDiscard(logger)
	return NewWithFactories(cfg, logger,
		database.NewPostgresFactory(database.FromConfig(cfg.Source), logger.With("side", "source")),
		database.NewPostgresFactory(database.FromConfig(cfg.Destination), logger.With("side", "destination")),
	)
}

// NewWithFactories creates an Engine over the given connection factories.
func NewWithFactories(cfg *config.Config, logger *slog.Logger, source, destination database.Factory) *Engine {
	logger = logging.OrDiscard(logger)
	reader := catalog.NewReader(cfg.ExcludedSchemas, logger)
	return &Engine{
		Config:      cfg,
		Logger:      logger,
		statePath:   cfg.OutputPath(cfg.Output.StateFile),
		source:      source,
		destination: destination,
		builder:     extract.NewBuilder(reader, logger),
		runner: runner.New(runner.Options{
			Factory:        destination,
			Database:       database.FromConfig(cfg.Destination),
			BackupDir:      cfg.Output.Directory,
			DumpCommand:    cfg.Backup.DumpCommand,
			RestoreCommand: cfg.Backup.RestoreCommand,
			Logger:         logger,
		}),
		now: time.Now,
	}
}

// LoadState loads the run state from the output directory.
func (e *Engine) LoadState() (*state.State, error) {
	st, err := state.Load(e.statePath)
	if err != nil {
		return nil, err
	}
	e.State = st
	return st, nil
}

// SaveState persists the current run state.
func (e *Engine) SaveState() error {
	if e.State == nil {
		return fmt.Errorf("no state to save")
	}
	return e.State.Save(e.statePath)
}

func (e *Engine) ensureState() error {
	if e.State != nil {
		return nil
	}
	_, err := e.LoadState()
	return err
}

// finish records the outcome of step and saves the state.
func (e *Engine) finish(step state.Step, detail string, err error) error {
	if err != nil {
		e.State.FailStep(step, err)
	} else {
		e.State.CompleteStep(step, detail)
	}
	if saveErr := e.SaveState(); saveErr != nil {
		e.Logger.Warn("saving state", "error", saveErr)
	}
	return err
}

// ConnectionStatus is the result of probing one database.
type ConnectionStatus struct {
	Label  string
	Target string
	Err    error
}

// ConnectionReport holds the checks run by TestConnections.
type ConnectionReport struct {
	Databases []ConnectionStatus
	Archive   *aws.ArchiveAccess
	// ArchiveErr is set when archiving is configured but credentials fail.
	ArchiveErr error
}

// OK reports whether every check succeeded.
func (r *ConnectionReport) OK() bool {
	for _, db := range r.Databases {
		if db.Err != nil {
			return false
		}
	}
	if r.ArchiveErr != nil {
		return false
	}
	return r.Archive == nil || r.Archive.Writable
}

// TestConnections opens and pings both databases, and checks S3 access when
// archiving is configured.
func (e *Engine) TestConnections(ctx context.Context) *ConnectionReport {
	report := &ConnectionReport{Databases: []ConnectionStatus{
		{Label: "source", Target: e.source.Describe()},
		{Label: "destination", Target: e.destination.Describe()},
	}}

	var g errgroup.Group
	for i, f := range []database.Factory{e.source, e.destination} {
		g.Go(func() error {
			report.Databases[i].Err = ping(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	if e.Config.AWS.S3Bucket != "" {
		client, err := e.awsClient(ctx)
		if err == nil {
			report.Archive, err = aws.CheckArchiveAccess(ctx, client, e.Config.AWS.S3Bucket)
		}
		report.ArchiveErr = err
	}
	return report
}

func ping(ctx context.Context, f database.Factory) error {
	conn, err := f.Open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Ping(ctx)
}

// Extract captures both schemas and writes their SQL renderings.
func (e *Engine) Extract(ctx context.Context) (*extract.Pair, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}

	pair, err := e.builder.ExtractPair(ctx, e.source, e.destination)
	if err != nil {
		return nil, e.finish(state.StepExtract, "", err)
	}
	e.State.SourceDatabase = pair.Source.Database
	e.State.DestinationDatabase = pair.Destination.Database

	if err := e.writeSnapshots(pair); err != nil {
		return nil, e.finish(state.StepExtract, "", err)
	}
	detail := fmt.Sprintf("source %d objects, destination %d objects", pair.Source.Total(), pair.Destination.Total())
	return pair, e.finish(state.StepExtract, detail, nil)
}

func (e *Engine) writeSnapshots(pair *extract.Pair) error {
	out := e.Config.Output
	for _, s := range []struct {
		snap *schema.Snapshot
		file string
	}{{pair.Source, out.SourceSchemaFile}, {pair.Destination, out.DestSchemaFile}} {
		if err := e.writeArtifact(s.file, []byte(synth.RenderSnapshot(s.snap))); err != nil {
			return err
		}
		if out.WriteSnapshotsYAML {
			if err := s.snap.WriteYAML(e.Config.OutputPath(s.snap.Label + "_snapshot.yaml")); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) writeArtifact(name string, data []byte) error {
	path := e.Config.OutputPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	e.Logger.Debug("artifact written", "path", path, "bytes", len(data))
	return nil
}

// Comparison is the outcome of Compare.
type Comparison struct {
	Pair    *extract.Pair
	Diff    *diff.DiffSet
	Report  string
	Summary string
}

// Compare extracts both schemas, diffs them and writes the report.
func (e *Engine) Compare(ctx context.Context) (*Comparison, error) {
	pair, err := e.Extract(ctx)
	if err != nil {
		return nil, err
	}

	d, err := diff.Compare(pair.Source, pair.Destination)
	if err != nil {
		return nil, e.finish(state.StepCompare, "", err)
	}
	c := &Comparison{Pair: pair, Diff: d, Report: diff.Report(d), Summary: diff.SummaryTable(d)}
	if err := e.writeArtifact(e.Config.Output.DiffReportFile, []byte(c.Report)); err != nil {
		return nil, e.finish(state.StepCompare, "", err)
	}

	tot := d.Totals()
	e.Logger.Info("schemas compared", "added", tot.Added, "removed", tot.Removed, "modified", tot.Modified)
	return c, e.finish(state.StepCompare, fmt.Sprintf("%d differences", tot.Sum()), nil)
}

// Generation is the outcome of Generate.
type Generation struct {
	*Comparison
	Forward       *synth.Script
	Rollback      *synth.Script
	MigrationPath string
	RollbackPath  string
	Archive       *aws.UploadResult
}

// Generate compares the schemas and writes the migration and rollback
// scripts. Scripts are archived to S3 when configured.
func (e *Engine) Generate(ctx context.Context) (*Generation, error) {
	c, err := e.Compare(ctx)
	if err != nil {
		return nil, err
	}

	opts := synth.Options{ExpectedDatabase: e.Config.Destination.Database, GeneratedAt: e.now()}
	g := &Generation{
		Comparison:    c,
		Forward:       synth.Forward(c.Diff, opts),
		Rollback:      synth.Rollback(c.Diff, opts),
		MigrationPath: e.Config.OutputPath(e.Config.Output.MigrationFile),
		RollbackPath:  e.Config.OutputPath(e.Config.Output.RollbackFile),
	}
	for _, n := range g.Forward.Notes {
		e.Logger.Warn("not synthesized", "kind", n.Kind.String(), "key", n.Key, "reason", n.Reason)
	}

	if err := e.writeArtifact(e.Config.Output.MigrationFile, []byte(g.Forward.String())); err != nil {
		return nil, e.finish(state.StepGenerate, "", err)
	}
	if err := e.writeArtifact(e.Config.Output.RollbackFile, []byte(g.Rollback.String())); err != nil {
		return nil, e.finish(state.StepGenerate, "", err)
	}
	e.State.MigrationScriptPath = g.MigrationPath
	e.State.RollbackScriptPath = g.RollbackPath
	e.State.PendingChanges = g.Forward.Len()

	if e.Config.AWS.S3Bucket != "" {
		uploader, err := e.uploader(ctx)
		if err == nil {
			g.Archive, err = uploader.UploadArtifacts(ctx, aws.ArtifactSet{
				MigrationScript: []byte(g.Forward.String()),
				RollbackScript:  []byte(g.Rollback.String()),
				DiffReport:      []byte(c.Report),
			})
		}
		if err != nil {
			return nil, e.finish(state.StepGenerate, "", fmt.Errorf("archiving scripts: %w", err))
		}
	}

	detail := fmt.Sprintf("%d statements, %d skipped", g.Forward.Len(), len(g.Forward.Notes))
	return g, e.finish(state.StepGenerate, detail, nil)
}

// Migrate validates and applies the generated migration script. Unless
// dryRun is set, a backup is taken first when the config requires one.
func (e *Engine) Migrate(ctx context.Context, dryRun bool) (*runner.Result, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	path := e.Config.OutputPath(e.Config.Output.MigrationFile)
	if err := scriptExists(path); err != nil {
		return nil, e.finish(state.StepMigrate, "", err)
	}

	if !dryRun && e.Config.BackupRequired() {
		if _, err := e.Backup(ctx); err != nil {
			return nil, e.finish(state.StepMigrate, "", fmt.Errorf("backup required before migrating: %w", err))
		}
	}

	res, err := e.runner.Execute(ctx, path, dryRun)
	return res, e.record(state.StepMigrate, res, err)
}

// Rollback validates and applies the generated rollback script.
func (e *Engine) Rollback(ctx context.Context, dryRun bool) (*runner.Result, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	path := e.Config.OutputPath(e.Config.Output.RollbackFile)
	if err := scriptExists(path); err != nil {
		return nil, e.finish(state.StepRollback, "", err)
	}
	res, err := e.runner.Rollback(ctx, path, dryRun)
	return res, e.record(state.StepRollback, res, err)
}

func (e *Engine) record(step state.Step, res *runner.Result, err error) error {
	if err == nil && res.DryRun {
		e.State.Record(step, state.StatusDryRun, res.Script)
		if saveErr := e.SaveState(); saveErr != nil {
			e.Logger.Warn("saving state", "error", saveErr)
		}
		return nil
	}
	if err == nil && step == state.StepMigrate {
		e.State.PendingChanges = 0
	}
	if !res.DryRun {
		e.writeRunReport(step, res, err)
	}
	return e.finish(step, res.Script, err)
}

// writeRunReport records the outcome of an applied script next to it.
func (e *Engine) writeRunReport(step state.Step, res *runner.Result, runErr error) {
	direction := "migration"
	if step == state.StepRollback {
		direction = "rollback"
	}
	r := report.New(report.Input{
		Direction:   direction,
		Source:      e.source.Describe(),
		Destination: e.destination.Describe(),
		Script: report.ScriptSummary{
			Path:       res.Script,
			Outcome:    string(res.Outcome),
			DurationMS: res.Duration.Milliseconds(),
			Pending:    e.State.PendingChanges,
		},
		Backup: report.BackupSummary{Taken: e.State.BackupTaken, Path: e.State.BackupPath, S3URI: e.State.BackupS3URI},
		Err:    runErr,
	}, e.now())

	base := e.Config.OutputPath(report.FileName(direction))
	if err := report.WriteJSON(r, base+".json"); err != nil {
		e.Logger.Warn("writing run report", "error", err)
		return
	}
	if err := report.WriteText(r, base+".txt"); err != nil {
		e.Logger.Warn("writing run report", "error", err)
	}
}

func scriptExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w at %s, run generate first", ErrNoScript, path)
		}
		return err
	}
	return nil
}

// Backup dumps the destination and archives the dump when configured.
func (e *Engine) Backup(ctx context.Context) (string, error) {
	if err := e.ensureState(); err != nil {
		return "", err
	}
	path, err := e.runner.CreateBackup(ctx)
	if err != nil {
		return "", e.finish(state.StepBackup, "", err)
	}
	e.State.RecordBackup(path)

	if e.Config.AWS.S3Bucket != "" {
		uploader, err := e.uploader(ctx)
		if err == nil {
			e.State.BackupS3URI, err = uploader.UploadBackup(ctx, path)
		}
		if err != nil {
			// The local dump is still usable.
			e.Logger.Warn("archiving backup", "path", path, "error", err)
		}
	}
	return path, e.finish(state.StepBackup, path, nil)
}

// Restore replays a backup into the destination. An empty path restores
// the most recent backup recorded in the state.
func (e *Engine) Restore(ctx context.Context, path string) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	if path == "" {
		if !e.State.BackupTaken || e.State.BackupPath == "" {
			return fmt.Errorf("no backup recorded, pass a backup file")
		}
		path = e.State.BackupPath
	}
	return e.finish(state.StepRestore, path, e.runner.RestoreBackup(ctx, path))
}

// StatusReport describes the artifacts and recorded progress.
type StatusReport struct {
	State           *state.State
	MigrationPath   string
	MigrationExists bool
	RollbackPath    string
	RollbackExists  bool
	BackupExists    bool
}

// Status reports what has been generated, backed up and applied.
func (e *Engine) Status() (*StatusReport, error) {
	st, err := e.LoadState()
	if err != nil {
		return nil, err
	}
	r := &StatusReport{
		State:         st,
		MigrationPath: e.Config.OutputPath(e.Config.Output.MigrationFile),
		RollbackPath:  e.Config.OutputPath(e.Config.Output.RollbackFile),
	}
	r.MigrationExists = fileExists(r.MigrationPath)
	r.RollbackExists = fileExists(r.RollbackPath)
	r.BackupExists = st.BackupPath != "" && fileExists(st.BackupPath)
	return r, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *Engine) awsClient(ctx context.Context) (aws.Client, error) {
	if e.AWSClient != nil {
		return e.AWSClient, nil
	}
	client, err := aws.NewRealClient(ctx, e.Config.AWS.Profile, e.Config.AWS.Region)
	if err != nil {
		return nil, err
	}
	e.AWSClient = client
	return client, nil
}

func (e *Engine) uploader(ctx context.Context) (*aws.ArtifactUploader, error) {
	client, err := e.awsClient(ctx)
	if err != nil {
		return nil, err
	}
	runID := e.now().Format("20060102_150405")
	e.State.ArtifactS3Prefix = fmt.Sprintf("s3://%s/%s/%s", e.Config.AWS.S3Bucket, e.Config.AWS.S3Prefix, runID)
	return aws.NewArtifactUploader(client, e.Config.AWS.S3Bucket, e.Config.AWS.S3Prefix, runID), nil
}
