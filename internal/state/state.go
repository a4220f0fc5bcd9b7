package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one stage of the promotion pipeline.
type Step string

const (
	StepExtract  Step = "extract"
	StepCompare  Step = "compare"
	StepGenerate Step = "generate"
	StepBackup   Step = "backup"
	StepMigrate  Step = "migrate"
	StepRollback Step = "rollback"
	StepRestore  Step = "restore"
)

// Step statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusDryRun   = "dry_run"
)

// State records what the pipeline has done in one output directory.
type State struct {
	LastUpdated time.Time          `yaml:"last_updated"`
	Steps       map[Step]StepState `yaml:"steps,omitempty"`

	SourceDatabase      string `yaml:"source_database,omitempty"`
	DestinationDatabase string `yaml:"destination_database,omitempty"`

	MigrationScriptPath string `yaml:"migration_script_path,omitempty"`
	RollbackScriptPath  string `yaml:"rollback_script_path,omitempty"`
	PendingChanges      int    `yaml:"pending_changes"`

	BackupTaken bool   `yaml:"backup_taken"`
	BackupPath  string `yaml:"backup_path,omitempty"`
	BackupS3URI string `yaml:"backup_s3_uri,omitempty"`

	ArtifactS3Prefix string `yaml:"artifact_s3_prefix,omitempty"`
}

// StepState tracks the outcome of a single step.
type StepState struct {
	Status      string    `yaml:"status"` // complete, failed, dry_run
	CompletedAt time.Time `yaml:"completed_at,omitempty"`
	Detail      string    `yaml:"detail,omitempty"`
}

// Load reads the state from disk. A missing file yields a fresh state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if s.Steps == nil {
		s.Steps = make(map[Step]StepState)
	}

	return s, nil
}

// Save writes the state to disk.
func (s *State) Save(path string) error {
	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// New creates an empty state.
func New() *State {
	return &State{
		LastUpdated: time.Now(),
		Steps:       make(map[Step]StepState),
	}
}

// Record stores the outcome of step.
func (s *State) Record(step Step, status, detail string) {
	s.Steps[step] = StepState{
		Status:      status,
		CompletedAt: time.Now(),
		Detail:      detail,
	}
}

// CompleteStep marks a step as complete.
func (s *State) CompleteStep(step Step, detail string) {
	s.Record(step, StatusComplete, detail)
}

// FailStep marks a step as failed with err as its detail.
func (s *State) FailStep(step Step, err error) {
	s.Record(step, StatusFailed, err.Error())
}

// IsStepComplete returns true if the given step has been completed.
func (s *State) IsStepComplete(step Step) bool {
	ss, ok := s.Steps[step]
	return ok && ss.Status == StatusComplete
}

// RecordBackup notes a backup written to path.
func (s *State) RecordBackup(path string) {
	s.BackupTaken = true
	s.BackupPath = path
	s.CompleteStep(StepBackup, path)
}
