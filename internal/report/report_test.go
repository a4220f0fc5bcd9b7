package report

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var generatedAt = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func TestJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "migration_report.json")

	r := New(Input{
		Direction:   "migration",
		Source:      "dev@dev.internal:5432/app_dev",
		Destination: "deploy@prod.internal:5432/app",
		Script:      ScriptSummary{Path: "migration_output/migration_script.sql", Outcome: "executed", DurationMS: 1250, Pending: 7},
		Backup:      BackupSummary{Taken: true, Path: "migration_output/backup_pre_migration_20261019_093000.sql"},
	}, generatedAt)

	if err := WriteJSON(r, path); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	loaded, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	if !loaded.Succeeded {
		t.Error("expected success")
	}
	if loaded.Script.Pending != 7 || loaded.Script.Outcome != "executed" {
		t.Errorf("script = %+v", loaded.Script)
	}
	if len(loaded.Checks) != 3 {
		t.Errorf("expected 3 checks, got %d", len(loaded.Checks))
	}
	for _, c := range loaded.Checks {
		if !c.Passed {
			t.Errorf("check %s failed", c.Name)
		}
	}
}

func TestFailedRunSuggestsRestore(t *testing.T) {
	r := New(Input{
		Direction: "migration",
		Script:    ScriptSummary{Path: "m.sql", Outcome: "failed"},
		Backup:    BackupSummary{Taken: true, Path: "b.sql"},
		Err:       errors.New(`relation "orders" already exists`),
	}, generatedAt)

	if r.Succeeded {
		t.Error("failed run reported as success")
	}
	if !strings.Contains(strings.Join(r.NextSteps, "\n"), "restore b.sql") {
		t.Errorf("next steps = %v", r.NextSteps)
	}
}

func TestRejectedRollbackHasNoBackupCheck(t *testing.T) {
	r := New(Input{Direction: "rollback", Script: ScriptSummary{Outcome: "rejected"}, Err: errors.New("rejected")}, generatedAt)
	for _, c := range r.Checks {
		if c.Name == "backup" {
			t.Error("rollback report should not check for a backup")
		}
	}
	if r.Checks[0].Passed {
		t.Error("validated check should fail for a rejected script")
	}
}

func TestFormatText(t *testing.T) {
	r := New(Input{
		Direction: "migration",
		Script:    ScriptSummary{Path: "m.sql", Outcome: "executed", DurationMS: 1500},
		Backup:    BackupSummary{Taken: true, Path: "b.sql", S3URI: "s3://bucket/pgpromote/b.sql"},
	}, generatedAt)

	text := FormatText(r)
	for _, want := range []string{
		"=== pgpromote migration report ===",
		"Duration: 1.5s",
		"Archived: s3://bucket/pgpromote/b.sql",
		"Result: SUCCESS",
		"[PASS] backup",
		"1. Review modified objects",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}
