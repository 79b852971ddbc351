package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zetxtech/websole/internal/db"
	"github.com/zetxtech/websole/internal/model"
)

func setupTestRepo(t *testing.T) *RunRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewRunRepository(testDB)
}

func TestRunRepository_Lifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	run := &model.Run{
		ID:        uuid.New().String(),
		PID:       1234,
		Command:   "bash -l",
		StartedAt: started,
	}

	t.Run("start", func(t *testing.T) {
		if err := repo.RunStarted(ctx, run); err != nil {
			t.Fatalf("RunStarted failed: %v", err)
		}
		got, err := repo.GetByID(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.PID != 1234 || got.Command != "bash -l" {
			t.Errorf("got %+v", got)
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
		}
		if got.EndedAt != nil || got.ExitCode != nil || got.EndReason != "" {
			t.Errorf("open run has end fields: %+v", got)
		}
	})

	t.Run("end", func(t *testing.T) {
		ended := started.Add(30 * time.Second)
		if err := repo.RunEnded(ctx, run.ID, ended, 3, model.EndReasonExit); err != nil {
			t.Fatalf("RunEnded failed: %v", err)
		}
		got, err := repo.GetByID(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
			t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
		}
		if got.ExitCode == nil || *got.ExitCode != 3 {
			t.Errorf("ExitCode = %v, want 3", got.ExitCode)
		}
		if got.EndReason != model.EndReasonExit {
			t.Errorf("EndReason = %q, want exit", got.EndReason)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrRunNotFound) {
			t.Errorf("GetByID err = %v, want ErrRunNotFound", err)
		}
		if err := repo.RunEnded(ctx, "missing", time.Now(), 0, model.EndReasonExit); !errors.Is(err, model.ErrRunNotFound) {
			t.Errorf("RunEnded err = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		if err := repo.RunStarted(ctx, run); err == nil {
			t.Error("expected error for duplicate run id")
		}
	})
}

func TestRunRepository_ListRecent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("empty history", func(t *testing.T) {
		runs, err := repo.ListRecent(ctx, 10)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if runs == nil || len(runs) != 0 {
			t.Errorf("expected empty non-nil list, got %v", runs)
		}
	})

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		run := &model.Run{
			ID:        uuid.New().String(),
			PID:       100 + i,
			Command:   "sh",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.RunStarted(ctx, run); err != nil {
			t.Fatalf("RunStarted failed: %v", err)
		}
		ids = append(ids, run.ID)
	}

	t.Run("newest first with limit", func(t *testing.T) {
		runs, err := repo.ListRecent(ctx, 3)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("got %d runs, want 3", len(runs))
		}
		for i, run := range runs {
			if want := ids[4-i]; run.ID != want {
				t.Errorf("runs[%d] = %s, want %s", i, run.ID, want)
			}
		}
	})
}

func TestRunPersistenceProperty(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "websole_runs_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db.ResetDB()
	testDB, err := db.InitDB(filepath.Join(tmpDir, "runs.db"))
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	defer db.ResetDB()

	repo := NewRunRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	reasons := gen.OneConstOf(model.EndReasonExit, model.EndReasonRestart, model.EndReasonShutdown)

	properties.Property("started and ended runs read back unchanged", prop.ForAll(
		func(command string, pid int, code int, reason model.EndReason) bool {
			started := time.Now().Truncate(time.Second)
			run := &model.Run{
				ID:        uuid.New().String(),
				PID:       pid,
				Command:   command,
				StartedAt: started,
			}
			if err := repo.RunStarted(ctx, run); err != nil {
				t.Logf("failed to start run: %v", err)
				return false
			}
			if err := repo.RunEnded(ctx, run.ID, started.Add(time.Second), code, reason); err != nil {
				t.Logf("failed to end run: %v", err)
				return false
			}

			got, err := repo.GetByID(ctx, run.ID)
			if err != nil {
				t.Logf("failed to get run: %v", err)
				return false
			}
			return got.Command == command &&
				got.PID == pid &&
				got.StartedAt.Equal(started) &&
				got.ExitCode != nil && *got.ExitCode == code &&
				got.EndReason == reason
		},
		gen.AlphaString(),
		gen.IntRange(1, 1<<22),
		gen.IntRange(-1, 255),
		reasons,
	))

	properties.TestingRun(t)
}
