package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/cadence/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func newClockedStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s, err := New(filepath.Join(t.TempDir(), "test.db"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s, clock
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != len(Migrations()) {
		t.Errorf("Expected schema version %d, got %d", len(Migrations()), v)
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	sess, err := s.CreateSession(ctx, "task-1", models.SessionMetadata{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	if _, err := s.GetSession(ctx, sess.ID); err != nil {
		t.Errorf("Session lost after reopen: %v", err)
	}
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "task-42", models.SessionMetadata{MaxSprints: 5})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.ID == "" {
		t.Error("Session ID should not be empty")
	}
	if sess.Status != models.SessionStatusActive {
		t.Errorf("Expected status active, got %s", sess.Status)
	}
	if sess.SprintCount != 0 || sess.ConfidenceLevel != 0 {
		t.Errorf("Expected zero counters, got sprints=%d confidence=%v", sess.SprintCount, sess.ConfidenceLevel)
	}
	if sess.Metadata.MaxSprints != 5 {
		t.Errorf("Expected max sprints 5, got %d", sess.Metadata.MaxSprints)
	}
	if sess.Metadata.ConfidenceThreshold != models.DefaultConfidenceThreshold {
		t.Errorf("Expected default threshold, got %v", sess.Metadata.ConfidenceThreshold)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.TaskID != "task-42" {
		t.Errorf("Expected task id 'task-42', got %s", got.TaskID)
	}
	if !got.StartedAt.Equal(sess.StartedAt) {
		t.Errorf("Expected started_at %v, got %v", sess.StartedAt, got.StartedAt)
	}

	_, err = s.GetSession(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = s.CreateSession(ctx, "  ", models.SessionMetadata{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for empty task id, got %v", err)
	}
}

func TestUpdateSession_Rules(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "task", models.SessionMetadata{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	bad := 1.5
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{ConfidenceLevel: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for confidence 1.5, got %v", err)
	}

	count := 2
	conf := 0.6
	updated, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{SprintCount: &count, ConfidenceLevel: &conf})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.SprintCount != 2 || updated.ConfidenceLevel != 0.6 {
		t.Errorf("Unexpected update result: %+v", updated)
	}

	lower := 1
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{SprintCount: &lower}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for decreasing sprint count, got %v", err)
	}

	completed := models.SessionStatusCompleted
	done, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &completed})
	if err != nil {
		t.Fatalf("UpdateSession to completed failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	active := models.SessionStatusActive
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &active}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation when leaving a terminal status, got %v", err)
	}

	if _, err := s.UpdateSession(ctx, "missing", SessionUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSession_KeepTerminal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	cancelled := models.SessionStatusCancelled
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &cancelled}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	completed := models.SessionStatusCompleted
	count := 1
	conf := 0.8
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &completed, SprintCount: &count}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation completing a cancelled session, got %v", err)
	}

	got, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &completed, SprintCount: &count, ConfidenceLevel: &conf, KeepTerminal: true})
	if err != nil {
		t.Fatalf("UpdateSession with KeepTerminal failed: %v", err)
	}
	if got.Status != models.SessionStatusCancelled {
		t.Errorf("Expected status to stay cancelled, got %s", got.Status)
	}
	if got.SprintCount != 1 || got.ConfidenceLevel != 0.8 {
		t.Errorf("Expected counters to be recorded, got %+v", got)
	}
}

func TestListActiveSessions_Order(t *testing.T) {
	s, clock := newClockedStore(t)
	defer s.Close()
	ctx := context.Background()

	first, _ := s.CreateSession(ctx, "a", models.SessionMetadata{})
	clock.Advance(time.Second)
	second, _ := s.CreateSession(ctx, "b", models.SessionMetadata{})
	clock.Advance(time.Second)
	third, _ := s.CreateSession(ctx, "c", models.SessionMetadata{})
	clock.Advance(time.Second)

	cancelled := models.SessionStatusCancelled
	if _, err := s.UpdateSession(ctx, second.ID, SessionUpdate{Status: &cancelled}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	conf := 0.3
	if _, err := s.UpdateSession(ctx, first.ID, SessionUpdate{ConfidenceLevel: &conf}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	active, err := s.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active sessions, got %d", len(active))
	}
	if active[0].ID != first.ID || active[1].ID != third.ID {
		t.Errorf("Expected most recently updated first, got %s, %s", active[0].TaskID, active[1].TaskID)
	}

	all, err := s.ListSessions(ctx, "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(all))
	}
}

func TestCreateSprint_Numbering(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	for i := 1; i <= 3; i++ {
		sp, err := s.CreateSprint(ctx, sess.ID, "objective")
		if err != nil {
			t.Fatalf("CreateSprint failed: %v", err)
		}
		if sp.SprintNumber != i {
			t.Errorf("Expected sprint number %d, got %d", i, sp.SprintNumber)
		}
		if sp.Status != models.SprintStatusPlanning {
			t.Errorf("Expected status planning, got %s", sp.Status)
		}
	}
}

func TestCreateSprint_Concurrent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sp, err := s.CreateSprint(ctx, sess.ID, "parallel")
			if err != nil {
				errs <- err
				return
			}
			numbers <- sp.SprintNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Errorf("CreateSprint failed: %v", err)
	}
	var got []int
	for num := range numbers {
		got = append(got, num)
	}
	sort.Ints(got)
	if len(got) != n {
		t.Fatalf("Expected %d sprints, got %d", n, len(got))
	}
	for i, num := range got {
		if num != i+1 {
			t.Fatalf("Expected contiguous numbers 1..%d, got %v", n, got)
		}
	}
}

func TestCreateSprint_Errors(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.CreateSprint(ctx, "missing", "objective")
	if !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected ErrConstraint for missing session, got %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected missing session error to also match ErrNotFound, got %v", err)
	}

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	failed := models.SessionStatusFailed
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &failed}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	_, err = s.CreateSprint(ctx, sess.ID, "objective")
	if !errors.Is(err, ErrSessionInactive) {
		t.Errorf("Expected ErrSessionInactive, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrSessionInactive to match ErrValidation, got %v", err)
	}
}

func TestUpdateSprint(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	sp, _ := s.CreateSprint(ctx, sess.ID, "build it")

	completed := models.SprintStatusCompleted
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &completed}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation completing a planning sprint, got %v", err)
	}
	failedEarly := models.SprintStatusFailed
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &failedEarly}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation failing a planning sprint, got %v", err)
	}
	if got, _ := s.GetSprint(ctx, sp.ID); got == nil || got.Status != models.SprintStatusPlanning || got.CompletedAt != nil {
		t.Errorf("Expected rejected updates to leave the sprint in planning, got %+v", got)
	}

	executing := models.SprintStatusExecuting
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &executing}); err != nil {
		t.Fatalf("UpdateSprint failed: %v", err)
	}
	planning := models.SprintStatusPlanning
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &planning}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation moving back to planning, got %v", err)
	}

	conf := 0.85
	result := &models.SprintResult{Success: true, Output: "done", Metrics: models.SprintMetrics{DurationMs: 1200, Tokens: 300}}
	done, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &completed, Confidence: &conf, Result: result})
	if err != nil {
		t.Fatalf("UpdateSprint failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	got, err := s.GetSprint(ctx, sp.ID)
	if err != nil {
		t.Fatalf("GetSprint failed: %v", err)
	}
	if got.Result == nil || got.Result.Output != "done" || got.Result.Metrics.Tokens != 300 {
		t.Errorf("Unexpected result round trip: %+v", got.Result)
	}
	if got.Result.SchemaVersion != models.SprintResultVersion {
		t.Errorf("Expected schema version %d, got %d", models.SprintResultVersion, got.Result.SchemaVersion)
	}

	failed := models.SprintStatusFailed
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &failed}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for terminal sprint, got %v", err)
	}
	if _, err := s.UpdateSprint(ctx, "missing", SprintUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestArtifacts(t *testing.T) {
	s, clock := newClockedStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	sp, _ := s.CreateSprint(ctx, sess.ID, "objective")

	for _, path := range []string{"b.go", "a.go"} {
		if _, err := s.SaveArtifact(ctx, models.Artifact{SprintID: sp.ID, Type: models.ArtifactFile, Path: path, Content: "package x"}); err != nil {
			t.Fatalf("SaveArtifact failed: %v", err)
		}
		clock.Advance(time.Millisecond)
	}

	artifacts, err := s.GetArtifactsBySprint(ctx, sp.ID)
	if err != nil {
		t.Fatalf("GetArtifactsBySprint failed: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("Expected 2 artifacts, got %d", len(artifacts))
	}
	if artifacts[0].Path != "b.go" {
		t.Errorf("Expected creation order, got %s first", artifacts[0].Path)
	}
	if artifacts[0].Checksum == "" {
		t.Error("Expected checksum to be computed")
	}

	_, err = s.SaveArtifact(ctx, models.Artifact{SprintID: "missing", Type: models.ArtifactFile, Path: "x"})
	if !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected ErrConstraint for dangling sprint, got %v", err)
	}
	_, err = s.SaveArtifact(ctx, models.Artifact{SprintID: sp.ID, Type: "socket", Path: "x"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for unknown type, got %v", err)
	}
}

func TestCheckpoints(t *testing.T) {
	s, clock := newClockedStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	sp, _ := s.CreateSprint(ctx, sess.ID, "objective")
	if _, err := s.SetMemory(ctx, sess.ID, "notes", "remember this"); err != nil {
		t.Fatalf("SetMemory failed: %v", err)
	}

	state, err := s.Snapshot(ctx, sess.ID, sp.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(state.Sprints) != 1 || state.Memory["notes"] != "remember this" {
		t.Errorf("Unexpected snapshot: %+v", state)
	}

	first, err := s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "first", State: *state})
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}
	clock.Advance(time.Second)
	second, err := s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "second", State: *state})
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	list, err := s.ListCheckpoints(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("Expected newest first, got %+v", list)
	}

	loaded, err := s.LoadCheckpoint(ctx, first.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.State.Session.ID != sess.ID || loaded.State.Memory["notes"] != "remember this" {
		t.Errorf("Unexpected checkpoint state: %+v", loaded.State)
	}

	if _, err := s.LoadCheckpoint(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	other, _ := s.CreateSession(ctx, "other", models.SessionMetadata{})
	_, err = s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: other.ID, SprintID: sp.ID, Name: "wrong", State: *state})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for foreign sprint, got %v", err)
	}
	_, err = s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "", State: *state})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for empty name, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})

	if _, err := s.SetMemory(ctx, sess.ID, "k", "v1"); err != nil {
		t.Fatalf("SetMemory failed: %v", err)
	}
	if _, err := s.SetMemory(ctx, sess.ID, "k", "v2"); err != nil {
		t.Fatalf("SetMemory overwrite failed: %v", err)
	}
	v, err := s.GetMemory(ctx, sess.ID, "k")
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if v != "v2" {
		t.Errorf("Expected v2, got %s", v)
	}

	if err := s.DeleteMemory(ctx, sess.ID, "k"); err != nil {
		t.Fatalf("DeleteMemory failed: %v", err)
	}
	if _, err := s.GetMemory(ctx, sess.ID, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.SetMemory(ctx, "missing", "k", "v"); !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected ErrConstraint for missing session, got %v", err)
	}
}

func TestAudit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	entry, err := s.WriteAudit(ctx, "session.init", "abc123", "success", "sess-1", "")
	if err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("Audit ID should not be empty")
	}

	entries, err := s.ListAudit(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "session.init" {
		t.Errorf("Unexpected audit rows: %+v", entries)
	}
}

func TestDeleteSession_Cascades(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	sp, _ := s.CreateSprint(ctx, sess.ID, "objective")
	s.SaveArtifact(ctx, models.Artifact{SprintID: sp.ID, Type: models.ArtifactCommand, Path: "go test ./..."})
	state, _ := s.Snapshot(ctx, sess.ID, sp.ID)
	cp, err := s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "cp", State: *state})
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}
	s.SetMemory(ctx, sess.ID, "k", "v")

	if ok, err := s.CheckpointExists(ctx, cp.ID); err != nil || !ok {
		t.Fatalf("Expected checkpoint to exist, got %v, %v", ok, err)
	}
	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if ok, err := s.CheckpointExists(ctx, cp.ID); err != nil || ok {
		t.Errorf("Expected checkpoint to be gone, got %v, %v", ok, err)
	}
	for _, table := range []string{"sprints", "artifacts", "checkpoints", "session_memory"} {
		if n := countRows(t, s, table); n != 0 {
			t.Errorf("Expected %s to be empty after cascade, got %d rows", table, n)
		}
	}
	if err := s.DeleteSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCleanupOldSessions(t *testing.T) {
	s, clock := newClockedStore(t)
	defer s.Close()
	ctx := context.Background()

	oldDone, _ := s.CreateSession(ctx, "old-done", models.SessionMetadata{})
	oldActive, _ := s.CreateSession(ctx, "old-active", models.SessionMetadata{})
	sp, _ := s.CreateSprint(ctx, oldDone.ID, "objective")
	s.SaveArtifact(ctx, models.Artifact{SprintID: sp.ID, Type: models.ArtifactFile, Path: "main.go"})

	completed := models.SessionStatusCompleted
	if _, err := s.UpdateSession(ctx, oldDone.ID, SessionUpdate{Status: &completed}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	clock.Advance(48 * time.Hour)
	recentDone, _ := s.CreateSession(ctx, "recent-done", models.SessionMetadata{})
	s.UpdateSession(ctx, recentDone.ID, SessionUpdate{Status: &completed})

	n, err := s.CleanupOldSessions(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 session removed, got %d", n)
	}
	if _, err := s.GetSession(ctx, oldDone.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old completed session removed, got %v", err)
	}
	if _, err := s.GetSession(ctx, oldActive.ID); err != nil {
		t.Errorf("Active session must survive cleanup: %v", err)
	}
	if _, err := s.GetSession(ctx, recentDone.ID); err != nil {
		t.Errorf("Recent session must survive cleanup: %v", err)
	}
	if n := countRows(t, s, "artifacts"); n != 0 {
		t.Errorf("Expected artifacts removed with their session, got %d", n)
	}

	n, err = s.CleanupOldSessions(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Second cleanup failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected second cleanup to remove nothing, got %d", n)
	}
}

func TestCleanupOldCheckpointsAndAudit(t *testing.T) {
	s, clock := newClockedStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "task", models.SessionMetadata{})
	sp, _ := s.CreateSprint(ctx, sess.ID, "objective")
	state, _ := s.Snapshot(ctx, sess.ID, sp.ID)
	s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "old", State: *state})
	s.WriteAudit(ctx, "sprint.run", "h", "success", sess.ID, "")

	clock.Advance(10 * 24 * time.Hour)
	s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "new", State: *state})

	n, err := s.CleanupOldCheckpoints(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldCheckpoints failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 checkpoint removed, got %d", n)
	}
	n, err = s.PurgeAuditLog(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeAuditLog failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 audit row removed, got %d", n)
	}
	if err := s.Vacuum(ctx); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

// Session -> sprint -> artifact -> checkpoint -> complete -> age out.
func TestSessionLifecycle(t *testing.T) {
	s, clock := newClockedStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "refactor-auth", models.SessionMetadata{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	sp, err := s.CreateSprint(ctx, sess.ID, "Implement feature")
	if err != nil {
		t.Fatalf("CreateSprint failed: %v", err)
	}
	if _, err := s.SaveArtifact(ctx, models.Artifact{SprintID: sp.ID, Type: models.ArtifactFile, Path: "/src/auth.go"}); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	executing := models.SprintStatusExecuting
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &executing}); err != nil {
		t.Fatalf("UpdateSprint failed: %v", err)
	}
	completedSprint := models.SprintStatusCompleted
	conf := 0.9
	if _, err := s.UpdateSprint(ctx, sp.ID, SprintUpdate{Status: &completedSprint, Confidence: &conf}); err != nil {
		t.Fatalf("UpdateSprint failed: %v", err)
	}

	state, err := s.Snapshot(ctx, sess.ID, sp.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(state.Artifacts) != 1 {
		t.Errorf("Expected 1 artifact in snapshot, got %d", len(state.Artifacts))
	}
	if _, err := s.CreateCheckpoint(ctx, models.Checkpoint{SessionID: sess.ID, SprintID: sp.ID, Name: "after-sprint-1", State: *state}); err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	completed := models.SessionStatusCompleted
	count := 1
	if _, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &completed, SprintCount: &count, ConfidenceLevel: &conf}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	clock.Advance(31 * 24 * time.Hour)
	n, err := s.CleanupOldSessions(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 session removed, got %d", n)
	}
	for _, table := range []string{"sessions", "sprints", "artifacts", "checkpoints"} {
		if n := countRows(t, s, table); n != 0 {
			t.Errorf("Expected %s empty, got %d", table, n)
		}
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
