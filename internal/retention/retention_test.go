package retention

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/cadence/internal/models"
	"github.com/fentz26/cadence/internal/store"
)

type fakeStore struct {
	sessions, checkpoints, audit int64
	vacuums                      int
	err                          error
	maxAges                      []time.Duration
}

func (f *fakeStore) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.maxAges = append(f.maxAges, maxAge)
	return f.sessions, f.err
}

func (f *fakeStore) CleanupOldCheckpoints(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.maxAges = append(f.maxAges, maxAge)
	return f.checkpoints, nil
}

func (f *fakeStore) PurgeAuditLog(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.maxAges = append(f.maxAges, maxAge)
	return f.audit, nil
}

func (f *fakeStore) Vacuum(ctx context.Context) error {
	f.vacuums++
	return nil
}

func TestPolicy_RunsConfiguredSteps(t *testing.T) {
	fs := &fakeStore{sessions: 2, checkpoints: 1, audit: 4}
	var hooked Result
	p := NewPolicy(fs, Config{MaxAge: time.Hour, CheckpointMaxAge: 2 * time.Hour, AuditMaxAge: 3 * time.Hour, Vacuum: true}, nil,
		func(ctx context.Context, r Result) { hooked = r })

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Sessions)
	assert.Equal(t, int64(1), res.Checkpoints)
	assert.Equal(t, int64(4), res.AuditRows)
	assert.True(t, res.Vacuumed)
	assert.Equal(t, []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}, fs.maxAges)
	assert.Equal(t, res, hooked)
}

func TestPolicy_DisabledSteps(t *testing.T) {
	fs := &fakeStore{sessions: 1, checkpoints: 5}
	p := NewPolicy(fs, Config{MaxAge: time.Hour}, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Checkpoints)
	assert.False(t, res.Vacuumed)
	assert.Equal(t, 0, fs.vacuums)
	assert.Len(t, fs.maxAges, 1)
}

func TestPolicy_Error(t *testing.T) {
	fs := &fakeStore{err: errors.New("disk full")}
	p := NewPolicy(fs, Config{MaxAge: time.Hour, Vacuum: true}, nil)

	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0, fs.vacuums, "later steps must not run")
}

func TestPolicy_Idempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess, err := s.CreateSession(ctx, "task", models.SessionMetadata{})
		require.NoError(t, err)
		status := models.SessionStatusCompleted
		_, err = s.UpdateSession(ctx, sess.ID, store.SessionUpdate{Status: &status})
		require.NoError(t, err)
	}
	now = now.Add(48 * time.Hour)

	p := NewPolicy(s, Config{MaxAge: 24 * time.Hour, Vacuum: true}, nil)
	first, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Sessions)

	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Sessions)
	assert.False(t, second.Deleted())
}

type tick struct{ every time.Duration }

func (t tick) Next(after time.Time) time.Time { return after.Add(t.every) }

type flakyRunner struct {
	calls atomic.Int32
}

func (r *flakyRunner) Run(ctx context.Context) (Result, error) {
	n := r.calls.Add(1)
	switch n % 3 {
	case 1:
		return Result{}, errors.New("locked")
	case 2:
		panic("boom")
	}
	return Result{Sessions: 1}, nil
}

func TestScheduler_SurvivesFailures(t *testing.T) {
	r := &flakyRunner{}
	s := NewSchedulerWith(r, tick{every: 10 * time.Millisecond}, nil)
	s.Start(context.Background())

	require.Eventually(t, func() bool { return r.calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	runs, fails := s.Stats()
	assert.GreaterOrEqual(t, runs, 4)
	assert.GreaterOrEqual(t, fails, 2)

	after := r.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load(), "no runs after Stop")
}

func TestNewScheduler_ParsesSpec(t *testing.T) {
	_, err := NewScheduler(&flakyRunner{}, "@every 1h", nil)
	require.NoError(t, err)
	_, err = NewScheduler(&flakyRunner{}, "0 3 * * *", nil)
	require.NoError(t, err)
	_, err = NewScheduler(&flakyRunner{}, "", nil)
	require.NoError(t, err)
	_, err = NewScheduler(&flakyRunner{}, "not a schedule", nil)
	require.Error(t, err)
}
