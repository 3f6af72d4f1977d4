package migrate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

var plan = []Migration{
	{Version: 1, Name: "widgets", SQL: `CREATE TABLE widgets (id TEXT PRIMARY KEY)`},
	{Version: 2, Name: "gadgets", SQL: `CREATE TABLE gadgets (id TEXT PRIMARY KEY)`},
}

func TestApply_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)

	applied, err := r.Apply(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, applied)
	require.True(t, tableExists(t, db, "widgets"))
	require.True(t, tableExists(t, db, "gadgets"))

	v, err := r.CurrentVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestApply_Idempotent(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	_, err := r.Apply(ctx, plan)
	require.NoError(t, err)

	applied, err := r.Apply(ctx, plan)
	require.NoError(t, err)
	require.Empty(t, applied)

	rows, err := r.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "widgets", rows[0].Name)
}

func TestApply_OnlyNewerVersions(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	_, err := r.Apply(ctx, plan[:1])
	require.NoError(t, err)

	applied, err := r.Apply(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, []int{2}, applied)
}

func TestApply_StopsAtFirstFailure(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	broken := []Migration{
		plan[0],
		{Version: 2, Name: "broken", SQL: `CREATE TABLE half (id TEXT); THIS IS NOT SQL`},
		{Version: 3, Name: "after", SQL: `CREATE TABLE after_broken (id TEXT)`},
	}

	applied, err := r.Apply(ctx, broken)
	require.Error(t, err)
	require.Equal(t, []int{1}, applied)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, 2, stepErr.Version)

	require.False(t, tableExists(t, db, "after_broken"), "later migrations must not run")

	v, err := r.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v, "failed migration must not be recorded")
}

func TestApply_RejectsInvalidPlan(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)

	cases := map[string][]Migration{
		"unsorted":  {plan[1], plan[0]},
		"duplicate": {plan[0], plan[0]},
		"zero":      {{Version: 0, Name: "zero", SQL: `SELECT 1`}},
	}
	for name, migrations := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Apply(context.Background(), migrations)
			require.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
	require.False(t, tableExists(t, db, "widgets"))
}
