package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solmove/internal/errors"
	"solmove/internal/host"
	"solmove/internal/host/manifest"
	"solmove/internal/host/memhost"
	"solmove/internal/identity"
	"solmove/internal/logging"
	"solmove/internal/rebind"
	"solmove/internal/relocate"
)

const workspace = `name = "shop"

[[project]]
name = "App"
path = "src/App/App.csproj"

  [[project.reference]]
  kind = "path"
  name = "Core"
  path = "src/Core/Core.csproj"

[[project]]
name = "Core"
path = "src/Core/Core.csproj"
`

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenCreatesDatabase(t *testing.T) {
	root := t.TempDir()
	logger := logging.NewTestLogger()

	j, err := Open(root, logger.Logger)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, ".solmove", "journal.db"))
	logger.AssertLogged(t, logging.InfoLevel, "Creating journal")
	require.NoError(t, j.Close())

	// Reopening keeps existing rows and does not recreate the schema.
	j, err = Open(root, logger.Logger)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, 1, logger.Count("Creating journal"))
}

func TestRecorderLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := j.Begin(ctx, relocate.Request{
		Target:    "Core",
		Container: "Libs",
		Host:      "memory",
		StartedAt: started,
	})
	require.NoError(t, err)
	require.Len(t, id, 36)

	require.NoError(t, j.Transition(ctx, id, relocate.Idle, relocate.ReferrersCaptured, started.Add(time.Second)))
	require.NoError(t, j.Transition(ctx, id, relocate.ReferrersCaptured, relocate.Moved, started.Add(2*time.Second)))
	require.NoError(t, j.Transition(ctx, id, relocate.Moved, relocate.Rebound, started.Add(3*time.Second)))

	res := &relocate.Result{
		RequestID:  id,
		Target:     "Core",
		Container:  "Libs",
		State:      relocate.Rebound,
		Rebound:    []identity.Identity{"App"},
		StartedAt:  started,
		FinishedAt: started.Add(4 * time.Second),
	}
	require.NoError(t, j.Finish(ctx, id, res, nil))

	e, err := j.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Core", e.Target)
	assert.Equal(t, "Libs", e.Container)
	assert.Equal(t, "memory", e.Host)
	assert.Equal(t, relocate.Rebound, e.State)
	assert.Equal(t, StatusOK, e.Status)
	assert.Empty(t, e.ErrorCode)
	assert.True(t, e.StartedAt.Equal(started))
	require.NotNil(t, e.FinishedAt)
	assert.True(t, e.FinishedAt.Equal(started.Add(4*time.Second)))
	require.NotNil(t, e.Result)
	assert.Equal(t, []identity.Identity{"App"}, e.Result.Rebound)

	require.Len(t, e.Steps, 3)
	assert.Equal(t, relocate.Idle, e.Steps[0].From)
	assert.Equal(t, relocate.ReferrersCaptured, e.Steps[0].To)
	assert.Equal(t, relocate.Rebound, e.Steps[2].To)
	assert.True(t, e.Steps[1].At.Equal(started.Add(2*time.Second)))
}

func TestFinishStatus(t *testing.T) {
	moved := &relocate.Result{State: relocate.Rebound}
	partial := &relocate.Result{
		State:    relocate.Rebound,
		Failures: []rebind.Failure{{Holder: "A"}},
	}

	tests := []struct {
		name string
		res  *relocate.Result
		err  error
		want Status
		code errors.ErrorCode
	}{
		{"ok", moved, nil, StatusOK, ""},
		{"partial", partial, nil, StatusPartial, ""},
		{"rejected", &relocate.Result{State: relocate.Idle}, errors.Newf(errors.ProjectNotFound, "missing"), StatusFailed, errors.ProjectNotFound},
		{"aborted", &relocate.Result{State: relocate.Aborted}, errors.Newf(errors.MoveFailed, "boom"), StatusAborted, errors.MoveFailed},
		{"cancelled", &relocate.Result{State: relocate.Idle}, context.Canceled, StatusFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			j := openTestJournal(t)
			id, err := j.Begin(ctx, relocate.Request{Target: "Core", Container: "Libs", StartedAt: time.Now()})
			require.NoError(t, err)

			require.NoError(t, j.Finish(ctx, id, tt.res, tt.err))

			e, err := j.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Status)
			assert.Equal(t, tt.code, e.ErrorCode)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), e.Error)
			}
		})
	}
}

func TestUnknownRequest(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	_, err := j.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, j.Transition(ctx, "nope", relocate.Idle, relocate.ReferrersCaptured, time.Now()), ErrNotFound)
	assert.ErrorIs(t, j.Finish(ctx, "nope", nil, nil), ErrNotFound)
	assert.ErrorIs(t, j.Snapshot(ctx, "nope", []host.FileSnapshot{{Path: "a.sln", Content: []byte("x")}}), ErrNotFound)
}

func TestTransitionUnknownRequestLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	err := j.Transition(ctx, "nope", relocate.Idle, relocate.ReferrersCaptured, time.Now())
	require.ErrorIs(t, err, ErrNotFound)

	var n int
	require.NoError(t, j.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions`).Scan(&n))
	assert.Zero(t, n)
}

func TestGetAcceptsPrefix(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	id, err := j.Begin(ctx, relocate.Request{Target: "Core", Container: "Libs", StartedAt: time.Now()})
	require.NoError(t, err)

	e, err := j.Get(ctx, id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i, target := range []identity.Identity{"A", "B", "C"} {
		id, err := j.Begin(ctx, relocate.Request{
			Target:    target,
			Container: "Libs",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)
	assert.Equal(t, StatusRunning, all[0].Status)
	assert.Nil(t, all[0].FinishedAt)

	limited, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "C", limited[0].Target)
	assert.Equal(t, "B", limited[1].Target)
}

func TestSnapshotsRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	id, err := j.Begin(ctx, relocate.Request{Target: "Core", Container: "Libs", StartedAt: time.Now()})
	require.NoError(t, err)

	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = byte('a' + i%7)
	}
	files := []host.FileSnapshot{
		{Path: "shop.sln", Content: []byte("Microsoft Visual Studio Solution File\r\n")},
		{Path: "src/Core/Core.csproj", Content: big},
	}
	require.NoError(t, j.Snapshot(ctx, id, files))

	got, err := j.Snapshots(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, files[0], got[0])
	assert.Equal(t, files[1], got[1])

	e, err := j.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, e.Files, 2)
	assert.Equal(t, "src/Core/Core.csproj", e.Files[1].Path)
	assert.Equal(t, len(big), e.Files[1].Size)
	assert.Less(t, e.Files[1].CompressedSize, e.Files[1].Size)
}

func TestRestoreWritesFilesBack(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	root := t.TempDir()

	id, err := j.Begin(ctx, relocate.Request{Target: "Core", Container: "Libs", StartedAt: time.Now()})
	require.NoError(t, err)
	abs := filepath.Join(root, "abs.sln")
	require.NoError(t, j.Snapshot(ctx, id, []host.FileSnapshot{
		{Path: "src/Core/Core.csproj", Content: []byte("<Project />")},
		{Path: abs, Content: []byte("original")},
	}))
	require.NoError(t, os.WriteFile(abs, []byte("changed"), 0644))

	written, err := j.Restore(ctx, id, root)
	require.NoError(t, err)
	assert.Len(t, written, 2)

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	data, err = os.ReadFile(filepath.Join(root, "src", "Core", "Core.csproj"))
	require.NoError(t, err)
	assert.Equal(t, "<Project />", string(data))
}

func TestRestoreWithoutSnapshots(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	id, err := j.Begin(ctx, relocate.Request{Target: "Core", Container: "Libs", StartedAt: time.Now()})
	require.NoError(t, err)

	_, err = j.Restore(ctx, id, t.TempDir())
	assert.ErrorContains(t, err, "no snapshots")
}

func TestJournalRecordsRelocation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.toml")
	require.NoError(t, os.WriteFile(path, []byte(workspace), 0644))

	h, err := manifest.Open(path)
	require.NoError(t, err)
	j := openTestJournal(t)

	engine := relocate.NewEngine(h, logging.Nop(), relocate.WithRecorder(j))
	res, err := engine.Relocate(ctx, "Core", "Libs")
	require.NoError(t, err)
	require.True(t, res.OK())
	require.NotEmpty(t, res.RequestID)

	e, err := j.Get(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, e.Status)
	assert.Equal(t, relocate.Rebound, e.State)
	assert.Equal(t, "manifest "+path, e.Host)
	require.Len(t, e.Steps, 3)
	require.Len(t, e.Files, 1)
	assert.Equal(t, path, e.Files[0].Path)

	// The snapshot predates the move, so restoring undoes it.
	_, err = j.Restore(ctx, res.RequestID, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, workspace, string(data))
}

func TestJournalRecordsRejectedRelocation(t *testing.T) {
	ctx := context.Background()
	h := memhost.New().AddProject("App", "src/App/App.csproj")
	j := openTestJournal(t)

	engine := relocate.NewEngine(h, logging.Nop(), relocate.WithRecorder(j))
	_, err := engine.Relocate(ctx, "Missing", "Libs")
	require.Error(t, err)

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, errors.ProjectNotFound, entries[0].ErrorCode)
	assert.Equal(t, relocate.Idle, entries[0].State)
}
