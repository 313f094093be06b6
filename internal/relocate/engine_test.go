package relocate

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solmove/internal/container"
	"solmove/internal/errors"
	"solmove/internal/graph"
	"solmove/internal/host"
	"solmove/internal/host/memhost"
	"solmove/internal/identity"
	"solmove/internal/logging"
	"solmove/internal/rebind"
)

func relocate(t *testing.T, h host.ProjectHost, target, folder string, opts ...Option) (*Result, error) {
	t.Helper()
	return NewEngine(h, logging.Nop(), opts...).Relocate(context.Background(), identity.Identity(target), folder)
}

func edgesTo(h *memhost.Host, holder string, target identity.Identity) int {
	n := 0
	for _, d := range h.References(holder) {
		if d.Matches(target) {
			n++
		}
	}
	return n
}

func holders(edges []rebind.Edge) []identity.Identity {
	out := make([]identity.Identity, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Holder)
	}
	return out
}

// Scenario: A->L, B->L, no "Libs" yet.
func TestRelocateCreatesContainerAndRebinds(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("B", "B/B.csproj").
		AddProject("L", "L/L.csproj")
	h.Link("A", "L").Link("B", "L")

	res, err := relocate(t, h, "L", "Libs")
	require.NoError(t, err)

	assert.True(t, res.ContainerCreated)
	assert.Equal(t, Rebound, res.State)
	assert.True(t, res.OK())
	assert.NotEmpty(t, res.NewHandle)
	assert.Equal(t, []identity.Identity{"A", "B"}, res.Rebound)
	assert.Empty(t, res.Failures)

	assert.Equal(t, []string{"Libs"}, h.Containers())
	assert.Equal(t, "Libs", h.ContainerOf("L"))
	assert.Equal(t, 1, edgesTo(h, "A", "L"))
	assert.Equal(t, 1, edgesTo(h, "B", "L"))
}

// Scenario: A knows L by simple path, B by strong identity.
func TestRelocateMixedDescriptorKinds(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("B", "B/B.csproj").
		AddProject("L", "L/L.csproj")
	h.AddDescriptor("A", host.PathDescriptor("L/L.csproj", ""))
	h.AddDescriptor("B", host.StrongDescriptor("L", "1.0.0.0", "", "b77a5c561934e089"))

	res, err := relocate(t, h, "L", "Libs")
	require.NoError(t, err)

	assert.Equal(t, []identity.Identity{"A", "B"}, holders(res.Captured))
	assert.Contains(t, res.Rebound, identity.Identity("A"))
	assert.Equal(t, 1, edgesTo(h, "A", "L"))

	// The strong reference survived the move, so B is reported, not duplicated.
	require.Len(t, res.Failures, 1)
	assert.Equal(t, identity.Identity("B"), res.Failures[0].Holder)
	assert.Equal(t, errors.DuplicateReference, res.Failures[0].Err.Code)
	assert.Equal(t, 1, edgesTo(h, "B", "L"))
}

// Scenario: "Libs" already exists and holds unrelated C.
func TestRelocateReusesExistingContainer(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("L", "L/L.csproj").
		AddContainer("Libs").
		AddProjectIn("C", "C/C.csproj", "Libs")
	h.Link("A", "L")

	res, err := relocate(t, h, "L", "Libs")
	require.NoError(t, err)

	assert.False(t, res.ContainerCreated)
	assert.Equal(t, []string{"Libs"}, h.Containers())
	assert.Equal(t, []string{"C", "L"}, h.Children("Libs"))
	assert.Equal(t, 0, h.Calls.Create)
	assert.True(t, res.OK())
}

// Scenario: A already holds an edge to L's post-move identity that the move
// does not drop.
func TestRelocateStaleDuplicate(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("B", "B/B.csproj").
		AddProject("L", "L/L.csproj").
		AddContainer("Libs")
	stale := host.PathDescriptor("Libs/L/L.csproj", "L")
	h.AddDescriptor("A", stale)
	h.Link("B", "L")

	res, err := relocate(t, h, "L", "Libs")
	require.NoError(t, err, "per-holder failures do not fail the request")

	assert.Equal(t, Rebound, res.State)
	assert.False(t, res.OK())
	assert.Equal(t, []identity.Identity{"B"}, res.Rebound)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, identity.Identity("A"), res.Failures[0].Holder)
	assert.True(t, errors.Is(res.Failures[0].Err, errors.DuplicateReference))
	assert.Equal(t, []host.Descriptor{stale}, h.References("A"))
	assert.Equal(t, 1, edgesTo(h, "B", "L"))
}

func TestRelocateProjectNotFound(t *testing.T) {
	h := memhost.New().AddProject("A", "A/A.csproj")

	res, err := relocate(t, h, "L", "Libs")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ProjectNotFound))
	assert.False(t, errors.IsPostMove(err))
	assert.Equal(t, uint64(0), h.Generation(), "no mutation")
	assert.Equal(t, 0, h.Calls.FindTopLevel)
}

func TestRelocateContainerFailureIsPreMove(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("L", "L/L.csproj").
		AddProject("Libs", "Libs/Libs.csproj")
	h.Link("A", "L")

	_, err := relocate(t, h, "L", "Libs")
	assert.True(t, errors.Is(err, errors.ContainerCreationFailed))
	assert.False(t, errors.IsPostMove(err))
	assert.Equal(t, 0, h.Calls.Move)
	assert.Len(t, h.References("A"), 1)
}

func TestRelocateMoveFailureSkipsRebind(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("B", "B/B.csproj").
		AddProject("L", "L/L.csproj")
	h.Link("A", "L").Link("B", "L")
	h.FailMove(stderrors.New("project is locked"))

	res, err := relocate(t, h, "L", "Libs")
	require.Error(t, err)
	require.NotNil(t, res)

	assert.True(t, errors.Is(err, errors.MoveFailed))
	assert.True(t, errors.IsPostMove(err))
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, []identity.Identity{"A", "B"}, holders(res.Captured))
	assert.Empty(t, res.Rebound)
	assert.Equal(t, 0, h.Calls.AddReference)
}

func TestRelocateMoveTargetMissing(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("L", "L/L.csproj").
		AddContainer("Libs")
	h.Link("A", "L")
	h.MarkFileMissing("L")

	res, err := relocate(t, h, "L", "Libs")
	require.Error(t, err)
	assert.Equal(t, errors.MoveTargetMissing, errors.CodeOf(err))
	assert.True(t, errors.Is(err, errors.MoveFailed))
	assert.ErrorIs(t, err, host.ErrProjectFileMissing)
	assert.Equal(t, Aborted, res.State)
	assert.True(t, h.Detached("L"))
	assert.Equal(t, 0, h.Calls.AddReference)
}

func TestRelocateCancelledBeforeMutation(t *testing.T) {
	h := memhost.New().AddProject("L", "L/L.csproj")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(h, logging.Nop()).Relocate(ctx, "L", "Libs")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.Calls.ListProjects)
}

func TestRelocateRejectsEmptyTarget(t *testing.T) {
	_, err := relocate(t, memhost.New(), " ", "Libs")
	assert.True(t, errors.Is(err, errors.InvalidArgument))
}

func TestRelocateNoReferrers(t *testing.T) {
	h := memhost.New().AddProject("L", "L/L.csproj")

	res, err := relocate(t, h, "L", "Libs")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.Captured)
	assert.Equal(t, 0, h.Calls.AddReference)
}

func TestPreviewDoesNotMutate(t *testing.T) {
	h := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("L", "L/L.csproj")
	h.Link("A", "L")

	p, err := NewEngine(h, logging.Nop()).Preview(context.Background(), "L", "Libs")
	require.NoError(t, err)

	assert.False(t, p.ContainerExists)
	assert.False(t, p.AlreadyContained)
	assert.Equal(t, "L/L.csproj", p.Location)
	assert.Equal(t, []identity.Identity{"A"}, holders(p.Captured))
	assert.Equal(t, uint64(0), h.Generation())
	assert.Equal(t, 0, h.Calls.Create+h.Calls.Move+h.Calls.AddReference)
}

func TestPreviewAlreadyContained(t *testing.T) {
	h := memhost.New().AddContainer("Libs").AddProjectIn("L", "L/L.csproj", "Libs")

	p, err := NewEngine(h, logging.Nop()).Preview(context.Background(), "L", "Libs")
	require.NoError(t, err)
	assert.True(t, p.ContainerExists)
	assert.True(t, p.AlreadyContained)
}

// randomTree builds n projects P0..Pn-1 with random edges of both kinds.
func randomTree(r *rand.Rand, n int) *memhost.Host {
	h := memhost.New().AddContainer("Libs")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("P%d", i)
		h.AddProject(name, name+"/"+name+".csproj")
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || r.Intn(3) != 0 {
				continue
			}
			holder, target := fmt.Sprintf("P%d", i), fmt.Sprintf("P%d", j)
			if r.Intn(4) == 0 {
				h.AddDescriptor(holder, host.StrongDescriptor(target, "1.0.0.0", "", "abc"))
			} else {
				h.Link(holder, target)
			}
		}
	}
	return h
}

func TestFindReferrersProperty(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		h := randomTree(r, 6)
		g, err := graph.Load(context.Background(), h, identity.NewScope("p"), logging.Nop())
		require.NoError(t, err)

		for _, target := range g.Projects() {
			got := map[identity.Identity]bool{}
			for _, p := range g.FindReferrers(target.Identity) {
				got[p.Identity] = true
			}
			assert.False(t, got[target.Identity], "target among its own referrers")

			for _, p := range g.Projects() {
				if p.Identity == target.Identity {
					continue
				}
				_, holds := p.ReferenceTo(target.Identity)
				assert.Equal(t, holds, got[p.Identity], "round %d: %s -> %s", round, p.Identity, target.Identity)
			}
		}
	}
}

func TestResolveIdempotentProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for round := 0; round < 10; round++ {
		h := randomTree(r, 4)
		scope := identity.NewScope("p")
		loc := container.NewLocator(h, logging.Nop())
		name := []string{"Libs", "Tools", "Tests"}[r.Intn(3)]

		first, err := loc.Resolve(context.Background(), scope, name)
		require.NoError(t, err)
		second, err := loc.Resolve(context.Background(), scope, name)
		require.NoError(t, err)

		a, _ := first.Handle.Token()
		b, _ := second.Handle.Token()
		assert.Equal(t, a, b)
		count := 0
		for _, c := range h.Containers() {
			if c == name {
				count++
			}
		}
		assert.Equal(t, 1, count)
	}
}

func TestRebindOutcomeProperty(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for round := 0; round < 20; round++ {
		h := randomTree(r, 6)
		target := identity.Identity(fmt.Sprintf("P%d", r.Intn(6)))

		before := map[string][]host.Descriptor{}
		for i := 0; i < 6; i++ {
			name := fmt.Sprintf("P%d", i)
			before[name] = h.References(name)
		}

		res, err := relocate(t, h, target.String(), "Libs")
		require.NoError(t, err)

		failed := map[identity.Identity]rebind.Failure{}
		for _, f := range res.Failures {
			failed[f.Holder] = f
		}
		for _, edge := range res.Captured {
			holder := edge.Holder.String()
			if f, ok := failed[edge.Holder]; ok {
				assert.Equal(t, errors.DuplicateReference, f.Err.Code)
				assert.Contains(t, before[holder], edge.Descriptor, "original edge untouched")
				continue
			}
			assert.Equal(t, 1, edgesTo(h, holder, target), "round %d holder %s", round, holder)
		}
	}
}

type recorder struct {
	begun       []Request
	transitions [][2]State
	snapshots   int
	finished    *Result
	finishErr   error
	failBegin   bool
}

func (r *recorder) Begin(ctx context.Context, req Request) (string, error) {
	if r.failBegin {
		return "", stderrors.New("disk full")
	}
	r.begun = append(r.begun, req)
	return "req-1", nil
}

func (r *recorder) Snapshot(ctx context.Context, id string, files []host.FileSnapshot) error {
	r.snapshots += len(files)
	return nil
}

func (r *recorder) Transition(ctx context.Context, id string, from, to State, at time.Time) error {
	r.transitions = append(r.transitions, [2]State{from, to})
	return nil
}

func (r *recorder) Finish(ctx context.Context, id string, res *Result, err error) error {
	r.finished = res
	r.finishErr = err
	return nil
}

type snapshotHost struct {
	*memhost.Host
}

func (s snapshotHost) Snapshot(ctx context.Context) ([]host.FileSnapshot, error) {
	return []host.FileSnapshot{{Path: "app.sln", Content: []byte("x")}}, nil
}

func TestRelocateRecordsJournal(t *testing.T) {
	h := memhost.New().AddProject("A", "A/A.csproj").AddProject("L", "L/L.csproj")
	h.Link("A", "L")
	rec := &recorder{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := relocate(t, snapshotHost{h}, "L", "Libs", WithRecorder(rec), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	assert.Equal(t, "req-1", res.RequestID)
	require.Len(t, rec.begun, 1)
	assert.Equal(t, "memory", rec.begun[0].Host)
	assert.Equal(t, fixed, rec.begun[0].StartedAt)
	assert.Equal(t, 1, rec.snapshots)
	assert.Equal(t, [][2]State{
		{Idle, ReferrersCaptured},
		{ReferrersCaptured, Moved},
		{Moved, Rebound},
	}, rec.transitions)
	assert.Same(t, res, rec.finished)
	assert.NoError(t, rec.finishErr)
	assert.Equal(t, fixed, res.FinishedAt)
}

func TestRelocateRecordsAbort(t *testing.T) {
	h := memhost.New().AddProject("L", "L/L.csproj")
	h.FailMove(stderrors.New("nope"))
	rec := &recorder{}

	_, err := relocate(t, h, "L", "Libs", WithRecorder(rec))
	require.Error(t, err)
	assert.Equal(t, [2]State{ReferrersCaptured, Aborted}, rec.transitions[len(rec.transitions)-1])
	assert.Equal(t, err, rec.finishErr)
	assert.Equal(t, 0, rec.snapshots, "memhost has nothing to snapshot")
}

func TestRelocateSurvivesJournalFailure(t *testing.T) {
	h := memhost.New().AddProject("L", "L/L.csproj")
	logger := logging.NewTestLogger()
	rec := &recorder{failBegin: true}

	res, err := NewEngine(h, logger.Logger, WithRecorder(rec)).Relocate(context.Background(), "L", "Libs")
	require.NoError(t, err)
	assert.Empty(t, res.RequestID)
	assert.Empty(t, rec.transitions)
	logger.AssertLogged(t, logging.WarnLevel, "Journal unavailable")
}

func TestRelocateWithoutSnapshots(t *testing.T) {
	h := memhost.New().AddProject("L", "L/L.csproj")
	rec := &recorder{}

	_, err := relocate(t, snapshotHost{h}, "L", "Libs", WithRecorder(rec), WithSnapshots(false))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.snapshots)
	assert.Len(t, rec.transitions, 3)
}

// enumerationFailsAfterCreate lists projects until a container is created.
type enumerationFailsAfterCreate struct {
	*memhost.Host
}

func (h enumerationFailsAfterCreate) ListProjects(ctx context.Context) ([]host.Entry, error) {
	if h.Calls.Create > 0 {
		return nil, stderrors.New("enumeration timed out")
	}
	return h.Host.ListProjects(ctx)
}

func TestRelocateReportsContainerCreatedBeforeFailure(t *testing.T) {
	mem := memhost.New().
		AddProject("A", "A/A.csproj").
		AddProject("L", "L/L.csproj")
	mem.Link("A", "L")

	res, err := relocate(t, enumerationFailsAfterCreate{mem}, "L", "Libs")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.HostUnavailable))
	assert.False(t, errors.IsPostMove(err))
	assert.Contains(t, err.Error(), `container "Libs"`)

	var re *errors.RelocationError
	require.True(t, stderrors.As(err, &re))
	assert.Equal(t, map[string]string{"project": "L", "createdContainer": "Libs"}, re.Details)

	assert.Equal(t, []string{"Libs"}, mem.Containers())
	assert.Empty(t, mem.ContainerOf("L"))
	assert.Equal(t, 0, mem.Calls.Move)
}
