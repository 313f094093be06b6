package plan

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solmove/internal/errors"
	"solmove/internal/host/memhost"
	"solmove/internal/logging"
	"solmove/internal/relocate"
)

const samplePlan = `version = 1
continue_on_error = true

[[relocation]]
project = "Core"
folder = "Libs"

[[relocation]]
project = "Data"
`

func TestParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	p, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.True(t, p.ContinueOnError)
	require.Len(t, p.Relocations, 2)
	assert.Equal(t, Relocation{Project: "Core", Folder: "Libs"}, p.Relocations[0])
	assert.Equal(t, Relocation{Project: "Data"}, p.Relocations[1])
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "failed to read plan")
}

func TestParseBytesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"syntax", "version = ", "failed to parse plan"},
		{"unknown key", "version = 1\nfolders = 2\n[[relocation]]\nproject = \"A\"\n", "failed to parse plan"},
		{"version", "version = 2\n[[relocation]]\nproject = \"A\"\n", "unsupported plan version 2"},
		{"empty", "version = 1\n", "no relocations"},
		{"blank project", "[[relocation]]\nproject = \" \"\n", "relocation 1: project is required"},
		{"duplicate", "[[relocation]]\nproject = \"A\"\n[[relocation]]\nproject = \"A\"\nfolder = \"X\"\n", "already listed at 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.data))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	p := &Plan{
		Version:     1,
		Relocations: []Relocation{{Project: "Core", Folder: "Libs"}, {Project: "Data"}},
	}
	data, err := p.Encode()
	require.NoError(t, err)

	back, err := ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func workspace() *memhost.Host {
	return memhost.New().
		AddProject("App", "src/App/App.csproj").
		AddProject("Core", "src/Core/Core.csproj").
		AddProject("Data", "src/Data/Data.csproj").
		Link("App", "Core").
		Link("App", "Data")
}

func TestRunAppliesInOrder(t *testing.T) {
	h := workspace()
	engine := relocate.NewEngine(h, logging.Nop())
	p := &Plan{Version: 1, Relocations: []Relocation{{Project: "Core", Folder: "Libs"}, {Project: "Data"}}}

	steps := Run(context.Background(), engine, p, "Shared", logging.Nop())
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.True(t, s.OK(), "step %s", s.Project)
	}
	assert.Equal(t, "Libs", h.ContainerOf("Core"))
	assert.Equal(t, "Shared", h.ContainerOf("Data"))
	assert.Equal(t, "Shared", steps[1].Folder)
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	h := workspace()
	engine := relocate.NewEngine(h, logging.Nop())
	p := &Plan{Version: 1, Relocations: []Relocation{{Project: "Missing"}, {Project: "Core"}}}

	steps := Run(context.Background(), engine, p, "Libs", logging.Nop())
	require.Len(t, steps, 2)
	assert.True(t, errors.Is(steps[0].Err, errors.ProjectNotFound))
	assert.NotEmpty(t, steps[0].Error)
	assert.True(t, steps[1].Skipped)
	assert.False(t, steps[1].OK())
	assert.Empty(t, h.ContainerOf("Core"))
}

func TestRunContinueOnError(t *testing.T) {
	h := workspace()
	engine := relocate.NewEngine(h, logging.Nop())
	p := &Plan{Version: 1, ContinueOnError: true, Relocations: []Relocation{{Project: "Missing"}, {Project: "Core"}}}

	steps := Run(context.Background(), engine, p, "Libs", logging.Nop())
	require.Len(t, steps, 2)
	assert.Error(t, steps[0].Err)
	assert.True(t, steps[1].OK())
	assert.Equal(t, "Libs", h.ContainerOf("Core"))
}

func TestRunAlwaysStopsAfterFailedMove(t *testing.T) {
	h := workspace()
	h.FailMove(stderrors.New("disk full"))
	engine := relocate.NewEngine(h, logging.Nop())
	p := &Plan{Version: 1, ContinueOnError: true, Relocations: []Relocation{{Project: "Core"}, {Project: "Data"}}}
	logger := logging.NewTestLogger()

	steps := Run(context.Background(), engine, p, "Libs", logger.Logger)
	require.Len(t, steps, 2)
	assert.True(t, errors.IsPostMove(steps[0].Err))
	require.NotNil(t, steps[0].Result)
	assert.Equal(t, relocate.Aborted, steps[0].Result.State)
	assert.True(t, steps[1].Skipped)
	logger.AssertLogged(t, logging.ErrorLevel, "stopping plan")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := relocate.NewEngine(workspace(), logging.Nop())
	p := &Plan{Version: 1, Relocations: []Relocation{{Project: "Core"}, {Project: "Data"}}}

	steps := Run(ctx, engine, p, "Libs", logging.Nop())
	require.Len(t, steps, 2)
	assert.True(t, steps[0].Skipped)
	assert.True(t, steps[1].Skipped)
}
