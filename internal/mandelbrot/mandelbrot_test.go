package mandelbrot

import (
	"bytes"
	"context"
	"image/png"
	"math/rand"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"yqhp/taskfarm/internal/farm"
	"yqhp/taskfarm/internal/worker"
	"yqhp/taskfarm/pkg/types"
)

func smallParams() Params {
	p := DefaultParams()
	p.Nx, p.Ny, p.MaxIters = 37, 23, 200
	return p
}

func TestEscape(t *testing.T) {
	assert.Equal(t, 100, Escape(0, 0, 100))
	assert.Equal(t, 0, Escape(2, 2, 100))
	assert.Equal(t, 2, Escape(1, 0, 100))
	assert.Equal(t, 100, Escape(-1, 0, 100))
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Nx, p.Ny, p.MaxIters = 0, -1, 0
	p.XMax = p.XMin
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nx must be a positive integer")
	assert.Contains(t, err.Error(), "ny must be a positive integer")
	assert.Contains(t, err.Error(), "x_max")
}

func TestPatchesRejectBadCounts(t *testing.T) {
	p := smallParams()
	_, err := p.Patches(0)
	assert.Error(t, err)
	_, err = p.Patches(p.Nx + 1)
	assert.Error(t, err)
}

func TestPatchesCoverGridProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := DefaultParams()
		p.Nx = rapid.IntRange(1, 500).Draw(t, "nx")
		n := rapid.IntRange(1, p.Nx).Draw(t, "ntasks")

		patches, err := p.Patches(n)
		if err != nil {
			t.Fatalf("patches: %v", err)
		}
		if len(patches) != n {
			t.Fatalf("got %d patches, want %d", len(patches), n)
		}
		next := 0
		minW, maxW := p.Nx, 0
		for i, patch := range patches {
			if patch.Index != i || patch.XStart != next {
				t.Fatalf("patch %d starts at %d, want %d", i, patch.XStart, next)
			}
			w := patch.Width()
			if w < minW {
				minW = w
			}
			if w > maxW {
				maxW = w
			}
			next = patch.XEnd
		}
		if next != p.Nx {
			t.Fatalf("patches end at %d, want %d", next, p.Nx)
		}
		if maxW-minW > 1 {
			t.Fatalf("uneven patches: widths in [%d, %d]", minW, maxW)
		}
	})
}

func TestTasksCarryPatches(t *testing.T) {
	p := smallParams()
	tasks, err := p.Tasks(4)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	var patch Patch
	require.NoError(t, sonic.Unmarshal(tasks[2].Input, &patch))
	assert.Equal(t, 2, patch.Index)
	assert.Equal(t, p, patch.Params)
	assert.Equal(t, TaskID(2), tasks[2].ID)
	assert.Equal(t, Kind, tasks[2].Kind)
}

// completionsFor executes every task directly and returns completions in a shuffled order.
func completionsFor(t *testing.T, tasks []*types.Task, seed int64) []*types.Completion {
	t.Helper()
	exec := NewExecutor()
	out := make([]*types.Completion, len(tasks))
	for i, task := range tasks {
		data, err := exec.Execute(context.Background(), task.Input)
		require.NoError(t, err)
		out[i] = &types.Completion{Task: task, Result: &types.Result{TaskID: task.ID, Output: data}, Worker: 1}
	}
	rand.New(rand.NewSource(seed)).Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestCombineIndependentOfOrder(t *testing.T) {
	p := smallParams()
	whole, err := p.Tasks(1)
	require.NoError(t, err)
	reference, err := Combine(p, completionsFor(t, whole, 1))
	require.NoError(t, err)

	split, err := p.Tasks(7)
	require.NoError(t, err)
	for seed := int64(0); seed < 5; seed++ {
		img, err := Combine(p, completionsFor(t, split, seed))
		require.NoError(t, err)
		assert.Equal(t, reference.Counts, img.Counts)
		assert.Equal(t, reference.Iterations, img.Iterations)
	}

	for j := 0; j < p.Ny; j++ {
		for i := 0; i < p.Nx; i++ {
			cx := p.XMin + float64(i)*p.Dx()
			cy := p.YMin + float64(j)*p.Dy()
			require.Equal(t, Escape(cx, cy, p.MaxIters), reference.At(i, j))
		}
	}
}

func TestCombineErrors(t *testing.T) {
	p := smallParams()
	tasks, err := p.Tasks(3)
	require.NoError(t, err)
	comps := completionsFor(t, tasks, 0)

	_, err = Combine(p, comps[:2])
	assert.ErrorContains(t, err, "not covered")

	_, err = Combine(p, append(comps, comps[0]))
	assert.ErrorContains(t, err, "covered twice")

	failed := &types.Completion{Result: &types.Result{TaskID: "x", Error: "boom"}, Worker: 2}
	_, err = Combine(p, []*types.Completion{failed})
	assert.ErrorContains(t, err, "boom")
}

func TestExecutorRejectsBadInput(t *testing.T) {
	exec := NewExecutor()
	_, err := exec.Execute(context.Background(), []byte(`{`))
	assert.Error(t, err)

	patch := Patch{XStart: 5, XEnd: 2, Params: smallParams()}
	data, _ := sonic.Marshal(patch)
	_, err = exec.Execute(context.Background(), data)
	assert.Error(t, err)
}

func TestComputeHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	patches, err := smallParams().Patches(1)
	require.NoError(t, err)
	_, err = Compute(ctx, patches[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWritePNG(t *testing.T) {
	p := smallParams()
	tasks, err := p.Tasks(2)
	require.NoError(t, err)
	img, err := Combine(p, completionsFor(t, tasks, 3))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, img.WritePNG(&buf))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, p.Nx, decoded.Bounds().Dx())
	assert.Equal(t, p.Ny, decoded.Bounds().Dy())

	// the pixel nearest the origin lies in the set
	i := int((0 - p.XMin) / p.Dx())
	j := int((0 - p.YMin) / p.Dy())
	assert.Equal(t, uint8(255), img.Gray().GrayAt(i, j).Y)
}

func TestSavePNG(t *testing.T) {
	img := &Image{Nx: 2, Ny: 1, MaxIters: 10, Counts: []int{0, 10}}
	path := t.TempDir() + "/m.png"
	require.NoError(t, img.SavePNG(path))
}

func TestFarmRendersImage(t *testing.T) {
	p := smallParams()
	tasks, err := p.Tasks(9)
	require.NoError(t, err)

	reg := worker.NewRegistry()
	require.NoError(t, Register(reg))

	res, err := farm.RunLocal(context.Background(), tasks, reg, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Report.Stats.Failed)

	img, err := Combine(p, res.Report.Completed)
	require.NoError(t, err)

	whole, err := p.Tasks(1)
	require.NoError(t, err)
	reference, err := Combine(p, completionsFor(t, whole, 0))
	require.NoError(t, err)
	assert.Equal(t, reference.Counts, img.Counts)
}
