// Package mandelbrot is the sample workload of the task farm: it splits a
// Mandelbrot image into strips, computes escape counts per strip on the
// workers, and reassembles the image on the coordinator.
package mandelbrot

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"yqhp/taskfarm/pkg/types"
)

// Kind is the task kind handled by Executor.
const Kind = "mandelbrot"

// Params describes the sampled region of the complex plane.
type Params struct {
	XMin     float64 `json:"x_min" yaml:"x_min"`
	XMax     float64 `json:"x_max" yaml:"x_max"`
	YMin     float64 `json:"y_min" yaml:"y_min"`
	YMax     float64 `json:"y_max" yaml:"y_max"`
	Nx       int     `json:"nx" yaml:"nx"`
	Ny       int     `json:"ny" yaml:"ny"`
	MaxIters int     `json:"max_iters" yaml:"max_iters"`
}

// DefaultParams returns the classic view x in [-2, 1], y in [-1.5, 1.5].
func DefaultParams() Params {
	return Params{
		XMin:     -2.0,
		XMax:     1.0,
		YMin:     -1.5,
		YMax:     1.5,
		Nx:       1001,
		Ny:       1001,
		MaxIters: 1000,
	}
}

// Validate checks the grid and the bounds.
func (p Params) Validate() error {
	var errs []error
	if p.Nx < 1 {
		errs = append(errs, errors.New("nx must be a positive integer"))
	}
	if p.Ny < 1 {
		errs = append(errs, errors.New("ny must be a positive integer"))
	}
	if p.MaxIters < 1 {
		errs = append(errs, errors.New("max_iters must be a positive integer"))
	}
	if p.XMax <= p.XMin {
		errs = append(errs, fmt.Errorf("x_max %g must be greater than x_min %g", p.XMax, p.XMin))
	}
	if p.YMax <= p.YMin {
		errs = append(errs, fmt.Errorf("y_max %g must be greater than y_min %g", p.YMax, p.YMin))
	}
	return errors.Join(errs...)
}

// Dx is the horizontal pixel spacing.
func (p Params) Dx() float64 { return (p.XMax - p.XMin) / float64(p.Nx) }

// Dy is the vertical pixel spacing.
func (p Params) Dy() float64 { return (p.YMax - p.YMin) / float64(p.Ny) }

// Patch is the input of one task: columns [XStart, XEnd) of the grid.
type Patch struct {
	Index  int    `json:"index"`
	XStart int    `json:"x_start"`
	XEnd   int    `json:"x_end"`
	Params Params `json:"params"`
}

// Width returns the number of columns in the patch.
func (p Patch) Width() int { return p.XEnd - p.XStart }

// PatchResult is the output of one task. Counts holds the escape count of
// every pixel in the patch, row by row.
type PatchResult struct {
	Index      int   `json:"index"`
	XStart     int   `json:"x_start"`
	XEnd       int   `json:"x_end"`
	Counts     []int `json:"counts"`
	Iterations int64 `json:"iterations"`
}

// TaskID names the task for patch i.
func TaskID(i int) string {
	return fmt.Sprintf("mandelbrot-%04d", i)
}

// Patches splits the grid into n vertical strips whose widths differ by at most one.
func (p Params) Patches(n int) ([]Patch, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.New("ntasks must be a positive integer")
	}
	if n > p.Nx {
		return nil, fmt.Errorf("ntasks %d exceeds nx %d", n, p.Nx)
	}

	patches := make([]Patch, n)
	base, extra := p.Nx/n, p.Nx%n
	start := 0
	for i := range patches {
		w := base
		if i < extra {
			w++
		}
		patches[i] = Patch{Index: i, XStart: start, XEnd: start + w, Params: p}
		start += w
	}
	return patches, nil
}

// Tasks returns one task per patch, in patch order.
func (p Params) Tasks(n int) ([]*types.Task, error) {
	patches, err := p.Patches(n)
	if err != nil {
		return nil, err
	}
	tasks := make([]*types.Task, len(patches))
	for i, patch := range patches {
		input, err := sonic.Marshal(patch)
		if err != nil {
			return nil, fmt.Errorf("encode patch %d: %w", i, err)
		}
		tasks[i] = &types.Task{ID: TaskID(i), Kind: Kind, Input: input}
	}
	return tasks, nil
}
