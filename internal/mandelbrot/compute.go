package mandelbrot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"yqhp/taskfarm/internal/worker"
)

// Escape returns the number of iterations before the orbit of c leaves the
// circle |z| = 2, capped at maxIters.
func Escape(cx, cy float64, maxIters int) int {
	x, y := cx, cy
	x2, y2 := x*x, y*y
	n := 0
	for x2+y2 <= 4.0 && n < maxIters {
		y = 2*x*y + cy
		x = x2 - y2 + cx
		x2, y2 = x*x, y*y
		n++
	}
	return n
}

// Compute evaluates every pixel of the patch. It checks ctx once per row.
func Compute(ctx context.Context, patch Patch) (*PatchResult, error) {
	p := patch.Params
	if patch.XStart < 0 || patch.XEnd > p.Nx || patch.XStart >= patch.XEnd {
		return nil, fmt.Errorf("patch %d: columns [%d, %d) outside grid of width %d",
			patch.Index, patch.XStart, patch.XEnd, p.Nx)
	}

	dx, dy := p.Dx(), p.Dy()
	w := patch.Width()
	res := &PatchResult{
		Index:  patch.Index,
		XStart: patch.XStart,
		XEnd:   patch.XEnd,
		Counts: make([]int, w*p.Ny),
	}
	for j := 0; j < p.Ny; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cy := p.YMin + float64(j)*dy
		for i := 0; i < w; i++ {
			cx := p.XMin + float64(patch.XStart+i)*dx
			n := Escape(cx, cy, p.MaxIters)
			res.Counts[j*w+i] = n
			res.Iterations += int64(n)
		}
	}
	return res, nil
}

// Executor runs Compute for tasks of kind "mandelbrot".
type Executor struct{}

// NewExecutor creates the executor.
func NewExecutor() *Executor { return &Executor{} }

// Kind implements worker.Executor.
func (e *Executor) Kind() string { return Kind }

// Execute implements worker.Executor.
func (e *Executor) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var patch Patch
	if err := sonic.Unmarshal(input, &patch); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	if err := patch.Params.Validate(); err != nil {
		return nil, err
	}
	res, err := Compute(ctx, patch)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(res)
}

var _ worker.Executor = (*Executor)(nil)

// Register adds the executor to r.
func Register(r *worker.Registry) error {
	return r.Register(NewExecutor())
}
