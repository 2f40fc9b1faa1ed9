package mandelbrot

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/bytedance/sonic"

	"yqhp/taskfarm/pkg/types"
)

// Image holds the escape count of every pixel, row-major.
type Image struct {
	Nx, Ny     int
	MaxIters   int
	Counts     []int
	Iterations int64
}

// At returns the escape count at column i, row j.
func (m *Image) At(i, j int) int {
	return m.Counts[j*m.Nx+i]
}

// Combine rebuilds the image from completions in any order. Patches are
// placed by the columns they carry, so completion order is irrelevant.
// Every column must be covered exactly once.
func Combine(p Params, completions []*types.Completion) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	img := &Image{
		Nx:       p.Nx,
		Ny:       p.Ny,
		MaxIters: p.MaxIters,
		Counts:   make([]int, p.Nx*p.Ny),
	}
	covered := make([]bool, p.Nx)

	for _, c := range completions {
		if c == nil || c.Result == nil {
			return nil, fmt.Errorf("completion without result")
		}
		if c.Result.Failed() {
			return nil, fmt.Errorf("task %s failed on worker %d: %s", c.Result.TaskID, c.Worker, c.Result.Error)
		}
		var pr PatchResult
		if err := sonic.Unmarshal(c.Result.Output, &pr); err != nil {
			return nil, fmt.Errorf("decode result of task %s: %w", c.Result.TaskID, err)
		}
		w := pr.XEnd - pr.XStart
		if pr.XStart < 0 || pr.XEnd > p.Nx || w <= 0 || len(pr.Counts) != w*p.Ny {
			return nil, fmt.Errorf("task %s: patch [%d, %d) with %d counts does not fit the grid",
				c.Result.TaskID, pr.XStart, pr.XEnd, len(pr.Counts))
		}
		for i := pr.XStart; i < pr.XEnd; i++ {
			if covered[i] {
				return nil, fmt.Errorf("task %s: column %d covered twice", c.Result.TaskID, i)
			}
			covered[i] = true
		}
		for j := 0; j < p.Ny; j++ {
			copy(img.Counts[j*p.Nx+pr.XStart:j*p.Nx+pr.XEnd], pr.Counts[j*w:(j+1)*w])
		}
		img.Iterations += pr.Iterations
	}

	for i, ok := range covered {
		if !ok {
			return nil, fmt.Errorf("column %d not covered by any patch", i)
		}
	}
	return img, nil
}

// Gray converts the image to grayscale with intensity n*255/MaxIters.
func (m *Image) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Nx, m.Ny))
	for j := 0; j < m.Ny; j++ {
		for i := 0; i < m.Nx; i++ {
			c := int64(m.At(i, j)) * 255 / int64(m.MaxIters)
			g.SetGray(i, j, color.Gray{Y: uint8(c)})
		}
	}
	return g
}

// WritePNG encodes the grayscale image as PNG.
func (m *Image) WritePNG(w io.Writer) error {
	return png.Encode(w, m.Gray())
}

// SavePNG writes the image to path.
func (m *Image) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := m.WritePNG(bw); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
