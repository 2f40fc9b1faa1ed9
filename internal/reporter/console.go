package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConsoleConfig 控制台报告配置
type ConsoleConfig struct {
	Color  bool
	Writer io.Writer
}

// Console 控制台报告器
type Console struct {
	w      io.Writer
	title  lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	failed lipgloss.Style
	muted  lipgloss.Style
}

// NewConsole 创建控制台报告器
func NewConsole(cfg ConsoleConfig) *Console {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	c := &Console{
		w:      w,
		title:  lipgloss.NewStyle(),
		label:  lipgloss.NewStyle(),
		value:  lipgloss.NewStyle(),
		failed: lipgloss.NewStyle(),
		muted:  lipgloss.NewStyle(),
	}
	if cfg.Color {
		c.title = c.title.Bold(true).Foreground(lipgloss.Color("12"))
		c.label = c.label.Foreground(lipgloss.Color("7"))
		c.value = c.value.Bold(true)
		c.failed = c.failed.Foreground(lipgloss.Color("9"))
		c.muted = c.muted.Foreground(lipgloss.Color("8"))
	}
	return c
}

// NewConsoleFactory 返回控制台报告器工厂，支持 color 和 writer 配置项
func NewConsoleFactory() Factory {
	return func(config map[string]any) (Reporter, error) {
		color, _ := config["color"].(bool)
		w, _ := config["writer"].(io.Writer)
		return NewConsole(ConsoleConfig{Color: color, Writer: w}), nil
	}
}

// Name implements Reporter.
func (c *Console) Name() string { return string(TypeConsole) }

// Report implements Reporter.
func (c *Console) Report(_ context.Context, s *Summary) error {
	_, err := io.WriteString(c.w, c.Render(s))
	return err
}

// Render 渲染报告文本
func (c *Console) Render(s *Summary) string {
	r := s.Report
	var b strings.Builder

	b.WriteString(c.title.Render(fmt.Sprintf("Run %s", r.RunID)))
	b.WriteString("\n")
	c.line(&b, "Tasks", fmt.Sprintf("%d", r.Stats.TotalTasks))
	c.line(&b, "Workers", fmt.Sprintf("%d", r.Stats.NumWorkers))
	c.line(&b, "Run took", fmt.Sprintf("%f seconds", r.Duration().Seconds()))
	if r.Stats.Failed > 0 {
		b.WriteString(c.failed.Render(fmt.Sprintf("%d tasks failed", r.Stats.Failed)))
		b.WriteString("\n")
	}

	width := len(fmt.Sprintf("%d", r.Stats.NumWorkers))
	for _, w := range r.Workers() {
		line := fmt.Sprintf("Worker %*d has done %5d tasks", width, w, r.PerWorker[w])
		if s.Timings != nil {
			if t, ok := s.Timings.PerWorker[w]; ok {
				line += c.muted.Render(fmt.Sprintf("  p50=%s p95=%s", round(t.P50), round(t.P95)))
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if s.Timings != nil && s.Timings.Overall.Count > 0 {
		o := s.Timings.Overall
		c.line(&b, "Task time", fmt.Sprintf("min=%s mean=%s p50=%s p95=%s p99=%s max=%s",
			round(o.Min), round(o.Mean), round(o.P50), round(o.P95), round(o.P99), round(o.Max)))
	}
	if s.Output != "" {
		c.line(&b, "Output", s.Output)
	}
	return b.String()
}

func (c *Console) line(b *strings.Builder, label, value string) {
	b.WriteString(c.label.Render(fmt.Sprintf("%-10s", label)))
	b.WriteString(" ")
	b.WriteString(c.value.Render(value))
	b.WriteString("\n")
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d
	}
}
