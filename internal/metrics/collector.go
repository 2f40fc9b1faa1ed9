// Package metrics records task execution times reported by the workers.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/duke-git/lancet/v2/maputil"

	"yqhp/taskfarm/internal/manager"
)

const (
	minValue = 1 // 1µs
	maxValue = int64(time.Hour / time.Microsecond)
	sigFigs  = 3
)

// Timing summarizes a set of task durations.
type Timing struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Summary holds the overall and per-worker timings of a run.
type Summary struct {
	Overall   Timing         `json:"overall"`
	PerWorker map[int]Timing `json:"per_worker"`
}

// Workers returns the ranks present in the summary, sorted.
func (s *Summary) Workers() []int {
	ranks := maputil.Keys(s.PerWorker)
	sort.Ints(ranks)
	return ranks
}

// Collector is a manager.Observer that builds execution-time histograms.
type Collector struct {
	mu        sync.Mutex
	overall   *hdrhistogram.Histogram
	perWorker map[int]*hdrhistogram.Histogram
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		overall:   newHistogram(),
		perWorker: make(map[int]*hdrhistogram.Histogram),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minValue, maxValue, sigFigs)
}

// OnEvent implements manager.Observer.
func (c *Collector) OnEvent(e manager.Event) {
	switch e.Type {
	case manager.EventRunStarted:
		c.Reset()
	case manager.EventTaskCompleted:
		if e.Result != nil {
			c.Record(e.Worker, e.Result.Duration)
		}
	}
}

// Record adds one task duration for worker w. Values outside the histogram
// range are clamped.
func (c *Collector) Record(w int, d time.Duration) {
	v := int64(d / time.Microsecond)
	if v < minValue {
		v = minValue
	}
	if v > maxValue {
		v = maxValue
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.perWorker[w]
	if !ok {
		h = newHistogram()
		c.perWorker[w] = h
	}
	_ = h.RecordValue(v)
	_ = c.overall.RecordValue(v)
}

// Reset discards all recorded values.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overall.Reset()
	c.perWorker = make(map[int]*hdrhistogram.Histogram)
}

// Summary returns the current timings.
func (c *Collector) Summary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Overall:   timing(c.overall),
		PerWorker: make(map[int]Timing, len(c.perWorker)),
	}
	for w, h := range c.perWorker {
		s.PerWorker[w] = timing(h)
	}
	return s
}

func timing(h *hdrhistogram.Histogram) Timing {
	if h.TotalCount() == 0 {
		return Timing{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Timing{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		Max:   us(h.Max()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtQuantile(50)),
		P95:   us(h.ValueAtQuantile(95)),
		P99:   us(h.ValueAtQuantile(99)),
	}
}
