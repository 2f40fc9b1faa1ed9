// Package farm runs a manager and its workers inside one process.
package farm

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"yqhp/taskfarm/internal/manager"
	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/internal/worker"
	"yqhp/taskfarm/pkg/types"
)

// Result is the outcome of a local run.
type Result struct {
	Report  *types.Report
	Workers []*worker.Stats
}

// Options tunes RunLocal. The zero value is usable.
type Options struct {
	Manager []manager.Option
	Worker  []worker.Option
}

// RunLocal schedules tasks on numWorkers goroutine workers connected to the
// manager by an in-process group. If the manager fails, the workers are
// cancelled and the manager's error is returned.
func RunLocal(ctx context.Context, tasks []*types.Task, registry *worker.Registry, numWorkers int, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	if numWorkers <= 0 {
		// let the manager report it as a configuration error
		return nil, runManagerOnly(ctx, tasks, numWorkers, opts)
	}

	group, err := transport.NewGroup(numWorkers + 1)
	if err != nil {
		return nil, err
	}
	defer group.Close()

	coord, err := group.Endpoint(transport.Coordinator)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	stats := make([]*worker.Stats, numWorkers)

	for i := 1; i <= numWorkers; i++ {
		ep, err := group.Endpoint(transport.Rank(i))
		if err != nil {
			return nil, err
		}
		w := worker.New(registry, opts.Worker...)
		slot := i - 1
		g.Go(func() error {
			s, err := w.Run(gctx, ep, transport.Coordinator)
			stats[slot] = s
			return err
		})
	}

	var report *types.Report
	g.Go(func() error {
		var err error
		// a manager error cancels gctx, which releases the workers
		report, err = manager.New(opts.Manager...).Run(gctx, coord, tasks, numWorkers)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("local run: %w", err)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Rank < stats[j].Rank })
	return &Result{Report: report, Workers: stats}, nil
}

func runManagerOnly(ctx context.Context, tasks []*types.Task, numWorkers int, opts *Options) error {
	group, err := transport.NewGroup(1)
	if err != nil {
		return err
	}
	coord, err := group.Endpoint(transport.Coordinator)
	if err != nil {
		return err
	}
	_, err = manager.New(opts.Manager...).Run(ctx, coord, tasks, numWorkers)
	return err
}
