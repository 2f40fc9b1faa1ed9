package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/types"
)

func testRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(echoExecutor("echo"))
	r.MustRegister(NewExecutorFunc("fail", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("bad input")
	}))
	r.MustRegister(NewExecutorFunc("panic", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("kaboom")
	}))
	return r
}

func TestExecuteSuccess(t *testing.T) {
	w := New(testRegistry())
	res := w.Execute(context.Background(), &types.Task{ID: "t1", Kind: "echo", Input: json.RawMessage(`[1,2]`)})

	assert.Equal(t, "t1", res.TaskID)
	assert.False(t, res.Failed())
	assert.JSONEq(t, `[1,2]`, string(res.Output))
	assert.GreaterOrEqual(t, res.Duration, time.Duration(0))
}

func TestExecuteEncodesFailures(t *testing.T) {
	w := New(testRegistry())
	ctx := context.Background()

	tests := []struct {
		kind string
		want string
	}{
		{"fail", string(ErrCodeExecution)},
		{"panic", string(ErrCodePanic)},
		{"unknown", string(ErrCodeNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			res := w.Execute(ctx, &types.Task{ID: "x", Kind: tt.kind})
			require.NotNil(t, res)
			assert.True(t, res.Failed())
			assert.Contains(t, res.Error, tt.want)
			assert.Nil(t, res.Output)
			assert.Equal(t, "x", res.TaskID)
		})
	}
}

func newPair(t *testing.T) (*transport.Group, transport.Channel, transport.Channel) {
	t.Helper()
	g, err := transport.NewGroup(2)
	require.NoError(t, err)
	coord, err := g.Endpoint(transport.Coordinator)
	require.NoError(t, err)
	ep, err := g.Endpoint(1)
	require.NoError(t, err)
	return g, coord, ep
}

func TestRunRepliesToEveryTask(t *testing.T) {
	_, coord, ep := newPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		stats *Stats
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		stats, err := New(testRegistry()).Run(ctx, ep, transport.Coordinator)
		done <- outcome{stats, err}
	}()

	for i, kind := range []string{"echo", "fail", "panic", "unknown"} {
		task := &types.Task{ID: kind, Kind: kind, Input: json.RawMessage(`{}`)}
		require.NoError(t, coord.Send(ctx, 1, types.NewTaskMessage(task)))

		msg, err := coord.Recv(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, types.TagTaskDone, msg.Tag)
		assert.Equal(t, kind, msg.Result.TaskID)
		assert.Equal(t, 1, msg.Result.Worker)
		assert.Equal(t, i > 0, msg.Result.Failed(), kind)
	}
	require.NoError(t, coord.Send(ctx, 1, types.NewShutdownMessage()))

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, 4, out.stats.Executed)
	assert.Equal(t, 3, out.stats.Failed)
	assert.Equal(t, 1, out.stats.Rank)
}

func TestRunReturnsImmediatelyOnShutdown(t *testing.T) {
	_, coord, ep := newPair(t)
	ctx := context.Background()
	require.NoError(t, coord.Send(ctx, 1, types.NewShutdownMessage()))

	stats, err := New(nil).Run(ctx, ep, transport.Coordinator)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Executed)
}

func TestRunTransportError(t *testing.T) {
	g, _, ep := newPair(t)
	require.NoError(t, g.Close())

	_, err := New(testRegistry()).Run(context.Background(), ep, transport.Coordinator)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestRunUnexpectedMessage(t *testing.T) {
	_, coord, ep := newPair(t)
	ctx := context.Background()
	require.NoError(t, coord.Send(ctx, 1, types.NewDoneMessage(&types.Result{TaskID: "x"})))

	_, err := New(testRegistry()).Run(ctx, ep, transport.Coordinator)
	assert.ErrorIs(t, err, ErrUnexpectedMessage)
}
