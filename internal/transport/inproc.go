package transport

import (
	"context"
	"fmt"
	"sync"

	"yqhp/taskfarm/pkg/types"
)

// Group is an in-process group of participants connected by mailboxes.
// Messages are encoded on send and decoded on receive, so sender and
// receiver never share memory.
type Group struct {
	size  int
	boxes []*Mailbox

	closeOnce sync.Once
}

// NewGroup creates a group of size participants: the coordinator plus size-1 workers.
func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be at least 1, got %d", size)
	}
	g := &Group{
		size:  size,
		boxes: make([]*Mailbox, size),
	}
	for i := range g.boxes {
		g.boxes[i] = NewMailbox()
	}
	return g, nil
}

// Size returns the number of participants.
func (g *Group) Size() int {
	return g.size
}

// Endpoint returns the channel of participant r.
func (g *Group) Endpoint(r Rank) (Channel, error) {
	if r < 0 || int(r) >= g.size {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRank, r, g.size)
	}
	return &endpoint{group: g, rank: r}, nil
}

// Close fails every pending receive in the group.
func (g *Group) Close() error {
	g.closeOnce.Do(func() {
		for _, box := range g.boxes {
			box.Fail(ErrClosed)
		}
	})
	return nil
}

type endpoint struct {
	group *Group
	rank  Rank
}

func (e *endpoint) Rank() Rank { return e.rank }

func (e *endpoint) Size() int { return e.group.size }

func (e *endpoint) Send(ctx context.Context, to Rank, msg *types.Message) error {
	if err := CheckPeer(e.rank, to, e.group.size); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	e.group.boxes[to].Put(Envelope{From: e.rank, Data: data})
	return nil
}

func (e *endpoint) Recv(ctx context.Context, from Rank) (*types.Message, error) {
	if err := CheckPeer(e.rank, from, e.group.size); err != nil {
		return nil, err
	}
	env, err := e.group.boxes[e.rank].Take(ctx, From(from))
	if err != nil {
		return nil, err
	}
	return Decode(env.Data)
}

func (e *endpoint) RecvAny(ctx context.Context) (*types.Message, Rank, error) {
	env, err := e.group.boxes[e.rank].Take(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	msg, err := Decode(env.Data)
	if err != nil {
		return nil, env.From, err
	}
	return msg, env.From, nil
}

func (e *endpoint) Close() error {
	e.group.boxes[e.rank].Fail(ErrClosed)
	return nil
}
