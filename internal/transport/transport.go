package transport

import (
	"context"
	"errors"
	"fmt"

	"yqhp/taskfarm/pkg/types"
)

// Rank identifies a participant within the fixed group.
type Rank int

// Coordinator is the rank of the manager.
const Coordinator Rank = 0

var (
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("transport closed")
	// ErrInvalidRank is returned when a peer rank is outside the group.
	ErrInvalidRank = errors.New("invalid rank")
)

// Channel is one participant's endpoint of the group.
type Channel interface {
	// Rank returns the rank of this endpoint.
	Rank() Rank

	// Size returns the number of participants, coordinator included.
	Size() int

	// Send delivers msg to the participant with rank to.
	Send(ctx context.Context, to Rank, msg *types.Message) error

	// Recv blocks until a message from the given rank arrives.
	Recv(ctx context.Context, from Rank) (*types.Message, error)

	// RecvAny blocks until a message from any rank arrives and reports its origin.
	RecvAny(ctx context.Context) (*types.Message, Rank, error)

	// Close releases the endpoint. Pending receives fail with ErrClosed.
	Close() error
}

// CheckPeer validates that peer is a rank other than self within a group of size.
func CheckPeer(self, peer Rank, size int) error {
	if peer < 0 || int(peer) >= size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRank, peer, size)
	}
	if peer == self {
		return fmt.Errorf("%w: %d is the local rank", ErrInvalidRank, peer)
	}
	return nil
}
