package transport

import (
	"context"
	"sync"
)

// Envelope is an encoded message together with the rank that sent it.
type Envelope struct {
	From Rank
	Data []byte
}

// Mailbox buffers inbound envelopes in arrival order. Receivers may take the
// oldest envelope from one source or from any source. Transports feed it
// from their read loops.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Envelope
	signal chan struct{}
	err    error
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{})}
}

// Put appends an envelope. It never blocks. Envelopes put after Fail are dropped.
func (m *Mailbox) Put(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return
	}
	m.queue = append(m.queue, env)
	m.wake()
}

// Fail makes every pending and future Take return err once the queue holds
// no matching envelope. The first error wins.
func (m *Mailbox) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return
	}
	m.err = err
	m.wake()
}

// Len returns the number of buffered envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// wake releases all waiters. Callers hold m.mu.
func (m *Mailbox) wake() {
	close(m.signal)
	m.signal = make(chan struct{})
}

// Take removes and returns the oldest envelope accepted by match.
// A nil match accepts any source.
func (m *Mailbox) Take(ctx context.Context, match func(Rank) bool) (Envelope, error) {
	for {
		m.mu.Lock()
		for i, env := range m.queue {
			if match == nil || match(env.From) {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return env, nil
			}
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return Envelope{}, err
		}
		signal := m.signal
		m.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// From returns a matcher for a single source rank.
func From(r Rank) func(Rank) bool {
	return func(src Rank) bool { return src == r }
}
