package rest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/logger"
	"yqhp/taskfarm/pkg/types"
)

// ErrWorkerLost is reported to pending receives when a worker disconnects
// before it was shut down.
var ErrWorkerLost = errors.New("worker connection lost")

// workerConn wraps a single websocket connection from a worker.
type workerConn struct {
	rank     transport.Rank
	name     string
	conn     *fiberws.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	finished bool // SHUTDOWN sent, guarded by hub.mu
}

func (c *workerConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WorkerHub is the coordinator's transport.Channel over websockets. Workers
// connect and register; the hub assigns ranks 1..N and routes protocol
// messages between the connections and the coordinator's mailbox.
type WorkerHub struct {
	size  int
	runID string
	log   *zap.SugaredLogger

	mu    sync.Mutex
	conns map[transport.Rank]*workerConn

	box       *transport.Mailbox
	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWorkerHub creates a hub expecting numWorkers workers.
func NewWorkerHub(numWorkers int, runID string) (*WorkerHub, error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("worker hub needs at least one worker, got %d", numWorkers)
	}
	if runID == "" {
		runID = uuid.New().String()
	}
	return &WorkerHub{
		size:   numWorkers + 1,
		runID:  runID,
		log:    logger.Named("worker-hub"),
		conns:  make(map[transport.Rank]*workerConn),
		box:    transport.NewMailbox(),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}, nil
}

// RunID returns the run the hub serves.
func (h *WorkerHub) RunID() string { return h.runID }

// Connected returns the number of registered workers.
func (h *WorkerHub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// WaitForWorkers blocks until every rank has registered.
func (h *WorkerHub) WaitForWorkers(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-h.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers (%d/%d registered): %w", h.Connected(), h.size-1, ctx.Err())
	}
}

// Route registers the websocket endpoint on r.
func (h *WorkerHub) Route(r fiber.Router) {
	r.Use(types.WorkerWSPath, func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get(types.WorkerWSPath, fiberws.New(h.handleConnection))
}

// Rank implements transport.Channel.
func (h *WorkerHub) Rank() transport.Rank { return transport.Coordinator }

// Size implements transport.Channel.
func (h *WorkerHub) Size() int { return h.size }

// Send implements transport.Channel.
func (h *WorkerHub) Send(ctx context.Context, to transport.Rank, msg *types.Message) error {
	if err := transport.CheckPeer(transport.Coordinator, to, h.size); err != nil {
		return err
	}
	data, err := transport.Encode(msg)
	if err != nil {
		return err
	}
	frame, err := sonic.Marshal(&types.WSMessage{Type: types.WSMsgProtocol, Data: data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	conn, ok := h.conns[to]
	if ok && msg.Tag == types.TagShutdown {
		conn.finished = true
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: worker %d not connected", transport.ErrClosed, to)
	}

	select {
	case conn.send <- frame:
		return nil
	case <-conn.done:
		return fmt.Errorf("%w: worker %d", ErrWorkerLost, to)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements transport.Channel.
func (h *WorkerHub) Recv(ctx context.Context, from transport.Rank) (*types.Message, error) {
	if err := transport.CheckPeer(transport.Coordinator, from, h.size); err != nil {
		return nil, err
	}
	env, err := h.box.Take(ctx, transport.From(from))
	if err != nil {
		return nil, err
	}
	return transport.Decode(env.Data)
}

// RecvAny implements transport.Channel.
func (h *WorkerHub) RecvAny(ctx context.Context) (*types.Message, transport.Rank, error) {
	env, err := h.box.Take(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	msg, err := transport.Decode(env.Data)
	return msg, env.From, err
}

// Drain waits until every registered worker has disconnected, so queued
// SHUTDOWN frames are flushed before Close.
func (h *WorkerHub) Drain(ctx context.Context) error {
	h.mu.Lock()
	conns := make([]*workerConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		select {
		case <-c.done:
		case <-ctx.Done():
			return fmt.Errorf("drain worker %d: %w", c.rank, ctx.Err())
		}
	}
	return nil
}

// Close disconnects every worker and fails pending receives.
func (h *WorkerHub) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.box.Fail(transport.ErrClosed)

		h.mu.Lock()
		conns := make([]*workerConn, 0, len(h.conns))
		for _, c := range h.conns {
			conns = append(conns, c)
		}
		h.mu.Unlock()
		for _, c := range conns {
			c.close()
		}
	})
	return nil
}

// assign picks the requested rank if it is free, else the lowest free rank.
// Callers hold h.mu.
func (h *WorkerHub) assign(requested int) (transport.Rank, error) {
	if requested != 0 {
		r := transport.Rank(requested)
		if requested < 1 || requested >= h.size {
			return 0, fmt.Errorf("rank %d outside 1..%d", requested, h.size-1)
		}
		if _, taken := h.conns[r]; taken {
			return 0, fmt.Errorf("rank %d already registered", requested)
		}
		return r, nil
	}
	for r := transport.Rank(1); int(r) < h.size; r++ {
		if _, taken := h.conns[r]; !taken {
			return r, nil
		}
	}
	return 0, fmt.Errorf("all %d worker ranks are taken", h.size-1)
}

func (h *WorkerHub) writeAck(c *fiberws.Conn, resp *types.WorkerRegisterResponse) error {
	data, err := sonic.Marshal(resp)
	if err != nil {
		return err
	}
	frame, err := sonic.Marshal(&types.WSMessage{Type: types.WSMsgRegisterAck, Data: data})
	if err != nil {
		return err
	}
	return c.WriteMessage(fiberws.TextMessage, frame)
}

// handleConnection handles a newly established worker websocket connection.
func (h *WorkerHub) handleConnection(c *fiberws.Conn) {
	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		h.log.Errorw("ws: read first message failed", "error", err)
		return
	}
	_ = c.SetReadDeadline(time.Time{})

	var first types.WSMessage
	if err := sonic.Unmarshal(raw, &first); err != nil || first.Type != types.WSMsgRegister {
		h.log.Errorw("ws: expected register message", "type", first.Type, "error", err)
		return
	}
	var req types.WorkerRegisterRequest
	if err := sonic.Unmarshal(first.Data, &req); err != nil {
		h.log.Errorw("ws: parse register request failed", "error", err)
		return
	}

	h.mu.Lock()
	select {
	case <-h.closed:
		h.mu.Unlock()
		_ = h.writeAck(c, &types.WorkerRegisterResponse{Error: "hub closed"})
		return
	default:
	}
	rank, err := h.assign(req.Rank)
	if err != nil {
		h.mu.Unlock()
		h.log.Warnw("ws: registration rejected", "name", req.Name, "error", err)
		_ = h.writeAck(c, &types.WorkerRegisterResponse{Error: err.Error()})
		return
	}
	conn := &workerConn{
		rank: rank,
		name: req.Name,
		conn: c,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	h.conns[rank] = conn
	full := len(h.conns) == h.size-1
	h.mu.Unlock()

	err = h.writeAck(c, &types.WorkerRegisterResponse{
		Accepted: true,
		Rank:     int(rank),
		Size:     h.size,
		RunID:    h.runID,
	})
	if err != nil {
		h.log.Errorw("ws: send register ack failed", "rank", rank, "error", err)
		h.lost(conn)
		return
	}

	h.log.Infow("ws: worker connected", "rank", rank, "name", req.Name)
	if full {
		h.readyOnce.Do(func() { close(h.ready) })
	}

	go conn.writePump()
	h.readPump(conn)
	h.lost(conn)
}

// lost handles the end of a connection. A worker that disconnects before it
// received SHUTDOWN can never report its task, so the run is failed.
func (h *WorkerHub) lost(conn *workerConn) {
	conn.close()

	h.mu.Lock()
	finished := conn.finished
	h.mu.Unlock()

	select {
	case <-h.closed:
		return
	default:
	}
	if finished {
		h.log.Debugw("ws: worker disconnected", "rank", conn.rank)
		return
	}
	h.log.Errorw("ws: worker lost", "rank", conn.rank, "name", conn.name)
	h.box.Fail(fmt.Errorf("%w: worker %d", ErrWorkerLost, conn.rank))
}

func (h *WorkerHub) readPump(conn *workerConn) {
	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg types.WSMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			h.log.Errorw("ws: invalid message", "rank", conn.rank, "error", err)
			continue
		}
		if msg.Type != types.WSMsgProtocol {
			continue
		}
		h.box.Put(transport.Envelope{From: conn.rank, Data: []byte(msg.Data)})
	}
}

func (c *workerConn) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(fiberws.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

var _ transport.Channel = (*WorkerHub)(nil)
