// Package client is the worker side of the coordinator websocket.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/logger"
	"yqhp/taskfarm/pkg/types"
)

// DialOptions configures a worker connection.
type DialOptions struct {
	// Name identifies the worker in coordinator logs.
	Name string
	// Rank requests a specific rank; 0 lets the coordinator pick.
	Rank int
	// HandshakeTimeout bounds the dial and the registration round trip.
	HandshakeTimeout time.Duration
}

// WSChannel is a worker's transport.Channel to the coordinator. Only the
// coordinator is reachable through it.
type WSChannel struct {
	ws    *websocket.Conn
	rank  transport.Rank
	size  int
	runID string
	log   *zap.SugaredLogger

	writeMu   sync.Mutex
	box       *transport.Mailbox
	closeOnce sync.Once
}

// Dial connects to the coordinator at rawURL and registers.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*WSChannel, error) {
	wsURL, err := toWebSocketURL(rawURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s failed: %w", wsURL, err)
	}

	ack, err := register(ws, opts, timeout)
	if err != nil {
		ws.Close()
		return nil, err
	}

	c := &WSChannel{
		ws:    ws,
		rank:  transport.Rank(ack.Rank),
		size:  ack.Size,
		runID: ack.RunID,
		log:   logger.Named("worker-ws").With("rank", ack.Rank),
		box:   transport.NewMailbox(),
	}
	go c.readPump()
	return c, nil
}

func register(ws *websocket.Conn, opts DialOptions, timeout time.Duration) (*types.WorkerRegisterResponse, error) {
	data, err := sonic.Marshal(&types.WorkerRegisterRequest{Name: opts.Name, Rank: opts.Rank})
	if err != nil {
		return nil, err
	}
	if err := ws.WriteJSON(&types.WSMessage{Type: types.WSMsgRegister, Data: data}); err != nil {
		return nil, fmt.Errorf("send register message failed: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(timeout))
	var ackMsg types.WSMessage
	if err := ws.ReadJSON(&ackMsg); err != nil {
		return nil, fmt.Errorf("read register ack failed: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	if ackMsg.Type != types.WSMsgRegisterAck {
		return nil, fmt.Errorf("unexpected ack type: %s", ackMsg.Type)
	}

	var ack types.WorkerRegisterResponse
	if err := sonic.Unmarshal(ackMsg.Data, &ack); err != nil {
		return nil, fmt.Errorf("parse register ack failed: %w", err)
	}
	if !ack.Accepted {
		return nil, fmt.Errorf("registration rejected: %s", ack.Error)
	}
	if ack.Rank < 1 || ack.Rank >= ack.Size {
		return nil, fmt.Errorf("coordinator assigned rank %d outside group of %d", ack.Rank, ack.Size)
	}
	return &ack, nil
}

// RunID returns the run the coordinator is serving.
func (c *WSChannel) RunID() string { return c.runID }

// Rank implements transport.Channel.
func (c *WSChannel) Rank() transport.Rank { return c.rank }

// Size implements transport.Channel.
func (c *WSChannel) Size() int { return c.size }

// Send implements transport.Channel.
func (c *WSChannel) Send(ctx context.Context, to transport.Rank, msg *types.Message) error {
	if to != transport.Coordinator {
		return fmt.Errorf("%w: worker channel only reaches the coordinator, got %d", transport.ErrInvalidRank, to)
	}
	if err := ctx.Err(); err != nil {
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

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(dl)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return nil
}

// Recv implements transport.Channel.
func (c *WSChannel) Recv(ctx context.Context, from transport.Rank) (*types.Message, error) {
	if from != transport.Coordinator {
		return nil, fmt.Errorf("%w: worker channel only reaches the coordinator, got %d", transport.ErrInvalidRank, from)
	}
	env, err := c.box.Take(ctx, transport.From(from))
	if err != nil {
		return nil, err
	}
	return transport.Decode(env.Data)
}

// RecvAny implements transport.Channel.
func (c *WSChannel) RecvAny(ctx context.Context) (*types.Message, transport.Rank, error) {
	env, err := c.box.Take(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	msg, err := transport.Decode(env.Data)
	return msg, env.From, err
}

// Close closes the connection.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		c.box.Fail(transport.ErrClosed)
	})
	return err
}

func (c *WSChannel) readPump() {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.box.Fail(fmt.Errorf("%w: %v", transport.ErrClosed, err))
			return
		}
		var msg types.WSMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			c.log.Warnw("ws: invalid frame", "error", err)
			continue
		}
		if msg.Type != types.WSMsgProtocol {
			continue
		}
		c.box.Put(transport.Envelope{From: transport.Coordinator, Data: []byte(msg.Data)})
	}
}

// toWebSocketURL converts an HTTP(s) URL or bare host:port to a ws:// URL
// and appends the worker route when no path is given.
func toWebSocketURL(raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		raw = "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		raw = "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
	default:
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid manager url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid manager url %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = types.WorkerWSPath
	}
	return u.String(), nil
}

var _ transport.Channel = (*WSChannel)(nil)
