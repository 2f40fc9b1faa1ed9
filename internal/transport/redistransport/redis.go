// Package redistransport implements transport.Channel on top of Redis lists.
//
// Every ordered (receiver, sender) pair owns one list named
// {prefix}:{run}:{dst}:{src}. A send is an RPUSH onto the receiver's list for
// that sender, so per-pair order is the list order. A receive from a specific
// rank pops that one list; a receive from any rank pops all inbound lists and
// the popped key names the origin.
package redistransport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/types"
)

// DefaultPrefix 默认键前缀
const DefaultPrefix = "taskfarm"

// DefaultPollInterval 阻塞弹出的单次超时
const DefaultPollInterval = time.Second

// Options Redis 通道配置
type Options struct {
	Addr     string
	Password string
	DB       int

	Prefix string
	RunID  string
	Rank   transport.Rank
	Size   int

	// PollInterval bounds each BLPOP so that context cancellation is observed.
	PollInterval time.Duration
	// KeyTTL is applied to every list written, zero keeps them forever.
	KeyTTL time.Duration
}

func (o *Options) applyDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}

func (o *Options) validate() error {
	if o.RunID == "" {
		return errors.New("redis transport: run id is required")
	}
	if o.Size < 2 {
		return fmt.Errorf("redis transport: group size must be at least 2, got %d", o.Size)
	}
	if o.Rank < 0 || int(o.Rank) >= o.Size {
		return fmt.Errorf("redis transport: %w: %d not in [0, %d)", transport.ErrInvalidRank, o.Rank, o.Size)
	}
	return nil
}

// Channel 基于 Redis 列表的通道端点
type Channel struct {
	client   redis.UniversalClient
	owned    bool
	opts     Options
	inbound  []string
	next     int
	mu       sync.Mutex
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

// Dial 连接 Redis 并创建端点
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis transport: ping %s: %w", opts.Addr, err)
	}
	ch, err := New(client, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	ch.owned = true
	return ch, nil
}

// New creates an endpoint over an existing client. The client is not closed by Close.
func New(client redis.UniversalClient, opts Options) (*Channel, error) {
	if client == nil {
		return nil, errors.New("redis transport: client is nil")
	}
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	ch := &Channel{
		client: client,
		opts:   opts,
		closed: make(chan struct{}),
	}
	for src := 0; src < opts.Size; src++ {
		if transport.Rank(src) == opts.Rank {
			continue
		}
		ch.inbound = append(ch.inbound, Key(opts.Prefix, opts.RunID, opts.Rank, transport.Rank(src)))
	}
	return ch, nil
}

// Key names the list holding messages from src to dst.
func Key(prefix, runID string, dst, src transport.Rank) string {
	return fmt.Sprintf("%s:%s:%d:%d", prefix, runID, dst, src)
}

// ParseKey extracts the destination and source ranks from a list key.
func ParseKey(key string) (dst, src transport.Rank, err error) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return 0, 0, fmt.Errorf("malformed key %q", key)
	}
	d, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed key %q: %w", key, err)
	}
	s, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed key %q: %w", key, err)
	}
	return transport.Rank(d), transport.Rank(s), nil
}

// Rank implements transport.Channel.
func (c *Channel) Rank() transport.Rank { return c.opts.Rank }

// Size implements transport.Channel.
func (c *Channel) Size() int { return c.opts.Size }

// Send implements transport.Channel.
func (c *Channel) Send(ctx context.Context, to transport.Rank, msg *types.Message) error {
	if c.isClosed() {
		return transport.ErrClosed
	}
	if err := transport.CheckPeer(c.opts.Rank, to, c.opts.Size); err != nil {
		return err
	}
	data, err := transport.Encode(msg)
	if err != nil {
		return err
	}

	key := Key(c.opts.Prefix, c.opts.RunID, to, c.opts.Rank)
	if c.opts.KeyTTL > 0 {
		pipe := c.client.TxPipeline()
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, c.opts.KeyTTL)
		_, err = pipe.Exec(ctx)
	} else {
		err = c.client.RPush(ctx, key, data).Err()
	}
	if err != nil {
		return c.wrap(fmt.Errorf("rpush %s: %w", key, err))
	}
	return nil
}

// Recv implements transport.Channel.
func (c *Channel) Recv(ctx context.Context, from transport.Rank) (*types.Message, error) {
	if err := transport.CheckPeer(c.opts.Rank, from, c.opts.Size); err != nil {
		return nil, err
	}
	key := Key(c.opts.Prefix, c.opts.RunID, c.opts.Rank, from)
	_, data, err := c.pop(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	return transport.Decode([]byte(data))
}

// RecvAny implements transport.Channel. BLPOP serves keys in argument order,
// so the starting key rotates on every call to keep one busy sender from
// starving the rest.
func (c *Channel) RecvAny(ctx context.Context) (*types.Message, transport.Rank, error) {
	key, data, err := c.pop(ctx, c.rotation())
	if err != nil {
		return nil, 0, err
	}
	_, src, err := ParseKey(key)
	if err != nil {
		return nil, 0, err
	}
	msg, err := transport.Decode([]byte(data))
	if err != nil {
		return nil, src, err
	}
	return msg, src, nil
}

func (c *Channel) rotation() []string {
	c.mu.Lock()
	start := c.next
	c.next = (c.next + 1) % len(c.inbound)
	c.mu.Unlock()

	keys := make([]string, 0, len(c.inbound))
	keys = append(keys, c.inbound[start:]...)
	keys = append(keys, c.inbound[:start]...)
	return keys
}

func (c *Channel) pop(ctx context.Context, keys []string) (string, string, error) {
	for {
		if c.isClosed() {
			return "", "", transport.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		res, err := c.client.BLPop(ctx, c.opts.PollInterval, keys...).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", "", ctxErr
			}
			return "", "", c.wrap(fmt.Errorf("blpop: %w", err))
		case len(res) != 2:
			return "", "", fmt.Errorf("blpop: unexpected reply %v", res)
		}
		return res[0], res[1], nil
	}
}

// Purge deletes every list addressed to this endpoint.
func (c *Channel) Purge(ctx context.Context) error {
	return c.client.Del(ctx, c.inbound...).Err()
}

// Close implements transport.Channel.
func (c *Channel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.owned {
			c.closeErr = c.client.Close()
		}
	})
	return c.closeErr
}

func (c *Channel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Channel) wrap(err error) error {
	if c.isClosed() || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return err
}

var _ transport.Channel = (*Channel)(nil)
