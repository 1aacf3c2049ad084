package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/vock/transport"
	"github.com/opd-ai/vock/wire"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoServer indicates a client without a server address.
	ErrNoServer = errors.New("no rendezvous server configured")
	// ErrServer wraps error replies from the server.
	ErrServer = errors.New("rendezvous server error")
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Timeout is how long to wait for a reply before resending.
	Timeout time.Duration
	// WatchInterval is the polling period while waiting for members.
	WatchInterval time.Duration
}

// DefaultClientOptions returns the standard client timers.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:       5 * time.Second,
		WatchInterval: 2 * time.Second,
	}
}

// Client queries a rendezvous server.
type Client struct {
	transport transport.Transport
	opts      ClientOptions
	seq       atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan *wire.Packet
}

// NewClient creates a client and registers it for "api" packets on t.
func NewClient(t transport.Transport, opts ClientOptions) *Client {
	def := DefaultClientOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = def.WatchInterval
	}

	c := &Client{
		transport: t,
		opts:      opts,
		pending:   make(map[uint64]chan *wire.Packet),
	}
	t.Handle(wire.ProtocolAPI, c.handleReply)
	return c
}

// Create asks the server for a new room id.
func (c *Client) Create(ctx context.Context) (string, error) {
	reply, err := c.query(ctx, &wire.Packet{Type: wire.TypeCreate})
	if err != nil {
		return "", err
	}
	if reply.ID == "" {
		return "", fmt.Errorf("%w: empty room id", ErrServer)
	}
	return reply.ID, nil
}

// Join enters room id and returns the other members, waiting until at
// least one is present.
func (c *Client) Join(ctx context.Context, id string) ([]wire.Addr, error) {
	reply, err := c.query(ctx, &wire.Packet{Type: wire.TypeConnect, ID: id})
	if err != nil {
		return nil, err
	}
	if len(reply.Members) > 0 {
		return reply.Members, nil
	}
	return c.Watch(ctx, id)
}

// Info returns the other members of room id.
func (c *Client) Info(ctx context.Context, id string) ([]wire.Addr, error) {
	reply, err := c.query(ctx, &wire.Packet{Type: wire.TypeInfo, ID: id})
	if err != nil {
		return nil, err
	}
	return reply.Members, nil
}

// Watch polls room id until another member appears.
func (c *Client) Watch(ctx context.Context, id string) ([]wire.Addr, error) {
	for {
		members, err := c.Info(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			return members, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.WatchInterval):
		}
	}
}

// query sends request until a reply with the same sequence number arrives.
func (c *Client) query(ctx context.Context, request *wire.Packet) (*wire.Packet, error) {
	server := c.transport.Server()
	if server == nil {
		return nil, ErrNoServer
	}

	seq := c.seq.Add(1)
	request.Protocol = wire.ProtocolAPI
	request.Seq = seq
	request.Version = wire.Version

	replies := make(chan *wire.Packet, 1)
	c.mu.Lock()
	c.pending[seq] = replies
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
	}()

	for attempt := 1; ; attempt++ {
		c.transport.Send(request, server)

		select {
		case reply := <-replies:
			if reply.Type == wire.TypeError {
				return nil, fmt.Errorf("%w: %s", ErrServer, reply.Reason)
			}
			return reply, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.Timeout):
			logrus.WithFields(logrus.Fields{
				"function": "Client.query",
				"type":     request.Type,
				"seq":      seq,
				"attempt":  attempt,
			}).Warn("Rendezvous server did not answer, retrying")
		}
	}
}

func (c *Client) handleReply(p *wire.Packet, from *net.UDPAddr, _ bool) {
	server := c.transport.Server()
	if server == nil || !from.IP.Equal(server.IP) || from.Port != server.Port {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[p.Seq]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- p:
	default:
	}
}
