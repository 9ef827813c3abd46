package feed

import (
	"context"
	"log"
	"net"
	"time"
)

// Handler consumes one framed record. Returning an error tears down the
// current connection; the client then reconnects per its policy.
type Handler func(line string) error

// Client owns the TCP connection to the receiver. Run blocks until the
// context is cancelled, reconnecting forever on any failure: connect
// refused, peer close, read error, or a handler error. The only externally
// visible effect of a failure is a log line and a delay.
type Client struct {
	Addr        string
	Policy      ReconnectPolicy
	DialTimeout time.Duration
}

// NewClient returns a client for the given host:port with the default
// reconnect policy.
func NewClient(addr string) *Client {
	return &Client{Addr: addr, Policy: DefaultPolicy(), DialTimeout: 10 * time.Second}
}

// Run connects and delivers records to h until ctx is done. It never
// returns for any other reason.
func (c *Client) Run(ctx context.Context, h Handler) error {
	failures := 0
	for {
		connected, err := c.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			failures = 0
		}

		delay := c.Policy.Backoff(failures)
		failures++
		log.Printf("feed %s: %v; reconnecting in %s", c.Addr, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// session runs one connection to completion. The bool reports whether the
// dial itself succeeded, which resets the backoff counter.
func (c *Client) session(ctx context.Context, h Handler) (bool, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close() }()

	// Cancellation must unblock the read; closing the socket is the only
	// way to interrupt a blocked net.Conn read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log.Printf("feed %s: connected", c.Addr)

	fr := NewFramer(conn)
	for {
		line, err := fr.Next()
		if err != nil {
			return true, err
		}
		if err := h(line); err != nil {
			return true, err
		}
	}
}
