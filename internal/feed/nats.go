package feed

import (
	"bytes"
	"context"
	"io"
	"log"

	"github.com/nats-io/nats.go"
)

// NATSSource delivers records from a NATS subject instead of a direct TCP
// connection, for receivers that publish their feed onto a broker. Each
// published payload may carry one or more delimited records; they go
// through the same framing as the TCP path.
type NATSSource struct {
	URL     string
	Subject string
	Policy  ReconnectPolicy
}

// Run subscribes and delivers records to h until ctx is done. Reconnects
// are handled by the NATS client itself with no attempt limit, matching
// the TCP client's never-give-up policy.
func (s *NATSSource) Run(ctx context.Context, h Handler) error {
	wait := s.Policy.Backoff(0)

	nc, err := nats.Connect(s.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats %s: disconnected: %v", s.URL, err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats %s: reconnected", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(s.Subject, msgs)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	log.Printf("nats %s: subscribed to %s", s.URL, s.Subject)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-msgs:
			if err := deliverPayload(m.Data, h); err != nil {
				return err
			}
		}
	}
}

// deliverPayload frames one published payload and hands each record to h.
func deliverPayload(data []byte, h Handler) error {
	fr := NewFramer(bytes.NewReader(data))
	for {
		line, err := fr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := h(line); err != nil {
			return err
		}
	}
}
