package sink

import (
	"fmt"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	"github.com/muurk/dlttap/internal/format"

	// Transports accepted in listen addresses
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
	_ "go.nanomsg.org/mangos/v3/transport/ipc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// TopicSeparator ends the topic prefix of every nanomsg message, so
// subscribers can subscribe to "<ecu>/<app>/" style prefixes.
const TopicSeparator = 0

// Nanomsg publishes records on a PUB socket. Each message is
// "<ecu>/<app>/<ctx>\x00" followed by the msgpack encoded record.
type Nanomsg struct {
	sock     mangos.Socket
	encoding string
}

// NewNanomsg listens on addr (tcp://, ipc:// or inproc://)
func NewNanomsg(addr, encoding string) (*Nanomsg, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("could not create pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("could not listen on %q: %w", addr, err)
	}
	return &Nanomsg{sock: sock, encoding: encoding}, nil
}

// Name implements Sink
func (n *Nanomsg) Name() string { return "nanomsg" }

// Write implements Sink
func (n *Nanomsg) Write(r *format.Record) error {
	payload, err := format.Marshal(n.encoding, r)
	if err != nil {
		return err
	}
	topic := r.Topic("")[1:] // drop the leading '/'
	msg := make([]byte, 0, len(topic)+1+len(payload))
	msg = append(msg, topic...)
	msg = append(msg, TopicSeparator)
	msg = append(msg, payload...)
	return n.sock.Send(msg)
}

// Close implements Sink
func (n *Nanomsg) Close() error {
	return n.sock.Close()
}
