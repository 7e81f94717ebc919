// Package client implements the ptymaster client library: connect to a
// named session on ptymasterd, stream its output to a sink, and send
// keystrokes or resize events back.
//
// Grounded on the teacher's cmd/catherd attach flow (handshake, then a
// background receiver goroutine plus a caller-driven send path) and on
// original_source's PTYClient (connect/_receive_loop/send_input/
// resize_terminal/disconnect), repackaged here as a reusable library instead
// of code inlined in main.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"sync"

	"github.com/ptymaster/ptymasterd/internal/protocol"
)

// Sentinel errors surfaced by Connect.
var (
	ErrEndpointMissing = errors.New("client: endpoint does not exist")
	ErrRefused         = errors.New("client: connection refused")
	ErrHandshakeFailed = errors.New("client: handshake failed")
)

// Client is one attachment to a ptymasterd session. The zero value is not
// usable; construct with Connect.
//
// The caller's sink is invoked only from the receiver goroutine started by
// Connect; Client never blocks the caller inside sink. If sink is slow,
// bytes back up in the underlying socket's receive buffer — the library
// makes no additional buffering guarantee.
//
// Input sent via SendInput is carried as a UTF-8 JSON string; bytes outside
// UTF-8 must be written with the lower-level raw path (see SendRaw) instead,
// since JSON encoding replaces each invalid byte with U+FFFD before the frame
// is sent.
type Client struct {
	conn      net.Conn
	sessionID string

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect opens endpoint, performs the connect/connected handshake for
// sessionID, and starts a background goroutine that copies every
// subsequent byte from the daemon into sink until Disconnect is called or
// the connection fails.
func Connect(endpoint, sessionID string, sink io.Writer) (*Client, error) {
	conn, err := net.Dial("unix", endpoint)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrEndpointMissing, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRefused, err)
	}

	frame, err := protocol.Encode(protocol.Connect(sessionID))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if _, err := conn.Write(frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	reply, ok := protocol.Decode([]byte(line[:len(line)-1]))
	if !ok || reply.Type != protocol.TypeConnected {
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected reply %q", ErrHandshakeFailed, line)
	}

	c := &Client{
		conn:      conn,
		sessionID: sessionID,
		closed:    make(chan struct{}),
	}

	go c.receiveLoop(reader, sink)

	return c, nil
}

// SessionID returns the session this client attached to.
func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) receiveLoop(r io.Reader, sink io.Writer) {
	io.Copy(sink, r)
	c.markClosed()
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// SendInput emits an Input control frame carrying data.
func (c *Client) SendInput(data []byte) error {
	frame, err := protocol.Encode(protocol.Input(data))
	if err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}

// SendRaw writes data straight to the socket with no control framing,
// bypassing the Input JSON wrapper. Use this for bytes that are not valid
// UTF-8.
func (c *Client) SendRaw(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

// SendResize emits a Resize control frame.
func (c *Client) SendResize(rows, cols int) error {
	frame, err := protocol.Encode(protocol.Resize(rows, cols))
	if err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}

// Disconnect stops the receiver and closes the socket. Safe to call more
// than once.
func (c *Client) Disconnect() error {
	c.markClosed()
	return c.conn.Close()
}

// Done returns a channel that closes once the receiver loop has exited,
// whether due to Disconnect or a read error on the underlying socket.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}
