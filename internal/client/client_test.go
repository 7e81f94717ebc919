package client

import (
	"bytes"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptymaster/ptymasterd/internal/protocol"
)

// fakeDaemon accepts exactly one connection, performs the connect/connected
// handshake, then echoes back anything it is sent with "srv:" prepended —
// enough to exercise Connect/SendInput/SendResize/Disconnect without a real
// ptymasterd.
func fakeDaemon(t *testing.T, endpoint string) (accepted chan net.Conn) {
	t.Helper()
	l, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	accepted = make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, protocol.MaxFrameBytes)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frame, ok := protocol.Decode(buf[:n])
		if !ok || frame.Type != protocol.TypeConnect {
			conn.Close()
			return
		}
		reply, _ := protocol.Encode(protocol.Connected(frame.SessionID))
		reply = append(reply, '\n')
		conn.Write(reply)
		accepted <- conn

		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			conn.Write(append([]byte("srv:"), buf[:n]...))
		}
	}()
	return accepted
}

func TestConnectPerformsHandshake(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "fake.sock")
	fakeDaemon(t, endpoint)

	var mu sync.Mutex
	var received bytes.Buffer
	sink := syncWriter{mu: &mu, buf: &received}

	c, err := Connect(endpoint, "work", sink)
	require.NoError(t, err)
	defer c.Disconnect()

	assert.Equal(t, "work", c.SessionID())
}

func TestSendInputRoundTripsThroughDaemon(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "fake.sock")
	fakeDaemon(t, endpoint)

	var mu sync.Mutex
	var received bytes.Buffer
	sink := syncWriter{mu: &mu, buf: &received}

	c, err := Connect(endpoint, "work", sink)
	require.NoError(t, err)
	defer c.Disconnect()

	require.NoError(t, c.SendInput([]byte("hello")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Contains(received.Bytes(), []byte("hello"))
	}, time.Second, 10*time.Millisecond)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "fake.sock")
	fakeDaemon(t, endpoint)

	c, err := Connect(endpoint, "work", io.Discard)
	require.NoError(t, err)

	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())
}

func TestConnectToMissingEndpointFails(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "nope.sock"), "work", io.Discard)
	require.Error(t, err)
}

func TestDoneClosesWhenServerDisconnects(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "fake.sock")
	accepted := fakeDaemon(t, endpoint)

	c, err := Connect(endpoint, "work", io.Discard)
	require.NoError(t, err)

	conn := <-accepted
	conn.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() did not close after server disconnect")
	}
}

type syncWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
