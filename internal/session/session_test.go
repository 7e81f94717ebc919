package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a goroutine-safe io.Writer used as a fake subscriber sink,
// avoiding any dependency on a real socket transport for these tests.
type syncBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func openTestSession(t *testing.T, id string) *Session {
	t.Helper()
	s, err := Open(id, "/bin/sh", nil, []string{"PS1=", "TERM=xterm"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpenAllocatesAndRunsShell(t *testing.T) {
	s := openTestSession(t, "t1")
	sink := &syncBuffer{}
	sub := NewSubscriber(sink)
	s.Attach(sub)

	s.Write([]byte("echo hello\n"))

	waitFor(t, 2*time.Second, func() bool {
		return bytes.Contains([]byte(sink.String()), []byte("hello"))
	})
}

func TestAttachDetachDoesNotCloseSink(t *testing.T) {
	s := openTestSession(t, "t2")
	sink := &syncBuffer{}
	sub := NewSubscriber(sink)

	s.Attach(sub)
	assert.Equal(t, 1, s.SubscriberCount())

	s.Detach(sub)
	assert.Equal(t, 0, s.SubscriberCount())
	assert.False(t, sink.isClosed())
}

func TestBroadcastFansOutToMultipleSubscribers(t *testing.T) {
	s := openTestSession(t, "t3")
	sinkA := &syncBuffer{}
	sinkB := &syncBuffer{}
	subA := NewSubscriber(sinkA)
	subB := NewSubscriber(sinkB)
	s.Attach(subA)
	s.Attach(subB)

	s.Write([]byte("echo both\n"))

	waitFor(t, 2*time.Second, func() bool {
		return bytes.Contains([]byte(sinkA.String()), []byte("both")) &&
			bytes.Contains([]byte(sinkB.String()), []byte("both"))
	})
}

func TestDeadSubscriberIsReapedOnWriteFailure(t *testing.T) {
	s := openTestSession(t, "t4")
	sink := &syncBuffer{}
	sub := NewSubscriber(sink)
	s.Attach(sub)

	s.broadcast([]byte("probe"))
	assert.Equal(t, 1, s.SubscriberCount())

	failing := NewSubscriber(failWriter{})
	s.Attach(failing)
	require.Equal(t, 2, s.SubscriberCount())

	s.broadcast([]byte("x"))
	waitFor(t, time.Second, func() bool { return s.SubscriberCount() == 1 })
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, assert.AnError }

func TestResizeClampsDimensions(t *testing.T) {
	s := openTestSession(t, "t5")
	assert.NoError(t, s.Resize(0, 0))
	rows, cols, err := pty.Getsize(s.ptm)
	require.NoError(t, err)
	assert.Equal(t, minDim, rows)
	assert.Equal(t, minDim, cols)

	assert.NoError(t, s.Resize(100000, 100000))
	rows, cols, err = pty.Getsize(s.ptm)
	require.NoError(t, err)
	assert.Equal(t, maxDim, rows)
	assert.Equal(t, maxDim, cols)
}

func TestCloseClosesSubscriberSinksThatImplementCloser(t *testing.T) {
	s := openTestSession(t, "t6")
	sink := &syncBuffer{}
	sub := NewSubscriber(sink)
	s.Attach(sub)

	s.Close()
	assert.True(t, sink.isClosed())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openTestSession(t, "t7")
	s.Close()
	assert.NotPanics(t, s.Close)
}
