// Package session implements one named PTY session: the master/slave pair,
// the attached child shell, raw-mode configuration, window-size propagation,
// and fan-out of the master's output to every currently attached subscriber
// without blocking the PTY reader.
//
// Grounded on the teacher daemon's Instance type (startAgent/ptyReader/
// Attach/destroy), generalized from a single attached connection to an
// arbitrary subscriber set.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// Sentinel errors surfaced by Open; callers distinguish them with errors.Is.
var (
	ErrPtyAllocFailed = errors.New("session: pty allocation failed")
	ErrForkFailed     = errors.New("session: fork failed")
	ErrExecFailed     = errors.New("session: exec failed")
)

const (
	defaultRows = 24
	defaultCols = 80

	readPollInterval = 100 * time.Millisecond
	readChunkSize    = 4096

	// writeRetryWindow bounds the total time Write blocks retrying on EAGAIN,
	// per spec; writeRetryDelay is the sleep between individual retries
	// within that window.
	writeRetryWindow = 100 * time.Millisecond
	writeRetryDelay  = 10 * time.Millisecond

	killWait = 5 * time.Second

	minDim = 1
	maxDim = 1000
)

// Subscriber is a handle to one client attachment. The session does not own
// Sink's underlying transport; it only pushes bytes to it and, if Sink
// implements io.Closer, closes it when the whole session shuts down.
// Detaching a single subscriber (as opposed to a full session Close) never
// closes Sink — that remains the caller's responsibility.
type Subscriber struct {
	id   string
	Sink io.Writer
}

// NewSubscriber wraps sink in a Subscriber with a fresh identity.
func NewSubscriber(sink io.Writer) *Subscriber {
	return &Subscriber{id: uuid.New().String(), Sink: sink}
}

// ID returns the subscriber's unique handle, stable for its lifetime.
func (s *Subscriber) ID() string { return s.id }

// Session owns one PTY pair, its child shell, and the set of subscribers
// currently receiving its output.
type Session struct {
	ID string

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	running     bool

	ptm *os.File // PTY master
	tty *os.File // PTY slave, retained for window-size updates
	cmd *exec.Cmd

	writeMu sync.Mutex // serializes concurrent Session.Write calls

	done chan struct{} // closed when the reader loop returns
}

// Open allocates a PTY pair, configures the slave per §4.1, forks shell as a
// new session leader attached to the slave, and starts the reader loop.
func Open(id, shell string, args []string, env []string) (*Session, error) {
	ptm, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPtyAllocFailed, err)
	}

	if err := pty.Setsize(ptm, &pty.Winsize{Rows: defaultRows, Cols: defaultCols}); err != nil {
		ptm.Close()
		tty.Close()
		return nil, fmt.Errorf("%w: %v", ErrPtyAllocFailed, err)
	}

	if err := configureRawTermios(int(tty.Fd())); err != nil {
		ptm.Close()
		tty.Close()
		return nil, fmt.Errorf("%w: %v", ErrPtyAllocFailed, err)
	}

	cmd := exec.Command(shell, args...)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.Env = env
	cmd.SysProcAttr = sessionLeaderAttr()

	if err := cmd.Start(); err != nil {
		ptm.Close()
		tty.Close()
		return nil, classifyStartError(err)
	}

	s := &Session{
		ID:          id,
		subscribers: make(map[*Subscriber]struct{}),
		running:     true,
		ptm:         ptm,
		tty:         tty,
		cmd:         cmd,
		done:        make(chan struct{}),
	}

	go s.readerLoop()

	return s, nil
}

// classifyStartError distinguishes a fork failure (no process created) from
// an exec failure (process created but the exec(2) itself failed) where
// Go's os/exec can tell them apart; otherwise it reports ForkFailed, the
// more common real-world cause for a PTY-attached child.
func classifyStartError(err error) error {
	var pathErr *os.SyscallError
	if errors.As(err, &pathErr) && pathErr.Syscall == "exec" {
		return fmt.Errorf("%w: %v", ErrExecFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrForkFailed, err)
}

// Attach adds sub to the subscriber set. Idempotent for the same subscriber.
func (s *Session) Attach(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub] = struct{}{}
}

// Detach removes sub from the subscriber set. Closing sub's transport is the
// caller's responsibility.
func (s *Session) Detach(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, sub)
}

// SubscriberCount reports how many subscribers are currently attached.
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Done returns a channel that closes once the reader loop has exited,
// whether because the child terminated or because Close was called. A
// registry can wait on this to evict the session once it is no longer able
// to serve attachments.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Alive reports whether the reader loop is still running.
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Write pushes input bytes to the PTY master. Short writes on EAGAIN are
// retried with bounded blocking, up to writeRetryWindow total; if the
// master is still unwritable after that, the failure is logged and the
// remaining bytes are dropped rather than blocking the caller forever.
func (s *Session) Write(data []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	total := 0
	deadline := time.Now().Add(writeRetryWindow)
	for total < len(data) {
		n, err := s.ptm.Write(data[total:])
		total += n
		if err == nil {
			continue
		}
		if errors.Is(err, syscall.EAGAIN) && time.Now().Before(deadline) {
			time.Sleep(writeRetryDelay)
			continue
		}
		log.Printf("session %s: write failed, dropping %d bytes: %v", s.ID, len(data)-total, err)
		return
	}
}

// Resize sets the window size on the master (which the kernel propagates to
// the slave) and sends a window-change notice to the child's process group.
// rows and cols are clamped to [1, 1000].
func (s *Session) Resize(rows, cols int) error {
	rows = clamp(rows, minDim, maxDim)
	cols = clamp(cols, minDim, maxDim)

	if err := pty.Setsize(s.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return err
	}

	if s.cmd.Process == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(s.cmd.Process.Pid); err == nil && pgid > 0 {
		syscall.Kill(-pgid, syscall.SIGWINCH)
	} else {
		s.cmd.Process.Signal(syscall.SIGWINCH)
	}
	return nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Close stops the reader, terminates the child (SIGTERM, then SIGKILL after
// killWait), closes the PTY descriptors exactly once, and drops every
// subscriber — closing each one's transport if it implements io.Closer, so
// that a handler goroutine blocked reading that transport unblocks.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.cmd.Process != nil {
		pgid, err := syscall.Getpgid(s.cmd.Process.Pid)
		if err != nil {
			pgid = s.cmd.Process.Pid
		}
		syscall.Kill(-pgid, syscall.SIGTERM)

		reaped := make(chan struct{})
		go func() {
			s.cmd.Wait()
			close(reaped)
		}()

		select {
		case <-reaped:
		case <-time.After(killWait):
			syscall.Kill(-pgid, syscall.SIGKILL)
			<-reaped
		}
	}

	s.ptm.Close()
	s.tty.Close()

	<-s.done

	s.mu.Lock()
	subs := s.subscribers
	s.subscribers = make(map[*Subscriber]struct{})
	s.mu.Unlock()

	for sub := range subs {
		if closer, ok := sub.Sink.(io.Closer); ok {
			closer.Close()
		}
	}
}

// readerLoop drains the PTY master and broadcasts to subscribers. It polls
// for readability with a bounded timeout so a Close() racing with an idle
// PTY is still observed promptly, per §5's ≤100ms shutdown bound.
func (s *Session) readerLoop() {
	defer close(s.done)

	buf := make([]byte, readChunkSize)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}

		s.ptm.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := s.ptm.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.broadcast(chunk)
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			// EOF or fatal EIO: the child side of the PTY is gone.
			return
		}
	}
}

// broadcast pushes data to every current subscriber without holding the
// subscriber-set lock across the sends. A subscriber whose Sink returns an
// error is removed once the snapshot pass completes.
func (s *Session) broadcast(data []byte) {
	s.mu.Lock()
	subs := make([]*Subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	var dead []*Subscriber
	for _, sub := range subs {
		if _, err := sub.Sink.Write(data); err != nil {
			dead = append(dead, sub)
		}
	}

	if len(dead) == 0 {
		return
	}
	s.mu.Lock()
	for _, sub := range dead {
		delete(s.subscribers, sub)
	}
	s.mu.Unlock()
}
