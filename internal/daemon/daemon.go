// Package daemon implements the ptymasterd background daemon.
//
// The daemon listens on a Unix domain socket and handles requests from
// ptymaster clients. Each accepted connection first speaks a short control
// handshake (connect to a named session), then enters a streaming mode where
// subsequent reads are either control frames (resize, input) or, for
// clients that don't speak the control protocol, raw bytes forwarded
// straight to the session's PTY master — see internal/protocol for the wire
// format.
package daemon

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ptymaster/ptymasterd/internal/config"
	"github.com/ptymaster/ptymasterd/internal/protocol"
	"github.com/ptymaster/ptymasterd/internal/session"
)

// ErrEndpointBusy is returned by Run when the socket endpoint cannot be
// bound.
var ErrEndpointBusy = fmt.Errorf("daemon: endpoint busy")

// Daemon is the central supervisor. It owns the session registry and
// accepts client connections on a single Unix domain socket.
type Daemon struct {
	cfg *config.Config

	mu       sync.Mutex
	sessions map[string]*session.Session
	listener net.Listener
	endpoint string

	shuttingDown atomic.Bool
}

// New creates a Daemon that resolves per-session shell/environment from cfg.
func New(cfg *config.Config) *Daemon {
	return &Daemon{
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
	}
}

// Run removes any stale endpoint file, binds the Unix socket at endpoint,
// and accepts connections until Stop is called or a fatal accept error
// occurs.
func (d *Daemon) Run(endpoint string) error {
	os.Remove(endpoint)

	l, err := net.Listen("unix", endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEndpointBusy, err)
	}

	d.mu.Lock()
	d.listener = l
	d.endpoint = endpoint
	d.mu.Unlock()

	log.Printf("ptymasterd listening on %s", endpoint)

	for {
		conn, err := l.Accept()
		if err != nil {
			if d.shuttingDown.Load() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go d.handleConn(conn)
	}
}

// Stop sets the shutdown flag, unblocks the acceptor, closes every live
// session, and removes the endpoint file.
func (d *Daemon) Stop() {
	d.shuttingDown.Store(true)

	d.mu.Lock()
	l := d.listener
	endpoint := d.endpoint
	sessions := make([]*session.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	if l != nil {
		l.Close()
	}
	for _, s := range sessions {
		s.Close()
	}
	if endpoint != "" {
		os.Remove(endpoint)
	}
}

// handleConn runs the per-client handler: control mode, then loop mode.
func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	clientID := uuid.New().String()
	buf := make([]byte, protocol.MaxFrameBytes)

	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	frame, ok := protocol.Decode(buf[:n])
	if !ok || frame.Type != protocol.TypeConnect {
		log.Printf("daemon: client %s sent no connect frame, closing", clientID)
		return
	}

	sessionID := frame.SessionID
	if sessionID == "" {
		sessionID = config.DefaultSessionID
	}

	sess, err := d.getOrCreateSession(sessionID)
	if err != nil {
		log.Printf("daemon: client %s: session %q unavailable: %v", clientID, sessionID, err)
		return
	}

	sub := session.NewSubscriber(conn)
	sess.Attach(sub)
	defer sess.Detach(sub)

	reply, err := protocol.Encode(protocol.Connected(sessionID))
	if err != nil {
		return
	}
	reply = append(reply, '\n')
	if _, err := conn.Write(reply); err != nil {
		return
	}

	log.Printf("daemon: client %s attached to session %q", clientID, sessionID)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		frame, ok := protocol.Decode(buf[:n])
		if !ok {
			// Not a recognized control frame: forward verbatim, preserving
			// compatibility with byte-oriented clients such as socat.
			sess.Write(buf[:n])
			continue
		}

		switch frame.Type {
		case protocol.TypeResize:
			if err := sess.Resize(frame.Rows, frame.Cols); err != nil {
				log.Printf("daemon: client %s: resize failed: %v", clientID, err)
			}
		case protocol.TypeInput:
			sess.Write([]byte(frame.Data))
		default:
			sess.Write(buf[:n])
		}
	}
}

// getOrCreateSession returns the named session, creating it (and starting
// its shell) on first use. Sessions persist across client disconnects so
// reconnecting to the same id rejoins the same shell and working directory.
//
// A session whose reader has already exited (the child died) is evicted
// from the registry by a background watcher as soon as that happens, so a
// later connect to the same id transparently starts a fresh shell rather
// than rejoining a session that can no longer read or write.
func (d *Daemon) getOrCreateSession(id string) (*session.Session, error) {
	d.mu.Lock()
	if sess, ok := d.sessions[id]; ok {
		d.mu.Unlock()
		return sess, nil
	}
	d.mu.Unlock()

	shell, args, env := d.cfg.ShellFor(id)
	sess, err := session.Open(id, shell, args, env)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if existing, ok := d.sessions[id]; ok {
		// Lost the race to another handler creating the same session.
		d.mu.Unlock()
		sess.Close()
		return existing, nil
	}
	d.sessions[id] = sess
	d.mu.Unlock()

	go d.evictWhenDead(id, sess)

	return sess, nil
}

// evictWhenDead removes sess from the registry once its reader loop exits,
// but only if no newer session has since replaced it under the same id.
//
// The reader loop exits on both paths: a natural child exit (Close was
// never called) and an explicit Close. Close is idempotent, so calling it
// unconditionally here is what actually reaps the child and closes the PTY
// descriptors on the natural-exit path — without it, a shell that exits on
// its own (the reader observes EOF, not a Close call) would never have
// cmd.Wait() called on it and would leak as a zombie with its fds open,
// since the session is already out of the registry by the time Stop() runs.
func (d *Daemon) evictWhenDead(id string, sess *session.Session) {
	<-sess.Done()

	sess.Close()

	d.mu.Lock()
	if d.sessions[id] == sess {
		delete(d.sessions, id)
	}
	d.mu.Unlock()

	log.Printf("daemon: session %q reader exited, removed from registry", id)
}

// SessionIDs returns the ids of all currently registered sessions, mainly
// useful for diagnostics and tests.
func (d *Daemon) SessionIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	return ids
}
