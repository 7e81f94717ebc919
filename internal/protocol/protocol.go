// Package protocol defines the control messages exchanged between a
// ptymaster client and ptymasterd over the daemon's Unix domain socket.
//
// Every message from client to daemon is either a single UTF-8 JSON object
// (at most 4096 bytes, fitting in one recv) or an opaque byte sequence that
// does not parse as JSON — the latter is forwarded verbatim to the session's
// PTY master. This asymmetry lets dumb byte-oriented clients such as
// `socat STDIO UNIX-CONNECT:...` act as terminals without speaking JSON at
// all; see Decode.
//
// The daemon's reply direction has no such ambiguity: the first reply after
// a Connect is a Connected message terminated by a newline, and every byte
// after that is raw, unframed PTY output.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators, matching the "type" field of the wire JSON.
const (
	TypeConnect   = "connect"
	TypeConnected = "connected"
	TypeResize    = "resize"
	TypeInput     = "input"
)

// MaxFrameBytes is the largest control message the daemon will attempt to
// parse as JSON; larger single recvs are passed straight through as raw
// bytes instead (see Decode).
const MaxFrameBytes = 4096

// MinDim and MaxDim bound the rows/cols accepted by a Resize frame.
const (
	MinDim = 1
	MaxDim = 65535
)

// Frame is the decoded form of one control message. Exactly one of the
// type-specific fields is meaningful, selected by Type.
type Frame struct {
	Type string `json:"type"`

	// Connect / Connected
	SessionID string `json:"session_id,omitempty"`

	// Resize
	Rows int `json:"rows,omitempty"`
	Cols int `json:"cols,omitempty"`

	// Input
	Data string `json:"data,omitempty"`
}

// Connect builds a connect frame.
func Connect(sessionID string) Frame {
	return Frame{Type: TypeConnect, SessionID: sessionID}
}

// Connected builds a connected acknowledgement frame.
func Connected(sessionID string) Frame {
	return Frame{Type: TypeConnected, SessionID: sessionID}
}

// Resize builds a resize frame, clamping rows/cols to [MinDim, MaxDim].
func Resize(rows, cols int) Frame {
	return Frame{Type: TypeResize, Rows: clampDim(rows), Cols: clampDim(cols)}
}

// Input builds an input frame carrying raw keystroke bytes.
func Input(data []byte) Frame {
	return Frame{Type: TypeInput, Data: string(data)}
}

func clampDim(n int) int {
	if n < MinDim {
		return MinDim
	}
	if n > MaxDim {
		return MaxDim
	}
	return n
}

// Encode marshals f as a single-line JSON object, not newline-terminated —
// callers append framing (or a trailing '\n' for the Connected reply) as
// appropriate for the direction they're writing.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Decode attempts to parse data as a control Frame. ok is false when data is
// not valid JSON or not a recognized frame type — callers should treat that
// as BadControlFrame and fall back to raw-bytes mode per §7 of the protocol
// design, not as a fatal error.
func Decode(data []byte) (f Frame, ok bool) {
	if len(data) == 0 || len(data) > MaxFrameBytes {
		return Frame{}, false
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, false
	}
	switch f.Type {
	case TypeConnect, TypeConnected, TypeResize, TypeInput:
		return f, true
	default:
		return Frame{}, false
	}
}

// ErrBadControlFrame names the bad-control-frame error kind. No function in
// this package returns it; Decode reports an unusable frame through its ok
// result instead.
var ErrBadControlFrame = fmt.Errorf("protocol: bad control frame")
