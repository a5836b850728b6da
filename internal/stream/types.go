package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrDuplicateSubscription = errors.New("duplicate subscription")
	ErrAlreadyStarted        = errors.New("subscriptions already started")
	ErrNoSubscriptions       = errors.New("no subscriptions composed")
	ErrHeartbeatTimeout      = errors.New("heartbeat timeout (no pong)")
)

// SessionState is the lifecycle state of a socket session.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateConnecting
	StateHandshaking
	StateSubscribed
	StateReceiving
	StateHeartbeatWait
	StateReconnecting
	StateClosing
	StateClosed
	StateFailed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateHeartbeatWait:
		return "heartbeat_wait"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Update is a decoded data frame delivered to subscription handlers.
// Payload holds the frame's data member verbatim; interpreting it is the
// handler's job.
type Update struct {
	Channel    string          // Channel name (e.g. "depth10")
	Params     Params          // Parameters of the matched subscription
	Payload    json.RawMessage // Raw data member of the frame
	ReceivedAt time.Time       // Local timestamp when the frame was read
}

// SessionError reports the terminal failure of a single socket session.
type SessionError struct {
	SessionID uuid.UUID // Session correlation ID (appears in logs)
	Group     int       // Connection group index
	Attempts  int       // Reconnect attempts consumed
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s (group %d) failed after %d attempts: %v",
		e.SessionID, e.Group, e.Attempts, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// StartError bundles the session failures that aborted a startup.
type StartError struct {
	Failures []*SessionError
}

func (e *StartError) Error() string {
	if len(e.Failures) == 1 {
		return "start subscriptions: " + e.Failures[0].Error()
	}
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("start subscriptions: %d sessions failed: %s",
		len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual session failures to errors.Is/As.
func (e *StartError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Stats provides a point-in-time snapshot of multiplexer activity.
type Stats struct {
	Groups        int                  // Planned connection groups
	Subscriptions int                  // Total composed subscriptions
	Sessions      map[SessionState]int // Session count per state
	Frames        int64                // Raw frames read across all sessions
	Dispatched    int64                // Updates delivered to handlers
	Dropped       int64                // Frames dropped (malformed, unmatched, overflow)
	Reconnects    int64                // Reconnect cycles across all sessions
}
