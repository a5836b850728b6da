package stream

import (
	"sync/atomic"
	"time"
)

// heartbeat drives the application-level ping for one live connection.
// It runs only between subscribe and disconnect; sessions start a fresh
// heartbeat for every connection attempt, so pings never go out while
// connecting, reconnecting, or closing.
type heartbeat struct {
	s       *session
	send    func([]byte) error
	lastAck atomic.Int64 // Unix nanos of the last ack
}

func newHeartbeat(s *session, send func([]byte) error) *heartbeat {
	h := &heartbeat{s: s, send: send}
	h.lastAck.Store(time.Now().UnixNano())
	return h
}

// ack records a heartbeat acknowledgment. Called by the session on pong_p,
// or on any inbound frame when AckOnTraffic is set.
func (h *heartbeat) ack() {
	h.lastAck.Store(time.Now().UnixNano())
}

// run sends ping_p every HeartbeatInterval and enforces the ack deadline.
// A missed deadline is reported on errs and treated by the session exactly
// like a connection error.
func (h *heartbeat) run(stop <-chan struct{}, errs chan<- error) {
	ticker := time.NewTicker(h.s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sentAt := time.Now()
			if err := h.send([]byte(pingFrame)); err != nil {
				h.s.logger.Debug("failed to send ping", "error", err)
			}
			h.s.casState(StateReceiving, StateHeartbeatWait)

			select {
			case <-stop:
				return
			case <-time.After(h.s.cfg.HeartbeatTimeout):
				if h.lastAck.Load() >= sentAt.UnixNano() {
					continue
				}
				h.s.logger.Warn("no pong received, connection stale",
					"timeout", h.s.cfg.HeartbeatTimeout,
				)
				select {
				case errs <- ErrHeartbeatTimeout:
				default:
				}
				return
			}
		}
	}
}
