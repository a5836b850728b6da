package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// rawFrame is a frame read off the wire with its receive timestamp.
type rawFrame struct {
	data       []byte
	receivedAt time.Time
}

// session drives one websocket connection for a connection group:
// connect, subscribe in group order, receive and dispatch, heartbeat,
// reconnect with backoff, close. One goroutine runs the lifecycle; a
// paired read goroutine feeds it frames while a connection is live.
type session struct {
	id     uuid.UUID
	group  int
	cfg    Config
	creds  Credentials
	subs   []*Subscription
	byKey  map[string]*Subscription
	dialer *websocket.Dialer
	logger *slog.Logger

	state atomic.Int32

	// Write serialization
	writeMu sync.Mutex

	// Startup coordination: closed the first time the session reaches
	// Subscribed.
	subscribedCh   chan struct{}
	subscribedOnce sync.Once

	// Terminal coordination: termErr is set before done is closed.
	done    chan struct{}
	termErr *SessionError

	// Stats
	frames     atomic.Int64
	dispatched atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

func newSession(group int, g ConnectionGroup, cfg Config, creds Credentials, dialer *websocket.Dialer, logger *slog.Logger) *session {
	id := uuid.New()
	byKey := make(map[string]*Subscription, len(g.Subscriptions))
	for _, sub := range g.Subscriptions {
		byKey[sub.Key()] = sub
	}
	return &session{
		id:           id,
		group:        group,
		cfg:          cfg,
		creds:        creds,
		subs:         g.Subscriptions,
		byKey:        byKey,
		dialer:       dialer,
		logger:       logger.With("session_id", id.String(), "group", group),
		subscribedCh: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *session) setState(st SessionState) {
	old := SessionState(s.state.Swap(int32(st)))
	if old != st {
		s.logger.Debug("session state", "from", old.String(), "to", st.String())
	}
}

func (s *session) casState(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *session) signalSubscribed() {
	s.subscribedOnce.Do(func() { close(s.subscribedCh) })
}

// run drives the session until the context is canceled or the reconnect
// budget is exhausted. Returns nil on graceful close.
func (s *session) run(ctx context.Context) *SessionError {
	defer close(s.done)

	attempt := 0
	for {
		subscribed, err := s.connectAndStream(ctx)
		if ctx.Err() != nil {
			s.setState(StateClosed)
			s.logger.Debug("session closed")
			return nil
		}

		if subscribed {
			attempt = 0
		}
		attempt++

		if s.cfg.MaxReconnectAttempts > 0 && attempt >= s.cfg.MaxReconnectAttempts {
			s.setState(StateFailed)
			s.logger.Error("session failed, reconnect budget exhausted",
				"attempts", attempt,
				"error", err,
			)
			se := &SessionError{SessionID: s.id, Group: s.group, Attempts: attempt, Err: err}
			s.termErr = se
			return se
		}

		s.setState(StateReconnecting)
		s.reconnects.Add(1)
		wait := reconnectDelay(s.cfg.ReconnectBaseWait, s.cfg.ReconnectMaxWait, s.cfg.ReconnectMultiplier, attempt)
		s.logger.Info("reconnecting",
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			s.setState(StateClosed)
			return nil
		case <-time.After(wait):
		}
	}
}

// connectAndStream performs one connection cycle: dial, subscribe, then
// receive until the connection breaks or the context is canceled.
// subscribed reports whether the cycle got past the subscribe phase.
func (s *session) connectAndStream(ctx context.Context) (subscribed bool, err error) {
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	s.logger.Debug("websocket connected", "url", s.cfg.URL)

	// Subscribe frames go out one per subscription, in group order.
	s.setState(StateHandshaking)
	for _, sub := range s.subs {
		frame, err := encodeSubscribe(sub)
		if err != nil {
			return false, err
		}
		if err := s.send(conn, frame, s.cfg.SubscribeTimeout); err != nil {
			return false, fmt.Errorf("subscribe %s: %w", sub.Key(), err)
		}
		s.logger.Debug("subscribe sent",
			"channel", sub.channel,
			"params", sub.params.String(),
		)
	}

	s.setState(StateSubscribed)
	s.signalSubscribed()

	frames := make(chan rawFrame, s.cfg.BufferSize)
	readErrs := make(chan error, 1)
	readDone := make(chan struct{})
	go s.readLoop(conn, frames, readErrs, readDone)

	hb := newHeartbeat(s, func(data []byte) error {
		return s.send(conn, data, s.cfg.WriteTimeout)
	})
	hbErrs := make(chan error, 1)
	hbStop := make(chan struct{})
	defer close(hbStop)
	go hb.run(hbStop, hbErrs)

	s.setState(StateReceiving)

	for {
		select {
		case <-ctx.Done():
			s.setState(StateClosing)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			<-readDone
			return true, nil

		case err := <-readErrs:
			return true, fmt.Errorf("read: %w", err)

		case err := <-hbErrs:
			return true, err

		case f := <-frames:
			s.handleFrame(ctx, hb, f)
		}
	}
}

// readLoop reads frames off the connection until it breaks. Frames are
// handed to the session loop through a bounded buffer; overflow drops the
// frame rather than stalling the socket.
func (s *session) readLoop(conn *websocket.Conn, frames chan<- rawFrame, errs chan<- error, done chan<- struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}

		select {
		case frames <- rawFrame{data: data, receivedAt: receivedAt}:
		default:
			s.dropped.Add(1)
			s.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// handleFrame decodes one inbound frame and dispatches it. Frames are
// handled strictly in arrival order; malformed and unmatched frames are
// logged and dropped without disturbing the session.
func (s *session) handleFrame(ctx context.Context, hb *heartbeat, f rawFrame) {
	s.frames.Add(1)

	if string(f.data) == pongFrame {
		hb.ack()
		s.casState(StateHeartbeatWait, StateReceiving)
		return
	}
	if s.cfg.AckOnTraffic {
		hb.ack()
		s.casState(StateHeartbeatWait, StateReceiving)
	}

	frame, err := decodeFrame(f.data)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	key, err := echoKey(frame.Event, frame.Param)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("dropping frame with bad param echo",
			"event", frame.Event,
			"error", err,
		)
		return
	}

	sub, ok := s.byKey[key]
	if !ok {
		s.dropped.Add(1)
		s.logger.Warn("dropping unmatched frame",
			"event", frame.Event,
			"key", key,
		)
		return
	}

	s.dispatch(ctx, sub, Update{
		Channel:    frame.Event,
		Params:     sub.Params(),
		Payload:    frame.Data,
		ReceivedAt: f.receivedAt,
	})
}

// dispatch invokes the subscription's handlers in registration order.
// A handler error or panic is logged and never breaks the session or the
// remaining handlers.
func (s *session) dispatch(ctx context.Context, sub *Subscription, u Update) {
	for i, h := range sub.handlers {
		s.invoke(ctx, h, u, i)
	}
	s.dispatched.Add(1)
}

func (s *session) invoke(ctx context.Context, h UpdateHandler, u Update, idx int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				"channel", u.Channel,
				"handler", idx,
				"panic", r,
			)
		}
	}()

	if err := h.HandleUpdate(ctx, u); err != nil {
		s.logger.Error("handler error",
			"channel", u.Channel,
			"handler", idx,
			"error", err,
		)
	}
}

// send writes one frame under the write lock with a deadline.
func (s *session) send(conn *websocket.Conn, data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
