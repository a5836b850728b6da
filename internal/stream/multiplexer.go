package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// errBuffer bounds the terminal error channel handed to callers.
const errBuffer = 16

// Multiplexer fans a set of market data subscriptions out over as few
// websocket connections as the per-connection cap allows. Subscriptions
// are registered up front, then started as a unit; the multiplexer is
// single use and cannot be restarted after Close.
type Multiplexer struct {
	cfg    Config
	creds  Credentials
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	bundles  [][]*Subscription
	flat     []*Subscription
	sessions []*session
	started  bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errs     chan *SessionError
	errsOnce sync.Once
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Multiplexer) { m.logger = logger }
}

// WithCredentials attaches exchange credentials. Public market data
// channels never transmit them.
func WithCredentials(creds Credentials) Option {
	return func(m *Multiplexer) { m.creds = creds }
}

// WithDialer overrides the websocket dialer, primarily for tests.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Multiplexer) { m.dialer = dialer }
}

// NewMultiplexer creates a multiplexer with the given configuration.
// Zero config fields fall back to DefaultConfig values.
func NewMultiplexer(cfg Config, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		errs:   make(chan *SessionError, errBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}
	}
	return m
}

// ComposeSubscriptions registers subscriptions for connection packing.
// The final plan preserves registration order. Registration fails as a
// unit if any subscription duplicates one already registered.
func (m *Multiplexer) ComposeSubscriptions(subs ...*Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.closed {
		return ErrAlreadyStarted
	}
	if err := checkSubscriptions(subs); err != nil {
		return err
	}

	flat := append(append([]*Subscription(nil), m.flat...), subs...)
	if _, err := planGroups(m.bundles, flat, m.cfg.MaxPerConnection); err != nil {
		return err
	}
	m.flat = flat
	return nil
}

// ComposeBundle registers subscriptions that must share one connection.
// Each bundle maps to exactly one session regardless of the
// per-connection cap.
func (m *Multiplexer) ComposeBundle(subs ...*Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.closed {
		return ErrAlreadyStarted
	}
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}
	if err := checkSubscriptions(subs); err != nil {
		return err
	}

	bundle := append([]*Subscription(nil), subs...)
	bundles := append(append([][]*Subscription(nil), m.bundles...), bundle)
	if _, err := planGroups(bundles, m.flat, m.cfg.MaxPerConnection); err != nil {
		return err
	}
	m.bundles = bundles
	return nil
}

func checkSubscriptions(subs []*Subscription) error {
	for _, sub := range subs {
		if sub == nil {
			return errors.New("nil subscription")
		}
		if sub.channel == "" {
			return errors.New("subscription has no channel")
		}
	}
	return nil
}

// StartSubscriptions opens one session per planned connection group and
// blocks until every session has sent its subscribe frames. Startup is
// all or nothing: if any session fails terminally before the last one
// subscribes, all sessions are torn down and a StartError is returned.
// After a successful start, terminal session failures surface on
// Errors() without stopping sibling sessions.
func (m *Multiplexer) StartSubscriptions(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(m.bundles) == 0 && len(m.flat) == 0 {
		m.mu.Unlock()
		return ErrNoSubscriptions
	}
	groups, err := planGroups(m.bundles, m.flat, m.cfg.MaxPerConnection)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	sessions := make([]*session, len(groups))
	for i, g := range groups {
		sessions[i] = newSession(i, g, m.cfg, m.creds, m.dialer, m.logger)
	}
	m.sessions = sessions
	m.started = true
	m.mu.Unlock()

	total := 0
	for _, g := range groups {
		total += len(g.Subscriptions)
	}
	m.logger.Info("starting subscriptions",
		"groups", len(groups),
		"subscriptions", total,
		"url", m.cfg.URL,
	)

	term := make(chan *SessionError, len(sessions))
	for _, sess := range sessions {
		m.wg.Add(1)
		go func(sess *session) {
			defer m.wg.Done()
			if se := sess.run(m.ctx); se != nil {
				term <- se
			}
		}(sess)
	}

	var failures []*SessionError

wait:
	for _, sess := range sessions {
		select {
		case <-sess.subscribedCh:
		case se := <-term:
			failures = append(failures, se)
			break wait
		case <-m.ctx.Done():
			break wait
		}
	}

	if len(failures) > 0 || m.ctx.Err() != nil {
		m.cancel()
		m.wg.Wait()
	drain:
		for {
			select {
			case se := <-term:
				failures = append(failures, se)
			default:
				break drain
			}
		}

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.errsOnce.Do(func() { close(m.errs) })

		if len(failures) > 0 {
			m.logger.Error("startup failed, all sessions stopped",
				"failed", len(failures),
			)
			return &StartError{Failures: failures}
		}
		return m.ctx.Err()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.forward(term)
	}()

	m.logger.Info("all sessions subscribed",
		"sessions", len(sessions),
		"subscriptions", total,
	)
	return nil
}

// forward relays terminal session errors to the caller-facing channel.
// A full channel drops the error rather than blocking the session.
func (m *Multiplexer) forward(term <-chan *SessionError) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case se := <-term:
			select {
			case m.errs <- se:
			default:
				m.logger.Warn("error channel full, dropping session error",
					"session_id", se.SessionID.String(),
				)
			}
		}
	}
}

// Errors returns the channel carrying terminal session failures that
// occur after a successful start. The channel is closed on Close.
func (m *Multiplexer) Errors() <-chan *SessionError {
	return m.errs
}

// Stats returns a point-in-time snapshot of session states and counters.
func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	sessions := m.sessions
	bundles := m.bundles
	flat := m.flat
	m.mu.Unlock()

	st := Stats{
		Groups:   len(sessions),
		Sessions: make(map[SessionState]int),
	}
	for _, b := range bundles {
		st.Subscriptions += len(b)
	}
	st.Subscriptions += len(flat)

	for _, s := range sessions {
		st.Sessions[s.State()]++
		st.Frames += s.frames.Load()
		st.Dispatched += s.dispatched.Load()
		st.Dropped += s.dropped.Load()
		st.Reconnects += s.reconnects.Load()
	}
	return st
}

// Close stops all sessions and waits for them to finish, bounded by ctx.
// Close is idempotent; calling it on a never-started multiplexer only
// closes the error channel.
func (m *Multiplexer) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	if !started {
		m.errsOnce.Do(func() { close(m.errs) })
		return nil
	}

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.errsOnce.Do(func() { close(m.errs) })
		m.logger.Info("multiplexer closed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		return ctx.Err()
	}
}
