// Package monitor supervises the Dashboard event stream: it owns the access
// token, subscribes when filtering by network, and reconnects or reissues the
// token as the stream fails.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"cbd-eventstream/internal/cbdauth"
	"cbd-eventstream/internal/cbdstream"
	"cbd-eventstream/internal/events"
	"cbd-eventstream/internal/logging"
	"cbd-eventstream/internal/runstatus"
)

var (
	ErrTransportRetriesExhausted = errors.New("event stream transport retries exhausted")
	ErrAuthRejected              = errors.New("dashboard keeps rejecting freshly issued tokens")
)

const (
	DefaultTransportRetries = 5
	DefaultMaxAuthFailures  = 3

	defaultRetryInitial   = 500 * time.Millisecond
	defaultRetryMax       = 30 * time.Second
	defaultReconnectDelay = time.Second
)

type TokenSource interface {
	Issue() (cbdauth.AccessToken, error)
}

// Sink receives everything meant for the user rather than the log.
type Sink interface {
	Print(events.Message) error
	Subscribed(networkIDs []string) error
}

type Recorder interface {
	FrameReceived(heartbeat bool, eventType string)
	TemplateError()
	DecodeError()
	TokenIssued(reason string)
	Reconnect(cause string)
	StateChanged(from, to runstatus.State)
}

type Config struct {
	Tokens TokenSource
	Stream cbdstream.Client

	StreamURL       string
	SubscriptionURL string
	// NetworkIDs switches on the filtered variant: they are subscribed once
	// before the first connect.
	NetworkIDs []string

	// TransportRetries is the number of reconnects allowed after a transport
	// error before giving up. The budget is restored once a connection
	// delivers a frame. Zero makes the first transport error fatal.
	TransportRetries int
	// MaxAuthFailures caps consecutive token rejections with no frame
	// delivered in between.
	MaxAuthFailures int

	RetryInitial   time.Duration
	RetryMax       time.Duration
	ReconnectDelay time.Duration

	Sink     Sink
	Recorder Recorder
	Status   *runstatus.Tracker
	Logger   *logging.Logger
}

type Monitor struct {
	cfg    Config
	status *runstatus.Tracker
	rec    Recorder
	logger *logging.Logger

	token        cbdauth.AccessToken
	authFailures int
	retryHint    time.Duration
}

func New(cfg Config) *Monitor {
	if cfg.Logger == nil {
		panic("monitor.New: logger must not be nil")
	}
	if cfg.Tokens == nil {
		panic("monitor.New: token source must not be nil")
	}
	if cfg.Sink == nil {
		panic("monitor.New: sink must not be nil")
	}
	if cfg.TransportRetries < 0 {
		cfg.TransportRetries = 0
	}
	if cfg.MaxAuthFailures <= 0 {
		cfg.MaxAuthFailures = DefaultMaxAuthFailures
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaultRetryInitial
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = max(defaultRetryMax, cfg.RetryInitial)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	status := cfg.Status
	if status == nil {
		status = runstatus.NewTracker()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Monitor{cfg: cfg, status: status, rec: rec, logger: cfg.Logger}
}

func (m *Monitor) Status() *runstatus.Tracker {
	return m.status
}

// Run drives the stream until ctx is canceled or a fatal error occurs.
// Cancellation is a clean shutdown and returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	m.move(runstatus.Authenticating, "start")
	if err := m.issue("initial"); err != nil {
		return m.terminate(ctx, err)
	}

	if len(m.cfg.NetworkIDs) > 0 {
		if err := m.cfg.Stream.Subscribe(ctx, m.cfg.SubscriptionURL, m.token.Raw, m.cfg.NetworkIDs); err != nil {
			return m.terminate(ctx, err)
		}
		m.logger.Info("subscribed to networks", logging.Field("network_ids", m.cfg.NetworkIDs))
		if err := m.cfg.Sink.Subscribed(m.cfg.NetworkIDs); err != nil {
			m.logger.Warn("failed to write output", logging.Field("error", err))
		}
	}

	reason := "token issued"
	for {
		attempt := &streamAttempt{}
		err := m.connectAndStream(ctx, reason, attempt)
		if ctx.Err() != nil {
			return m.terminate(ctx, nil)
		}

		switch {
		case err == nil:
			// The stream delivered frames and then dropped; reconnect with a
			// fresh retry budget.
			m.logger.Info("event stream ended, reconnecting", logging.Field("error", attempt.lastErr))
			m.rec.Reconnect("stream_ended")
			if !sleepCtx(ctx, m.reconnectDelay()) {
				return m.terminate(ctx, nil)
			}
			reason = "stream ended"

		case cbdstream.IsAuthExpired(err):
			m.authFailures++
			if m.authFailures > m.cfg.MaxAuthFailures {
				return m.terminate(ctx, fmt.Errorf("%w: %d consecutive rejections: %w", ErrAuthRejected, m.authFailures, err))
			}
			m.move(runstatus.ReAuthenticating, "token rejected")
			m.logger.Info("access token rejected, issuing a new one",
				logging.Field("key_id", m.token.KeyID),
				logging.Field("expires_at", m.token.ExpiresAt().Format(time.RFC3339)),
			)
			m.token = cbdauth.AccessToken{}
			if err := m.issue("auth_expired"); err != nil {
				return m.terminate(ctx, err)
			}
			m.rec.Reconnect("auth_expired")
			reason = "token reissued"

		case attempt.retryable:
			return m.terminate(ctx, fmt.Errorf("%w after %d retries: %w", ErrTransportRetriesExhausted, m.cfg.TransportRetries, err))

		default:
			return m.terminate(ctx, err)
		}
	}
}

type streamAttempt struct {
	retryable bool
	lastErr   error
}

// connectAndStream runs connect attempts under the transport retry budget.
// It returns nil when a connection delivered frames before failing in a way
// worth retrying, and the classifying error otherwise.
func (m *Monitor) connectAndStream(ctx context.Context, reason string, attempt *streamAttempt) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = m.cfg.RetryInitial
	retry.MaxInterval = m.cfg.RetryMax
	retry.Reset()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		m.move(runstatus.Connecting, reason)
		delivered, err := m.stream(ctx)
		attempt.lastErr = err
		attempt.retryable = false
		switch {
		case err == nil:
			return struct{}{}, nil
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case cbdstream.IsAuthExpired(err):
			return struct{}{}, backoff.Permanent(err)
		case cbdstream.Retryable(err):
			if delivered > 0 {
				return struct{}{}, nil
			}
			attempt.retryable = true
			reason = "transport retry"
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxTries(uint(m.cfg.TransportRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.rec.Reconnect("transport")
			m.logger.Warn("event stream transport error, reconnecting",
				logging.Field("error", err),
				logging.Field("next_retry", next.String()),
			)
		}),
	)

	// The retry loop hands back the last error still wrapped when the try
	// limit and a permanent error coincide.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return err
}

// stream opens one connection with the current token and dispatches frames
// until it fails. It reports how many frames it delivered.
func (m *Monitor) stream(ctx context.Context) (int, error) {
	session, err := m.cfg.Stream.Open(ctx, m.cfg.StreamURL, m.token.Raw)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	m.move(runstatus.Streaming, "connected")
	m.logger.Info("event stream connected", logging.Field("url", m.cfg.StreamURL))

	delivered := 0
	for {
		frame, err := session.Next(ctx)
		if err != nil {
			return delivered, err
		}
		delivered++
		m.authFailures = 0
		if frame.Retry > 0 {
			m.retryHint = frame.Retry
		}
		m.dispatch(frame)
	}
}

func (m *Monitor) dispatch(frame cbdstream.Frame) {
	msg, err := events.Decode(frame.Data)
	if err != nil {
		m.rec.DecodeError()
		m.logger.Warn("ignoring undecodable frame",
			logging.Field("error", err),
			logging.Field("frame", logging.FormatHTTPPayload(frame.Data)),
		)
		return
	}
	m.rec.FrameReceived(msg.Heartbeat, msg.Type)
	if msg.TemplateErr != nil {
		m.rec.TemplateError()
		m.logger.Warn("event rendered with missing parameters",
			logging.Field("type", msg.Type),
			logging.Field("error", msg.TemplateErr),
		)
	}
	if err := m.cfg.Sink.Print(msg); err != nil {
		m.logger.Warn("failed to write output", logging.Field("error", err))
	}
}

func (m *Monitor) issue(reason string) error {
	token, err := m.cfg.Tokens.Issue()
	if err != nil {
		return fmt.Errorf("issue access token: %w", err)
	}
	m.token = token
	m.rec.TokenIssued(reason)
	m.logger.Debug("issued access token",
		logging.Field("reason", reason),
		logging.Field("key_id", token.KeyID),
		logging.Field("client_id", token.Claims.ClientID),
		logging.Field("issued_at", token.IssuedAt().Format(time.RFC3339)),
		logging.Field("expires_at", token.ExpiresAt().Format(time.RFC3339)),
	)
	return nil
}

func (m *Monitor) terminate(ctx context.Context, err error) error {
	m.move(runstatus.Terminated, terminateReason(ctx, err))
	m.token = cbdauth.AccessToken{}
	if ctx.Err() != nil {
		m.logger.Debug("monitor stopped: context canceled", logging.Field("error", ctx.Err()))
		return nil
	}
	if err != nil {
		m.logger.Error("monitor stopped", logging.Field("error", err))
	}
	return err
}

func terminateReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "canceled"
	case err != nil:
		return err.Error()
	default:
		return "stopped"
	}
}

func (m *Monitor) move(to runstatus.State, reason string) {
	entered := m.status.Since()
	tr, err := m.status.Move(to, reason)
	if err != nil {
		// A rejected move is a controller bug; keep running in the current state.
		m.logger.Error("monitor state machine violation", logging.Field("error", err))
		return
	}
	m.rec.StateChanged(tr.From, tr.To)
	m.logger.Debug("monitor state changed",
		logging.Field("from", runstatus.Key(tr.From)),
		logging.Field("to", runstatus.Key(tr.To)),
		logging.Field("reason", reason),
		logging.Field("held", tr.At.Sub(entered).Round(time.Millisecond)),
	)
}

func (m *Monitor) reconnectDelay() time.Duration {
	if m.retryHint > 0 {
		return m.retryHint
	}
	return m.cfg.ReconnectDelay
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(bool, string) {}
func (nopRecorder) TemplateError() {}
func (nopRecorder) DecodeError() {}
func (nopRecorder) TokenIssued(string) {}
func (nopRecorder) Reconnect(string) {}
func (nopRecorder) StateChanged(runstatus.State, runstatus.State) {}
