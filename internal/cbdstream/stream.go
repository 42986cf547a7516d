// Package cbdstream talks to the Dashboard event-source and subscription
// endpoints.
package cbdstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cbd-eventstream/internal/logging"
	"cbd-eventstream/internal/runctx"
)

var ErrSessionClosed = errors.New("event stream session closed")

type Client struct {
	HTTP        *http.Client
	Logger      *logging.Logger
	ReadTimeout time.Duration
	ForceHTTP1  bool
}

// Session is one open event-source connection. Next must be called from a
// single goroutine; Close may be called from any.
type Session struct {
	body        io.ReadCloser
	cancel      context.CancelFunc
	frames      chan Frame
	errs        chan error
	done        chan struct{}
	readTimeout time.Duration
	logger      *logging.Logger

	closeOnce sync.Once
	err       error
}

func (c Client) Open(ctx context.Context, url, token string) (*Session, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(sessionCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+token)

	c.Logger.Debug("opening event stream", logging.Field("url", url))

	resp, err := c.streamHTTP().Do(req)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "connect", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		body := logging.FormatHTTPPayload(data)
		c.Logger.Warn("event stream connect failed",
			logging.Field("status", resp.Status),
			logging.Field("response", body),
		)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}

	s := &Session{
		body:        resp.Body,
		cancel:      cancel,
		frames:      make(chan Frame),
		errs:        make(chan error, 1),
		done:        make(chan struct{}),
		readTimeout: c.ReadTimeout,
		logger:      c.Logger,
	}
	go readFrames(resp.Body, s.frames, s.errs, s.done)
	return s, nil
}

// Next blocks until the next frame arrives. After the stream ends every call
// returns the same error.
func (s *Session) Next(ctx context.Context) (Frame, error) {
	if s.err != nil {
		return Frame{}, s.err
	}
	frame, ok, err := runctx.RecvWithin(ctx, s.frames, s.readTimeout)
	switch {
	case errors.Is(err, runctx.ErrIdle):
		s.err = &TransportError{Op: "read", Err: fmt.Errorf("%w (%s)", err, s.readTimeout)}
		s.Close()
		return Frame{}, s.err
	case err != nil:
		return Frame{}, err
	case ok:
		return frame, nil
	}

	var streamErr error
	select {
	case streamErr = <-s.errs:
	case <-ctx.Done():
		s.err = ctx.Err()
		return Frame{}, s.err
	}
	s.logger.Debug("event stream ended", logging.Field("error", streamErr))
	switch {
	case ctx.Err() != nil:
		s.err = ctx.Err()
	case s.closed():
		s.err = ErrSessionClosed
	case errors.Is(streamErr, io.EOF):
		s.err = &TransportError{Op: "read", Err: io.EOF, Closed: true}
	default:
		s.err = &TransportError{Op: "read", Err: streamErr}
	}
	return Frame{}, s.err
}

// Close releases the connection and stops the frame reader.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (c Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c Client) streamHTTP() *http.Client {
	// The stream stays open indefinitely, so the whole-request timeout that
	// suits the subscription call must not apply here.
	streamHTTP := *c.httpClient()
	streamHTTP.Timeout = 0
	if c.ForceHTTP1 {
		streamHTTP.Transport = http1OnlyRoundTripper(streamHTTP.Transport)
	}
	return &streamHTTP
}

func http1OnlyRoundTripper(rt http.RoundTripper) http.RoundTripper {
	switch transport := rt.(type) {
	case nil:
		base, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return rt
		}
		clone := base.Clone()
		disableHTTP2(clone)
		return clone
	case *http.Transport:
		clone := transport.Clone()
		disableHTTP2(clone)
		return clone
	default:
		return rt
	}
}

func disableHTTP2(transport *http.Transport) {
	transport.ForceAttemptHTTP2 = false
	transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
}
