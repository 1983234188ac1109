package icecast

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ProblemCodeWriteFailed is the code carried by a ConnectionProblem raised
// after a buffer could not be written.
const ProblemCodeWriteFailed = 666

// ConnectionProblem describes a fatal write failure.
type ConnectionProblem struct {
	Code int
	// Sent is how much of the buffer reached the socket before the failure.
	Sent int
	Size int
	Err  error
}

// ConnectionProblemFunc is the type of the function called when the stream
// breaks.
type ConnectionProblemFunc func(p ConnectionProblem)

// Dialer opens the TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver looks up host names that are not literal addresses.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// Client pushes one media stream to one mountpoint.
type Client struct {
	// Optional function to be executed when a buffer could not be written.
	// It runs on the goroutine that called Send.
	ConnectionProblemFunc ConnectionProblemFunc

	cfg      Config
	logger   *slog.Logger
	dialer   Dialer
	resolver Resolver

	// done once Stop is called; interrupts dials and writes.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	conn        net.Conn
	contentType string
	sending     bool

	debugMu sync.Mutex
	debug   *os.File

	bytesSent atomic.Uint64
}

// Start validates cfg and returns an idle client. No connection is made
// until the first Send.
func Start(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:         cfg,
		logger:      slog.Default(),
		dialer:      &net.Dialer{},
		resolver:    net.DefaultResolver,
		contentType: cfg.ContentType,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("host", cfg.Host, "port", cfg.Port, "mount", cfg.Mount)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if cfg.DebugFile != "" {
		f, err := os.OpenFile(cfg.DebugFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			c.logger.Warn("unable to open debug file", "path", cfg.DebugFile, "err", err)
		} else {
			c.debug = f
		}
	}

	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ContentType returns the content type declared for the stream, or "" if
// none has been resolved yet.
func (c *Client) ContentType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentType
}

// BytesSent counts media bytes accepted by the socket. Handshake bytes are
// not included.
func (c *Client) BytesSent() uint64 {
	return c.bytesSent.Load()
}

// Send writes buf to the server, connecting first if needed. contentType
// may be empty once the stream type is known.
//
// Any error other than an invalid content type leaves the client in a
// terminal state; there is no retry and no reconnect.
func (c *Client) Send(ctx context.Context, buf []byte, contentType string) error {
	c.mu.Lock()
	if c.state.terminal() {
		err := ErrClientFailed
		if c.state == StateStopped {
			err = ErrClientStopped
		}
		c.mu.Unlock()
		return err
	}
	if c.sending {
		c.mu.Unlock()
		return ErrSendInProgress
	}
	ct, err := c.resolveContentType(contentType)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return errors.Wrap(ErrCancelled, err.Error())
	}
	c.contentType = ct
	c.sending = true
	if c.state == StateIdle {
		c.state = StateConnecting
	}
	connecting := c.state == StateConnecting
	conn := c.conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnClose := context.AfterFunc(c.ctx, cancel)
	defer stopOnClose()

	if connecting {
		conn, err = c.connect(ctx, ct)
		if err != nil {
			c.fail()
			if c.interrupted(ctx) {
				return errors.Wrap(ErrCancelled, "interrupted while connecting")
			}
			c.logger.Error("connection failed", "err", err)
			return err
		}

		c.mu.Lock()
		if c.state == StateStopped {
			c.mu.Unlock()
			_ = conn.Close()
			return errors.Wrap(ErrCancelled, "stopped while connecting")
		}
		c.conn = conn
		c.state = StateStreaming
		c.mu.Unlock()
	}

	c.mirror(buf)

	c.logger.Debug("sending", "bytes", len(buf))
	sent, err := writeFull(ctx, conn, buf)
	c.bytesSent.Add(uint64(sent))
	if err == nil {
		return nil
	}

	interrupted := c.interrupted(ctx)
	c.fail()
	if interrupted {
		return errors.Wrapf(ErrCancelled, "interrupted after %d of %d bytes", sent, len(buf))
	}

	err = errors.Wrapf(ErrStreamWriteFailed, "sent %d of %d bytes: %v", sent, len(buf), err)
	c.logger.Error("stream write failed", "err", err)
	if fn := c.ConnectionProblemFunc; fn != nil {
		fn(ConnectionProblem{
			Code: ProblemCodeWriteFailed,
			Sent: sent,
			Size: len(buf),
			Err:  err,
		})
	}
	return err
}

// Stop closes the connection and interrupts a pending Send. It is safe to
// call more than once and from any goroutine.
func (c *Client) Stop() {
	c.cancel()

	c.mu.Lock()
	prev := c.state
	c.state = StateStopped
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("error closing connection", "err", err)
		}
	}

	c.debugMu.Lock()
	if c.debug != nil {
		if err := c.debug.Close(); err != nil {
			c.logger.Debug("error closing debug file", "err", err)
		}
		c.debug = nil
	}
	c.debugMu.Unlock()

	if prev != StateStopped {
		c.logger.Info("stopped", "state", prev, "bytes_sent", c.BytesSent())
	}
}

// resolveContentType must be called with c.mu held.
func (c *Client) resolveContentType(ct string) (string, error) {
	if ct == "" {
		if c.contentType == "" {
			return "", invalidConfig(ErrUnsupportedContentType, "no content type declared")
		}
		return c.contentType, nil
	}
	if !SupportedContentType(ct) {
		return "", invalidConfig(ErrUnsupportedContentType, "%q", ct)
	}
	if c.contentType != "" && ct != c.contentType {
		return "", invalidConfig(ErrContentTypeChanged, "%q to %q", c.contentType, ct)
	}
	return ct, nil
}

func (c *Client) connect(ctx context.Context, contentType string) (net.Conn, error) {
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	header, err := BuildHandshake(c.cfg.Mount, contentType, c.cfg.Password)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionFailed, "build handshake: %v", err)
	}

	addr, err := c.resolve(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionFailed, "resolve %s: %v", c.cfg.Host, err)
	}

	c.logger.Debug("connecting", "addr", addr)
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionFailed, "dial %s: %v", addr, err)
	}

	if _, err := writeFull(ctx, conn, header); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(ErrConnectionFailed, "send handshake: %v", err)
	}

	c.logger.Info("connected", "addr", addr, "content_type", contentType)
	return conn, nil
}

// resolve treats the host as a literal address first and falls back to DNS,
// preferring IPv4 results.
func (c *Client) resolve(ctx context.Context) (string, error) {
	port := strconv.Itoa(c.cfg.Port)
	if ip := net.ParseIP(c.cfg.Host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	addrs, err := c.resolver.LookupHost(ctx, c.cfg.Host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errors.Errorf("no addresses for %s", c.cfg.Host)
	}

	chosen := addrs[0]
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			chosen = a
			break
		}
	}
	return net.JoinHostPort(chosen, port), nil
}

// fail tears down the connection. A stopped client stays stopped.
func (c *Client) fail() {
	c.mu.Lock()
	if c.state != StateStopped {
		c.state = StateFailed
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) interrupted(ctx context.Context) bool {
	return ctx.Err() != nil || c.ctx.Err() != nil
}

// mirror copies buf to the debug file. Failures never affect the stream.
func (c *Client) mirror(buf []byte) {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()

	if c.debug == nil {
		return
	}
	if n, err := c.debug.Write(buf); err != nil || n != len(buf) {
		c.logger.Debug("debug file problem", "written", n, "size", len(buf), "err", err)
	}
}

// aLongTimeAgo is a non-zero time far in the past, used to make pending
// writes return immediately.
var aLongTimeAgo = time.Unix(1, 0)

// writeFull writes buf to conn, resuming after partial writes. It stops at
// the first error or the first call that makes no progress. Cancelling ctx
// sets a past write deadline, which unblocks a stalled Write.
func writeFull(ctx context.Context, conn net.Conn, buf []byte) (int, error) {
	var (
		mu       sync.Mutex
		finished bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			_ = conn.SetWriteDeadline(aLongTimeAgo)
		}
	})

	sent := 0
	var err error
	for sent < len(buf) {
		var n int
		n, err = conn.Write(buf[sent:])
		if n > 0 {
			sent += n
		}
		if err != nil {
			break
		}
		if n <= 0 {
			err = io.ErrShortWrite
			break
		}
	}

	if !stop() {
		mu.Lock()
		finished = true
		if err == nil {
			// The deadline may have been set after the last write completed.
			_ = conn.SetWriteDeadline(time.Time{})
		}
		mu.Unlock()
	}

	return sent, err
}
