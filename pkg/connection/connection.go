// Package connection provides a single-use TCP connection whose connect,
// send, receive and disconnect operations run asynchronously, each guarded by
// its own deadline. Exactly one of an operation's Done, Timeout or Error
// handlers is invoked.
package connection

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/deadline"
	"github.com/WhileEndless/go-docwire/pkg/errors"
)

type state int32

const (
	stateNew state = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Result is what a successful operation hands to its Done handler.
type Result struct {
	Bytes int64 // bytes transferred by the operation

	// Set by receives: the data occupies Buffer[Offset:Offset+Length].
	Buffer []byte
	Offset int
	Length int
}

// Data returns the received bytes.
func (r Result) Data() []byte {
	return r.Buffer[r.Offset : r.Offset+r.Length]
}

// Callbacks are the single-use handlers of one operation. Done and Error are
// required. When Timeout is nil a timeout is reported to Error instead.
type Callbacks struct {
	Done    func(Result)
	Timeout func()
	Error   func(error)
}

func (cb Callbacks) validate() error {
	if cb.Done == nil || cb.Error == nil {
		return errors.NewInvalidArgumentError("operation requires Done and Error handlers")
	}
	return nil
}

// Connection owns one socket. It is created unconnected, connected once, and
// never reused after it is closed or fails.
type Connection struct {
	opts   Options
	engine *Engine
	log    zerolog.Logger

	mu     sync.Mutex // guards conn assignment against close
	st     atomic.Int32
	conn   net.Conn
	remote string
	eof    atomic.Bool

	sendBusy atomic.Bool
	recvBusy atomic.Bool

	counters counters

	// leftover from the blocking Read wrapper
	rmu      sync.Mutex
	leftover []byte
}

// New returns an unconnected Connection.
func New(opts Options) (*Connection, error) {
	opts.SetDefaults()

	engine := opts.Engine
	if engine == nil {
		var err error
		if engine, err = DefaultEngine(); err != nil {
			return nil, errors.NewConnectionError("start engine", err)
		}
	}

	return &Connection{
		opts:   opts,
		engine: engine,
		log:    opts.logger(),
	}, nil
}

// RemoteAddr returns the endpoint given to ConnectAsync.
func (c *Connection) RemoteAddr() string {
	return c.remote
}

// Connected reports whether the socket is open.
func (c *Connection) Connected() bool {
	return state(c.st.Load()) == stateConnected
}

// Stats returns the byte counters.
func (c *Connection) Stats() Stats {
	return c.counters.snapshot()
}

// SetSection makes subsequent bytes in direction d count toward s.
func (c *Connection) SetSection(d Direction, s Section) {
	c.counters.dir(d).section.Store(int32(s))
}

// Reclassify moves n bytes in direction d from the headers count to the
// content count. Used when a single receive carried the end of a message head
// and the start of its body.
func (c *Connection) Reclassify(d Direction, n int64) {
	c.counters.dir(d).reclassify(n)
}

// ConnectAsync opens a TCP connection to addr ("ip:port"). Address resolution
// is the caller's job. ctx cancels the dial; it does not affect the
// connection once established.
func (c *Connection) ConnectAsync(ctx context.Context, addr string, cb Callbacks) error {
	if err := cb.validate(); err != nil {
		return err
	}
	if !c.st.CompareAndSwap(int32(stateNew), int32(stateConnecting)) {
		if state(c.st.Load()) == stateClosed {
			return errors.NewClosedError("connect")
		}
		return errors.ErrOperationBusy
	}
	c.remote = addr

	dialCtx, cancel := context.WithCancel(ctx)
	dl := deadline.New(c.opts.ConnectTimeout, func() {
		cancel()
		c.st.Store(int32(stateClosed))
		c.log.Debug().Str("remote", addr).Msg("connect timed out")
		c.reportTimeout(cb, "connect")
	})
	dl.Start()

	go func() {
		defer cancel()

		var dialer net.Dialer
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		if !dl.Stop() {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			c.st.Store(int32(stateClosed))
			cb.Error(errors.NewConnectionError("connect "+addr, err))
			return
		}

		if err := c.tune(conn); err != nil {
			conn.Close()
			c.st.Store(int32(stateClosed))
			cb.Error(errors.NewConnectionError("configure socket", err))
			return
		}

		c.mu.Lock()
		if state(c.st.Load()) != stateConnecting {
			c.mu.Unlock()
			conn.Close()
			cb.Error(errors.NewClosedError("connect"))
			return
		}
		c.conn = conn
		c.st.Store(int32(stateConnected))
		c.mu.Unlock()
		c.log.Debug().Str("remote", addr).Msg("connected")

		if c.opts.Events.Connected != nil {
			if err := c.guard("connected", c.opts.Events.Connected); err != nil {
				c.fail()
				cb.Error(err)
				return
			}
		}
		cb.Done(Result{})
	}()
	return nil
}

func (c *Connection) tune(conn net.Conn) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcp.SetNoDelay(true); err != nil {
		return pkgerrors.Wrap(err, "set nodelay")
	}
	if err := tcp.SetWriteBuffer(c.opts.SendBufferSize); err != nil {
		return pkgerrors.Wrap(err, "set send buffer")
	}
	if err := tcp.SetReadBuffer(c.opts.ReceiveBufferSize); err != nil {
		return pkgerrors.Wrap(err, "set receive buffer")
	}
	return nil
}

// DisconnectAsync closes the socket. Done fires once the socket is released;
// Timeout fires if that takes longer than DisconnectTimeout, and the socket
// is closed either way.
func (c *Connection) DisconnectAsync(cb Callbacks) error {
	if err := cb.validate(); err != nil {
		return err
	}
	if state(c.st.Load()) == stateNew {
		c.st.Store(int32(stateClosed))
		cb.Done(Result{})
		return nil
	}

	dl := deadline.New(c.opts.DisconnectTimeout, func() {
		c.log.Warn().Str("remote", c.remote).Msg("disconnect timed out")
		c.reportTimeout(cb, "disconnect")
	})
	dl.Start()

	go func() {
		err := c.close()
		if !dl.Stop() {
			return
		}
		if c.opts.Events.Disconnected != nil {
			if herr := c.guard("disconnected", c.opts.Events.Disconnected); herr != nil {
				c.log.Warn().Err(herr).Msg("ignoring handler fault during disconnect")
			}
		}
		if err != nil {
			c.log.Debug().Err(err).Msg("close reported error")
		}
		cb.Done(Result{})
	}()
	return nil
}

// Close releases the socket immediately. Pending operations fail.
func (c *Connection) Close() error {
	return c.close()
}

func (c *Connection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state(c.st.Swap(int32(stateClosed))) == stateClosed || c.conn == nil {
		return nil
	}
	if err := c.engine.release(c.conn); err != nil {
		c.log.Debug().Err(err).Str("remote", c.remote).Msg("release from engine")
	}
	c.log.Debug().Str("remote", c.remote).Msg("disconnected")
	if err := c.conn.Close(); err != nil && !pkgerrors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// fail tears the connection down after a fatal fault.
func (c *Connection) fail() {
	if err := c.close(); err != nil {
		c.log.Warn().Err(err).Msg("close after failure")
	}
}

func (c *Connection) reportTimeout(cb Callbacks, op string) {
	if cb.Timeout != nil {
		cb.Timeout()
		return
	}
	cb.Error(errors.NewTimeoutError(op))
}

// guard runs an observer handler, converting a panic into a handler error.
func (c *Connection) guard(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("handler", name).Msg("handler fault")
			err = errors.NewHandlerError(name, r)
		}
	}()
	fn()
	return nil
}
