package rawhttp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/connection"
	"github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/message"
)

// Phase is a step of one request/response cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseResolvingHost
	PhaseConnecting
	PhaseSendingHeaders
	PhaseWaitingContinue
	PhaseSendingBody
	PhaseReceivingResponse
	PhaseComplete
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:              "idle",
	PhaseResolvingHost:     "resolving host",
	PhaseConnecting:        "connecting",
	PhaseSendingHeaders:    "sending headers",
	PhaseWaitingContinue:   "waiting for 100 continue",
	PhaseSendingBody:       "sending body",
	PhaseReceivingResponse: "receiving response",
	PhaseComplete:          "complete",
	PhaseFailed:            "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "Phase(" + strconv.Itoa(int(p)) + ")"
}

// Handlers receive the outcome of one request. Complete and Error are
// required; timeouts go to Error when Timeout is nil. Exactly one of
// Complete, Error and Timeout is called, except that a panic inside Complete
// is logged, closes the connection and is then reported to Error.
//
// Progress keeps firing while the response body is read. A panic inside it
// fails the transfer in progress.
type Handlers struct {
	Progress func(Progress)
	Complete func(*Response)
	Error    func(error)
	Timeout  func()
}

func (h Handlers) validate() error {
	if h.Complete == nil || h.Error == nil {
		return errors.NewInvalidArgumentError("request requires Complete and Error handlers")
	}
	return nil
}

// HTTPConnection drives one request/response cycle over a fresh connection:
// resolve, connect, send the head, optionally wait for 100 Continue, send
// the body, then parse the response head and hand over the body.
type HTTPConnection struct {
	opts Options
	req  *message.Request
	head []byte
	h    Handlers
	log  zerolog.Logger

	phase    atomic.Int32
	finished atomic.Bool
	conn     atomic.Pointer[connection.Connection]
	tracker  *tracker

	mu      sync.Mutex // guards the fields below
	stopCtx func() bool
	timing  Timing
	ip      string
	start   time.Time
	sentAt  time.Time
	seed    []byte
}

func newHTTPConnection(opts Options, req *message.Request, h Handlers) *HTTPConnection {
	hc := &HTTPConnection{
		opts: opts,
		req:  req,
		head: req.Head(),
		h:    h,
		log:  opts.logger().With().Str("method", req.Method()).Str("url", req.URL.String()).Logger(),
	}
	hc.tracker = newTracker(req.WireSize())
	return hc
}

// Phase returns the current phase.
func (hc *HTTPConnection) Phase() Phase {
	return Phase(hc.phase.Load())
}

// Request returns the request being sent.
func (hc *HTTPConnection) Request() *message.Request {
	return hc.req
}

// Stats returns the connection's byte counters.
func (hc *HTTPConnection) Stats() connection.Stats {
	if conn := hc.conn.Load(); conn != nil {
		return conn.Stats()
	}
	return connection.Stats{}
}

func (hc *HTTPConnection) setPhase(p Phase) {
	hc.phase.Store(int32(p))
	hc.log.Debug().Stringer("phase", p).Msg("phase")
}

func (hc *HTTPConnection) run(ctx context.Context) {
	hc.mu.Lock()
	hc.start = time.Now()
	hc.stopCtx = context.AfterFunc(ctx, func() {
		hc.fail(errors.NewConnectionError("request canceled", ctx.Err()))
	})
	hc.mu.Unlock()

	go hc.connect(ctx)
}

func (hc *HTTPConnection) connect(ctx context.Context) {
	hc.setPhase(PhaseResolvingHost)
	ip, err := hc.resolve(ctx)
	if err != nil {
		hc.fail(err)
		return
	}
	if hc.finished.Load() {
		return
	}

	hc.setPhase(PhaseConnecting)
	conn, err := connection.New(hc.opts.connectionOptions(connection.Events{
		Progress: hc.onProgress,
	}))
	if err != nil {
		hc.fail(err)
		return
	}
	hc.conn.Store(conn)
	if hc.finished.Load() {
		// failed while the connection was being created
		conn.Close()
		return
	}

	hc.mu.Lock()
	hc.ip = ip
	hc.mu.Unlock()

	started := time.Now()
	addr := net.JoinHostPort(ip, strconv.Itoa(hc.req.Port()))
	err = conn.ConnectAsync(ctx, addr, connection.Callbacks{
		Done: func(connection.Result) {
			hc.mu.Lock()
			hc.timing.TCPConnect = time.Since(started)
			hc.mu.Unlock()
			hc.sendHeaders(conn)
		},
		Timeout: hc.onTimeout,
		Error:   hc.fail,
	})
	if err != nil {
		hc.fail(err)
	}
}

func (hc *HTTPConnection) resolve(ctx context.Context) (string, error) {
	if hc.opts.ConnIP != "" {
		return hc.opts.ConnIP, nil
	}
	host := hc.req.URL.Hostname()
	if net.ParseIP(host) != nil {
		return host, nil
	}

	started := time.Now()
	addrs, err := hc.opts.Resolver.LookupIPAddr(ctx, host)
	hc.mu.Lock()
	hc.timing.DNSLookup = time.Since(started)
	hc.mu.Unlock()
	if err != nil {
		return "", errors.NewDNSError(err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(pkgerrors.Errorf("no IP addresses found for host: %s", host))
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}

func (hc *HTTPConnection) sendHeaders(conn *connection.Connection) {
	if hc.finished.Load() {
		return
	}
	hc.setPhase(PhaseSendingHeaders)
	conn.SetSection(connection.Upload, connection.SectionHeaders)

	hc.mu.Lock()
	hc.sentAt = time.Now()
	hc.mu.Unlock()

	err := conn.SendAsync(hc.head, connection.Callbacks{
		Done: func(connection.Result) {
			conn.SetSection(connection.Upload, connection.SectionContent)
			switch {
			case hc.req.Content == nil:
				hc.tracker.markSent()
				hc.receiveResponse(conn)
			case hc.req.ExpectsContinue():
				hc.waitContinue(conn)
			default:
				hc.sendBody(conn)
			}
		},
		Timeout: hc.onTimeout,
		Error:   hc.fail,
	})
	if err != nil {
		hc.fail(err)
	}
}

// waitContinue withholds the body until the server answers 100. Any other
// status ends the request.
func (hc *HTTPConnection) waitContinue(conn *connection.Connection) {
	if hc.finished.Load() {
		return
	}
	hc.setPhase(PhaseWaitingContinue)

	started := time.Now()
	interim := message.NewResponseBuilder(hc.req.Method())
	interim.SkipInterim = false
	interim.BufferSize = hc.opts.ReceiveBufferSize

	interim.ReceiveHead(conn, func(err error) {
		if err != nil {
			hc.failOrTimeout(err)
			return
		}
		if code := interim.StatusLine().StatusCode; code != 100 {
			hc.fail(errors.NewError(errors.ErrorTypeUnexpectedStatus,
				"expected 100 Continue, got "+strconv.Itoa(code), "100-continue", nil))
			return
		}

		hc.mu.Lock()
		hc.timing.ContinueWait = time.Since(started)
		hc.seed = interim.Leftover()
		hc.mu.Unlock()
		hc.tracker.skip(interim.HeadSize())
		hc.sendBody(conn)
	})
}

func (hc *HTTPConnection) sendBody(conn *connection.Connection) {
	if hc.finished.Load() {
		return
	}
	hc.setPhase(PhaseSendingBody)

	err := conn.SendStreamAsync(hc.req.PayloadReader(hc.opts.SendBufferSize), connection.Callbacks{
		Done: func(connection.Result) {
			hc.tracker.markSent()
			hc.receiveResponse(conn)
		},
		Timeout: hc.onTimeout,
		Error:   hc.fail,
	})
	if err != nil {
		hc.fail(err)
	}
}

func (hc *HTTPConnection) receiveResponse(conn *connection.Connection) {
	if hc.finished.Load() {
		return
	}
	hc.setPhase(PhaseReceivingResponse)

	rb := message.NewResponseBuilder(hc.req.Method())
	rb.BufferSize = hc.opts.ReceiveBufferSize
	hc.mu.Lock()
	rb.Seed(hc.seed)
	hc.mu.Unlock()

	rb.ParseAndAttachToBody(conn, func(err error) {
		if err != nil {
			hc.failOrTimeout(err)
			return
		}
		p, ok := hc.tracker.expect(rb.MessageSize())
		if ok && hc.h.Progress != nil {
			if err := hc.guard("progress", func() { hc.h.Progress(p) }); err != nil {
				hc.fail(err)
				return
			}
		}
		if !ok && hc.h.Progress != nil && rb.Body() != nil {
			rb.Body().OnEnd(hc.receivedAll)
		}
		hc.complete(conn, rb)
	})
}

func (hc *HTTPConnection) complete(conn *connection.Connection, rb *message.Builder) {
	if !hc.finish(PhaseComplete) {
		conn.Close()
		return
	}

	hc.mu.Lock()
	hc.timing.Total = time.Since(hc.start)
	resp := &Response{
		Response:      rb.Response(),
		ConnectedIP:   hc.ip,
		ConnectedPort: hc.req.Port(),
		Timing:        hc.timing,
		conn:          conn,
	}
	hc.mu.Unlock()

	hc.log.Debug().Int("status", resp.StatusCode()).Msg("response head received")
	if err := hc.guard("complete", func() { hc.h.Complete(resp) }); err != nil {
		conn.Close()
		hc.guard("error", func() { hc.h.Error(err) })
	}
}

// finish claims the single terminal event.
func (hc *HTTPConnection) finish(p Phase) bool {
	if !hc.finished.CompareAndSwap(false, true) {
		return false
	}
	hc.setPhase(p)

	hc.mu.Lock()
	stop := hc.stopCtx
	hc.mu.Unlock()
	if stop != nil {
		stop()
	}
	return true
}

func (hc *HTTPConnection) closeConn() {
	if conn := hc.conn.Load(); conn != nil {
		if err := conn.Close(); err != nil {
			hc.log.Warn().Err(err).Msg("close after failure")
		}
	}
}

func (hc *HTTPConnection) fail(err error) {
	phase := hc.Phase()
	if !hc.finish(PhaseFailed) {
		return
	}
	hc.closeConn()
	hc.log.Debug().Err(err).Stringer("during", phase).Msg("request failed")
	hc.guard("error", func() { hc.h.Error(err) })
}

func (hc *HTTPConnection) onTimeout() {
	phase := hc.Phase()
	if !hc.finish(PhaseFailed) {
		return
	}
	hc.closeConn()
	hc.log.Debug().Stringer("during", phase).Msg("request timed out")

	if hc.h.Timeout == nil {
		hc.guard("error", func() { hc.h.Error(errors.NewTimeoutError(phase.String())) })
		return
	}
	hc.guard("timeout", hc.h.Timeout)
}

func (hc *HTTPConnection) failOrTimeout(err error) {
	if errors.IsTimeout(err) {
		hc.onTimeout()
		return
	}
	hc.fail(err)
}

// onProgress runs inside the connection's handler guard, so a panic in the
// caller's Progress handler fails the transfer that reported it.
func (hc *HTTPConnection) onProgress(ev connection.ProgressEvent) {
	if hc.Phase() == PhaseFailed {
		return
	}
	if ev.Direction == connection.Download {
		hc.mu.Lock()
		if hc.timing.TTFB == 0 && !hc.sentAt.IsZero() {
			hc.timing.TTFB = time.Since(hc.sentAt)
		}
		hc.mu.Unlock()
	}

	p := hc.tracker.observe(ev)
	if hc.h.Progress != nil {
		hc.h.Progress(p)
	}
}

// receivedAll reports the final step of a response whose size was unknown
// until its body ended.
func (hc *HTTPConnection) receivedAll() {
	p := hc.tracker.ended()
	if err := hc.guard("progress", func() { hc.h.Progress(p) }); err != nil {
		hc.log.Debug().Err(err).Msg("final progress")
	}
}

// DisconnectAsync closes the connection under its own deadline. done runs
// once the socket is released or the deadline expires.
func (hc *HTTPConnection) DisconnectAsync(done func()) error {
	conn := hc.conn.Load()
	if conn == nil {
		done()
		return nil
	}
	return conn.DisconnectAsync(connection.Callbacks{
		Done:    func(connection.Result) { done() },
		Timeout: done,
		Error: func(err error) {
			hc.log.Warn().Err(err).Msg("disconnect")
			done()
		},
	})
}

// guard runs a caller handler, logging and returning a panic as an error.
func (hc *HTTPConnection) guard(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			hc.log.Error().Interface("panic", r).Str("handler", name).Msg("handler fault")
			err = errors.NewHandlerError(name, r)
		}
	}()
	fn()
	return nil
}
