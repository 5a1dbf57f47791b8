package connection

import (
	"io"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/xtaci/gaio"

	"github.com/WhileEndless/go-docwire/pkg/deadline"
	"github.com/WhileEndless/go-docwire/pkg/errors"
)

// blockSource yields the next block to transmit, or io.EOF once drained.
type blockSource func() ([]byte, error)

// SendAsync transmits data in SendBufferSize blocks. Done receives the
// number of bytes sent.
func (c *Connection) SendAsync(data []byte, cb Callbacks) error {
	block := c.opts.SendBufferSize
	next := func() ([]byte, error) {
		if len(data) == 0 {
			return nil, io.EOF
		}
		n := block
		if n > len(data) {
			n = len(data)
		}
		b := data[:n]
		data = data[n:]
		return b, nil
	}
	return c.send(next, cb)
}

// SendStreamAsync drains src, transmitting each read as one block of at most
// SendBufferSize bytes. The send deadline is renewed after every block.
func (c *Connection) SendStreamAsync(src io.Reader, cb Callbacks) error {
	if src == nil {
		return errors.NewInvalidArgumentError("nil send source")
	}
	buf := make([]byte, c.opts.SendBufferSize)
	eof := false
	next := func() ([]byte, error) {
		for !eof {
			n, err := src.Read(buf)
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return nil, pkgerrors.Wrap(err, "read send source")
			}
			if n > 0 {
				return buf[:n], nil
			}
		}
		return nil, io.EOF
	}
	return c.send(next, cb)
}

func (c *Connection) send(next blockSource, cb Callbacks) error {
	if err := cb.validate(); err != nil {
		return err
	}
	if err := c.acquire(&c.sendBusy, "send"); err != nil {
		return err
	}

	var total int64
	dl := deadline.New(c.opts.SendTimeout, func() {
		c.sendBusy.Store(false)
		c.fail()
		c.reportTimeout(cb, "send")
	})
	dl.Start()

	finish := func(err error) {
		if !dl.Stop() {
			return
		}
		c.sendBusy.Store(false)
		if err != nil {
			cb.Error(err)
			return
		}
		cb.Done(Result{Bytes: total})
	}

	var step func()
	step = func() {
		block, err := next()
		if err == io.EOF {
			finish(nil)
			return
		}
		if err != nil {
			finish(err)
			return
		}

		werr := c.engine.write(c.conn, block, func(res gaio.OpResult) {
			if res.Error != nil {
				if dl.Stop() {
					c.sendBusy.Store(false)
					c.fail()
					cb.Error(errors.NewConnectionError("send", res.Error))
				}
				return
			}
			if !dl.Renew() {
				return
			}
			total += int64(res.Size)
			if err := c.progress(Upload, res.Size); err != nil {
				c.fail()
				finish(err)
				return
			}
			step()
		})
		if werr != nil {
			c.fail()
			finish(errors.NewConnectionError("submit send", werr))
		}
	}
	step()
	return nil
}

// ReceiveAsync issues one receive into buf (a ReceiveBufferSize block when
// nil). Done gets the filled region, which may be shorter than the buffer.
// A peer close is reported to Error wrapping io.EOF.
func (c *Connection) ReceiveAsync(buf []byte, cb Callbacks) error {
	if err := cb.validate(); err != nil {
		return err
	}
	if c.eof.Load() {
		return errors.NewConnectionError("receive", io.EOF)
	}
	if err := c.acquire(&c.recvBusy, "receive"); err != nil {
		return err
	}
	if len(buf) == 0 {
		buf = make([]byte, c.opts.ReceiveBufferSize)
	}

	dl := deadline.New(c.opts.ReceiveTimeout, func() {
		c.recvBusy.Store(false)
		c.fail()
		c.reportTimeout(cb, "receive")
	})
	dl.Start()

	err := c.engine.read(c.conn, buf, func(res gaio.OpResult) {
		if !dl.Stop() {
			return
		}
		c.recvBusy.Store(false)

		if res.Error != nil {
			if res.Error == io.EOF {
				c.eof.Store(true)
			} else {
				c.fail()
			}
			cb.Error(errors.NewConnectionError("receive", res.Error))
			return
		}

		if err := c.progress(Download, res.Size); err != nil {
			c.fail()
			cb.Error(err)
			return
		}
		cb.Done(Result{Bytes: int64(res.Size), Buffer: buf, Length: res.Size})
	})
	if err != nil && dl.Stop() {
		c.recvBusy.Store(false)
		c.fail()
		return errors.NewConnectionError("submit receive", err)
	}
	return nil
}

func (c *Connection) acquire(flag *atomic.Bool, op string) error {
	if state(c.st.Load()) != stateConnected {
		return errors.NewClosedError(op)
	}
	if !flag.CompareAndSwap(false, true) {
		return pkgerrors.Wrap(errors.ErrOperationBusy, op)
	}
	return nil
}

// progress counts n bytes and notifies the Progress observer.
func (c *Connection) progress(d Direction, n int) error {
	total := c.counters.dir(d).add(n)
	if c.opts.Events.Progress == nil {
		return nil
	}
	ev := ProgressEvent{Direction: d, Bytes: n, Total: total}
	return c.guard("progress", func() { c.opts.Events.Progress(ev) })
}
