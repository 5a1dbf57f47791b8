package connection

import (
	"io"

	pkgerrors "github.com/pkg/errors"
)

// Read implements io.Reader over ReceiveAsync, so a Connection can back a
// body stream. It blocks until one receive completes. A receive that fills
// more than len(p) keeps the excess for the next Read; Buffered reports it.
// Peer close yields io.EOF.
func (c *Connection) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.leftover) > 0 {
		n := copy(p, c.leftover)
		c.leftover = c.leftover[n:]
		return n, nil
	}

	type outcome struct {
		data []byte
		err  error
	}
	ch := make(chan outcome, 1)

	var buf []byte
	if len(p) >= c.opts.ReceiveBufferSize {
		buf = p[:c.opts.ReceiveBufferSize]
	}
	err := c.ReceiveAsync(buf, Callbacks{
		Done:  func(r Result) { ch <- outcome{data: r.Data()} },
		Error: func(err error) { ch <- outcome{err: err} },
	})
	if err != nil {
		if c.eof.Load() {
			return 0, io.EOF
		}
		return 0, err
	}

	out := <-ch
	if out.err != nil {
		if pkgerrors.Is(out.err, io.EOF) {
			return 0, io.EOF
		}
		return 0, out.err
	}

	n := copy(p, out.data)
	if n < len(out.data) {
		c.leftover = append(c.leftover[:0], out.data[n:]...)
	}
	return n, nil
}

// Buffered returns how many received bytes are held by the Read wrapper
// without touching the socket.
func (c *Connection) Buffered() int {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return len(c.leftover)
}
