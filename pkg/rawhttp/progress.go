package rawhttp

import (
	"sync"

	"github.com/WhileEndless/go-docwire/pkg/connection"
)

// Progress is one step of a request/response cycle. Percent combines both
// directions: the request accounts for the first half and the response for
// the second. It never decreases.
type Progress struct {
	Direction connection.Direction
	Bytes     int // moved by this transfer

	Sent         int64
	SendTotal    int64 // -1 when the request body length is unknown
	Received     int64
	ReceiveTotal int64 // -1 until the response head is parsed and its size known

	Percent float64
}

// tracker folds socket progress events of one request into Progress values.
type tracker struct {
	mu sync.Mutex

	sendTotal int64
	sendDone  bool
	sent      int64

	recvTotal int64
	recvBase  int64 // interim response bytes not part of the final message
	received  int64
	recvDone  bool

	last float64
}

func newTracker(sendTotal int64) *tracker {
	return &tracker{sendTotal: sendTotal, recvTotal: -1}
}

func (t *tracker) observe(ev connection.ProgressEvent) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Direction == connection.Upload {
		t.sent = ev.Total
	} else {
		t.received = ev.Total
	}
	return t.snapshot(ev.Direction, ev.Bytes)
}

func (t *tracker) snapshot(d connection.Direction, n int) Progress {
	return Progress{
		Direction:    d,
		Bytes:        n,
		Sent:         t.sent,
		SendTotal:    t.sendTotal,
		Received:     t.received,
		ReceiveTotal: t.recvTotal,
		Percent:      t.percent(),
	}
}

func (t *tracker) percent() float64 {
	var fs, fr float64
	switch {
	case t.sendDone:
		fs = 1
	case t.sendTotal > 0:
		fs = min(1, float64(t.sent)/float64(t.sendTotal))
	}
	switch {
	case t.recvDone:
		fr = 1
	case t.recvTotal > 0:
		fr = min(1, float64(t.received-t.recvBase)/float64(t.recvTotal))
	}

	p := 50*fs + 50*fr
	if p < t.last {
		p = t.last
	}
	t.last = p
	return p
}

func (t *tracker) markSent() {
	t.mu.Lock()
	t.sendDone = true
	t.mu.Unlock()
}

// skip excludes n already received bytes from the response total.
func (t *tracker) skip(n int64) {
	t.mu.Lock()
	t.recvBase += n
	t.mu.Unlock()
}

// expect sets the response size once known and returns the progress it
// implies for bytes already received. Chunked responses report 0 and stay
// unknown.
func (t *tracker) expect(size int64) (Progress, bool) {
	if size <= 0 {
		return Progress{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvTotal = size
	return t.snapshot(connection.Download, 0), true
}

// ended marks the response as read to its end. Bodies of unknown size get
// their total from the bytes actually received.
func (t *tracker) ended() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvDone = true
	if t.recvTotal < 0 {
		t.recvTotal = t.received - t.recvBase
	}
	return t.snapshot(connection.Download, 0)
}
