package connection

import "sync/atomic"

// Direction tells which way bytes moved.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Section classifies bytes as message head or message content.
type Section int

const (
	SectionHeaders Section = iota
	SectionContent
)

// ProgressEvent is emitted after every completed socket transfer.
type ProgressEvent struct {
	Direction Direction
	Bytes     int   // moved by this transfer
	Total     int64 // moved in this direction so far
}

// Events are long-lived observers of a connection. Handlers run on engine
// goroutines.
type Events struct {
	Connected    func()
	Progress     func(ProgressEvent)
	Disconnected func()
}

// Stats is a snapshot of a connection's byte counters.
type Stats struct {
	SentTotal       int64
	SentHeaders     int64
	SentContent     int64
	ReceivedTotal   int64
	ReceivedHeaders int64
	ReceivedContent int64
}

type counter struct {
	total   atomic.Int64
	headers atomic.Int64
	content atomic.Int64
	section atomic.Int32
}

func (c *counter) add(n int) int64 {
	if Section(c.section.Load()) == SectionContent {
		c.content.Add(int64(n))
	} else {
		c.headers.Add(int64(n))
	}
	return c.total.Add(int64(n))
}

// reclassify moves n bytes already counted as headers into content.
func (c *counter) reclassify(n int64) {
	if n <= 0 {
		return
	}
	if h := c.headers.Load(); n > h {
		n = h
	}
	c.headers.Add(-n)
	c.content.Add(n)
}

type counters struct {
	sent     counter
	received counter
}

func (c *counters) dir(d Direction) *counter {
	if d == Upload {
		return &c.sent
	}
	return &c.received
}

func (c *counters) snapshot() Stats {
	return Stats{
		SentTotal:       c.sent.total.Load(),
		SentHeaders:     c.sent.headers.Load(),
		SentContent:     c.sent.content.Load(),
		ReceivedTotal:   c.received.total.Load(),
		ReceivedHeaders: c.received.headers.Load(),
		ReceivedContent: c.received.content.Load(),
	}
}
