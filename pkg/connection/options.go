package connection

import (
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Connection. A negative timeout disables that deadline.
type Options struct {
	ConnectTimeout    time.Duration // default: 30s
	SendTimeout       time.Duration // per send operation, renewed per block (default: 30s)
	ReceiveTimeout    time.Duration // per receive operation (default: 30s)
	DisconnectTimeout time.Duration // default: 5s

	SendBufferSize    int // socket send buffer and streaming block size (default: 8KB)
	ReceiveBufferSize int // socket receive buffer and receive block size (default: 8KB)

	// Engine runs the socket operations; DefaultEngine is used when nil.
	Engine *Engine

	// Logger receives debug traces and handler faults; nil disables logging.
	Logger *zerolog.Logger

	Events Events
}

// SetDefaults fills unset fields.
func (o *Options) SetDefaults() {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.ReceiveTimeout == 0 {
		o.ReceiveTimeout = 30 * time.Second
	}
	if o.DisconnectTimeout == 0 {
		o.DisconnectTimeout = 5 * time.Second
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 8192
	}
	if o.ReceiveBufferSize <= 0 {
		o.ReceiveBufferSize = 8192
	}
}

func (o *Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}
