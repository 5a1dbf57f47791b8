package rawhttp

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/connection"
)

// Options represents configuration options for sending HTTP requests
type Options struct {
	// Connection options
	ConnIP   string        // Specific IP to connect to (bypasses DNS if set)
	Resolver *net.Resolver // Resolver for target hosts (default: net.DefaultResolver)

	// Timeout options. A negative value disables the timeout.
	ConnTimeout       time.Duration // Connection timeout (default: 30s)
	ReadTimeout       time.Duration // Per receive, also bounds the 100-continue wait (default: 30s)
	WriteTimeout      time.Duration // Per send, renewed per block (default: 30s)
	DisconnectTimeout time.Duration // default: 5s

	// Buffer options
	SendBufferSize    int // Socket send buffer and body block size (default: 8KB)
	ReceiveBufferSize int // Socket receive buffer and receive block size (default: 8KB)

	// UserAgent is set on requests that carry none (default: go-docwire/<version>).
	UserAgent string

	// Engine runs socket operations; a process-wide engine is used when nil.
	Engine *connection.Engine

	// Logger receives phase transitions and handler faults; nil disables logging.
	Logger *zerolog.Logger
}

// SetDefaults sets default values for unspecified options
func (o *Options) SetDefaults() {
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}

	if o.ConnTimeout == 0 {
		o.ConnTimeout = 30 * time.Second
	}

	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}

	if o.WriteTimeout == 0 {
		o.WriteTimeout = 30 * time.Second
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

// connectionOptions maps the request options onto one socket.
func (o *Options) connectionOptions(events connection.Events) connection.Options {
	return connection.Options{
		ConnectTimeout:    o.ConnTimeout,
		SendTimeout:       o.WriteTimeout,
		ReceiveTimeout:    o.ReadTimeout,
		DisconnectTimeout: o.DisconnectTimeout,
		SendBufferSize:    o.SendBufferSize,
		ReceiveBufferSize: o.ReceiveBufferSize,
		Engine:            o.Engine,
		Logger:            o.Logger,
		Events:            events,
	}
}
