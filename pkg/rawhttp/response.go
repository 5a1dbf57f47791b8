package rawhttp

import (
	"github.com/WhileEndless/go-docwire/pkg/connection"
	"github.com/WhileEndless/go-docwire/pkg/message"
)

// Response represents the response from a raw HTTP request. Its Body is
// still bound to the connection; reading it to the end and closing it
// releases the socket.
type Response struct {
	*message.Response

	// Connection metadata
	ConnectedIP   string // Actual IP address connected to (after DNS resolution)
	ConnectedPort int    // Actual port connected to

	// Timing information
	Timing Timing

	conn *connection.Connection
}

// GetHeader returns the first value for a given header name (case-insensitive)
func (r *Response) GetHeader(name string) string {
	return r.Headers.Get(name)
}

// GetHeaders returns all values for a given header name (case-insensitive)
func (r *Response) GetHeaders(name string) []string {
	return r.Headers.Values(name)
}

// Stats returns the byte counters of the underlying connection.
func (r *Response) Stats() connection.Stats {
	if r.conn == nil {
		return connection.Stats{}
	}
	return r.conn.Stats()
}

// Close closes the body and with it the connection.
func (r *Response) Close() error {
	return r.Body.Close()
}
