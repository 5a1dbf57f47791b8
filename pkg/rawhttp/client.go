// Package rawhttp sends HTTP/1.1 requests over the asynchronous connection
// layer. Each request gets its own connection, response builder and body
// stream; nothing is pooled or shared between requests.
package rawhttp

import (
	"context"
	"io"

	"github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/message"
)

// Client is a thin façade that runs every request on a new HTTPConnection.
type Client struct {
	opts Options
}

// NewClient creates a Client. Options are copied.
func NewClient(opts Options) *Client {
	opts.SetDefaults()
	return &Client{opts: opts}
}

// Options returns the client's effective options.
func (c *Client) Options() Options {
	return c.opts
}

// Do starts req and returns immediately. The outcome is delivered to h on
// engine goroutines. Argument and request formatting errors are returned
// directly and no handler runs. ctx bounds the whole cycle up to the
// response head; it does not affect reading the body.
func (c *Client) Do(ctx context.Context, req *message.Request, h Handlers) (*HTTPConnection, error) {
	if req == nil || req.URL == nil {
		return nil, errors.NewInvalidArgumentError("nil request")
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	if c.opts.UserAgent != "" && !req.Headers.Has("User-Agent") {
		req.Headers.Set("User-Agent", c.opts.UserAgent)
	}
	if err := req.Prepare(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewConnectionError("request canceled", err)
	}

	hc := newHTTPConnection(c.opts, req, h)
	hc.run(ctx)
	return hc, nil
}

// Send runs req and waits for the response head. Timeouts are returned as
// errors matching errors.ErrTimeout. The caller must close the response.
func (c *Client) Send(ctx context.Context, req *message.Request) (*Response, error) {
	return c.SendWithProgress(ctx, req, nil)
}

// SendWithProgress is Send with a progress observer.
func (c *Client) SendWithProgress(ctx context.Context, req *message.Request, progress func(Progress)) (*Response, error) {
	type outcome struct {
		resp *Response
		err  error
	}
	ch := make(chan outcome, 1)

	_, err := c.Do(ctx, req, Handlers{
		Progress: progress,
		Complete: func(r *Response) { ch <- outcome{resp: r} },
		Error:    func(err error) { ch <- outcome{err: err} },
	})
	if err != nil {
		return nil, err
	}
	out := <-ch
	return out.resp, out.err
}

// Get sends a GET request for rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := message.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// Fetch sends a GET request and returns the decoded body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, []byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	body, err := resp.ReadAll()
	return resp, body, err
}

// Upload sends content with method to rawURL.
func (c *Client) Upload(ctx context.Context, method, rawURL string, content io.Reader, contentType string) (*Response, error) {
	req, err := message.NewRequest(method, rawURL, content)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Headers.Set("Content-Type", contentType)
	}
	return c.Send(ctx, req)
}
