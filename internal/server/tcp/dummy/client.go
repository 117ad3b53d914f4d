package dummy

import (
	"io"
	"net"
	"time"
)

// Client serves the data it was initialized with, a piece per read, and collects
// everything written into it.
type Client struct {
	data     [][]byte
	pending  []byte
	Written  []byte
	Deadline time.Time
	closed   bool
	// Err is returned once the data is exhausted. Defaults to io.EOF.
	Err error
}

func NewClient(data ...[]byte) *Client {
	return &Client{
		data: data,
		Err:  io.EOF,
	}
}

// Strings is a shorthand for NewClient.
func Strings(data ...string) *Client {
	pieces := make([][]byte, len(data))
	for i, piece := range data {
		pieces[i] = []byte(piece)
	}

	return NewClient(pieces...)
}

func (c *Client) Read() ([]byte, error) {
	if c.closed {
		return nil, net.ErrClosed
	}

	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if len(c.data) == 0 {
		return nil, c.Err
	}

	piece := c.data[0]
	c.data = c.data[1:]

	return piece, nil
}

func (c *Client) Pushback(b []byte) {
	c.pending = b
}

func (c *Client) Write(b []byte) error {
	if c.closed {
		return net.ErrClosed
	}

	c.Written = append(c.Written, b...)
	return nil
}

func (c *Client) SetReadDeadline(t time.Time) {
	c.Deadline = t
}

func (c *Client) Remote() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 16100}
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}
