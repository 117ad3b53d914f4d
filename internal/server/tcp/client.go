package tcp

import (
	"errors"
	"net"
	"os"
	"time"
)

type Client interface {
	// Read returns the next piece of data. The piece is valid until the next call.
	Read() ([]byte, error)
	// Pushback preserves a chunk of data from previous read for the next read.
	Pushback([]byte)
	Write([]byte) error
	// SetReadDeadline limits all the following reads.
	SetReadDeadline(time.Time)
	Remote() net.Addr
	Close() error
}

type client struct {
	conn     net.Conn
	buff     []byte
	pending  []byte
	deadline time.Time
	applied  time.Time
}

func NewClient(conn net.Conn, buff []byte) Client {
	return &client{
		conn: conn,
		buff: buff,
	}
}

func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	// the deadline is usually the same between reads, so don't pay a syscall for nothing
	if !c.deadline.Equal(c.applied) {
		if err := c.conn.SetReadDeadline(c.deadline); err != nil {
			return nil, err
		}

		c.applied = c.deadline
	}

	n, err := c.conn.Read(c.buff)
	return c.buff[:n], err
}

func (c *client) Pushback(b []byte) {
	c.pending = b
}

func (c *client) Write(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

func (c *client) SetReadDeadline(t time.Time) {
	c.deadline = t
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}

// IsTimeout reports whether the error is caused by an exceeded deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
