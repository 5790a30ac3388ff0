package redisproto

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client is a synchronous RESP2 connection. Each call dials a fresh
// connection, sends one command, reads one reply, and closes - matching the
// original's stateless per-call style rather than a pooled client.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient builds a Client targeting addr (host:port).
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

func (c *Client) call(args ...string) (Resp, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return Resp{}, fmt.Errorf("redisproto: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := conn.Write(BuildCommand(args...)); err != nil {
		return Resp{}, fmt.Errorf("redisproto: write: %w", err)
	}

	var parser Parser
	reader := bufio.NewReader(conn)
	buf := make([]byte, 4096)
	for {
		if resp, ok := parser.Pop(); ok {
			return resp, nil
		}
		n, err := reader.Read(buf)
		if n > 0 {
			parser.Append(buf[:n])
			if resp, ok := parser.Pop(); ok {
				return resp, nil
			}
		}
		if err != nil {
			return Resp{}, fmt.Errorf("redisproto: read: %w", err)
		}
	}
}

// Get returns the value for key, and ok=false when it does not exist.
func (c *Client) Get(key string) (string, bool, error) {
	r, err := c.call("GET", key)
	if err != nil {
		return "", false, err
	}
	if r.Type == TypeNull {
		return "", false, nil
	}
	return r.Str, true, nil
}

// SetEx sets key to value with a TTL in seconds.
func (c *Client) SetEx(key, value string, ttlSeconds int) error {
	r, err := c.call("SETEX", key, fmt.Sprintf("%d", ttlSeconds), value)
	if err != nil {
		return err
	}
	if r.Type == TypeError {
		return fmt.Errorf("redisproto: SETEX error: %s", r.Str)
	}
	return nil
}

// Del removes key. It does not error when the key was already absent.
func (c *Client) Del(key string) error {
	r, err := c.call("DEL", key)
	if err != nil {
		return err
	}
	if r.Type == TypeError {
		return fmt.Errorf("redisproto: DEL error: %s", r.Str)
	}
	return nil
}

// Publish sends message on channel and returns the number of subscribers
// that received it.
func (c *Client) Publish(channel, message string) (int64, error) {
	r, err := c.call("PUBLISH", channel, message)
	if err != nil {
		return 0, err
	}
	if r.Type == TypeError {
		return 0, fmt.Errorf("redisproto: PUBLISH error: %s", r.Str)
	}
	return r.Integer, nil
}
