package redisproto

import (
	"bufio"
	"net"
	"sync"
)

// MessageCallback is invoked for every "message" pushed on the subscribed
// channel.
type MessageCallback func(channel, payload string)

// Subscriber owns a dedicated connection and goroutine subscribed to a
// single Redis channel, mirroring the original's own-thread subscriber
// rather than a shared multiplexed pubsub connection.
type Subscriber struct {
	addr    string
	channel string
	cb      MessageCallback

	mu     sync.Mutex
	conn   net.Conn
	done   chan struct{}
	stopCh chan struct{}
}

// NewSubscriber builds a Subscriber targeting addr, ready to Start.
func NewSubscriber(addr, channel string, cb MessageCallback) *Subscriber {
	return &Subscriber{
		addr:    addr,
		channel: channel,
		cb:      cb,
		done:    make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start dials the connection, issues SUBSCRIBE, and runs the read loop on a
// background goroutine until Stop is called.
func (s *Subscriber) Start() error {
	conn, err := net.Dial("tcp", s.addr)
	if err != nil {
		return err
	}
	if _, err := conn.Write(BuildCommand("SUBSCRIBE", s.channel)); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.run(conn)
	return nil
}

func (s *Subscriber) run(conn net.Conn) {
	defer close(s.done)

	var parser Parser
	reader := bufio.NewReader(conn)
	buf := make([]byte, 4096)
	for {
		for {
			resp, ok := parser.Pop()
			if !ok {
				break
			}
			s.dispatch(resp)
		}

		n, err := reader.Read(buf)
		if n > 0 {
			parser.Append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *Subscriber) dispatch(resp Resp) {
	if resp.Type != TypeArray || len(resp.Array) < 3 {
		return
	}
	if resp.Array[0].Str != "message" {
		return
	}
	channel := resp.Array[1].Str
	payload := resp.Array[2].Str
	if s.cb != nil {
		s.cb(channel, payload)
	}
}

// Stop closes the connection, which unblocks the read loop, and waits for it
// to exit.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	<-s.done
}
