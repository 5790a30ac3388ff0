package transport

import (
	"net"
	"sync"

	"github.com/chirp-im/chirp/internal/framing"
)

// TCPSession frames a raw net.Conn with the length-prefixed application
// codec directly; there is no transport-level frame to unwrap first.
type TCPSession struct {
	conn    net.Conn
	onFrame FrameCallback
	onClose CloseCallback
	writeCh chan writeJob
	closed  sync.Once
	doneCh  chan struct{}
}

type writeJob struct {
	payload    []byte
	closeAfter bool
}

// NewTCPSession wraps conn and starts its read/write goroutines.
func NewTCPSession(conn net.Conn, onFrame FrameCallback, onClose CloseCallback) *TCPSession {
	s := &TCPSession{
		conn:    conn,
		onFrame: onFrame,
		onClose: onClose,
		writeCh: make(chan writeJob, writeQueueDepth),
		doneCh:  make(chan struct{}),
	}
	go s.writeLoop()
	go s.readLoop()
	return s
}

func (s *TCPSession) readLoop() {
	defer s.teardown()

	var framer framing.Framer
	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			framer.Append(buf[:n])
			for {
				payload, ok := framer.PopFrame()
				if !ok {
					break
				}
				if s.onFrame != nil {
					s.onFrame(s, payload)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *TCPSession) writeLoop() {
	for {
		select {
		case job := <-s.writeCh:
			if len(job.payload) > 0 {
				if _, err := s.conn.Write(job.payload); err != nil {
					s.Close()
					return
				}
			}
			if job.closeAfter {
				s.Close()
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

// Send implements Session.
func (s *TCPSession) Send(payload []byte) {
	s.enqueue(writeJob{payload: framing.Encode(payload)})
}

// SendAndClose implements Session.
func (s *TCPSession) SendAndClose(payload []byte) {
	s.enqueue(writeJob{payload: framing.Encode(payload), closeAfter: true})
}

func (s *TCPSession) enqueue(job writeJob) {
	select {
	case s.writeCh <- job:
	case <-s.doneCh:
	}
}

// Close implements Session.
func (s *TCPSession) Close() {
	s.teardown()
}

func (s *TCPSession) teardown() {
	s.closed.Do(func() {
		close(s.doneCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// RemoteAddr implements Session.
func (s *TCPSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}
