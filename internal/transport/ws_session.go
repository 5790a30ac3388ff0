package transport

import (
	"bufio"
	"net"
	"sync"

	"github.com/chirp-im/chirp/internal/framing"
	"github.com/chirp-im/chirp/internal/wsproto"
)

// WebSocketSession performs the RFC 6455 handshake in NewWebSocketSession, then treats
// each unmasked WebSocket binary frame payload as a feed into the same
// length-prefixed application framer TCPSession uses - a WS frame boundary
// and an application message boundary are not assumed to coincide.
type WebSocketSession struct {
	conn    net.Conn
	onFrame FrameCallback
	onClose CloseCallback
	writeCh chan writeJob
	closed  sync.Once
	doneCh  chan struct{}
}

// NewWebSocketSession performs the handshake synchronously on the calling
// goroutine (the caller is expected to be a per-connection accept
// goroutine), then starts the read/write loops. It returns an error if the
// handshake fails, in which case the connection has already been closed.
func NewWebSocketSession(conn net.Conn, onFrame FrameCallback, onClose CloseCallback) (*WebSocketSession, error) {
	reader := bufio.NewReader(conn)
	hs, err := wsproto.ReadHandshake(reader)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := wsproto.WriteAccept(conn, hs); err != nil {
		conn.Close()
		return nil, err
	}

	s := &WebSocketSession{
		conn:    conn,
		onFrame: onFrame,
		onClose: onClose,
		writeCh: make(chan writeJob, writeQueueDepth),
		doneCh:  make(chan struct{}),
	}

	var leftover []byte
	if n := reader.Buffered(); n > 0 {
		leftover = make([]byte, n)
		_, _ = reader.Read(leftover)
	}

	go s.writeLoop()
	go s.readLoop(leftover)
	return s, nil
}

func (s *WebSocketSession) readLoop(leftover []byte) {
	defer s.teardown()

	var wsParser wsproto.FrameParser
	var appFramer framing.Framer
	if len(leftover) > 0 {
		wsParser.Append(leftover)
	}

	buf := make([]byte, readBufSize)
	for {
		for {
			frame, ok := wsParser.PopFrame()
			if !ok {
				break
			}
			switch frame.Opcode {
			case wsproto.OpBinary:
				appFramer.Append(frame.Payload)
				for {
					payload, ok := appFramer.PopFrame()
					if !ok {
						break
					}
					if s.onFrame != nil {
						s.onFrame(s, payload)
					}
				}
			case wsproto.OpText:
				// text frames are not produced by this protocol; ignore rather
				// than feed into the length-prefixed application framer.
			case wsproto.OpPing:
				s.enqueueRaw(wsproto.BuildFrame(wsproto.OpPong, frame.Payload, false))
			case wsproto.OpClose:
				return
			}
			if !frame.Fin {
				return
			}
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			wsParser.Append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *WebSocketSession) writeLoop() {
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

// Send implements Session, framing payload as an application message and
// wrapping it in a single unmasked WebSocket binary frame.
func (s *WebSocketSession) Send(payload []byte) {
	s.enqueueRaw(wsproto.BuildFrame(wsproto.OpBinary, framing.Encode(payload), false))
}

// SendAndClose implements Session.
func (s *WebSocketSession) SendAndClose(payload []byte) {
	s.enqueue(writeJob{payload: wsproto.BuildFrame(wsproto.OpBinary, framing.Encode(payload), false), closeAfter: true})
}

func (s *WebSocketSession) enqueueRaw(raw []byte) {
	s.enqueue(writeJob{payload: raw})
}

func (s *WebSocketSession) enqueue(job writeJob) {
	select {
	case s.writeCh <- job:
	case <-s.doneCh:
	}
}

// Close implements Session.
func (s *WebSocketSession) Close() {
	s.teardown()
}

func (s *WebSocketSession) teardown() {
	s.closed.Do(func() {
		close(s.doneCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// RemoteAddr implements Session.
func (s *WebSocketSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}
