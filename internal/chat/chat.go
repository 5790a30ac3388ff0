package chat

import (
	"context"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chirp-im/chirp/internal/ownership"
	"github.com/chirp-im/chirp/internal/protocol"
	"github.com/chirp-im/chirp/internal/rabbitmq"
	"github.com/chirp-im/chirp/internal/transport"
)

var messageCounter atomic.Uint64

func nextMessageID() string {
	n := messageCounter.Add(1)
	return "msg_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strconv.FormatUint(n, 10)
}

// Service dispatches the chat service's own scaffolding LOGIN_REQ/LOGOUT_REQ
// flow (independent of the gateway/auth path) plus SEND_MESSAGE_REQ and
// GET_HISTORY_REQ.
type Service struct {
	local *ownership.LocalMap
	store HistoryStore
	bus   *rabbitmq.ChatEventBus
}

// New builds a Service. bus may be nil, in which case sent messages are not
// mirrored anywhere beyond store.
func New(store HistoryStore, bus *rabbitmq.ChatEventBus) *Service {
	return &Service{local: ownership.NewLocalMap(), store: store, bus: bus}
}

// OnFrame is the transport.FrameCallback wired into every accepted session.
func (s *Service) OnFrame(sess transport.Session, payload []byte) {
	env, err := protocol.WireDecode(payload)
	if err != nil {
		log.Printf("chat: failed to decode envelope: %v", err)
		return
	}

	switch env.MsgID {
	case protocol.LoginReq:
		s.handleLogin(sess, env)
	case protocol.LogoutReq:
		s.handleLogout(sess, env)
	case protocol.SendMessageReq:
		s.handleSendMessage(sess, env)
	case protocol.GetHistoryReq:
		s.handleGetHistory(sess, env)
	}
}

// OnClose is the transport.CloseCallback wired into every accepted session.
func (s *Service) OnClose(sess transport.Session) {
	s.local.RemoveSession(sess)
}

// LocalSessionCount reports how many users this instance currently has a
// live session for, for the admin HTTP surface.
func (s *Service) LocalSessionCount() int {
	return s.local.Count()
}

func (s *Service) handleLogin(sess transport.Session, env protocol.Envelope) {
	var req protocol.LoginRequest
	if err := env.Decode(&req); err != nil || req.Token == "" {
		send(sess, protocol.LoginResp, env.Sequence, protocol.LoginResponse{
			Code: protocol.InvalidParam, ServerTime: time.Now().UnixMilli(),
		})
		return
	}

	userID := req.Token
	old := s.local.Set(userID, sess)
	if old != nil && old != sess {
		kick(old, "login from another device")
	}

	send(sess, protocol.LoginResp, env.Sequence, protocol.LoginResponse{
		Code:         protocol.OK,
		ServerTime:   time.Now().UnixMilli(),
		UserID:       userID,
		SessionID:    "chat_session_" + userID,
		KickPrevious: true,
		Kick:         &protocol.KickInfo{Reason: "login from another device"},
	})
}

func (s *Service) handleLogout(sess transport.Session, env protocol.Envelope) {
	var req protocol.LogoutRequest
	if err := env.Decode(&req); err != nil || req.UserID == "" {
		send(sess, protocol.LogoutResp, env.Sequence, protocol.LogoutResponse{
			Code: protocol.InvalidParam, ServerTime: time.Now().UnixMilli(),
		})
		return
	}
	if cur, ok := s.local.Get(req.UserID); !ok || cur != sess {
		send(sess, protocol.LogoutResp, env.Sequence, protocol.LogoutResponse{
			Code: protocol.AuthFailed, ServerTime: time.Now().UnixMilli(),
		})
		return
	}
	s.local.RemoveSession(sess)
	send(sess, protocol.LogoutResp, env.Sequence, protocol.LogoutResponse{
		Code: protocol.OK, ServerTime: time.Now().UnixMilli(),
	})
}

func (s *Service) handleSendMessage(sess transport.Session, env protocol.Envelope) {
	var req protocol.SendMessageRequest
	if err := env.Decode(&req); err != nil {
		s.sendMessageErr(sess, env.Sequence)
		return
	}
	if req.SenderID == "" ||
		(req.ChannelType == protocol.ChannelPrivate && req.ReceiverID == "") ||
		(req.ChannelType != protocol.ChannelPrivate && req.ChannelID == "") {
		s.sendMessageErr(sess, env.Sequence)
		return
	}

	msg := protocol.ChatMessage{
		MessageID:       nextMessageID(),
		SenderID:        req.SenderID,
		ReceiverID:      req.ReceiverID,
		ChannelType:     req.ChannelType,
		MsgType:         req.MsgType,
		Content:         req.Content,
		ServerTimestamp: time.Now().UnixMilli(),
		ClientTimestamp: req.ClientTimestamp,
	}
	if req.ChannelType == protocol.ChannelPrivate {
		msg.ChannelID = PrivateChannelID(req.SenderID, req.ReceiverID)
	} else {
		msg.ChannelID = req.ChannelID
	}

	if err := s.store.AddMessage(msg); err != nil {
		log.Printf("chat: failed to store message %s: %v", msg.MessageID, err)
		s.sendMessageErr(sess, env.Sequence)
		return
	}

	send(sess, protocol.SendMessageResp, env.Sequence, protocol.SendMessageResponse{
		Code: protocol.OK, MessageID: msg.MessageID, ServerTimestamp: msg.ServerTimestamp,
	})

	if s.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.bus.PublishSent(ctx, msg); err != nil {
			log.Printf("chat: failed to publish audit event for %s: %v", msg.MessageID, err)
		}
		cancel()
	}

	if req.ChannelType == protocol.ChannelPrivate {
		if recv, ok := s.local.Get(req.ReceiverID); ok {
			notify(recv, msg)
		}
	}
}

func (s *Service) handleGetHistory(sess transport.Session, env protocol.Envelope) {
	var req protocol.GetHistoryRequest
	if err := env.Decode(&req); err != nil || req.ChannelID == "" {
		send(sess, protocol.GetHistoryResp, env.Sequence, protocol.GetHistoryResponse{
			Code: protocol.InvalidParam,
		})
		return
	}

	messages, hasMore, err := s.store.GetHistory(req.ChannelType, req.ChannelID, req.BeforeTimestamp, req.Limit)
	if err != nil {
		log.Printf("chat: failed to read history for %s: %v", req.ChannelID, err)
		send(sess, protocol.GetHistoryResp, env.Sequence, protocol.GetHistoryResponse{Code: protocol.InternalError})
		return
	}

	send(sess, protocol.GetHistoryResp, env.Sequence, protocol.GetHistoryResponse{
		Code: protocol.OK, Messages: messages, HasMore: hasMore,
	})
}

func (s *Service) sendMessageErr(sess transport.Session, seq int64) {
	send(sess, protocol.SendMessageResp, seq, protocol.SendMessageResponse{
		Code: protocol.InvalidParam, ServerTimestamp: time.Now().UnixMilli(),
	})
}

func kick(sess transport.Session, reason string) {
	sendAndClose(sess, protocol.KickNotify, 0, protocol.KickInfo{Reason: reason})
}

func notify(sess transport.Session, msg protocol.ChatMessage) {
	send(sess, protocol.ChatMessageNotify, 0, msg)
}

func send(sess transport.Session, msgID protocol.MsgID, seq int64, body any) {
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		log.Printf("chat: failed to encode %v response: %v", msgID, err)
		return
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		log.Printf("chat: failed to wire-encode %v response: %v", msgID, err)
		return
	}
	sess.Send(raw)
}

func sendAndClose(sess transport.Session, msgID protocol.MsgID, seq int64, body any) {
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		log.Printf("chat: failed to encode %v response: %v", msgID, err)
		return
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		log.Printf("chat: failed to wire-encode %v response: %v", msgID, err)
		return
	}
	sess.SendAndClose(raw)
}
