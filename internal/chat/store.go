// Package chat dispatches SEND_MESSAGE_REQ/GET_HISTORY_REQ (plus the same
// scaffolding LOGIN_REQ/LOGOUT_REQ flow the gateway speaks, run
// independently here since the chat service has its own session registry),
// and fans private messages out to the recipient when online.
package chat

import (
	"strconv"
	"strings"
	"sync"

	"github.com/chirp-im/chirp/internal/protocol"
)

const historyLimit = 100
const defaultPageSize = 50

// HistoryStore persists chat messages per channel and serves paginated
// history reads. MemoryHistoryStore and GormHistoryStore both implement it.
type HistoryStore interface {
	AddMessage(msg protocol.ChatMessage) error
	GetHistory(channelType protocol.ChannelType, channelID string, beforeTimestamp int64, limit int) (messages []protocol.ChatMessage, hasMore bool, err error)
}

// ChannelKey derives the storage key for a (type, id) pair.
func ChannelKey(channelType protocol.ChannelType, channelID string) string {
	return strconv.Itoa(int(channelType)) + ":" + channelID
}

// PrivateChannelID derives the deterministic channel id for a 1:1
// conversation between a and b, independent of send order.
func PrivateChannelID(a, b string) string {
	if strings.Compare(a, b) <= 0 {
		return a + "|" + b
	}
	return b + "|" + a
}

// MemoryHistoryStore is an in-process ring buffer per channel, bounded to
// historyLimit entries - the core's mandated default, with no external
// dependency.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	history map[string][]protocol.ChatMessage
}

// NewMemoryHistoryStore builds an empty MemoryHistoryStore.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{history: make(map[string][]protocol.ChatMessage)}
}

// AddMessage implements HistoryStore.
func (s *MemoryHistoryStore) AddMessage(msg protocol.ChatMessage) error {
	key := ChannelKey(msg.ChannelType, msg.ChannelID)
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.history[key], msg)
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	s.history[key] = msgs
	return nil
}

// GetHistory implements HistoryStore: messages strictly older than
// beforeTimestamp, newest first internally, returned oldest-first, capped at
// limit (default defaultPageSize).
func (s *MemoryHistoryStore) GetHistory(channelType protocol.ChannelType, channelID string, beforeTimestamp int64, limit int) ([]protocol.ChatMessage, bool, error) {
	key := ChannelKey(channelType, channelID)

	s.mu.Lock()
	all := s.history[key]
	s.mu.Unlock()

	if len(all) == 0 {
		return nil, false, nil
	}

	before := beforeTimestamp
	if before <= 0 {
		before = maxTimestamp(all) + 1
	}
	lim := limit
	if lim <= 0 {
		lim = defaultPageSize
	}

	var result []protocol.ChatMessage
	hasMore := false
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ServerTimestamp >= before {
			continue
		}
		result = append(result, all[i])
		if len(result) >= lim {
			hasMore = i > 0
			break
		}
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, hasMore, nil
}

// ChannelCount reports how many distinct channel keys currently hold
// history, for the admin HTTP surface.
func (s *MemoryHistoryStore) ChannelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func maxTimestamp(msgs []protocol.ChatMessage) int64 {
	var max int64
	for _, m := range msgs {
		if m.ServerTimestamp > max {
			max = m.ServerTimestamp
		}
	}
	return max
}
