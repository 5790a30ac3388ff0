package chat

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/chirp-im/chirp/internal/protocol"
)

// ChatMessageRecord is the GORM model a GormHistoryStore persists to MySQL.
// It is an alternative backend to MemoryHistoryStore for deployments that
// want history to survive a chat service restart; the wire-visible
// semantics (bounded-by-caller-limit pagination) are identical either way.
type ChatMessageRecord struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ChannelKey      string `gorm:"index:idx_channel_ts,priority:1;size:191"`
	MessageID       string `gorm:"uniqueIndex;size:64"`
	SenderID        string `gorm:"size:64"`
	ReceiverID      string `gorm:"size:64"`
	ChannelType     int
	ChannelID       string `gorm:"size:191"`
	MsgType         int
	Content         string `gorm:"type:text"`
	ServerTimestamp int64  `gorm:"index:idx_channel_ts,priority:2"`
	ClientTimestamp int64
}

func (ChatMessageRecord) TableName() string { return "chat_messages" }

// GormHistoryStore implements HistoryStore on top of GORM/MySQL.
type GormHistoryStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGormHistoryStore builds a GormHistoryStore and migrates its table.
func NewGormHistoryStore(db *gorm.DB) (*GormHistoryStore, error) {
	if err := db.AutoMigrate(&ChatMessageRecord{}); err != nil {
		return nil, err
	}
	return &GormHistoryStore{db: db, timeout: 3 * time.Second}, nil
}

// AddMessage implements HistoryStore. The insert and the eviction of rows
// beyond historyLimit for the same channel key run in one transaction, so a
// concurrent GetHistory never observes more than historyLimit rows settled
// for a channel.
func (s *GormHistoryStore) AddMessage(msg protocol.ChatMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := ChannelKey(msg.ChannelType, msg.ChannelID)
	rec := ChatMessageRecord{
		ChannelKey:      key,
		MessageID:       msg.MessageID,
		SenderID:        msg.SenderID,
		ReceiverID:      msg.ReceiverID,
		ChannelType:     int(msg.ChannelType),
		ChannelID:       msg.ChannelID,
		MsgType:         msg.MsgType,
		Content:         msg.Content,
		ServerTimestamp: msg.ServerTimestamp,
		ClientTimestamp: msg.ClientTimestamp,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		var keepIDs []uint64
		if err := tx.Model(&ChatMessageRecord{}).
			Where("channel_key = ?", key).
			Order("server_timestamp DESC").
			Limit(historyLimit).
			Pluck("id", &keepIDs).Error; err != nil {
			return err
		}
		if len(keepIDs) < historyLimit {
			return nil
		}
		return tx.Where("channel_key = ? AND id NOT IN ?", key, keepIDs).
			Delete(&ChatMessageRecord{}).Error
	})
}

// GetHistory implements HistoryStore.
func (s *GormHistoryStore) GetHistory(channelType protocol.ChannelType, channelID string, beforeTimestamp int64, limit int) ([]protocol.ChatMessage, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	before := beforeTimestamp
	if before <= 0 {
		before = time.Now().UnixMilli() + 1
	}
	lim := limit
	if lim <= 0 {
		lim = defaultPageSize
	}

	var recs []ChatMessageRecord
	err := s.db.WithContext(ctx).
		Where("channel_key = ? AND server_timestamp < ?", ChannelKey(channelType, channelID), before).
		Order("server_timestamp DESC").
		Limit(lim + 1).
		Find(&recs).Error
	if err != nil {
		return nil, false, err
	}

	hasMore := len(recs) > lim
	if hasMore {
		recs = recs[:lim]
	}

	messages := make([]protocol.ChatMessage, len(recs))
	for i, rec := range recs {
		messages[len(recs)-1-i] = protocol.ChatMessage{
			MessageID:       rec.MessageID,
			SenderID:        rec.SenderID,
			ReceiverID:      rec.ReceiverID,
			ChannelType:     protocol.ChannelType(rec.ChannelType),
			ChannelID:       rec.ChannelID,
			MsgType:         rec.MsgType,
			Content:         rec.Content,
			ServerTimestamp: rec.ServerTimestamp,
			ClientTimestamp: rec.ClientTimestamp,
		}
	}
	return messages, hasMore, nil
}
