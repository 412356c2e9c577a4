package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChatStage is where a chat is in the login dialog.
type ChatStage string

const (
	ChatAnonymous     ChatStage = "anonymous"
	ChatAwaitingPhone ChatStage = "awaiting_phone"
	ChatAwaitingCode  ChatStage = "awaiting_secret"
	ChatAuthenticated ChatStage = "authenticated"
)

// ChatSession is the per-chat login state of the bot.
type ChatSession struct {
	Stage        ChatStage `json:"stage"`
	Phone        string    `json:"phone,omitempty"`
	GuardianID   string    `json:"guardian_id,omitempty"`
	GuardianName string    `json:"guardian_name,omitempty"`
}

func (s ChatSession) Authenticated() bool {
	return s.Stage == ChatAuthenticated && s.GuardianID != ""
}

// ChatStore keeps chat sessions as JSON strings.
type ChatStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewChatStore(client *redis.Client, ttl time.Duration) *ChatStore {
	return &ChatStore{client: client, ttl: ttl}
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// Get returns the stored session, or an anonymous one.
func (s *ChatStore) Get(ctx context.Context, chatID int64) (ChatSession, error) {
	raw, err := s.client.Get(ctx, chatKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ChatSession{Stage: ChatAnonymous}, nil
	}
	if err != nil {
		return ChatSession{}, fmt.Errorf("load chat session %d: %w", chatID, err)
	}

	var cs ChatSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return ChatSession{}, fmt.Errorf("decode chat session %d: %w", chatID, err)
	}
	return cs, nil
}

func (s *ChatStore) Put(ctx context.Context, chatID int64, cs ChatSession) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode chat session %d: %w", chatID, err)
	}
	if err := s.client.Set(ctx, chatKey(chatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save chat session %d: %w", chatID, err)
	}
	return nil
}

func (s *ChatStore) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, chatKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete chat session %d: %w", chatID, err)
	}
	return nil
}
