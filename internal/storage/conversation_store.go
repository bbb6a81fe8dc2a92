package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"chatsdk/go-backend/internal/securestore"
	"chatsdk/go-backend/pkg/models"
)

var (
	ErrMessageIDConflict    = errors.New("message id conflict")
	ErrConversationNotFound = errors.New("conversation not found")
)

type snapshot struct {
	Conversations map[string]models.Conversation `json:"conversations"`
	Messages      map[string]models.Message      `json:"messages"`
}

// ConversationStore keeps conversations and their messages. A mutation
// persists the next maps before swapping them in.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]models.Conversation
	messages      map[string]models.Message
	path          string
	secret        string
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string]models.Message),
	}
}

// OpenConversationStore loads the snapshot at path, sealed under passphrase
// when it is non-empty.
func OpenConversationStore(path, passphrase string) (*ConversationStore, error) {
	s := NewConversationStore()
	s.path = path
	s.secret = passphrase
	if path == "" {
		return s, nil
	}
	var snap snapshot
	found, err := securestore.ReadJSON(path, passphrase, &snap)
	if err != nil {
		return nil, err
	}
	if found {
		if snap.Conversations != nil {
			s.conversations = snap.Conversations
		}
		if snap.Messages != nil {
			s.messages = snap.Messages
		}
	}
	return s, nil
}

// PutConversation inserts c unless a conversation with the same id exists.
// It returns the stored conversation and whether it was created.
func (s *ConversationStore) PutConversation(c models.Conversation) (models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[c.ID]; ok {
		return existing, false, nil
	}
	c.Type = models.NormalizeConversationType(c.Type)
	next := cloneMap(s.conversations)
	next[c.ID] = c
	if err := s.persistLocked(next, s.messages); err != nil {
		return models.Conversation{}, false, err
	}
	s.conversations = next
	return c, true, nil
}

func (s *ConversationStore) GetConversation(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// ListConversations returns conversations, most recently active first.
func (s *ConversationStore) ListConversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := lastActivity(out[i]), lastActivity(out[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SaveMessage stores msg and counts it on its conversation. Saving the same
// message twice is a no-op; a different message under a known id is
// ErrMessageIDConflict.
func (s *ConversationStore) SaveMessage(msg models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return false, ErrConversationNotFound
	}
	if existing, ok := s.messages[msg.ID]; ok {
		if messagesEqual(existing, msg) {
			return false, nil
		}
		return false, ErrMessageIDConflict
	}
	nextMessages := cloneMap(s.messages)
	nextMessages[msg.ID] = msg
	nextConversations := cloneMap(s.conversations)
	nextConversations[conv.ID] = conv.Touch(msg.Timestamp)
	if err := s.persistLocked(nextConversations, nextMessages); err != nil {
		return false, err
	}
	s.messages = nextMessages
	s.conversations = nextConversations
	return true, nil
}

func (s *ConversationStore) UpdateMessageStatus(messageID, status string) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, false, nil
	}
	merged := models.MergeMessageStatus(msg.Status, status)
	if merged == msg.Status {
		return msg, true, nil
	}
	msg.Status = merged
	next := cloneMap(s.messages)
	next[messageID] = msg
	if err := s.persistLocked(s.conversations, next); err != nil {
		return models.Message{}, false, err
	}
	s.messages = next
	return msg, true, nil
}

func (s *ConversationStore) GetMessage(messageID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	return msg, ok
}

// ListMessages returns the messages of a conversation, oldest first.
func (s *ConversationStore) ListMessages(conversationID string, limit, offset int) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filtered := make([]models.Message, 0)
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			filtered = append(filtered, msg)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].Timestamp.Equal(filtered[j].Timestamp) {
			return filtered[i].Timestamp.Before(filtered[j].Timestamp)
		}
		return filtered[i].ID < filtered[j].ID
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return []models.Message{}
	}
	filtered = filtered[offset:]
	if limit > 0 && limit < len(filtered) {
		return append([]models.Message(nil), filtered[:limit]...)
	}
	return filtered
}

func (s *ConversationStore) persistLocked(conversations map[string]models.Conversation, messages map[string]models.Message) error {
	if s.path == "" {
		return nil
	}
	return securestore.WriteJSON(s.path, s.secret, snapshot{
		Conversations: conversations,
		Messages:      messages,
	})
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func lastActivity(c models.Conversation) time.Time {
	if c.LastMessageAt.After(c.CreatedAt) {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

func messagesEqual(a, b models.Message) bool {
	return a.ID == b.ID &&
		a.ConversationID == b.ConversationID &&
		a.SenderID == b.SenderID &&
		a.ContentHex == b.ContentHex &&
		a.Direction == b.Direction &&
		a.Timestamp.Equal(b.Timestamp)
}
