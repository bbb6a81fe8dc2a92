package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatsdk/go-backend/internal/securestore"
	"chatsdk/go-backend/pkg/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedConversation(t *testing.T, s *ConversationStore, id string, created time.Time) {
	t.Helper()
	if _, createdNow, err := s.PutConversation(models.Conversation{ID: id, PeerID: "peer-" + id, CreatedAt: created}); err != nil || !createdNow {
		t.Fatalf("put conversation %s: created=%v err=%v", id, createdNow, err)
	}
}

func TestPutConversationIsIdempotent(t *testing.T) {
	s := NewConversationStore()
	seedConversation(t, s, "c1", base)
	got, created, err := s.PutConversation(models.Conversation{ID: "c1", PeerID: "someone-else"})
	if err != nil || created {
		t.Fatalf("second put: created=%v err=%v", created, err)
	}
	if got.PeerID != "peer-c1" || got.Type != models.ConversationTypePrivate {
		t.Fatalf("existing conversation must be returned unchanged, got %+v", got)
	}
}

func TestSaveMessageUpdatesConversation(t *testing.T) {
	s := NewConversationStore()
	seedConversation(t, s, "c1", base)
	seedConversation(t, s, "c2", base.Add(time.Minute))

	if _, err := s.SaveMessage(models.Message{ID: "m0", ConversationID: "missing"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	msg := models.Message{ID: "m1", ConversationID: "c1", ContentHex: "6869", Timestamp: base.Add(time.Hour)}
	if saved, err := s.SaveMessage(msg); err != nil || !saved {
		t.Fatalf("save: saved=%v err=%v", saved, err)
	}
	if saved, err := s.SaveMessage(msg); err != nil || saved {
		t.Fatalf("duplicate save must be a no-op: saved=%v err=%v", saved, err)
	}
	conflict := msg
	conflict.ContentHex = "00"
	if _, err := s.SaveMessage(conflict); !errors.Is(err, ErrMessageIDConflict) {
		t.Fatalf("expected ErrMessageIDConflict, got %v", err)
	}

	list := s.ListConversations()
	if len(list) != 2 || list[0].ID != "c1" {
		t.Fatalf("most recently active conversation must come first: %+v", list)
	}
	if list[0].MessageCount != 1 {
		t.Fatalf("expected one message counted, got %d", list[0].MessageCount)
	}
}

func TestMessageStatusMonotonicTransitions(t *testing.T) {
	s := NewConversationStore()
	seedConversation(t, s, "c1", base)
	if _, err := s.SaveMessage(models.Message{ID: "m1", ConversationID: "c1", Status: models.MessageStatusPending, Timestamp: base}); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, status := range []string{models.MessageStatusSent, models.MessageStatusDelivered, models.MessageStatusSent} {
		if _, ok, err := s.UpdateMessageStatus("m1", status); err != nil || !ok {
			t.Fatalf("update %s: ok=%v err=%v", status, ok, err)
		}
	}
	got, _ := s.GetMessage("m1")
	if got.Status != models.MessageStatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
	if _, ok, err := s.UpdateMessageStatus("nope", models.MessageStatusSent); err != nil || ok {
		t.Fatalf("unknown message: ok=%v err=%v", ok, err)
	}
}

func TestListMessagesOrderAndPaging(t *testing.T) {
	s := NewConversationStore()
	seedConversation(t, s, "c1", base)
	seedConversation(t, s, "c2", base)
	offsets := map[string]time.Duration{"m3": 2 * time.Second, "m1": 0, "m2": time.Second}
	for _, id := range []string{"m3", "m1", "m2"} {
		msg := models.Message{ID: id, ConversationID: "c1", Timestamp: base.Add(offsets[id])}
		if _, err := s.SaveMessage(msg); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if _, err := s.SaveMessage(models.Message{ID: "other", ConversationID: "c2", Timestamp: base}); err != nil {
		t.Fatalf("save other: %v", err)
	}

	all := s.ListMessages("c1", 0, 0)
	if len(all) != 3 || all[0].ID != "m1" || all[2].ID != "m3" {
		t.Fatalf("unexpected order: %+v", all)
	}
	page := s.ListMessages("c1", 1, 1)
	if len(page) != 1 || page[0].ID != "m2" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if got := s.ListMessages("c1", 10, 5); len(got) != 0 {
		t.Fatalf("offset past end must be empty, got %+v", got)
	}
}

func TestEncryptedStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "conversations.enc")
	s, err := OpenConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedConversation(t, s, "c1", base)
	if _, err := s.SaveMessage(models.Message{ID: "m1", ConversationID: "c1", ContentHex: "6869", Timestamp: base}); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := OpenConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if c, ok := reopened.GetConversation("c1"); !ok || c.MessageCount != 1 {
		t.Fatalf("conversation lost across reopen: %+v", c)
	}
	if m, ok := reopened.GetMessage("m1"); !ok || m.ContentHex != "6869" {
		t.Fatalf("message lost across reopen: %+v", m)
	}

	if _, err := OpenConversationStore(path, "wrong"); !errors.Is(err, securestore.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestEncryptedStoreTamperFailsAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.enc")
	s, err := OpenConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedConversation(t, s, "c1", base)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file failed: %v", err)
	}
	data[len(data)-3] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write tampered file failed: %v", err)
	}
	_, err = OpenConversationStore(path, "pass")
	if !errors.Is(err, securestore.ErrAuthFailed) && !errors.Is(err, securestore.ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed or ErrInvalid, got %v", err)
	}
}
