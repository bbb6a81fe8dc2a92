package loopback

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatsdk/go-backend/internal/crypto"
	"chatsdk/go-backend/internal/engine"
	"chatsdk/go-backend/internal/identity"
	"chatsdk/go-backend/internal/waku"
	"chatsdk/go-backend/pkg/models"

	"github.com/google/uuid"
)

const (
	wireInvite  = "invite"
	wireMessage = "message"
	wireAck     = "ack"
)

var (
	errUnknownConversation = errors.New("unknown conversation")
	errUnexpectedSender    = errors.New("sender does not match conversation peer")
)

// wireFrame is the payload of every private waku message the engine sends.
type wireFrame struct {
	Type     string              `json:"type"`
	Bundle   *models.IntroBundle `json:"bundle,omitempty"`
	Envelope *crypto.Envelope    `json:"envelope,omitempty"`
	AckFor   string              `json:"ackFor,omitempty"`
	ConvID   string              `json:"conversationId,omitempty"`
}

func decodeContent(contentHex string) ([]byte, error) {
	content, err := hex.DecodeString(strings.TrimSpace(contentHex))
	if err != nil {
		return nil, fmt.Errorf("content is not hex: %w", err)
	}
	return content, nil
}

func (s *session) newPrivateConversation(done engine.Completion, introBundle, contentHex string) {
	if !s.ready() || !s.node.Connected() {
		done(engine.StatusErr, nil)
		return
	}
	bundle, err := identity.ParseIntroBundle(introBundle)
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}
	if bundle.IdentityID == s.ident.ID {
		done(engine.StatusErr, errorPayload(errSelfConversation))
		return
	}
	content, err := decodeContent(contentHex)
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}
	conv, _, err := s.store.PutConversation(conversationFromBundle(s.ident.ID, bundle, s.engine.now()))
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}

	own := s.ident.IntroBundle(s.engine.now())
	msg, err := s.publish(conv, content, func(env crypto.Envelope) wireFrame {
		return wireFrame{Type: wireInvite, Bundle: &own, Envelope: &env}
	})
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}
	if stored, ok := s.store.GetConversation(conv.ID); ok {
		conv = stored
	}
	s.logger.Info("private conversation opened", "operation", "newPrivateConversation",
		"conversation_id", conv.ID, "message_id", msg.ID)
	s.reply(done, conv)
}

func (s *session) sendMessage(done engine.Completion, convoID, contentHex string) {
	if !s.ready() || !s.node.Connected() {
		done(engine.StatusErr, nil)
		return
	}
	conv, ok := s.store.GetConversation(convoID)
	if !ok {
		done(engine.StatusErr, errorPayload(errUnknownConversation))
		return
	}
	content, err := decodeContent(contentHex)
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}
	msg, err := s.publish(conv, content, func(env crypto.Envelope) wireFrame {
		return wireFrame{Type: wireMessage, Envelope: &env}
	})
	if err != nil {
		done(engine.StatusErr, errorPayload(err))
		return
	}
	s.reply(done, models.SendResult{ID: msg.ID, ConversationID: conv.ID})
}

// publish seals content for conv, hands the frame built by frame to the
// transport and records the outbound message as sent.
func (s *session) publish(conv models.Conversation, content []byte, frame func(crypto.Envelope) wireFrame) (models.Message, error) {
	key, err := s.conversationKey(conv)
	if err != nil {
		return models.Message{}, err
	}
	now := s.engine.now().UTC()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       s.ident.ID,
		ContentHex:     hex.EncodeToString(content),
		Direction:      models.DirectionOutbound,
		Status:         models.MessageStatusSent,
		Timestamp:      now,
	}
	env, err := crypto.Seal(key, conv.ID, msg.ID, content, now)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.send(conv.PeerInboxID, msg.ID, frame(env)); err != nil {
		return models.Message{}, err
	}
	if _, err := s.store.SaveMessage(msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *session) send(recipient, id string, frame wireFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return s.node.PublishPrivate(ctx, waku.PrivateMessage{
		ID:        id,
		SenderID:  s.ident.InboxID,
		Recipient: recipient,
		Payload:   payload,
	})
}

func (s *session) conversationKey(conv models.Conversation) ([]byte, error) {
	if key, ok := s.keys[conv.ID]; ok {
		return key, nil
	}
	peerKey, err := identity.EncryptionKeyOf(models.IntroBundle{EncryptionKey: conv.PeerEncryptionKey})
	if err != nil {
		return nil, err
	}
	key, err := crypto.ConversationKey(s.ident.Keys.EncryptionPrivateKey, peerKey, s.ident.ID, conv.PeerID)
	if err != nil {
		return nil, err
	}
	s.keys[conv.ID] = key
	return key, nil
}

func conversationFromBundle(localID string, bundle models.IntroBundle, now time.Time) models.Conversation {
	return models.Conversation{
		ID:                crypto.ConversationID(localID, bundle.IdentityID),
		Type:              models.ConversationTypePrivate,
		PeerID:            bundle.IdentityID,
		PeerName:          bundle.Name,
		PeerInboxID:       bundle.InboxID,
		PeerEncryptionKey: bundle.EncryptionKey,
		CreatedAt:         now.UTC(),
	}
}

// receive handles one inbound transport message. Malformed or unexpected
// frames are logged and dropped.
func (s *session) receive(msg waku.PrivateMessage) {
	if !s.ready() {
		return
	}
	var frame wireFrame
	if err := json.Unmarshal(msg.Payload, &frame); err != nil {
		s.logger.Warn("dropping undecodable frame", "operation", "receive", "error", err)
		return
	}
	var err error
	switch frame.Type {
	case wireInvite:
		err = s.receiveInvite(msg, frame)
	case wireMessage:
		err = s.receiveMessage(msg, frame)
	case wireAck:
		err = s.receiveAck(msg, frame)
	default:
		err = fmt.Errorf("unknown frame type %q", frame.Type)
	}
	if err != nil {
		s.logger.Warn("dropping inbound frame", "operation", "receive", "frame_type", frame.Type, "error", err)
	}
}

func (s *session) receiveInvite(msg waku.PrivateMessage, frame wireFrame) error {
	if frame.Bundle == nil || frame.Envelope == nil {
		return crypto.ErrInvalidEnvelope
	}
	if err := identity.VerifyIntroBundle(*frame.Bundle); err != nil {
		return err
	}
	if frame.Bundle.InboxID != msg.SenderID {
		return errUnexpectedSender
	}
	candidate := conversationFromBundle(s.ident.ID, *frame.Bundle, s.engine.now())
	if frame.Envelope.ConversationID != candidate.ID {
		return errUnknownConversation
	}
	conv, created, err := s.store.PutConversation(candidate)
	if err != nil {
		return err
	}
	if created {
		s.emitPush(models.PushEvent{
			EventType:      models.PushNewConversation,
			ConversationID: conv.ID,
			SenderID:       conv.PeerID,
			PeerName:       conv.PeerName,
			Timestamp:      conv.CreatedAt,
		})
	}
	return s.accept(conv, *frame.Envelope)
}

func (s *session) receiveMessage(msg waku.PrivateMessage, frame wireFrame) error {
	if frame.Envelope == nil {
		return crypto.ErrInvalidEnvelope
	}
	conv, ok := s.store.GetConversation(frame.Envelope.ConversationID)
	if !ok {
		return errUnknownConversation
	}
	if conv.PeerInboxID != msg.SenderID {
		return errUnexpectedSender
	}
	return s.accept(conv, *frame.Envelope)
}

// accept decrypts env, stores the message, pushes new_message and acks it.
func (s *session) accept(conv models.Conversation, env crypto.Envelope) error {
	key, err := s.conversationKey(conv)
	if err != nil {
		return err
	}
	content, err := crypto.Open(key, env)
	if err != nil {
		return err
	}
	if s.replay.Seen(conv.ID, env.MessageID) {
		return crypto.ErrReplayDetected
	}
	msg := models.Message{
		ID:             env.MessageID,
		ConversationID: conv.ID,
		SenderID:       conv.PeerID,
		ContentHex:     hex.EncodeToString(content),
		Direction:      models.DirectionInbound,
		Status:         models.MessageStatusReceived,
		Timestamp:      env.SentAt.UTC(),
	}
	stored, err := s.store.SaveMessage(msg)
	if err != nil {
		return err
	}
	if stored {
		s.emitPush(models.PushEvent{
			EventType:      models.PushNewMessage,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			PeerName:       conv.PeerName,
			Content:        msg.ContentHex,
			Timestamp:      msg.Timestamp,
		})
	}
	ack := wireFrame{Type: wireAck, AckFor: msg.ID, ConvID: conv.ID}
	if err := s.send(conv.PeerInboxID, "ack-"+msg.ID, ack); err != nil {
		s.logger.Warn("delivery ack failed", "operation", "receive", "message_id", msg.ID, "error", err)
	}
	return nil
}

func (s *session) receiveAck(msg waku.PrivateMessage, frame wireFrame) error {
	stored, ok := s.store.GetMessage(frame.AckFor)
	if !ok || stored.Direction != models.DirectionOutbound || stored.ConversationID != frame.ConvID {
		return errUnknownConversation
	}
	conv, ok := s.store.GetConversation(stored.ConversationID)
	if !ok || conv.PeerInboxID != msg.SenderID {
		return errUnexpectedSender
	}
	if stored.Status == models.MessageStatusDelivered {
		return nil
	}
	updated, _, err := s.store.UpdateMessageStatus(stored.ID, models.MessageStatusDelivered)
	if err != nil {
		return err
	}
	s.emitPush(models.PushEvent{
		EventType:      models.PushDeliveryAck,
		ConversationID: updated.ConversationID,
		MessageID:      updated.ID,
		SenderID:       conv.PeerID,
		Timestamp:      s.engine.now().UTC(),
	})
	return nil
}
