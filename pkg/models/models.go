package models

import "time"

// Identity is the engine's own account as reported by getIdentity.
type Identity struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name,omitempty"`
	InboxID             string    `json:"inboxId"`
	SigningPublicKey    string    `json:"signingPublicKey"`
	EncryptionPublicKey string    `json:"encryptionPublicKey"`
	CreatedAt           time.Time `json:"createdAt"`
}

// IntroBundle is the signed card a peer needs to open a private conversation.
// Keys and signature are base58 encoded.
type IntroBundle struct {
	Version       int       `json:"version"`
	IdentityID    string    `json:"identityId"`
	Name          string    `json:"name,omitempty"`
	InboxID       string    `json:"inboxId"`
	SigningKey    string    `json:"signingKey"`
	EncryptionKey string    `json:"encryptionKey"`
	IssuedAt      time.Time `json:"issuedAt"`
	Signature     string    `json:"signature"`
}

type Conversation struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	PeerID            string    `json:"peerId"`
	PeerName          string    `json:"peerName,omitempty"`
	PeerInboxID       string    `json:"peerInboxId"`
	PeerEncryptionKey string    `json:"peerEncryptionKey"`
	CreatedAt         time.Time `json:"createdAt"`
	LastMessageAt     time.Time `json:"lastMessageAt,omitempty"`
	MessageCount      int       `json:"messageCount"`
}

// Message content is carried hex encoded, the same form the host sends.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ContentHex     string    `json:"content"`
	Direction      string    `json:"direction"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationDetail is the getConversation payload.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusReceived  = "received"
)

const (
	PushNewConversation = "new_conversation"
	PushNewMessage      = "new_message"
	PushDeliveryAck     = "delivery_ack"
)

// PushEvent is the payload of a push notification. EventType selects the
// host-facing event name.
type PushEvent struct {
	EventType      string    `json:"eventType"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId,omitempty"`
	SenderID       string    `json:"senderId,omitempty"`
	PeerName       string    `json:"peerName,omitempty"`
	Content        string    `json:"content,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SendResult is the sendMessage completion payload.
type SendResult struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}
