package models

import (
	"strings"
	"time"
)

const (
	ConversationTypePrivate = "private"
	ConversationTypeGroup   = "group"
)

func NormalizeConversationType(raw string) string {
	switch strings.TrimSpace(raw) {
	case ConversationTypeGroup:
		return ConversationTypeGroup
	default:
		return ConversationTypePrivate
	}
}

// MergeMessageStatus never moves a message backwards in the
// pending < sent/received < delivered order.
func MergeMessageStatus(current, candidate string) string {
	if statusOrder(candidate) >= statusOrder(current) {
		return candidate
	}
	return current
}

func statusOrder(status string) int {
	switch status {
	case MessageStatusPending:
		return 1
	case MessageStatusSent, MessageStatusReceived:
		return 2
	case MessageStatusDelivered:
		return 3
	default:
		return 0
	}
}

// Touch counts one more message observed at the given time.
func (c Conversation) Touch(at time.Time) Conversation {
	c.MessageCount++
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
	return c
}
