package waku

import "sync"

// PrivateMessage is one addressed envelope on the private content topic.
type PrivateMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Recipient string `json:"recipient"`
	Payload   []byte `json:"payload"`
}

// Bus is the in-process transport used by the mock node. Messages for a
// recipient without a subscriber wait in its mailbox until one subscribes.
// Handlers run on the publisher's goroutine, in publish order, and must not
// block.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]func(PrivateMessage)
	mailbox     map[string][]PrivateMessage
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]func(PrivateMessage)),
		mailbox:     make(map[string][]PrivateMessage),
	}
}

var defaultBus = NewBus()

// DefaultBus is shared by every mock node that is not given its own bus.
func DefaultBus() *Bus {
	return defaultBus
}

func (b *Bus) publish(msg PrivateMessage) {
	b.mu.Lock()
	handler, ok := b.subscribers[msg.Recipient]
	if !ok {
		b.mailbox[msg.Recipient] = append(b.mailbox[msg.Recipient], msg)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	handler(msg)
}

func (b *Bus) subscribe(recipient string, handler func(PrivateMessage)) {
	b.mu.Lock()
	b.subscribers[recipient] = handler
	pending := b.mailbox[recipient]
	delete(b.mailbox, recipient)
	b.mu.Unlock()

	for _, msg := range pending {
		handler(msg)
	}
}

func (b *Bus) unsubscribe(recipient string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, recipient)
}

// Pending reports how many messages wait for recipient.
func (b *Bus) Pending(recipient string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mailbox[recipient])
}
