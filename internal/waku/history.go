package waku

import (
	"encoding/json"
	"strings"
)

const defaultHistoryLimit = 100

// historyPeers lists the store peers a history query tries in order. At most
// fanout distinct bootstrap nodes are tried before an empty entry, which lets
// go-waku choose any connected store peer. Without failover only the first
// candidate is kept.
func historyPeers(bootstrap []string, fanout int, failover bool) []string {
	if fanout <= 0 {
		fanout = 1
	}
	peers := make([]string, 0, fanout+1)
	seen := make(map[string]struct{}, len(bootstrap))
	for _, addr := range bootstrap {
		if len(peers) == fanout {
			break
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		peers = append(peers, addr)
	}
	peers = append(peers, "")
	if !failover {
		return peers[:1]
	}
	return peers
}

// historyCollector gathers store pages into the messages for one recipient,
// dropping undecodable payloads and duplicates while keeping store order.
type historyCollector struct {
	recipient string
	limit     int
	seen      map[string]struct{}
	out       []PrivateMessage
}

func newHistoryCollector(recipient string, limit int) *historyCollector {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &historyCollector{
		recipient: recipient,
		limit:     limit,
		seen:      make(map[string]struct{}),
	}
}

func (c *historyCollector) add(payload []byte) {
	if c.full() {
		return
	}
	var msg PrivateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	if msg.Recipient != c.recipient || msg.ID == "" {
		return
	}
	if _, dup := c.seen[msg.ID]; dup {
		return
	}
	c.seen[msg.ID] = struct{}{}
	c.out = append(c.out, msg)
}

func (c *historyCollector) full() bool {
	return len(c.out) >= c.limit
}

func (c *historyCollector) messages() []PrivateMessage {
	return c.out
}
