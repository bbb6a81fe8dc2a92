package waku

import "strings"

const (
	DefaultPubsubTopic = "/waku/2/default-waku/proto"
	contentTopicPrefix = "/chatsdk/1/"
)

// InboxContentTopic is the content topic that carries private messages for one
// inbox. Relay subscriptions and store queries filter on it, so a node only
// decodes traffic addressed to itself.
func InboxContentTopic(inboxID string) string {
	return contentTopicPrefix + "inbox-" + strings.TrimSpace(inboxID) + "/json"
}
