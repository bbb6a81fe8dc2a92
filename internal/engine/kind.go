package engine

// Kind names the logical operation an engine call belongs to.
type Kind string

const (
	KindInitialize             Kind = "initialize"
	KindStart                  Kind = "start"
	KindStop                   Kind = "stop"
	KindDestroy                Kind = "destroy"
	KindGetID                  Kind = "getId"
	KindGetDefaultInboxID      Kind = "getDefaultInboxId"
	KindListConversations      Kind = "listConversations"
	KindGetConversation        Kind = "getConversation"
	KindNewPrivateConversation Kind = "newPrivateConversation"
	KindSendMessage            Kind = "sendMessage"
	KindGetIdentity            Kind = "getIdentity"
	KindCreateIntroBundle      Kind = "createIntroBundle"
	KindPush                   Kind = "push"
)

// Kinds lists every operation kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindInitialize,
		KindStart,
		KindStop,
		KindDestroy,
		KindGetID,
		KindGetDefaultInboxID,
		KindListConversations,
		KindGetConversation,
		KindNewPrivateConversation,
		KindSendMessage,
		KindGetIdentity,
		KindCreateIntroBundle,
		KindPush,
	}
}

func (k Kind) IsLifecycle() bool {
	switch k {
	case KindInitialize, KindStart, KindStop, KindDestroy:
		return true
	default:
		return false
	}
}
