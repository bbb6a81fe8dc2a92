package chatsdk

import (
	"encoding/json"
	"time"

	"chatsdk/go-backend/internal/engine"
)

// TimestampLayout is the ISO-8601 layout stamped on every event.
const TimestampLayout = time.RFC3339

// Push discriminator values carried in the engine's eventType field.
const (
	pushTypeNewMessage      = "new_message"
	pushTypeNewConversation = "new_conversation"
	pushTypeDeliveryAck     = "delivery_ack"
)

// Translator turns engine completions into canonical events.
//
// Some kinds always emit and report success from the status; others emit only
// when the engine supplied a payload, so an engine failure without detail
// produces no event at all. Hosts rely on that asymmetry.
type Translator struct {
	now func() time.Time
}

func NewTranslator() *Translator {
	return &Translator{now: time.Now}
}

func newTranslatorWithClock(now func() time.Time) *Translator {
	return &Translator{now: now}
}

// Translate builds the event for one completion of kind. The second result is
// false when no event must be emitted.
func (t *Translator) Translate(kind engine.Kind, status engine.Status, payload []byte) (Event, bool) {
	ts := t.now().Format(TimestampLayout)
	body := string(payload)
	hasBody := len(payload) > 0

	switch kind {
	case engine.KindInitialize:
		return InitResult{lifecycleOutcome(status, body, ts)}, true
	case engine.KindStart:
		return StartResult{lifecycleOutcome(status, body, ts)}, true
	case engine.KindStop:
		return StopResult{lifecycleOutcome(status, body, ts)}, true
	case engine.KindDestroy:
		if !hasBody {
			return nil, false
		}
		return DestroyResult{Message: body, Timestamp: ts}, true
	case engine.KindGetID:
		if !hasBody {
			return nil, false
		}
		return GetIDResult{ID: body, Timestamp: ts}, true
	case engine.KindGetDefaultInboxID:
		if !hasBody {
			return nil, false
		}
		return GetDefaultInboxIDResult{ID: body, Timestamp: ts}, true
	case engine.KindListConversations:
		if !hasBody {
			return nil, false
		}
		return ListConversationsResult{DataResult{Data: body, Timestamp: ts}}, true
	case engine.KindGetConversation:
		if !hasBody {
			return nil, false
		}
		return GetConversationResult{DataResult{Data: body, Timestamp: ts}}, true
	case engine.KindGetIdentity:
		if !hasBody {
			return nil, false
		}
		return GetIdentityResult{DataResult{Data: body, Timestamp: ts}}, true
	case engine.KindNewPrivateConversation:
		return NewPrivateConversationResult{RequestOutcome{
			Success:   status.OK() && hasBody,
			Status:    status,
			Data:      body,
			Timestamp: ts,
		}}, true
	case engine.KindSendMessage:
		return SendMessageResult{RequestOutcome{
			Success:   status.OK(),
			Status:    status,
			Data:      body,
			Timestamp: ts,
		}}, true
	case engine.KindCreateIntroBundle:
		return CreateIntroBundleResult{RequestOutcome{
			Success:   status.OK() && hasBody,
			Status:    status,
			Data:      body,
			Timestamp: ts,
		}}, true
	case engine.KindPush:
		if !hasBody {
			return nil, false
		}
		return pushEvent(payload, ts), true
	default:
		return nil, false
	}
}

func lifecycleOutcome(status engine.Status, message, ts string) LifecycleOutcome {
	return LifecycleOutcome{
		Success:   status.OK(),
		Status:    status,
		Message:   message,
		Timestamp: ts,
	}
}

func pushEvent(payload []byte, ts string) Event {
	n := PushNotification{Payload: string(payload), Timestamp: ts}
	switch pushEventType(payload) {
	case pushTypeNewMessage:
		return NewMessage{n}
	case pushTypeNewConversation:
		return NewConversation{n}
	case pushTypeDeliveryAck:
		return DeliveryAck{n}
	default:
		return GenericEvent{n}
	}
}

// pushEventType reads the eventType discriminator. Anything that is not a JSON
// object with a string eventType yields "".
func pushEventType(payload []byte) string {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	raw, ok := envelope["eventType"]
	if !ok {
		return ""
	}
	var eventType string
	if err := json.Unmarshal(raw, &eventType); err != nil {
		return ""
	}
	return eventType
}
