package chatsdk

import "chatsdk/go-backend/internal/engine"

// Canonical event names.
const (
	EventInitResult                   = "InitResult"
	EventStartResult                  = "StartResult"
	EventStopResult                   = "StopResult"
	EventDestroyResult                = "DestroyResult"
	EventGetIDResult                  = "GetIdResult"
	EventGetDefaultInboxIDResult      = "GetDefaultInboxIdResult"
	EventListConversationsResult      = "ListConversationsResult"
	EventGetConversationResult        = "GetConversationResult"
	EventNewPrivateConversationResult = "NewPrivateConversationResult"
	EventSendMessageResult            = "SendMessageResult"
	EventGetIdentityResult            = "GetIdentityResult"
	EventCreateIntroBundleResult      = "CreateIntroBundleResult"
	EventNewMessage                   = "NewMessage"
	EventNewConversation              = "NewConversation"
	EventDeliveryAck                  = "DeliveryAck"
	EventGeneric                      = "GenericEvent"
)

// Event is a canonical outward record. The set of implementations is closed;
// consumers type-switch on the concrete types below.
type Event interface {
	// Name is the canonical event name.
	Name() string
	// Fields returns the event values in wire order, timestamp last.
	Fields() []any
	// Time is the ISO-8601 timestamp the event was built at.
	Time() string

	sealed()
}

// LifecycleOutcome is shared by the init/start/stop results.
type LifecycleOutcome struct {
	Success   bool          `json:"success"`
	Status    engine.Status `json:"status"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

func (o LifecycleOutcome) Fields() []any {
	return []any{o.Success, int(o.Status), o.Message, o.Timestamp}
}

func (o LifecycleOutcome) Time() string { return o.Timestamp }

type InitResult struct{ LifecycleOutcome }

type StartResult struct{ LifecycleOutcome }

type StopResult struct{ LifecycleOutcome }

func (InitResult) Name() string  { return EventInitResult }
func (StartResult) Name() string { return EventStartResult }
func (StopResult) Name() string  { return EventStopResult }

func (InitResult) sealed()  {}
func (StartResult) sealed() {}
func (StopResult) sealed()  {}

type DestroyResult struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (DestroyResult) Name() string    { return EventDestroyResult }
func (e DestroyResult) Fields() []any { return []any{e.Message, e.Timestamp} }
func (e DestroyResult) Time() string  { return e.Timestamp }
func (DestroyResult) sealed()         {}

type GetIDResult struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

func (GetIDResult) Name() string    { return EventGetIDResult }
func (e GetIDResult) Fields() []any { return []any{e.ID, e.Timestamp} }
func (e GetIDResult) Time() string  { return e.Timestamp }
func (GetIDResult) sealed()         {}

type GetDefaultInboxIDResult struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

func (GetDefaultInboxIDResult) Name() string    { return EventGetDefaultInboxIDResult }
func (e GetDefaultInboxIDResult) Fields() []any { return []any{e.ID, e.Timestamp} }
func (e GetDefaultInboxIDResult) Time() string  { return e.Timestamp }
func (GetDefaultInboxIDResult) sealed()         {}

// DataResult carries a payload-gated JSON document.
type DataResult struct {
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

func (e DataResult) Fields() []any { return []any{e.Data, e.Timestamp} }
func (e DataResult) Time() string  { return e.Timestamp }

type ListConversationsResult struct{ DataResult }

type GetConversationResult struct{ DataResult }

type GetIdentityResult struct{ DataResult }

func (ListConversationsResult) Name() string { return EventListConversationsResult }
func (GetConversationResult) Name() string   { return EventGetConversationResult }
func (GetIdentityResult) Name() string       { return EventGetIdentityResult }

func (ListConversationsResult) sealed() {}
func (GetConversationResult) sealed()   {}
func (GetIdentityResult) sealed()       {}

// RequestOutcome is shared by the always-emitting request results.
type RequestOutcome struct {
	Success   bool          `json:"success"`
	Status    engine.Status `json:"status"`
	Data      string        `json:"data"`
	Timestamp string        `json:"timestamp"`
}

func (o RequestOutcome) Fields() []any {
	return []any{o.Success, int(o.Status), o.Data, o.Timestamp}
}

func (o RequestOutcome) Time() string { return o.Timestamp }

type NewPrivateConversationResult struct{ RequestOutcome }

type SendMessageResult struct{ RequestOutcome }

type CreateIntroBundleResult struct{ RequestOutcome }

func (NewPrivateConversationResult) Name() string { return EventNewPrivateConversationResult }
func (SendMessageResult) Name() string            { return EventSendMessageResult }
func (CreateIntroBundleResult) Name() string      { return EventCreateIntroBundleResult }

func (NewPrivateConversationResult) sealed() {}
func (SendMessageResult) sealed()            {}
func (CreateIntroBundleResult) sealed()      {}

// PushNotification is shared by the events delivered through the push
// subscription. Payload is the engine document verbatim.
type PushNotification struct {
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

func (p PushNotification) Fields() []any { return []any{p.Payload, p.Timestamp} }
func (p PushNotification) Time() string  { return p.Timestamp }

type NewMessage struct{ PushNotification }

type NewConversation struct{ PushNotification }

type DeliveryAck struct{ PushNotification }

type GenericEvent struct{ PushNotification }

func (NewMessage) Name() string      { return EventNewMessage }
func (NewConversation) Name() string { return EventNewConversation }
func (DeliveryAck) Name() string     { return EventDeliveryAck }
func (GenericEvent) Name() string    { return EventGeneric }

func (NewMessage) sealed()      {}
func (NewConversation) sealed() {}
func (DeliveryAck) sealed()     {}
func (GenericEvent) sealed()    {}
