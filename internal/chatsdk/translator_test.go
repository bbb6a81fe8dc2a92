package chatsdk

import (
	"testing"
	"time"

	"chatsdk/go-backend/internal/engine"
)

func testTranslator() *Translator {
	return newTranslatorWithClock(func() time.Time { return fixedNow })
}

func TestTranslateAlwaysEmittingKinds(t *testing.T) {
	tr := testTranslator()
	cases := []struct {
		kind    engine.Kind
		status  engine.Status
		payload string
		name    string
		success bool
	}{
		{engine.KindInitialize, engine.StatusOK, "", EventInitResult, true},
		{engine.KindInitialize, engine.StatusErr, "", EventInitResult, false},
		{engine.KindStart, engine.StatusOK, "", EventStartResult, true},
		{engine.KindStop, engine.StatusMissingCallback, "", EventStopResult, false},
		{engine.KindSendMessage, engine.StatusOK, "", EventSendMessageResult, true},
		{engine.KindSendMessage, engine.StatusErr, "", EventSendMessageResult, false},
		{engine.KindNewPrivateConversation, engine.StatusOK, "", EventNewPrivateConversationResult, false},
		{engine.KindNewPrivateConversation, engine.StatusOK, `{"id":"c1"}`, EventNewPrivateConversationResult, true},
		{engine.KindNewPrivateConversation, engine.StatusErr, `{"id":"c1"}`, EventNewPrivateConversationResult, false},
		{engine.KindCreateIntroBundle, engine.StatusOK, "", EventCreateIntroBundleResult, false},
		{engine.KindCreateIntroBundle, engine.StatusOK, `{"bundle":1}`, EventCreateIntroBundleResult, true},
	}
	for _, tc := range cases {
		var payload []byte
		if tc.payload != "" {
			payload = []byte(tc.payload)
		}
		ev, ok := tr.Translate(tc.kind, tc.status, payload)
		if !ok {
			t.Fatalf("%s/%s: expected an event", tc.kind, tc.status)
		}
		if ev.Name() != tc.name {
			t.Fatalf("%s: expected %s, got %s", tc.kind, tc.name, ev.Name())
		}
		fields := ev.Fields()
		if len(fields) != 4 {
			t.Fatalf("%s: expected four fields, got %v", tc.kind, fields)
		}
		if fields[0] != tc.success {
			t.Fatalf("%s/%s payload %q: expected success=%v, got %v", tc.kind, tc.status, tc.payload, tc.success, fields[0])
		}
		if fields[1] != int(tc.status) {
			t.Fatalf("%s: expected status %d, got %v", tc.kind, tc.status, fields[1])
		}
		if fields[2] != tc.payload {
			t.Fatalf("%s: expected data %q, got %v", tc.kind, tc.payload, fields[2])
		}
		if fields[3] != "2026-03-01T12:30:45Z" || ev.Time() != fields[3] {
			t.Fatalf("%s: unexpected timestamp %v", tc.kind, fields[3])
		}
	}
}

func TestTranslatePayloadGatedKinds(t *testing.T) {
	tr := testTranslator()
	cases := []struct {
		kind engine.Kind
		name string
	}{
		{engine.KindDestroy, EventDestroyResult},
		{engine.KindGetID, EventGetIDResult},
		{engine.KindGetDefaultInboxID, EventGetDefaultInboxIDResult},
		{engine.KindListConversations, EventListConversationsResult},
		{engine.KindGetConversation, EventGetConversationResult},
		{engine.KindGetIdentity, EventGetIdentityResult},
		{engine.KindPush, EventGeneric},
	}
	for _, tc := range cases {
		for _, status := range []engine.Status{engine.StatusOK, engine.StatusErr} {
			if ev, ok := tr.Translate(tc.kind, status, nil); ok {
				t.Fatalf("%s/%s: expected no event for empty payload, got %s", tc.kind, status, ev.Name())
			}
			if ev, ok := tr.Translate(tc.kind, status, []byte{}); ok {
				t.Fatalf("%s/%s: expected no event for empty payload, got %s", tc.kind, status, ev.Name())
			}
		}

		ev, ok := tr.Translate(tc.kind, engine.StatusErr, []byte("detail"))
		if !ok {
			t.Fatalf("%s: expected event for non-empty payload", tc.kind)
		}
		if ev.Name() != tc.name {
			t.Fatalf("%s: expected %s, got %s", tc.kind, tc.name, ev.Name())
		}
		fields := ev.Fields()
		if len(fields) != 2 || fields[0] != "detail" || fields[1] != "2026-03-01T12:30:45Z" {
			t.Fatalf("%s: unexpected fields %v", tc.kind, fields)
		}
	}
}

func TestTranslatePushDiscriminator(t *testing.T) {
	tr := testTranslator()
	cases := []struct {
		payload string
		name    string
	}{
		{`{"eventType":"new_message","conversationId":"c1"}`, EventNewMessage},
		{`{"eventType":"new_conversation"}`, EventNewConversation},
		{`{"eventType":"delivery_ack","messageId":"m1"}`, EventDeliveryAck},
		{`{"eventType":"typing"}`, EventGeneric},
		{`{"conversationId":"c1"}`, EventGeneric},
		{`{"eventType":42}`, EventGeneric},
		{`["new_message"]`, EventGeneric},
		{`not json`, EventGeneric},
	}
	for _, tc := range cases {
		ev, ok := tr.Translate(engine.KindPush, engine.StatusOK, []byte(tc.payload))
		if !ok {
			t.Fatalf("%s: expected an event", tc.payload)
		}
		if ev.Name() != tc.name {
			t.Fatalf("%s: expected %s, got %s", tc.payload, tc.name, ev.Name())
		}
		if ev.Fields()[0] != tc.payload {
			t.Fatalf("%s: payload must pass through verbatim, got %v", tc.payload, ev.Fields()[0])
		}
	}
}

func TestTranslateConcreteTypes(t *testing.T) {
	tr := testTranslator()
	ev, _ := tr.Translate(engine.KindGetID, engine.StatusOK, []byte("chat1abc"))
	id, ok := ev.(GetIDResult)
	if !ok || id.ID != "chat1abc" {
		t.Fatalf("unexpected event %#v", ev)
	}

	ev, _ = tr.Translate(engine.KindPush, engine.StatusOK, []byte(`{"eventType":"new_message"}`))
	switch e := ev.(type) {
	case NewMessage:
		if e.Payload != `{"eventType":"new_message"}` {
			t.Fatalf("unexpected payload %q", e.Payload)
		}
	default:
		t.Fatalf("expected NewMessage, got %T", ev)
	}
}

func TestTranslateUnknownKind(t *testing.T) {
	if _, ok := testTranslator().Translate(engine.Kind("bogus"), engine.StatusOK, []byte("x")); ok {
		t.Fatalf("unknown kinds must not emit")
	}
}
