package realtime

import (
	"encoding/json"
	"testing"
)

func TestNormalizeEvent(t *testing.T) {
	cases := map[string]string{
		"send_message":        EventMessageSend,
		"mark_as_read":        EventMessageRead,
		"start_typing":        EventTyping,
		"user_typing":         EventTyping,
		"user_stopped_typing": EventStopTyping,
		"message:react":       EventMessageReaction,
		"join_chat":           EventGroupJoin,
		"join_group":          EventGroupJoin,
		"message:send":        EventMessageSend,
		"group:join":          EventGroupJoin,
		"something_else":      "something_else",
	}
	for in, want := range cases {
		if got := normalizeEvent(in); got != want {
			t.Errorf("normalizeEvent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := marshalEvent(EventTyping, TypingPayload{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	var evt Event
	if err := json.Unmarshal(frame, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Event != EventTyping {
		t.Fatalf("expected %s, got %s", EventTyping, evt.Event)
	}
	if evt.Ack != 0 {
		t.Fatal("plain events carry no ack")
	}

	var p TypingPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Username != "alice" {
		t.Fatalf("payload lost: %+v", p)
	}
}

func TestAckEnvelope(t *testing.T) {
	frame, err := marshalAck(7, AckPayload{OK: false, Error: "nope"})
	if err != nil {
		t.Fatal(err)
	}

	var evt Event
	if err := json.Unmarshal(frame, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Event != "ack" || evt.Ack != 7 {
		t.Fatalf("unexpected envelope: %+v", evt)
	}
	var ack AckPayload
	json.Unmarshal(evt.Data, &ack)
	if ack.OK || ack.Error != "nope" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}
