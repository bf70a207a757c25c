package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShaheerQidwai/chat-app/internal/models"
	"github.com/ShaheerQidwai/chat-app/internal/store/storetest"
)

func testEngine(t *testing.T) (*Engine, *storetest.Store) {
	t.Helper()
	fake := storetest.New()
	return NewEngine(fake, nil, NewHub(), zerolog.Nop()), fake
}

func createUser(t *testing.T, fake *storetest.Store, name string) *models.User {
	t.Helper()
	user, err := fake.CreateUser(context.Background(), name, "")
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func decodeFrame(t *testing.T, frame []byte) (string, json.RawMessage) {
	t.Helper()
	var evt Event
	if err := json.Unmarshal(frame, &evt); err != nil {
		t.Fatal(err)
	}
	return evt.Event, evt.Data
}

func TestSendDirectPersistsThenBroadcasts(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()

	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	bobConn := testConn(t, engine.Hub(), bob.ID)
	engine.Hub().Register(bobConn)

	msg, err := engine.SendDirect(ctx, alice, &SendMessagePayload{ReceiverID: bob.ID, Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" {
		t.Fatal("message should have an ID")
	}

	stored, err := fake.GetMessage(ctx, msg.ID)
	if err != nil || stored == nil {
		t.Fatal("message should be persisted")
	}
	if stored.Read {
		t.Fatal("new message must start unread")
	}

	frames := drain(bobConn)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame to bob, got %d", len(frames))
	}
	event, data := decodeFrame(t, frames[0])
	if event != EventMessageReceive {
		t.Fatalf("expected %s, got %s", EventMessageReceive, event)
	}
	var got models.Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != msg.ID || got.Content != "hello" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Sender == nil || got.Sender.Username != "alice" {
		t.Fatal("sender display fields should be populated")
	}
}

func TestSendDirectEchoesToSenderTabs(t *testing.T) {
	engine, fake := testEngine(t)
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	tab := testConn(t, engine.Hub(), alice.ID)
	engine.Hub().Register(tab)

	if _, err := engine.SendDirect(context.Background(), alice, &SendMessagePayload{ReceiverID: bob.ID, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	frames := drain(tab)
	if len(frames) != 1 {
		t.Fatalf("expected 1 echo frame, got %d", len(frames))
	}
	if event, _ := decodeFrame(t, frames[0]); event != EventMessageSent {
		t.Fatalf("expected %s, got %s", EventMessageSent, event)
	}
}

func TestSendDirectValidation(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	cases := []struct {
		name    string
		payload SendMessagePayload
		want    error
	}{
		{"empty content", SendMessagePayload{ReceiverID: bob.ID}, ErrEmptyContent},
		{"no receiver", SendMessagePayload{Content: "x"}, ErrUnknownUser},
		{"unknown receiver", SendMessagePayload{ReceiverID: uuid.New(), Content: "x"}, ErrUnknownUser},
		{"self message", SendMessagePayload{ReceiverID: alice.ID, Content: "x"}, ErrSelfMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.SendDirect(ctx, alice, &tc.payload); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSendDirectAcceptsLegacyToField(t *testing.T) {
	engine, fake := testEngine(t)
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	msg, err := engine.SendDirect(context.Background(), alice, &SendMessagePayload{To: bob.ID, Content: "legacy"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ReceiverID != bob.ID {
		t.Fatal("legacy to field should address the receiver")
	}
}

func TestMarkReadOnlyReceiver(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	msg, err := engine.SendDirect(ctx, alice, &SendMessagePayload{ReceiverID: bob.ID, Content: "x"})
	if err != nil {
		t.Fatal(err)
	}

	// The sender cannot mark their own outgoing message read.
	if _, err := engine.MarkRead(ctx, alice.ID, msg.ID); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}

	read, err := engine.MarkRead(ctx, bob.ID, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !read.Read || read.ReadAt == nil {
		t.Fatal("message should be read with a timestamp")
	}

	// Marking again keeps the original timestamp.
	first := *read.ReadAt
	time.Sleep(5 * time.Millisecond)
	again, err := engine.MarkRead(ctx, bob.ID, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.ReadAt.Equal(first) {
		t.Fatal("second mark must not change the read timestamp")
	}
}

func TestReactionsAppend(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	msg, err := engine.SendDirect(ctx, alice, &SendMessagePayload{ReceiverID: bob.ID, Content: "x"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.React(ctx, bob.ID, msg.ID, ""); !errors.Is(err, ErrInvalidReaction) {
		t.Fatalf("expected ErrInvalidReaction, got %v", err)
	}

	// Same user reacting twice appends both.
	for i := 0; i < 2; i++ {
		if _, err := engine.React(ctx, bob.ID, msg.ID, "👍"); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := fake.GetMessage(ctx, msg.ID)
	if len(got.Reactions) != 2 {
		t.Fatalf("expected 2 reactions, got %d", len(got.Reactions))
	}

	// A third party cannot react to someone else's conversation.
	eve := createUser(t, fake, "eve")
	if _, err := engine.React(ctx, eve.ID, msg.ID, "👀"); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestReplayOnConnect(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	// Bob is offline while alice sends three messages.
	for _, content := range []string{"one", "two", "three"} {
		if _, err := engine.SendDirect(ctx, alice, &SendMessagePayload{ReceiverID: bob.ID, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	bobConn := testConn(t, engine.Hub(), bob.ID)
	engine.HandleConnect(bobConn)

	var contents []string
	for _, frame := range drain(bobConn) {
		event, data := decodeFrame(t, frame)
		if event != EventMessageReceive {
			continue
		}
		var msg models.Message
		json.Unmarshal(data, &msg)
		contents = append(contents, msg.Content)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(contents))
	}
	for i, want := range []string{"one", "two", "three"} {
		if contents[i] != want {
			t.Fatalf("replay out of order: got %v", contents)
		}
	}

	// Replay does not mark anything read; a second connect replays again.
	second := testConn(t, engine.Hub(), bob.ID)
	engine.HandleConnect(second)
	if got := len(drain(second)); got != 3 {
		t.Fatalf("expected 3 messages replayed again, got %d", got)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	watcher := testConn(t, engine.Hub(), bob.ID)
	engine.HandleConnect(watcher)
	drain(watcher)

	c1 := testConn(t, engine.Hub(), alice.ID)
	engine.HandleConnect(c1)

	frames := drain(watcher)
	if len(frames) != 1 {
		t.Fatalf("expected 1 presence frame, got %d", len(frames))
	}
	event, data := decodeFrame(t, frames[0])
	if event != EventUserPresence {
		t.Fatalf("expected %s, got %s", EventUserPresence, event)
	}
	var p PresencePayload
	json.Unmarshal(data, &p)
	if p.UserID != alice.ID || !p.IsOnline {
		t.Fatalf("unexpected presence payload: %+v", p)
	}

	stored, _ := fake.GetUserByID(ctx, alice.ID)
	if !stored.IsOnline || stored.LastSeen != nil {
		t.Fatal("online user should have no last seen")
	}

	// A second tab does not re-announce.
	c2 := testConn(t, engine.Hub(), alice.ID)
	engine.HandleConnect(c2)
	if len(drain(watcher)) != 0 {
		t.Fatal("second connection must not broadcast presence")
	}

	// Closing one tab keeps alice online; closing the last flips her.
	engine.HandleDisconnect(c1)
	if len(drain(watcher)) != 0 {
		t.Fatal("disconnect with a live tab must not broadcast")
	}
	engine.HandleDisconnect(c2)
	frames = drain(watcher)
	if len(frames) != 1 {
		t.Fatalf("expected offline presence frame, got %d", len(frames))
	}
	json.Unmarshal(mustData(t, frames[0]), &p)
	if p.IsOnline || p.LastSeen == "" {
		t.Fatalf("expected offline with last seen, got %+v", p)
	}

	stored, _ = fake.GetUserByID(ctx, alice.ID)
	if stored.IsOnline || stored.LastSeen == nil {
		t.Fatal("offline user should carry a last seen timestamp")
	}
}

func mustData(t *testing.T, frame []byte) json.RawMessage {
	t.Helper()
	_, data := decodeFrame(t, frame)
	return data
}

func TestGroupMembershipEnforced(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")
	eve := createUser(t, fake, "eve")

	group, err := fake.CreateGroup(ctx, "team", alice.ID, []uuid.UUID{bob.ID})
	if err != nil {
		t.Fatal(err)
	}

	eveConn := testConn(t, engine.Hub(), eve.ID)
	engine.Hub().Register(eveConn)
	if err := engine.JoinGroup(ctx, eveConn, group.ID); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}

	if _, err := engine.SendGroup(ctx, eve, &GroupMessagePayload{GroupID: group.ID, Content: "hi"}); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
}

func TestGroupFanOutReachesWholeRoom(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	group, err := fake.CreateGroup(ctx, "team", alice.ID, []uuid.UUID{bob.ID})
	if err != nil {
		t.Fatal(err)
	}

	aliceConn := testConn(t, engine.Hub(), alice.ID)
	bobConn := testConn(t, engine.Hub(), bob.ID)
	engine.Hub().Register(aliceConn)
	engine.Hub().Register(bobConn)
	if err := engine.JoinGroup(ctx, aliceConn, group.ID); err != nil {
		t.Fatal(err)
	}
	if err := engine.JoinGroup(ctx, bobConn, group.ID); err != nil {
		t.Fatal(err)
	}

	msg, err := engine.SendGroup(ctx, alice, &GroupMessagePayload{GroupID: group.ID, Content: "standup"})
	if err != nil {
		t.Fatal(err)
	}

	// The sender's own connections hear the room broadcast too; the echo
	// is their delivery confirmation.
	for name, conn := range map[string]*Conn{"alice": aliceConn, "bob": bobConn} {
		frames := drain(conn)
		if len(frames) != 1 {
			t.Fatalf("expected 1 frame to %s, got %d", name, len(frames))
		}
		if event, _ := decodeFrame(t, frames[0]); event != EventGroupMessageReceive {
			t.Fatalf("expected %s to %s, got %s", EventGroupMessageReceive, name, event)
		}
	}

	if len(msg.ReadBy) != 1 || msg.ReadBy[0] != alice.ID {
		t.Fatalf("expected readBy to start with the sender, got %v", msg.ReadBy)
	}

	// Read receipts are a set: marking twice keeps one entry per reader.
	for i := 0; i < 2; i++ {
		if _, err := engine.MarkGroupRead(ctx, bob.ID, &GroupReadPayload{MessageID: msg.ID, GroupID: group.ID}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := fake.GetGroupMessage(ctx, msg.ID)
	if len(got.ReadBy) != 2 {
		t.Fatalf("expected 2 readers, got %d", len(got.ReadBy))
	}
}

func TestTypingRelay(t *testing.T) {
	engine, fake := testEngine(t)
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	aliceConn := testConn(t, engine.Hub(), alice.ID)
	bobConn := testConn(t, engine.Hub(), bob.ID)
	engine.Hub().Register(aliceConn)
	engine.Hub().Register(bobConn)
	aliceConn.Username = "alice"

	engine.RelayTyping(aliceConn, EventTyping, &TypingPayload{To: bob.ID})

	frames := drain(bobConn)
	if len(frames) != 1 {
		t.Fatalf("expected 1 typing frame, got %d", len(frames))
	}
	event, data := decodeFrame(t, frames[0])
	if event != EventTyping {
		t.Fatalf("expected typing, got %s", event)
	}
	var p TypingPayload
	json.Unmarshal(data, &p)
	if p.UserID != alice.ID || p.Username != "alice" {
		t.Fatalf("relay should stamp the typist: %+v", p)
	}

	// Nothing persisted for typing.
	unread, _ := fake.ListUnreadMessagesFor(context.Background(), bob.ID)
	if len(unread) != 0 {
		t.Fatal("typing must not persist anything")
	}
}

func TestDispatchAcks(t *testing.T) {
	engine, fake := testEngine(t)
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	aliceConn := testConn(t, engine.Hub(), alice.ID)
	engine.Hub().Register(aliceConn)

	send := func(event string, payload any, ack int64) {
		data, _ := json.Marshal(payload)
		engine.Dispatch(aliceConn, &Event{Event: event, Data: data, Ack: ack})
	}

	send(EventMessageSend, SendMessagePayload{ReceiverID: bob.ID, Content: "hi"}, 1)

	frames := drain(aliceConn)
	var acks []AckPayload
	for _, frame := range frames {
		var evt Event
		json.Unmarshal(frame, &evt)
		if evt.Event == "ack" {
			var ack AckPayload
			json.Unmarshal(evt.Data, &ack)
			acks = append(acks, ack)
		}
	}
	if len(acks) != 1 || !acks[0].OK || acks[0].ID == "" {
		t.Fatalf("expected ok ack with id, got %+v", acks)
	}

	// Failure surfaces through the ack.
	send("send_message", SendMessagePayload{ReceiverID: bob.ID}, 2)
	frames = drain(aliceConn)
	found := false
	for _, frame := range frames {
		var evt Event
		json.Unmarshal(frame, &evt)
		if evt.Event != "ack" {
			continue
		}
		var ack AckPayload
		json.Unmarshal(evt.Data, &ack)
		if ack.OK || ack.Error == "" {
			t.Fatalf("expected failed ack, got %+v", ack)
		}
		found = true
	}
	if !found {
		t.Fatal("expected an ack frame")
	}
}

func TestDispatchLegacyAliases(t *testing.T) {
	engine, fake := testEngine(t)
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	aliceConn := testConn(t, engine.Hub(), alice.ID)
	bobConn := testConn(t, engine.Hub(), bob.ID)
	engine.Hub().Register(aliceConn)
	engine.Hub().Register(bobConn)

	data, _ := json.Marshal(SendMessagePayload{To: bob.ID, Content: "legacy path"})
	engine.Dispatch(aliceConn, &Event{Event: "send_message", Data: data})

	frames := drain(bobConn)
	if len(frames) != 1 {
		t.Fatalf("legacy send_message should deliver, got %d frames", len(frames))
	}
	if event, _ := decodeFrame(t, frames[0]); event != EventMessageReceive {
		t.Fatalf("expected %s, got %s", EventMessageReceive, event)
	}
}
