package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/models"
)

func TestNewMessageIDOrdering(t *testing.T) {
	first := NewMessageID()
	if len(first) != 26 {
		t.Fatalf("expected 26-char ULID, got %d chars", len(first))
	}

	// IDs minted in later milliseconds must sort after earlier ones.
	time.Sleep(2 * time.Millisecond)
	second := NewMessageID()
	if !(first < second) {
		t.Fatalf("expected %s < %s", first, second)
	}
}

func TestReactionCodecRoundTrip(t *testing.T) {
	reactions := []models.Reaction{
		{UserID: uuid.New(), Emoji: "👍"},
		{UserID: uuid.New(), Emoji: "🎉"},
	}

	raw := marshalReactions(reactions)
	got := unmarshalReactions(raw)
	if len(got) != 2 || got[0] != reactions[0] || got[1] != reactions[1] {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestEmptyCollectionsMarshalToArrays(t *testing.T) {
	// Database columns default to '[]'; nil slices must match.
	if string(marshalReactions(nil)) != "[]" {
		t.Fatalf("nil reactions: %s", marshalReactions(nil))
	}
	if string(marshalAttachments(nil)) != "[]" {
		t.Fatalf("nil attachments: %s", marshalAttachments(nil))
	}
	if string(marshalReaders(nil)) != "[]" {
		t.Fatalf("nil readers: %s", marshalReaders(nil))
	}
}

func TestUnmarshalTolerantOfNull(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("null"), []byte("[]"), []byte("garbage")} {
		if got := unmarshalReactions(raw); len(got) != 0 {
			t.Fatalf("expected empty for %q, got %v", raw, got)
		}
	}
}
