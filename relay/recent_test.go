package relay

import (
	"fmt"
	"testing"
)

func TestMessageBufferOrdering(t *testing.T) {
	b := NewMessageBuffer(3)
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}

	for i := 1; i <= 2; i++ {
		b.Add(ChatMessage{Message: fmt.Sprintf("m%d", i)})
	}
	msgs := b.Messages()
	if len(msgs) != 2 || msgs[0].Message != "m1" || msgs[1].Message != "m2" {
		t.Errorf("messages = %+v, want m1 m2 oldest first", msgs)
	}
}

func TestMessageBufferEvictsOldest(t *testing.T) {
	b := NewMessageBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(ChatMessage{Message: fmt.Sprintf("m%d", i)})
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	msgs := b.Messages()
	want := []string{"m3", "m4", "m5"}
	for i, w := range want {
		if msgs[i].Message != w {
			t.Errorf("messages[%d] = %q, want %q", i, msgs[i].Message, w)
		}
	}
}

func TestMessageBufferMinimumCapacity(t *testing.T) {
	b := NewMessageBuffer(0)
	b.Add(ChatMessage{Message: "only"})
	b.Add(ChatMessage{Message: "latest"})
	msgs := b.Messages()
	if len(msgs) != 1 || msgs[0].Message != "latest" {
		t.Errorf("messages = %+v, want just the latest", msgs)
	}
}
