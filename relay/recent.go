package relay

import "sync"

// MessageBuffer is a bounded in-memory ring of recent chat messages. This is
// deliberately the only "storage" in the system; nothing is persisted.
type MessageBuffer struct {
	mu    sync.Mutex
	buf   []ChatMessage
	next  int
	count int
}

func NewMessageBuffer(capacity int) *MessageBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &MessageBuffer{buf: make([]ChatMessage, capacity)}
}

func (b *MessageBuffer) Add(msg ChatMessage) {
	b.mu.Lock()
	b.buf[b.next] = msg
	b.next = (b.next + 1) % len(b.buf)
	if b.count < len(b.buf) {
		b.count++
	}
	b.mu.Unlock()
}

func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Messages returns buffered messages, oldest first.
func (b *MessageBuffer) Messages() []ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ChatMessage, 0, b.count)
	start := b.next - b.count
	if start < 0 {
		start += len(b.buf)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.buf[(start+i)%len(b.buf)])
	}
	return out
}
