package conversation

import (
	"strings"
	"sync"
	"time"

	"backstage/internal/models"
	"backstage/shared/apperror"

	"github.com/google/uuid"
)

// State tells whether a reply is being streamed into the buffer.
type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

const (
	// PruneThreshold is the log length above which Prune drops old turns.
	PruneThreshold = 22
	// KeepRecent is how many trailing messages survive a prune, next to the
	// pinned first message.
	KeepRecent = 20
)

// Buffer is the ordered message log of one conversation plus the reply that
// is currently streaming in. The first message is pinned: it carries the
// transcript context and survives pruning.
type Buffer struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	state    State
	pending  strings.Builder
	now      func() time.Time
}

func NewBuffer() *Buffer {
	return &Buffer{now: time.Now}
}

// Append adds a message with a fresh id and timestamp. It is legal in any
// state.
func (b *Buffer) Append(role models.ChatRole, content string) models.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(role, content)
}

func (b *Buffer) appendLocked(role models.ChatRole, content string) models.ChatMessage {
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: b.now(),
	}
	b.messages = append(b.messages, msg)
	return msg
}

func (b *Buffer) BeginStream() error {
	const op = "Buffer.BeginStream"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Streaming {
		return apperror.E(apperror.CodeConflict, op, "A reply is already streaming", nil)
	}
	b.state = Streaming
	b.pending.Reset()
	return nil
}

func (b *Buffer) AppendStreamDelta(text string) error {
	const op = "Buffer.AppendStreamDelta"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Streaming {
		return apperror.E(apperror.CodeConflict, op, "No reply is streaming", nil)
	}
	b.pending.WriteString(text)
	return nil
}

// FinalizeStream commits the accumulated reply as an assistant message when
// it is non-empty, and returns to Idle either way. ok is false when nothing
// was committed.
func (b *Buffer) FinalizeStream() (msg models.ChatMessage, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending.Len() > 0 {
		msg = b.appendLocked(models.ChatRoleAssistant, b.pending.String())
		ok = true
	}
	b.pending.Reset()
	b.state = Idle
	return msg, ok
}

// AbortStream drops the partial reply and returns to Idle.
func (b *Buffer) AbortStream() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending.Reset()
	b.state = Idle
}

// Prune keeps the first message and the last KeepRecent once the log grows
// past PruneThreshold. It returns how many messages were dropped.
func (b *Buffer) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.messages)
	if n <= PruneThreshold {
		return 0
	}

	pruned := make([]models.ChatMessage, 0, KeepRecent+1)
	pruned = append(pruned, b.messages[0])
	pruned = append(pruned, b.messages[n-KeepRecent:]...)
	b.messages = pruned
	return n - len(pruned)
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = nil
	b.pending.Reset()
	b.state = Idle
}

// Messages returns a copy of the log.
func (b *Buffer) Messages() []models.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.ChatMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StreamingContent is the partial reply accumulated so far.
func (b *Buffer) StreamingContent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.String()
}
