package ai

import (
	"context"
	"io"
	"strings"

	"backstage/internal/models"
)

type Message struct {
	Role    models.ChatRole `json:"role"`
	Content string          `json:"content"`
}

func UserMessage(content string) Message {
	return Message{Role: models.ChatRoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: models.ChatRoleAssistant, Content: content}
}

// Chunk is one step of a streamed reply. Exactly one chunk per stream has
// Done set; it may still carry content.
type Chunk struct {
	Content string
	Done    bool
}

// Stream is a pull iterator over a reply. After the Done chunk, or after an
// error, Recv returns io.EOF. A stream cannot be restarted.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider is one vendor's chat API behind the common call shape. Vendor
// errors are returned unmodified.
type Provider interface {
	Send(ctx context.Context, messages []Message, systemPrompt string) (string, error)
	Stream(ctx context.Context, messages []Message, systemPrompt string) (Stream, error)
}

// ChatClient routes a request to a provider by model id.
type ChatClient interface {
	Send(ctx context.Context, model string, messages []Message, systemPrompt string) (string, error)
	Stream(ctx context.Context, model string, messages []Message, systemPrompt string) (Stream, error)
}

// chunkSource is what each adapter exposes to the shared stream. next
// returns io.EOF once the vendor stream is exhausted; stop marks the vendor's
// explicit completion event.
type chunkSource interface {
	next() (delta string, stop bool, err error)
	close() error
}

type stream struct {
	src      chunkSource
	finished bool
}

func newStream(src chunkSource) *stream {
	return &stream{src: src}
}

func (s *stream) Recv() (Chunk, error) {
	if s.finished {
		return Chunk{}, io.EOF
	}

	delta, stop, err := s.src.next()
	switch {
	case err == io.EOF:
		s.finished = true
		return Chunk{Done: true}, nil
	case err != nil:
		s.finished = true
		return Chunk{}, err
	case stop:
		s.finished = true
		return Chunk{Content: delta, Done: true}, nil
	}
	return Chunk{Content: delta}, nil
}

func (s *stream) Close() error {
	s.finished = true
	return s.src.close()
}

// Collect drains s, passing every non-empty delta to onDelta, and returns
// the concatenated reply.
func Collect(s Stream, onDelta func(string)) (string, error) {
	var full strings.Builder
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			return full.String(), nil
		}
		if err != nil {
			return full.String(), err
		}
		if chunk.Content != "" {
			full.WriteString(chunk.Content)
			if onDelta != nil {
				onDelta(chunk.Content)
			}
		}
		if chunk.Done {
			return full.String(), nil
		}
	}
}
