package ai

import (
	"context"
	"io"

	"backstage/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const anthropicMaxTokens = 4096

type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Send returns the first text block of the reply, or "" when there is none.
func (a *Anthropic) Send(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, a.params(messages, systemPrompt))
	if err != nil {
		return "", err
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

func (a *Anthropic) Stream(ctx context.Context, messages []Message, systemPrompt string) (Stream, error) {
	s := a.client.Messages.NewStreaming(ctx, a.params(messages, systemPrompt))
	return newStream(&anthropicChunks{stream: s}), nil
}

func (a *Anthropic) params(messages []Message, systemPrompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  anthropicMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	return params
}

func anthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == models.ChatRoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

type anthropicChunks struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// next skips events other than text deltas and the stop event.
func (c *anthropicChunks) next() (string, bool, error) {
	for c.stream.Next() {
		switch ev := c.stream.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				return delta.Text, false, nil
			}
		case anthropic.MessageStopEvent:
			return "", true, nil
		}
	}
	if err := c.stream.Err(); err != nil {
		return "", false, err
	}
	return "", false, io.EOF
}

func (c *anthropicChunks) close() error {
	return c.stream.Close()
}
