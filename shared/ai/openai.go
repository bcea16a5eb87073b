package ai

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

const deepSeekBaseURL = "https://api.deepseek.com"

// OpenAI speaks the chat-completions protocol. DeepSeek reuses it with a
// different base URL.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func NewDeepSeek(apiKey, model, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = deepSeekBaseURL
	}
	return NewOpenAI(apiKey, model, baseURL)
}

func (o *OpenAI) Send(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(messages, systemPrompt, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Stream(ctx context.Context, messages []Message, systemPrompt string) (Stream, error) {
	s, err := o.client.CreateChatCompletionStream(ctx, o.request(messages, systemPrompt, true))
	if err != nil {
		return nil, err
	}
	return newStream(&openAIChunks{stream: s}), nil
}

func (o *OpenAI) request(messages []Message, systemPrompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: openAIMessages(messages, systemPrompt),
		Stream:   stream,
	}
}

// openAIMessages prepends the system prompt as a system message.
func openAIMessages(messages []Message, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

type openAIChunks struct {
	stream *openai.ChatCompletionStream
}

func (c *openAIChunks) next() (string, bool, error) {
	resp, err := c.stream.Recv()
	if err != nil {
		return "", false, err
	}
	if len(resp.Choices) == 0 {
		return "", false, nil
	}
	choice := resp.Choices[0]
	return choice.Delta.Content, choice.FinishReason == openai.FinishReasonStop, nil
}

func (c *openAIChunks) close() error {
	return c.stream.Close()
}
