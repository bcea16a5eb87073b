package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"backstage/internal/models"

	"google.golang.org/genai"
)

type Google struct {
	client *genai.Client
	model  string
}

func NewGoogle(ctx context.Context, apiKey, model, baseURL string) (*Google, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Google{client: client, model: model}, nil
}

func (g *Google) Send(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	chat, last, err := g.chat(ctx, messages, systemPrompt)
	if err != nil {
		return "", err
	}
	result, err := chat.Send(ctx, last)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

func (g *Google) Stream(ctx context.Context, messages []Message, systemPrompt string) (Stream, error) {
	chat, last, err := g.chat(ctx, messages, systemPrompt)
	if err != nil {
		return nil, err
	}
	next, stop := iter.Pull2(chat.SendStream(ctx, last))
	return newStream(&googleChunks{pull: next, stop: stop}), nil
}

var errNoMessages = errors.New("no messages to send")

// chat opens a session whose history is every message but the last; the
// last message is returned as the turn to send.
func (g *Google) chat(ctx context.Context, messages []Message, systemPrompt string) (*genai.Chat, *genai.Part, error) {
	if len(messages) == 0 {
		return nil, nil, errNoMessages
	}

	var cfg *genai.GenerateContentConfig
	if systemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}

	chat, err := g.client.Chats.Create(ctx, g.model, cfg, googleHistory(messages[:len(messages)-1]))
	if err != nil {
		return nil, nil, err
	}
	return chat, genai.NewPartFromText(messages[len(messages)-1].Content), nil
}

// googleHistory renames the assistant role to "model".
func googleHistory(messages []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == models.ChatRoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, role))
	}
	return history
}

type googleChunks struct {
	pull func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (c *googleChunks) next() (string, bool, error) {
	resp, err, ok := c.pull()
	if !ok {
		return "", false, io.EOF
	}
	if err != nil {
		return "", false, err
	}
	return resp.Text(), false, nil
}

func (c *googleChunks) close() error {
	c.stop()
	return nil
}
