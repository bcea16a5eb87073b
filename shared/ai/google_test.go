package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGoogleHistoryRenamesAssistant(t *testing.T) {
	history := googleHistory([]Message{
		AssistantMessage("transcript context"),
		UserMessage("question"),
		AssistantMessage("answer"),
	})

	require.Len(t, history, 3)
	assert.Equal(t, genai.RoleModel, history[0].Role)
	assert.Equal(t, genai.RoleUser, history[1].Role)
	assert.Equal(t, genai.RoleModel, history[2].Role)
	require.Len(t, history[1].Parts, 1)
	assert.Equal(t, "question", history[1].Parts[0].Text)
}

func TestGoogleHistoryEmpty(t *testing.T) {
	assert.Empty(t, googleHistory(nil))
}

func TestGoogleRejectsEmptyConversation(t *testing.T) {
	g := &Google{model: "gemini-1.5-flash-latest"}

	_, err := g.Send(context.Background(), nil, "sys")
	assert.ErrorIs(t, err, errNoMessages)

	_, err = g.Stream(context.Background(), []Message{}, "")
	assert.ErrorIs(t, err, errNoMessages)
}

func TestNewGoogle(t *testing.T) {
	g, err := NewGoogle(context.Background(), "g-key", "gemini-2.0-flash-exp", "http://localhost:1")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash-exp", g.model)
	assert.NotNil(t, g.client)
}

func TestGoogleChunksStopsPull(t *testing.T) {
	stopped := false
	calls := 0
	c := &googleChunks{
		pull: func() (*genai.GenerateContentResponse, error, bool) {
			calls++
			if calls > 1 {
				return nil, nil, false
			}
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: genai.NewContentFromText("hi", genai.RoleModel)}},
			}, nil, true
		},
		stop: func() { stopped = true },
	}

	s := newStream(c)
	chunks, err := recvAll(t, s)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "hi", chunks[0].Content)
	assert.True(t, chunks[1].Done)

	require.NoError(t, s.Close())
	assert.True(t, stopped)
}
