package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backstage/internal/models"
	"backstage/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChat answers every Send with the same reply and remembers the
// prompt it was given.
type scriptedChat struct {
	reply      string
	err        error
	lastModel  string
	lastPrompt string
}

func (s *scriptedChat) Send(_ context.Context, model string, messages []Message, _ string) (string, error) {
	s.lastModel = model
	if len(messages) > 0 {
		s.lastPrompt = messages[len(messages)-1].Content
	}
	return s.reply, s.err
}

func (s *scriptedChat) Stream(context.Context, string, []Message, string) (Stream, error) {
	return nil, errors.New("not used")
}

func TestParseSpeakers(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []models.Persona
		wantErr  bool
	}{
		{
			name:     "plain array",
			response: `[{"name":"Lex Fridman","role":"host"},{"name":"Andrej Karpathy","role":"guest"}]`,
			want: []models.Persona{
				{Name: "Lex Fridman", Role: models.RoleHost},
				{Name: "Andrej Karpathy", Role: models.RoleGuest},
			},
		},
		{
			name:     "json code fence",
			response: "```json\n[{\"name\":\"Ada\",\"role\":\"speaker\"}]\n```",
			want:     []models.Persona{{Name: "Ada", Role: models.RoleSpeaker}},
		},
		{
			name:     "bare code fence",
			response: "```\n[{\"name\":\"Ada\",\"role\":\"host\"}]\n```",
			want:     []models.Persona{{Name: "Ada", Role: models.RoleHost}},
		},
		{
			name:     "unknown role becomes speaker",
			response: `[{"name":"Bob","role":"moderator"}]`,
			want:     []models.Persona{{Name: "Bob", Role: models.RoleSpeaker}},
		},
		{
			name:     "missing name uses channel",
			response: `[{"role":"host"}]`,
			want:     []models.Persona{{Name: "Tech Talks", Role: models.RoleHost}},
		},
		{name: "empty array", response: `[]`, wantErr: true},
		{name: "prose", response: "The speakers are Ada and Bob.", wantErr: true},
		{name: "object instead of array", response: `{"name":"Ada"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSpeakers(tt.response, "Tech Talks")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectSpeakers(t *testing.T) {
	chat := &scriptedChat{reply: `[{"name":"Host Person","role":"host"}]`}
	a := NewAnalyzer(chat, "gpt-4o-mini", logger.Discard())

	got := a.DetectSpeakers(context.Background(), "hello world", "My Video", "My Channel")
	assert.Equal(t, []models.Persona{{Name: "Host Person", Role: models.RoleHost}}, got)
	assert.Equal(t, "gpt-4o-mini", chat.lastModel)
	assert.Contains(t, chat.lastPrompt, `Video: "My Video"`)
	assert.Contains(t, chat.lastPrompt, "Channel: My Channel")
	assert.Contains(t, chat.lastPrompt, "hello world")
}

func TestDetectSpeakersCapsTranscript(t *testing.T) {
	chat := &scriptedChat{reply: `[{"name":"A","role":"speaker"}]`}
	a := NewAnalyzer(chat, "gpt-4o", logger.Discard())

	transcript := strings.Repeat("a", detectionTranscriptChars) + "OVERFLOW_MARKER"
	a.DetectSpeakers(context.Background(), transcript, "t", "c")

	assert.Contains(t, chat.lastPrompt, strings.Repeat("a", detectionTranscriptChars))
	assert.NotContains(t, chat.lastPrompt, "OVERFLOW_MARKER")
}

func TestDetectSpeakersFallsBackToChannel(t *testing.T) {
	tests := []struct {
		name string
		chat *scriptedChat
	}{
		{name: "send error", chat: &scriptedChat{err: errors.New("429")}},
		{name: "invalid json", chat: &scriptedChat{reply: "not json"}},
		{name: "empty list", chat: &scriptedChat{reply: "[]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(tt.chat, "gpt-4o", logger.Discard())
			got := a.DetectSpeakers(context.Background(), "text", "title", "Fallback Channel")
			assert.Equal(t, []models.Persona{{Name: "Fallback Channel", Role: models.RoleSpeaker}}, got)
		})
	}
}

func TestSummarizeResearch(t *testing.T) {
	chat := &scriptedChat{reply: "Ada is a mathematician."}
	a := NewAnalyzer(chat, "gpt-4o", logger.Discard())

	got := a.SummarizeResearch(context.Background(), "search results", "Ada Lovelace")
	assert.Equal(t, "Ada is a mathematician.", got)
	assert.Contains(t, chat.lastPrompt, "web search results about Ada Lovelace")
	assert.Contains(t, chat.lastPrompt, "search results")
}

func TestSummarizeResearchFallback(t *testing.T) {
	a := NewAnalyzer(&scriptedChat{err: errors.New("boom")}, "gpt-4o", logger.Discard())

	raw := strings.Repeat("x", 800)
	got := a.SummarizeResearch(context.Background(), raw, "Ada")
	assert.Equal(t, strings.Repeat("x", researchFallbackChars)+"...", got)
}

func TestHeadRunesKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "héll", headRunes("héllo", 4))
	assert.Equal(t, "abc", headRunes("abc", 10))
}
