package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"backstage/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	detectionTranscriptChars = 5000
	researchFallbackChars    = 500
)

// Analyzer runs the one-shot prompts of the speaker pipeline: speaker
// detection and research summarization.
type Analyzer struct {
	client ChatClient
	model  string
	log    logrus.FieldLogger
}

func NewAnalyzer(client ChatClient, model string, log logrus.FieldLogger) *Analyzer {
	return &Analyzer{
		client: client,
		model:  model,
		log:    log,
	}
}

// DetectSpeakers asks the model who speaks in the video. It never fails: any
// send, parse or validation problem yields a single speaker named after the
// channel.
func (a *Analyzer) DetectSpeakers(ctx context.Context, transcript, title, channelName string) []models.Persona {
	prompt := buildDetectionPrompt(transcript, title, channelName)

	response, err := a.client.Send(ctx, a.model, []Message{UserMessage(prompt)}, "")
	if err != nil {
		a.log.WithError(err).WithField("model", a.model).Warn("Speaker detection request failed, using channel as speaker")
		return fallbackPersonas(channelName)
	}

	personas, err := parseSpeakers(response, channelName)
	if err != nil {
		a.log.WithError(err).Warn("Failed to parse speaker detection response, using channel as speaker")
		return fallbackPersonas(channelName)
	}
	return personas
}

// SummarizeResearch condenses search results into a short background. On
// failure it returns the head of the raw context.
func (a *Analyzer) SummarizeResearch(ctx context.Context, searchContext, speakerName string) string {
	prompt := buildSummaryPrompt(searchContext, speakerName)

	summary, err := a.client.Send(ctx, a.model, []Message{UserMessage(prompt)}, "")
	if err != nil {
		a.log.WithError(err).WithField("persona", speakerName).Warn("Research summarization failed, using raw search context")
		return truncateString(searchContext, researchFallbackChars)
	}
	return summary
}

func buildDetectionPrompt(transcript, title, channelName string) string {
	return fmt.Sprintf(`Analyze this video and identify all speakers/participants.

Video: "%s"
Channel: %s

Transcript (first 5000 chars):
%s

Return ONLY a valid JSON array with this exact format (no markdown, no explanation):
[
  { "name": "Full Name", "role": "host" },
  { "name": "Full Name", "role": "guest" }
]

Rules:
- If solo video (one speaker): Return single speaker with role "speaker"
- If interview/podcast: Identify host and guest(s)
- If panel discussion: List all participants as "speaker"
- Use full names if mentioned in transcript
- Role must be one of: "host", "guest", "speaker"
- If you can't determine names, use descriptive names like "Host" or "Guest"`,
		title,
		channelName,
		headRunes(transcript, detectionTranscriptChars),
	)
}

func buildSummaryPrompt(searchContext, speakerName string) string {
	return fmt.Sprintf(`Based on the following web search results about %s, provide a concise background summary:

%s

Include (if available):
1. Brief background (2-3 sentences)
2. Main areas of expertise
3. Recent notable work
4. Key ideas they're known for

Keep under 300 words. If limited info is available, just summarize what you can.`,
		speakerName,
		searchContext,
	)
}

var (
	fenceOpen  = regexp.MustCompile("```json?\\n?")
	fenceClose = regexp.MustCompile("```")
)

// stripCodeFence removes a markdown code fence the model wrapped around its
// answer.
func stripCodeFence(response string) string {
	s := strings.TrimSpace(response)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func parseSpeakers(response, channelName string) ([]models.Persona, error) {
	jsonStr := stripCodeFence(response)

	var result []struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal speakers '%s': %w", truncateString(jsonStr, 200), err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("speaker list is empty")
	}

	personas := make([]models.Persona, 0, len(result))
	for _, r := range result {
		p := models.Persona{Name: r.Name, Role: models.Role(r.Role)}
		if p.Name == "" {
			p.Name = channelName
		}
		if !p.Role.Valid() {
			p.Role = models.RoleSpeaker
		}
		personas = append(personas, p)
	}
	return personas, nil
}

func fallbackPersonas(channelName string) []models.Persona {
	return []models.Persona{{Name: channelName, Role: models.RoleSpeaker}}
}

// headRunes returns at most n characters of s without splitting a rune.
func headRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func truncateString(s string, maxLength int) string {
	return headRunes(s, maxLength) + "..."
}
