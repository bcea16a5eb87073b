package backstage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"backstage/internal/models"
	"backstage/shared/ai"
	"backstage/shared/apperror"
	"backstage/shared/conversation"
	"backstage/shared/prompt"

	"github.com/sirupsen/logrus"
)

const chatErrorPrefix = "Sorry, I encountered an error: "

// Session is one conversation with one persona about one video.
type Session struct {
	client     ai.ChatClient
	model      string
	video      models.VideoMetadata
	transcript string
	buffer     *conversation.Buffer
	observer   Observer
	log        logrus.FieldLogger

	mu           sync.RWMutex
	persona      models.Persona
	systemPrompt string

	streaming atomic.Bool
}

func NewSession(client ai.ChatClient, model string, video models.VideoMetadata, transcript string, observer Observer, log logrus.FieldLogger) *Session {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Session{
		client:     client,
		model:      model,
		video:      video,
		transcript: transcript,
		buffer:     conversation.NewBuffer(),
		observer:   observer,
		log:        log.WithFields(logrus.Fields{"video_id": video.VideoID, "model": model}),
	}
}

// SelectPersona starts the conversation over with persona and returns its
// greeting. The log is seeded with the transcript context and the greeting.
func (s *Session) SelectPersona(persona models.Persona) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Clear()
	s.persona = persona
	s.systemPrompt = prompt.BuildSystemPrompt(persona, s.video)

	greeting := prompt.BuildGreetingMessage(persona, s.video.Title)
	s.buffer.Append(models.ChatRoleAssistant, prompt.BuildTranscriptContextMessage(s.transcript))
	s.buffer.Append(models.ChatRoleAssistant, greeting)

	s.log.WithField("persona", persona.Name).Info("Initialized chat for persona")
	return greeting
}

func (s *Session) Persona() models.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

func (s *Session) Messages() []models.ChatMessage {
	return s.buffer.Messages()
}

// Streaming reports whether a reply is in flight.
func (s *Session) Streaming() bool {
	return s.streaming.Load()
}

// Send streams the persona's reply to text. Every delta goes to sink (which
// may be nil) as it arrives. Only one reply streams at a time. When the
// provider fails, an apology carrying the error is appended to the log and
// the error is returned.
func (s *Session) Send(ctx context.Context, text string, sink func(string)) (models.ChatMessage, error) {
	const op = "Session.Send"

	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, apperror.E(apperror.CodeInvalidArgument, op, "Message is empty", nil)
	}

	s.mu.RLock()
	systemPrompt := s.systemPrompt
	s.mu.RUnlock()
	if systemPrompt == "" {
		return models.ChatMessage{}, apperror.E(apperror.CodeInvalidArgument, op, "No persona selected", nil)
	}

	if !s.streaming.CompareAndSwap(false, true) {
		return models.ChatMessage{}, apperror.E(apperror.CodeConflict, op, "A reply is already streaming", nil)
	}
	defer s.streaming.Store(false)

	if dropped := s.buffer.Prune(); dropped > 0 {
		s.log.WithField("dropped", dropped).Debug("Pruned messages")
	}
	s.buffer.Append(models.ChatRoleUser, text)

	history := s.history()
	if err := s.buffer.BeginStream(); err != nil {
		return models.ChatMessage{}, err
	}

	stream, err := s.client.Stream(ctx, s.model, history, systemPrompt)
	if err != nil {
		return s.fail(err)
	}
	defer stream.Close()

	_, err = ai.Collect(stream, func(delta string) {
		_ = s.buffer.AppendStreamDelta(delta)
		if sink != nil {
			sink(delta)
		}
	})
	if err != nil {
		return s.fail(err)
	}

	msg, ok := s.buffer.FinalizeStream()
	if !ok {
		s.log.Warn("Provider returned an empty reply")
		msg = models.ChatMessage{Role: models.ChatRoleAssistant}
	}
	s.observer.ObserveChatTurn(s.model, nil)
	return msg, nil
}

func (s *Session) fail(err error) (models.ChatMessage, error) {
	s.buffer.AbortStream()
	s.log.WithError(err).Error("Chat error")
	s.observer.ObserveChatTurn(s.model, err)
	return s.buffer.Append(models.ChatRoleAssistant, chatErrorPrefix+err.Error()), err
}

func (s *Session) history() []ai.Message {
	msgs := s.buffer.Messages()
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
