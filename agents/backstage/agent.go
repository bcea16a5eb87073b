package backstage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"backstage/internal/models"
	"backstage/shared/apperror"
	"backstage/shared/pipeline"
	"backstage/shared/settings"

	"github.com/sirupsen/logrus"
)

// Control actions accepted by HandleMessage.
const (
	ActionVideoInfo       = "VIDEO_INFO"
	ActionGetCurrentVideo = "GET_CURRENT_VIDEO"
	ActionStartChat       = "START_CHAT"
	ActionResearchPersona = "RESEARCH_PERSONA"
)

// Observer receives control and chat outcomes. *monitoring.Monitor
// implements it.
type Observer interface {
	ObserveControlMessage(action string, success bool)
	ObserveChatTurn(model string, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveControlMessage(string, bool) {}
func (noopObserver) ObserveChatTurn(string, error)      {}

// VideoResolver looks up title and channel for a video id.
type VideoResolver interface {
	Resolve(ctx context.Context, videoID string) (models.VideoMetadata, error)
}

// Deps are the collaborators of an Agent. Resolver and Observer are
// optional.
type Deps struct {
	Pipeline  *pipeline.Pipeline
	Settings  *settings.Store
	NewClient pipeline.ClientFactory
	Resolver  VideoResolver
	Observer  Observer
	Log       logrus.FieldLogger
}

// chatState is what START_CHAT produced for the current video.
type chatState struct {
	video      models.VideoMetadata
	transcript string
	personas   []models.Persona
	keys       models.APIKeys
	model      string
}

// Agent owns the application state: the current video, the prepared chat
// for it and the active session.
type Agent struct {
	pipeline  *pipeline.Pipeline
	settings  *settings.Store
	newClient pipeline.ClientFactory
	resolver  VideoResolver
	observer  Observer
	log       logrus.FieldLogger

	mu      sync.Mutex
	current *models.VideoMetadata
	chat    *chatState
	session *Session
}

func NewAgent(d Deps) *Agent {
	a := &Agent{
		pipeline:  d.Pipeline,
		settings:  d.Settings,
		newClient: d.NewClient,
		resolver:  d.Resolver,
		observer:  d.Observer,
		log:       d.Log,
	}
	if a.observer == nil {
		a.observer = noopObserver{}
	}
	return a
}

func (a *Agent) Name() string {
	return "Backstage"
}

// Message is the control envelope.
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response is the reply to a control message. The embedded results are
// flattened into the JSON object when set.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Data is only used by GET_CURRENT_VIDEO, where it may be null.
	Data json.RawMessage `json:"data,omitempty"`

	*pipeline.StartChatResult
	*pipeline.ResearchResult
}

type startChatData struct {
	APIKeys       *models.APIKeys `json:"apiKeys"`
	SelectedModel string          `json:"selectedModel"`
}

type researchData struct {
	VideoID       string          `json:"videoId"`
	Persona       models.Persona  `json:"persona"`
	APIKeys       *models.APIKeys `json:"apiKeys"`
	SelectedModel string          `json:"selectedModel"`
}

// HandleMessage dispatches one control message. Failures are reported in
// the response, never as a Go error.
func (a *Agent) HandleMessage(ctx context.Context, msg Message) Response {
	resp := a.dispatch(ctx, msg)
	a.observer.ObserveControlMessage(msg.Action, resp.Success)
	if !resp.Success {
		a.log.WithField("action", msg.Action).Warnf("Control message failed: %s", resp.Error)
	}
	return resp
}

func (a *Agent) dispatch(ctx context.Context, msg Message) Response {
	switch msg.Action {
	case ActionVideoInfo:
		var v models.VideoMetadata
		if err := decodeData(msg, &v); err != nil {
			return failure(err)
		}
		if err := a.SetVideo(ctx, v); err != nil {
			return failure(err)
		}
		return Response{Success: true}

	case ActionGetCurrentVideo:
		data := json.RawMessage("null")
		if v, ok := a.CurrentVideo(); ok {
			b, err := json.Marshal(v)
			if err != nil {
				return failure(err)
			}
			data = b
		}
		return Response{Success: true, Data: data}

	case ActionStartChat:
		var d startChatData
		if err := decodeData(msg, &d); err != nil {
			return failure(err)
		}
		result, err := a.StartChat(ctx, d.APIKeys, d.SelectedModel)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, StartChatResult: result}

	case ActionResearchPersona:
		var d researchData
		if err := decodeData(msg, &d); err != nil {
			return failure(err)
		}
		result, err := a.ResearchPersona(ctx, d.VideoID, d.Persona, d.APIKeys, d.SelectedModel)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, ResearchResult: result}
	}

	return Response{Success: false, Error: fmt.Sprintf("Unknown action: %s", msg.Action)}
}

func decodeData(msg Message, dst any) error {
	if len(msg.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return apperror.E(apperror.CodeInvalidArgument, "Agent.HandleMessage",
			fmt.Sprintf("Invalid data for %s", msg.Action), err)
	}
	return nil
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// SetVideo makes v the current video. Missing or placeholder title and
// channel are looked up when a resolver is configured. A new video id drops
// the prepared chat and the session.
func (a *Agent) SetVideo(ctx context.Context, v models.VideoMetadata) error {
	const op = "Agent.SetVideo"

	if v.VideoID == "" {
		return apperror.E(apperror.CodeInvalidArgument, op, "videoId is required", nil)
	}

	if v.Incomplete() && a.resolver != nil {
		resolved, err := a.resolver.Resolve(ctx, v.VideoID)
		if err != nil {
			a.log.WithError(err).WithField("video_id", v.VideoID).Warn("Failed to resolve video metadata")
		} else {
			v = fillMetadata(v, resolved)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil || a.current.VideoID != v.VideoID {
		a.chat = nil
		a.session = nil
		a.log.WithFields(logrus.Fields{"video_id": v.VideoID, "title": v.Title}).Info("Video changed")
	}
	a.current = &v
	return nil
}

func fillMetadata(v, resolved models.VideoMetadata) models.VideoMetadata {
	if (v.Title == "" || v.Title == models.UnknownVideoTitle) && resolved.Title != "" {
		v.Title = resolved.Title
	}
	if (v.ChannelName == "" || v.ChannelName == models.UnknownChannelName) && resolved.ChannelName != "" {
		v.ChannelName = resolved.ChannelName
	}
	return v
}

func (a *Agent) CurrentVideo() (models.VideoMetadata, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return models.VideoMetadata{}, false
	}
	return *a.current, true
}

// credentials falls back to the stored settings for anything not given.
func (a *Agent) credentials(keys *models.APIKeys, model string) (models.APIKeys, string) {
	stored := a.settings.Snapshot()
	k := stored.APIKeys
	if keys != nil {
		k = *keys
	}
	if model == "" {
		model = stored.SelectedModel
	}
	return k, model
}

// StartChat prepares the current video: transcript and detected speakers.
func (a *Agent) StartChat(ctx context.Context, keys *models.APIKeys, model string) (*pipeline.StartChatResult, error) {
	const op = "Agent.StartChat"

	video, ok := a.CurrentVideo()
	if !ok {
		return nil, apperror.E(apperror.CodeNoVideo, op, "No video detected", nil)
	}
	k, m := a.credentials(keys, model)

	result, err := a.pipeline.StartChat(ctx, video, k, m)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.current != nil && a.current.VideoID == video.VideoID {
		a.chat = &chatState{
			video:      *a.current,
			transcript: result.Transcript,
			personas:   append([]models.Persona(nil), result.Personas...),
			keys:       k,
			model:      m,
		}
		a.session = nil
	}
	a.mu.Unlock()

	return result, nil
}

// ResearchPersona gathers background for persona. An empty videoID means
// the current video; the channel name always comes from the current video.
func (a *Agent) ResearchPersona(ctx context.Context, videoID string, persona models.Persona, keys *models.APIKeys, model string) (*pipeline.ResearchResult, error) {
	const op = "Agent.ResearchPersona"

	if persona.Name == "" {
		return nil, apperror.E(apperror.CodeInvalidArgument, op, "persona name is required", nil)
	}

	video, ok := a.CurrentVideo()
	if videoID == "" {
		if !ok {
			return nil, apperror.E(apperror.CodeNoVideo, op, "No video detected", nil)
		}
		videoID = video.VideoID
	}
	k, m := a.credentials(keys, model)

	result, err := a.pipeline.ResearchPersona(ctx, videoID, persona, video.ChannelName, k, m)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.chat != nil && a.chat.video.VideoID == videoID {
		for i := range a.chat.personas {
			if a.chat.personas[i].Name == result.PersonaName {
				a.chat.personas[i].Research = result.Research
			}
		}
	}
	a.mu.Unlock()

	return result, nil
}

// Personas returns the speakers found by the last StartChat for the
// current video.
func (a *Agent) Personas() []models.Persona {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat == nil {
		return nil
	}
	return append([]models.Persona(nil), a.chat.personas...)
}

// SelectPersona opens a new session with the named persona and returns its
// greeting. A persona without research is researched first so the system
// prompt can use it.
func (a *Agent) SelectPersona(ctx context.Context, name string) (string, error) {
	const op = "Agent.SelectPersona"

	a.mu.Lock()
	chat := a.chat
	a.mu.Unlock()
	if chat == nil {
		return "", apperror.E(apperror.CodeInvalidArgument, op, "Start a chat before selecting a persona", nil)
	}

	persona, ok := findPersona(chat.personas, name)
	if !ok {
		return "", apperror.E(apperror.CodeInvalidArgument, op, fmt.Sprintf("Unknown persona: %s", name), nil)
	}

	if !persona.HasResearch() {
		keys, model := chat.keys, chat.model
		if result, err := a.ResearchPersona(ctx, chat.video.VideoID, persona, &keys, model); err == nil {
			persona.Research = result.Research
		}
	}

	session := NewSession(a.newClient(chat.keys), chat.model, chat.video, chat.transcript, a.observer, a.log)
	greeting := session.SelectPersona(persona)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat == nil || a.chat.video.VideoID != chat.video.VideoID {
		return "", apperror.E(apperror.CodeConflict, op, "Video changed while selecting persona", nil)
	}
	a.session = session
	return greeting, nil
}

func findPersona(personas []models.Persona, name string) (models.Persona, bool) {
	for _, p := range personas {
		if p.Name == name {
			return p, true
		}
	}
	return models.Persona{}, false
}

// Session returns the active session, if any.
func (a *Agent) Session() (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, a.session != nil
}

// Send forwards text to the active session.
func (a *Agent) Send(ctx context.Context, text string, sink func(string)) (models.ChatMessage, error) {
	session, ok := a.Session()
	if !ok {
		return models.ChatMessage{}, apperror.E(apperror.CodeInvalidArgument, "Agent.Send", "No persona selected", nil)
	}
	return session.Send(ctx, text, sink)
}
