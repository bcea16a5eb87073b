package backstage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"backstage/internal/models"
	"backstage/shared/ai"
	"backstage/shared/logger"
	"backstage/shared/pipeline"
	"backstage/shared/research"
	"backstage/shared/settings"
	"backstage/shared/storage"

	"github.com/stretchr/testify/require"
)

const speakersJSON = `[{"name":"Ada Lovelace","role":"host"},{"name":"Bob","role":"guest"}]`

type fakeStream struct {
	chunks []ai.Chunk
	err    error
	gate   chan struct{}
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (ai.Chunk, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return ai.Chunk{}, s.err
	}
	return ai.Chunk{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeChat answers Send with the speaker list for detection prompts and with
// summary otherwise. Stream replays deltas.
type fakeChat struct {
	mu        sync.Mutex
	summary   string
	sendErr   error
	deltas    []string
	openErr   error
	streamErr error
	gate      chan struct{}

	systemPrompts []string
	histories     [][]ai.Message
	sends         []string
}

func newFakeChat() *fakeChat {
	return &fakeChat{summary: "Ada is a mathematician.", deltas: []string{"Hello", " there"}}
}

func (f *fakeChat) Send(_ context.Context, _ string, messages []ai.Message, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prompt := messages[len(messages)-1].Content
	f.sends = append(f.sends, prompt)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	if strings.Contains(prompt, "identify all speakers") {
		return speakersJSON, nil
	}
	return f.summary, nil
}

func (f *fakeChat) Stream(_ context.Context, _ string, messages []ai.Message, systemPrompt string) (ai.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemPrompts = append(f.systemPrompts, systemPrompt)
	f.histories = append(f.histories, append([]ai.Message(nil), messages...))
	if f.openErr != nil {
		return nil, f.openErr
	}
	chunks := make([]ai.Chunk, 0, len(f.deltas)+1)
	for _, d := range f.deltas {
		chunks = append(chunks, ai.Chunk{Content: d})
	}
	if f.streamErr == nil {
		chunks = append(chunks, ai.Chunk{Done: true})
	}
	return &fakeStream{chunks: chunks, err: f.streamErr, gate: f.gate}, nil
}

func (f *fakeChat) lastHistory() []ai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[len(f.histories)-1]
}

type fakeFetcher struct {
	text  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeSearcher struct {
	results []research.Result
}

func (f *fakeSearcher) Search(context.Context, string, string) ([]research.Result, error) {
	return f.results, nil
}

type fakeResolver struct {
	video models.VideoMetadata
	err   error
	calls int
}

func (r *fakeResolver) Resolve(_ context.Context, videoID string) (models.VideoMetadata, error) {
	r.calls++
	if r.err != nil {
		return models.VideoMetadata{}, r.err
	}
	v := r.video
	v.VideoID = videoID
	return v, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	controls []string
	turns    []string
}

func (o *recordingObserver) ObserveControlMessage(action string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if success {
		o.controls = append(o.controls, action+":ok")
		return
	}
	o.controls = append(o.controls, action+":fail")
}

func (o *recordingObserver) ObserveChatTurn(model string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.turns = append(o.turns, model+":error")
		return
	}
	o.turns = append(o.turns, model+":ok")
}

type agentFixture struct {
	agent    *Agent
	chat     *fakeChat
	fetcher  *fakeFetcher
	resolver *fakeResolver
	observer *recordingObserver
	settings *settings.Store
	cache    *storage.VideoCache
	keys     []models.APIKeys
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()
	kv, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	f := &agentFixture{
		chat:     newFakeChat(),
		fetcher:  &fakeFetcher{text: "Welcome back. Today Bob joins me."},
		resolver: &fakeResolver{video: models.VideoMetadata{Title: "Resolved Title", ChannelName: "Resolved Channel"}},
		observer: &recordingObserver{},
		cache:    storage.NewVideoCache(kv, logger.Discard(), storage.WithClock(func() time.Time { return now })),
	}

	seed := models.DefaultSettings()
	seed.APIKeys = models.APIKeys{OpenAI: "sk-stored"}
	f.settings = settings.NewStore(kv, seed, logger.Discard())
	require.NoError(t, f.settings.Load(context.Background()))

	factory := func(keys models.APIKeys) ai.ChatClient {
		f.keys = append(f.keys, keys)
		return f.chat
	}
	p := pipeline.New(f.cache, f.fetcher, &fakeSearcher{}, factory, logger.Discard())

	f.agent = NewAgent(Deps{
		Pipeline:  p,
		Settings:  f.settings,
		NewClient: factory,
		Resolver:  f.resolver,
		Observer:  f.observer,
		Log:       logger.Discard(),
	})
	return f
}

var errBoom = errors.New("boom")
