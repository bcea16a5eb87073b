package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backstage/internal/models"
	"backstage/shared/ai"
	"backstage/shared/apperror"
	"backstage/shared/research"
	"backstage/shared/storage"
	"backstage/shared/transcript"

	"github.com/sirupsen/logrus"
)

// Stage names reported to the Observer.
const (
	StageStartChat = "start_chat"
	StageResearch  = "research"
)

// Outcomes reported to the Observer.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeComputed = "computed"
	OutcomeFailed   = "failed"
	OutcomeFallback = "fallback"
)

// Observer is told how each pipeline call ended.
type Observer interface {
	ObservePipeline(stage, outcome string)
}

type noopObserver struct{}

func (noopObserver) ObservePipeline(string, string) {}

// ClientFactory builds a chat client bound to one set of credentials.
type ClientFactory func(models.APIKeys) ai.ChatClient

type StartChatResult struct {
	Transcript string           `json:"transcript"`
	Personas   []models.Persona `json:"personas"`
}

type ResearchResult struct {
	PersonaName string `json:"personaName"`
	Research    string `json:"research"`
}

// Pipeline prepares a video for conversation in two phases: StartChat finds
// the transcript and the speakers, ResearchPersona adds background for one
// speaker on demand.
type Pipeline struct {
	cache     *storage.VideoCache
	fetcher   transcript.Fetcher
	searcher  research.Searcher
	newClient ClientFactory
	observer  Observer
	log       logrus.FieldLogger
}

type Option func(*Pipeline)

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

func New(cache *storage.VideoCache, fetcher transcript.Fetcher, searcher research.Searcher, newClient ClientFactory, log logrus.FieldLogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:     cache,
		fetcher:   fetcher,
		searcher:  searcher,
		newClient: newClient,
		observer:  noopObserver{},
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartChat returns the transcript and speakers of video, from the cache when
// a fresh entry exists. Only transcript failures are errors; speaker
// detection always produces at least one persona.
func (p *Pipeline) StartChat(ctx context.Context, video models.VideoMetadata, keys models.APIKeys, model string) (*StartChatResult, error) {
	const op = "Pipeline.StartChat"
	log := p.log.WithFields(logrus.Fields{"video_id": video.VideoID, "model": model})

	cached, ok, err := p.cache.Get(ctx, video.VideoID)
	if err != nil {
		log.WithError(err).Warn("Cache read failed, recomputing")
	}
	if ok {
		log.Debug("Using cached data for video")
		p.observer.ObservePipeline(StageStartChat, OutcomeCacheHit)
		return &StartChatResult{Transcript: cached.Transcript, Personas: cached.Personas}, nil
	}

	log.Info("No cache, fetching fresh data for video")
	text, err := p.fetcher.Fetch(ctx, video.VideoID)
	if err != nil {
		p.observer.ObservePipeline(StageStartChat, OutcomeFailed)
		log.WithError(err).Warn("Transcript fetch failed")
		return nil, transcriptError(op, err)
	}

	analyzer := ai.NewAnalyzer(p.newClient(keys), model, log)
	personas := analyzer.DetectSpeakers(ctx, text, video.Title, video.ChannelName)

	entry := &models.CachedVideoEntry{
		VideoID:    video.VideoID,
		Timestamp:  p.cache.Now().UnixMilli(),
		Transcript: text,
		Personas:   personas,
	}
	if err := p.cache.Put(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to cache video data")
	}

	p.observer.ObservePipeline(StageStartChat, OutcomeComputed)
	return &StartChatResult{Transcript: text, Personas: personas}, nil
}

func transcriptError(op string, err error) error {
	switch {
	case errors.Is(err, transcript.ErrDisabled):
		return apperror.E(apperror.CodeTranscriptUnavailable, op,
			"Transcript is disabled for this video. The creator may not have enabled captions.", err)
	case errors.Is(err, transcript.ErrNotFound):
		return apperror.E(apperror.CodeTranscriptNotFound, op,
			"No transcript available for this video.", err)
	default:
		return apperror.E(apperror.CodeTranscriptFetch, op,
			fmt.Sprintf("Failed to fetch transcript: %s", err.Error()), err)
	}
}

// ResearchPersona searches the web for persona, summarizes the hits and
// stores the summary on the cached entry. It does not fail: every problem
// degrades to a placeholder text.
func (p *Pipeline) ResearchPersona(ctx context.Context, videoID string, persona models.Persona, channelName string, keys models.APIKeys, model string) (*ResearchResult, error) {
	log := p.log.WithFields(logrus.Fields{"video_id": videoID, "persona": persona.Name, "model": model})

	searchContext, degraded := p.searchContext(ctx, persona.Name, channelName, keys.Tavily, log)

	analyzer := ai.NewAnalyzer(p.newClient(keys), model, log)
	summary := analyzer.SummarizeResearch(ctx, searchContext, persona.Name)

	if err := p.cache.UpdatePersonaResearch(ctx, videoID, persona.Name, summary); err != nil {
		log.WithError(err).Warn("Failed to update persona research in cache")
	}

	outcome := OutcomeComputed
	if degraded {
		outcome = OutcomeFallback
	}
	p.observer.ObservePipeline(StageResearch, outcome)

	return &ResearchResult{PersonaName: persona.Name, Research: summary}, nil
}

// searchContext turns search hits into prompt text. degraded is true when a
// placeholder stands in for real results.
func (p *Pipeline) searchContext(ctx context.Context, name, channelName, apiKey string, log logrus.FieldLogger) (text string, degraded bool) {
	from := channelName
	if from == "" {
		from = "this video"
	}

	if apiKey == "" {
		return fmt.Sprintf("%s from %s. Background research unavailable (no Tavily API key).", name, from), true
	}

	query := strings.TrimSpace(fmt.Sprintf("%s %s background biography expertise", name, channelName))
	results, err := p.searcher.Search(ctx, apiKey, query)
	if err != nil {
		log.WithError(err).Warn("Web search failed")
		return fmt.Sprintf("%s from %s. For more information, see the video transcript.", name, from), true
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Title, r.Content))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s - search returned no results.", name), true
	}
	return strings.Join(parts, "\n\n"), false
}
