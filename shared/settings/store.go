package settings

import (
	"context"
	"fmt"
	"sync"

	"backstage/internal/models"
	"backstage/shared/ai"
	"backstage/shared/apperror"
	"backstage/shared/storage"

	"github.com/sirupsen/logrus"
)

// StorageKey is where settings live in the key-value store.
const StorageKey = "backstage-settings"

// Store holds the user's settings in memory and writes every change through
// to the key-value store.
type Store struct {
	kv   storage.Store
	seed models.Settings
	log  logrus.FieldLogger

	mu      sync.RWMutex
	current models.Settings
}

// NewStore returns a store that falls back to seed for anything never saved.
// Call Load before use.
func NewStore(kv storage.Store, seed models.Settings, log logrus.FieldLogger) *Store {
	return &Store{
		kv:      kv,
		seed:    seed,
		log:     log,
		current: seed,
	}
}

// Load reads the saved settings. With nothing saved the seed is used as is;
// otherwise API keys missing from the saved copy are filled from the seed.
func (s *Store) Load(ctx context.Context) error {
	var saved models.Settings
	ok, err := storage.GetJSON(ctx, s.kv, StorageKey, &saved)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		s.current = s.seed
		s.log.Debug("No saved settings, using defaults")
		return nil
	}

	if saved.SelectedModel == "" {
		saved.SelectedModel = s.seed.SelectedModel
	}
	saved.APIKeys = saved.APIKeys.Merge(s.seed.APIKeys)
	s.current = saved
	return nil
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) SetAPIKey(ctx context.Context, provider, key string) error {
	return s.Apply(ctx, Patch{APIKeys: map[string]string{provider: key}})
}

func (s *Store) SetSelectedModel(ctx context.Context, model string) error {
	return s.Apply(ctx, Patch{SelectedModel: &model})
}

func (s *Store) SetSaveChatHistory(ctx context.Context, v bool) error {
	return s.Apply(ctx, Patch{SaveChatHistory: &v})
}

func (s *Store) SetAutoFetchTranscript(ctx context.Context, v bool) error {
	return s.Apply(ctx, Patch{AutoFetchTranscript: &v})
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	APIKeys             map[string]string `json:"apiKeys,omitempty"`
	SelectedModel       *string           `json:"selectedModel,omitempty"`
	SaveChatHistory     *bool             `json:"saveChatHistory,omitempty"`
	AutoFetchTranscript *bool             `json:"autoFetchTranscript,omitempty"`
}

// Apply validates p as a whole, persists the result and only then makes it
// current. Nothing changes when validation or the write fails.
func (s *Store) Apply(ctx context.Context, p Patch) error {
	const op = "Settings.Apply"

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	for provider, key := range p.APIKeys {
		if !next.APIKeys.Set(provider, key) {
			return apperror.E(apperror.CodeInvalidArgument, op, fmt.Sprintf("Unknown provider: %s", provider), nil)
		}
	}
	if p.SelectedModel != nil {
		if _, ok := ai.ResolveProvider(*p.SelectedModel); !ok {
			return apperror.E(apperror.CodeUnknownModel, op, fmt.Sprintf("Unknown model: %s", *p.SelectedModel), nil)
		}
		next.SelectedModel = *p.SelectedModel
	}
	if p.SaveChatHistory != nil {
		next.SaveChatHistory = *p.SaveChatHistory
	}
	if p.AutoFetchTranscript != nil {
		next.AutoFetchTranscript = *p.AutoFetchTranscript
	}

	if err := storage.SetJSON(ctx, s.kv, StorageKey, next); err != nil {
		return apperror.E(apperror.CodeInternal, op, "Failed to save settings", err)
	}
	s.current = next
	return nil
}

// HasAnyAPIKey reports whether at least one chat provider is configured.
// The search key does not count.
func (s *Store) HasAnyAPIKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := s.current.APIKeys
	return k.OpenAI != "" || k.Anthropic != "" || k.Google != "" || k.DeepSeek != ""
}

// AvailableModels lists the models whose provider has a key, in table order.
func (s *Store) AvailableModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ai.AvailableModels(s.current.APIKeys)
}
