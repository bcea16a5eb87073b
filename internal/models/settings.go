package models

// Provider names double as the keys of APIKeys.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
	ProviderTavily    = "tavily"
)

const DefaultModel = "gpt-5-mini"

type APIKeys struct {
	OpenAI    string `json:"openai"`
	Anthropic string `json:"anthropic"`
	Google    string `json:"google"`
	DeepSeek  string `json:"deepseek"`
	Tavily    string `json:"tavily"`
}

// Get returns the credential stored for provider, or "" for an unknown name.
func (k APIKeys) Get(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return k.OpenAI
	case ProviderAnthropic:
		return k.Anthropic
	case ProviderGoogle:
		return k.Google
	case ProviderDeepSeek:
		return k.DeepSeek
	case ProviderTavily:
		return k.Tavily
	}
	return ""
}

// Set stores key under provider. It reports false for an unknown provider.
func (k *APIKeys) Set(provider, key string) bool {
	switch provider {
	case ProviderOpenAI:
		k.OpenAI = key
	case ProviderAnthropic:
		k.Anthropic = key
	case ProviderGoogle:
		k.Google = key
	case ProviderDeepSeek:
		k.DeepSeek = key
	case ProviderTavily:
		k.Tavily = key
	default:
		return false
	}
	return true
}

// Merge returns k with every empty field filled from other.
func (k APIKeys) Merge(other APIKeys) APIKeys {
	if k.OpenAI == "" {
		k.OpenAI = other.OpenAI
	}
	if k.Anthropic == "" {
		k.Anthropic = other.Anthropic
	}
	if k.Google == "" {
		k.Google = other.Google
	}
	if k.DeepSeek == "" {
		k.DeepSeek = other.DeepSeek
	}
	if k.Tavily == "" {
		k.Tavily = other.Tavily
	}
	return k
}

type Settings struct {
	APIKeys             APIKeys `json:"apiKeys"`
	SelectedModel       string  `json:"selectedModel"`
	SaveChatHistory     bool    `json:"saveChatHistory"`
	AutoFetchTranscript bool    `json:"autoFetchTranscript"`
}

func DefaultSettings() Settings {
	return Settings{
		SelectedModel:       DefaultModel,
		SaveChatHistory:     true,
		AutoFetchTranscript: true,
	}
}
