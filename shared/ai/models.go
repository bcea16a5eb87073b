package ai

import "backstage/internal/models"

type ModelOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ProviderModels struct {
	Provider string        `json:"provider"`
	Models   []ModelOption `json:"models"`
}

// modelTable is ordered; AvailableModels and the CLI list follow this order.
var modelTable = []ProviderModels{
	{
		Provider: models.ProviderOpenAI,
		Models: []ModelOption{
			{ID: "gpt-5-mini", Name: "GPT-5 Mini"},
			{ID: "gpt-4o", Name: "GPT-4o"},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
			{ID: "gpt-4", Name: "GPT-4"},
		},
	},
	{
		Provider: models.ProviderAnthropic,
		Models: []ModelOption{
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
			{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet"},
		},
	},
	{
		Provider: models.ProviderGoogle,
		Models: []ModelOption{
			{ID: "gemini-1.5-pro-latest", Name: "Gemini 1.5 Pro"},
			{ID: "gemini-1.5-flash-latest", Name: "Gemini 1.5 Flash"},
			{ID: "gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash (Experimental)"},
		},
	},
	{
		Provider: models.ProviderDeepSeek,
		Models: []ModelOption{
			{ID: "deepseek-chat", Name: "DeepSeek Chat"},
			{ID: "deepseek-coder", Name: "DeepSeek Coder"},
		},
	},
}

// ModelTable returns a copy of the provider/model table.
func ModelTable() []ProviderModels {
	out := make([]ProviderModels, len(modelTable))
	for i, pm := range modelTable {
		out[i] = ProviderModels{
			Provider: pm.Provider,
			Models:   append([]ModelOption(nil), pm.Models...),
		}
	}
	return out
}

// ResolveProvider returns the provider serving model, or false when the
// model is not registered.
func ResolveProvider(model string) (string, bool) {
	for _, pm := range modelTable {
		for _, m := range pm.Models {
			if m.ID == model {
				return pm.Provider, true
			}
		}
	}
	return "", false
}

// AvailableModels lists the model ids of every provider that has a key.
func AvailableModels(keys models.APIKeys) []string {
	var out []string
	for _, pm := range modelTable {
		if keys.Get(pm.Provider) == "" {
			continue
		}
		for _, m := range pm.Models {
			out = append(out, m.ID)
		}
	}
	return out
}

func providerDisplayName(provider string) string {
	switch provider {
	case models.ProviderOpenAI:
		return "OpenAI"
	case models.ProviderAnthropic:
		return "Anthropic"
	case models.ProviderGoogle:
		return "Google"
	case models.ProviderDeepSeek:
		return "DeepSeek"
	}
	return provider
}
