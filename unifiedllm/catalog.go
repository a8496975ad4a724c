package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                string   `json:"id"`
	Provider          string   `json:"provider"`
	DisplayName       string   `json:"display_name"`
	ContextWindow     int      `json:"context_window"`
	MaxOutput         int      `json:"max_output"`
	SupportsTools     bool     `json:"supports_tools"`
	SupportsReasoning bool     `json:"supports_reasoning"`
	Encoding          string   `json:"encoding,omitempty"` // tiktoken encoding used for local estimates
	Aliases           []string `json:"aliases,omitempty"`
}

// DefaultContextWindow is assumed for models missing from the catalog.
const DefaultContextWindow = 128000

// Models is the built-in model catalog, newest first within each provider.
var Models = []ModelInfo{
	{
		ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, MaxOutput: 32768, SupportsTools: true, SupportsReasoning: true,
		Encoding: "cl100k_base", Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 16384, SupportsTools: true, SupportsReasoning: true,
		Encoding: "cl100k_base", Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5",
		ContextWindow: 200000, MaxOutput: 8192, SupportsTools: true,
		Encoding: "cl100k_base", Aliases: []string{"haiku"},
	},
	{
		ID: "gpt-5.2", Provider: "openai", DisplayName: "GPT-5.2",
		ContextWindow: 1047576, MaxOutput: 32768, SupportsTools: true, SupportsReasoning: true,
		Encoding: "o200k_base", Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true,
		Encoding: "o200k_base",
	},
	{
		ID: "gemini-3-pro-preview", Provider: "gemini", DisplayName: "Gemini 3 Pro (Preview)",
		ContextWindow: 1048576, MaxOutput: 65536, SupportsTools: true, SupportsReasoning: true,
		Encoding: "cl100k_base", Aliases: []string{"gemini-pro"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	var result []ModelInfo
	for _, m := range Models {
		if provider == "" || m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first model for a provider, optionally
// filtered by capability ("tools" or "reasoning").
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		m := &Models[i]
		if m.Provider != provider {
			continue
		}
		switch capability {
		case "":
			return m
		case "tools":
			if m.SupportsTools {
				return m
			}
		case "reasoning":
			if m.SupportsReasoning {
				return m
			}
		}
	}
	return nil
}

// ContextWindow returns the context window of model, or DefaultContextWindow
// when the model is unknown.
func ContextWindow(model string) int {
	if info := GetModelInfo(model); info != nil && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return DefaultContextWindow
}
