// Package llm provides centralized LLM configuration and client abstractions.
// Extraction calls pick a model tier; the client resolves the tier to a concrete model and
// switches to the configured fallback model when the primary is rate limited.
package llm

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: classification, short text extraction
	TierLite ModelTier = "lite"
	// TierStandard is for multimodal page extraction
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long or dense pages where standard output is unreliable
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// FallbackModel is used for a single retry when the tier's model is rate limited.
	FallbackModel string
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		FallbackModel: "gemini-2.5-flash-lite",
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// FallbackFor returns the model to retry with after primary was rate limited, or "" when there
// is no distinct fallback.
func (c *Config) FallbackFor(primary string) string {
	if c.FallbackModel == "" || c.FallbackModel == primary {
		return ""
	}
	return c.FallbackModel
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:      c.Provider,
		Models:        make(map[ModelTier]string),
		FallbackModel: c.FallbackModel,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

// WithFallback returns a new Config with a different fallback model
func (c *Config) WithFallback(model string) *Config {
	newConfig := &Config{
		Provider:      c.Provider,
		Models:        make(map[ModelTier]string, len(c.Models)),
		FallbackModel: model,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	return newConfig
}
