package types

// Config is the merged tandem configuration, loaded from
// tandem.json/tandem.jsonc (global then project) with environment
// overrides.
type Config struct {
	// Schema reference, kept for editor support.
	Schema string `json:"$schema,omitempty"`

	// Username overrides the OS username in generated context.
	Username string `json:"username,omitempty"`

	// Model is the default "provider/model" selection. SmallModel is
	// used for cheap side tasks such as title generation.
	Model      string `json:"model,omitempty"`
	SmallModel string `json:"small_model,omitempty"`

	// Share controls share-link behavior: "manual", "auto" or
	// "disabled".
	Share string `json:"share,omitempty"`

	// Tools enables or disables tools by name.
	Tools map[string]bool `json:"tools,omitempty"`

	// Instructions lists extra context files appended to the system
	// prompt.
	Instructions []string `json:"instructions,omitempty"`

	// Provider configures each provider by ID.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Mode configures named chat modes.
	Mode map[string]ModeConfig `json:"mode,omitempty"`

	// Permission is the default permission policy.
	Permission *PermissionConfig `json:"permission,omitempty"`

	// Watcher configures workspace file watching.
	Watcher *WatcherConfig `json:"watcher,omitempty"`

	// Log configures logging.
	Log *LogConfig `json:"log,omitempty"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	APIKey    string   `json:"apiKey,omitempty"`
	BaseURL   string   `json:"baseURL,omitempty"`
	Model     string   `json:"model,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
	Disable   bool     `json:"disable,omitempty"`
}

// ModeConfig customizes one chat mode.
type ModeConfig struct {
	Model       string           `json:"model,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	Tools       map[string]bool  `json:"tools,omitempty"`
	Permission  *PermissionConfig `json:"permission,omitempty"`
	Description string           `json:"description,omitempty"`
	Disable     bool             `json:"disable,omitempty"`
}

// PermissionConfig sets the decision per gated action: "allow",
// "deny" or "ask".
type PermissionConfig struct {
	Edit     string `json:"edit,omitempty"`
	Bash     string `json:"bash,omitempty"`
	WebFetch string `json:"webfetch,omitempty"`
}

// WatcherConfig holds file watcher settings.
type WatcherConfig struct {
	Disabled bool     `json:"disabled,omitempty"`
	Ignore   []string `json:"ignore,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

// Model describes one model offered by a provider.
type Model struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	ProviderID        string  `json:"providerID"`
	ContextLength     int     `json:"contextLength"`
	MaxOutputTokens   int     `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool    `json:"supportsTools"`
	SupportsReasoning bool    `json:"supportsReasoning,omitempty"`
	InputPrice        float64 `json:"inputPrice,omitempty"`
	OutputPrice       float64 `json:"outputPrice,omitempty"`
}

// Cost computes the dollar cost of a turn's usage against the model's
// per-million-token prices.
func (m Model) Cost(u TokenUsage) float64 {
	return float64(u.Input)*m.InputPrice/1e6 + float64(u.Output+u.Reasoning)*m.OutputPrice/1e6
}
