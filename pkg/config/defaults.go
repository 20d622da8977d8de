package config

const (
	defaultBaseURL = "http://localhost:8000"

	defaultFeedPath       = "/api/feed"
	defaultGenerationPath = "/api/generate"
	defaultSettingsPath   = "/api/settings"
	defaultStatusPath     = "/api/status"

	defaultDisplayWindow  = 8
	defaultClassifyWindow = 20

	defaultBackoffInitial    = "500ms"
	defaultBackoffMax        = "30s"
	defaultBackoffMultiplier = 2.0
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	jitter := true
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			BaseURL: defaultBaseURL,
		},
		Feed: FeedConfig{
			Path:           defaultFeedPath,
			DisplayWindow:  defaultDisplayWindow,
			ClassifyWindow: defaultClassifyWindow,
		},
		Generation: GenerationConfig{
			Path: defaultGenerationPath,
		},
		REST: RESTConfig{
			SettingsPath: defaultSettingsPath,
			StatusPath:   defaultStatusPath,
		},
		Backoff: BackoffConfig{
			Initial:    defaultBackoffInitial,
			Max:        defaultBackoffMax,
			Multiplier: defaultBackoffMultiplier,
			Jitter:     &jitter,
		},
	}
}
