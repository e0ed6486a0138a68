package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Speech service credentials, GEMINI_API_KEY wins
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`

	// Audio backend override: auto, oto or mock
	AudioBackend string `env:"BOOKVOICE_AUDIO"`

	// Send logs to stderr instead of the log file
	Debug bool `env:"BOOKVOICE_DEBUG"`

	// Book file path and the page to open on
	Path      string
	StartPage int

	// Word-wrap width cap, 0 for the terminal width
	MaxWidth    uint
	EnableMouse bool

	// Reload the book when it changes on disk
	Watch bool `env:"BOOKVOICE_WATCH" envDefault:"true"`
}

// APIKey returns the configured speech service key.
func (c Config) APIKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.GoogleAPIKey
}
