package config

// Config is the daemon configuration file.
//
// Device-facing settings (board address, brightness, colors) deliberately do
// NOT live here: they are owned by the settings store and fetched fresh per
// dispatch so edits take effect without a restart. This file only carries
// process-level knobs.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	API       APIConfig       `json:"api"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Transport TransportConfig `json:"transport,omitempty"`
	GenAI     GenAIConfig     `json:"genai,omitempty"`
	News      NewsConfig      `json:"news,omitempty"`
	Alerts    AlertsConfig    `json:"alerts,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// APIConfig controls the management HTTP API consumed by the web frontend.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:5000"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the persistence layer (birthdays, dispatch log,
// schedules, board/AI settings).
type StorageConfig struct {
	Driver      string `json:"driver"` // "sqlite" (default) or "none"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SchedulerConfig controls the trigger engine.
//
// BirthdayAt/NewsAt set the daily built-in jobs ("HH:MM"). Empty means
// the default; the literal "off" disables that job.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Kolkata"

	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"` // Go duration string

	BirthdayAt string `json:"birthday_at,omitempty"` // default "09:00"
	NewsAt     string `json:"news_at,omitempty"`     // default "18:00"

	// ReplayOnStart re-registers active custom schedules from the store at
	// startup. Pointer so "omitted" defaults to true while an explicit
	// false keeps the registrations ephemeral per-process.
	ReplayOnStart *bool `json:"replay_on_start,omitempty"`
}

// TransportConfig tunes delivery to the board.
type TransportConfig struct {
	SendTimeout string `json:"send_timeout,omitempty"` // default "3s"
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 2
}

// GenAIConfig points at an OpenAI-compatible chat completions endpoint.
// Leave APIKey empty to disable generation (resolvers fall back to
// deterministic text).
type GenAIConfig struct {
	BaseURL string `json:"base_url,omitempty"` // default Groq
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Timeout string `json:"timeout,omitempty"` // Go duration string
}

// NewsConfig points at the headline service. Empty APIKey disables the
// daily news digest.
type NewsConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Country string `json:"country,omitempty"` // default "us"
	Timeout string `json:"timeout,omitempty"`
}

// AlertsConfig controls optional Telegram operator alerts for delivery
// failures.
type AlertsConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"` // default 6
}

// ReplayOnStartValue resolves the pointer with its default.
func (s SchedulerConfig) ReplayOnStartValue() bool {
	if s.ReplayOnStart == nil {
		return true
	}
	return *s.ReplayOnStart
}
