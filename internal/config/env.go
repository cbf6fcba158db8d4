package config

import (
	"github.com/caarlos0/env/v11"
)

// Secrets are accepted from the environment so API keys can stay out of the
// config file (the original deployment keeps them in env vars too).
type envOverrides struct {
	GenAIKey   string `env:"GENAI_API_KEY"`
	NewsKey    string `env:"NEWS_API_KEY"`
	AlertToken string `env:"ALERT_TOKEN"`
}

// applyEnvOverrides layers SIGNBOARD_* environment variables on top of the
// parsed file. Env wins over file so rotation doesn't require an edit.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: "SIGNBOARD_"}); err != nil {
		return err
	}
	if o.GenAIKey != "" {
		cfg.GenAI.APIKey = o.GenAIKey
	}
	if o.NewsKey != "" {
		cfg.News.APIKey = o.NewsKey
	}
	if o.AlertToken != "" {
		cfg.Alerts.Token = o.AlertToken
	}
	return nil
}
