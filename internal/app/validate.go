package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"signboard/internal/config"
	"signboard/internal/trigger"
)

// validateConfig rejects configs the daemon could not run with. Used
// both at startup and as the hot-reload gate, so a bad edit never
// replaces a good running config.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"api.read_timeout", cfg.API.ReadTimeout},
		{"api.write_timeout", cfg.API.WriteTimeout},
		{"api.idle_timeout", cfg.API.IdleTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"scheduler.default_timeout", cfg.Scheduler.DefaultTimeout},
		{"transport.send_timeout", cfg.Transport.SendTimeout},
		{"genai.timeout", cfg.GenAI.Timeout},
		{"news.timeout", cfg.News.Timeout},
	}
	for _, d := range durations {
		if _, err := config.ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case "none":
		return errors.New(`storage.driver "none" is not runnable; dispatch logging requires a store`)
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	birthdayAt, newsAt := builtinTimes(cfg)
	if birthdayAt != "" {
		if _, _, err := trigger.ParseHHMM(birthdayAt); err != nil {
			return fmt.Errorf("scheduler.birthday_at: %w", err)
		}
	}
	if newsAt != "" {
		if _, _, err := trigger.ParseHHMM(newsAt); err != nil {
			return fmt.Errorf("scheduler.news_at: %w", err)
		}
	}

	if cfg.Transport.RatePerSec < 0 {
		return errors.New("transport.rate_per_sec must be >= 0")
	}
	if cfg.Alerts.Enabled && strings.TrimSpace(cfg.Alerts.Token) == "" {
		return errors.New("alerts.enabled requires alerts.token")
	}
	return nil
}

// builtinTimes resolves the daily job times with their defaults. The
// literal "off" disables a job; an empty or omitted field means the
// default applies.
func builtinTimes(cfg *config.Config) (birthdayAt, newsAt string) {
	birthdayAt = strings.TrimSpace(cfg.Scheduler.BirthdayAt)
	if birthdayAt == "" {
		birthdayAt = "09:00"
	} else if strings.EqualFold(birthdayAt, "off") {
		birthdayAt = ""
	}
	newsAt = strings.TrimSpace(cfg.Scheduler.NewsAt)
	if newsAt == "" {
		newsAt = "18:00"
	} else if strings.EqualFold(newsAt, "off") {
		newsAt = ""
	}
	return birthdayAt, newsAt
}
