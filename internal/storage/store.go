package storage

import (
	"context"
	"errors"
	"strings"

	"signboard/pkg/logx"
)

// Store is the persistence API used by the dispatch core and the
// management API.
type Store interface {
	// Birthday list.
	AddBirthday(ctx context.Context, name, dob string) error
	ListBirthdays(ctx context.Context) ([]Birthday, error)
	// BirthdaysOn returns the names whose date of birth matches the given
	// "MM-DD" month-day.
	BirthdaysOn(ctx context.Context, monthDay string) ([]string, error)

	// Dispatch audit log.
	AppendDispatch(ctx context.Context, rec DispatchRecord) error
	RecentDispatches(ctx context.Context, limit int) ([]DispatchRecord, error)

	// Custom schedules.
	CreateSchedule(ctx context.Context, at, message string, active bool) (int64, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	ActiveSchedules(ctx context.Context) ([]Schedule, error)
	SetScheduleActive(ctx context.Context, id int64, active bool) error
	DeleteSchedule(ctx context.Context, id int64) error

	// Settings (singleton rows, seeded with defaults at migration time).
	BoardSettings(ctx context.Context) (BoardSettings, error)
	SaveBoardSettings(ctx context.Context, s BoardSettings) error
	AISettings(ctx context.Context) (AISettings, error)
	SaveAISettings(ctx context.Context, s AISettings) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "none":
		return nil, nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
