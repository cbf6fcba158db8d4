package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "none": storage disabled (tests only; dispatch logging needs a store)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Birthday is one row of the birthday list. DOB is "YYYY-MM-DD".
type Birthday struct {
	ID   int64
	Name string
	DOB  string
}

// DispatchRecord is one append-only audit entry: what we tried to show,
// when, and why. One record per attempted dispatch, success or not.
type DispatchRecord struct {
	ID       string
	Message  string
	At       time.Time
	Category string
}

// Schedule is a persisted custom schedule row. At is "HH:MM".
type Schedule struct {
	ID      int64
	At      string
	Message string
	Active  bool
}

// BoardSettings is the device-facing configuration, read fresh per
// dispatch so live edits apply without restart.
type BoardSettings struct {
	IP         string
	Port       int
	Protocol   string // "HTTP" or "TCP"
	Brightness int
	FontSize   int
	Color      string
	Effect     string
}

// AISettings shape the generated greeting text.
type AISettings struct {
	Style    string
	Language string
	Tone     string
}
