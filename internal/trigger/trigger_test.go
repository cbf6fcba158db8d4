package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"signboard/pkg/logx"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "09:00", hour: 9},
		{in: "18:30", hour: 18, minute: 30},
		{in: "00:00"},
		{in: "23:59", hour: 23, minute: 59},
		{in: " 07:15 ", hour: 7, minute: 15},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "-1:30", wantErr: true},
		{in: "12", wantErr: true},
		{in: "12:30:00", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		h, m, err := ParseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q): expected error", tc.in)
			} else if !errors.Is(err, ErrInvalidTimeSpec) {
				t.Errorf("ParseHHMM(%q): error %v is not ErrInvalidTimeSpec", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMM(%q): %v", tc.in, err)
			continue
		}
		if h != tc.hour || m != tc.minute {
			t.Errorf("ParseHHMM(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

func TestAddBeforeStart(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true}, logx.Nop())
	if _, err := e.AddDaily("x", "09:00", 0, func(ctx context.Context) error { return nil }); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestAddDailyRejectsBadSpec(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true}, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	if _, err := e.AddDaily("bad", "25:00", 0, func(ctx context.Context) error { return nil }); !errors.Is(err, ErrInvalidTimeSpec) {
		t.Fatalf("expected ErrInvalidTimeSpec, got %v", err)
	}
	if len(e.Jobs()) != 0 {
		t.Fatalf("rejected spec must not register a trigger")
	}
}

func TestEngineFires(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true, Workers: 1}, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	fired := make(chan struct{}, 4)
	if _, err := e.AddInterval("tick", 100*time.Millisecond, time.Second, func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger never fired")
	}
}

func TestJobErrorDoesNotStopEngine(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true, Workers: 1}, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	var runs atomic.Int64
	if _, err := e.AddInterval("flaky", 100*time.Millisecond, time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("expected repeated runs despite errors, got %d", runs.Load())
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true, Workers: 1}, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	id, err := e.AddDaily("morning", "09:00", 0, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if _, err := e.AddDaily("evening", "18:00", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if got := len(e.Jobs()); got != 2 {
		t.Fatalf("expected 2 triggers, got %d", got)
	}

	e.Remove(id)
	jobs := e.Jobs()
	if len(jobs) != 1 || jobs[0].Name != "evening" {
		t.Fatalf("unexpected triggers after remove: %+v", jobs)
	}

	// Unknown id is a no-op.
	e.Remove("cron:9999")
	if got := len(e.Jobs()); got != 1 {
		t.Fatalf("expected 1 trigger, got %d", got)
	}
}

func TestApplyTimezoneWhileFiring(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true, Workers: 2, Timezone: "UTC"}, logx.Nop())
	e.Start(context.Background())
	defer e.Stop(context.Background())

	// A seconds-resolution trigger keeps the cron runner busy enqueueing
	// while the runner is being restarted.
	if _, err := e.AddCron("busy", "* * * * * *", time.Second, func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("AddCron: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tz := range []string{"Asia/Kolkata", "UTC", "Europe/Berlin", "UTC"} {
			cfg := Config{Enabled: true, Workers: 2, Timezone: tz}
			e.Apply(cfg)
			time.Sleep(300 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timezone reload deadlocked against a firing trigger")
	}
	if got := len(e.Jobs()); got != 1 {
		t.Fatalf("trigger lost across restarts: %d", got)
	}
}

func TestStopStartCycle(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: true, Workers: 1}, logx.Nop())
	e.Start(context.Background())

	fired := make(chan struct{}, 4)
	if _, err := e.AddInterval("tick", 100*time.Millisecond, time.Second, func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	e.Stop(context.Background())

	// Definitions survive a stop and resume on the next start.
	e.Start(context.Background())
	defer e.Stop(context.Background())

	drain(fired)
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger did not resume after restart")
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
