package dispatch

import (
	"context"
	"fmt"
	"sync"

	"signboard/internal/storage"
	"signboard/internal/trigger"
	"signboard/pkg/logx"
)

// Schedules binds persisted custom schedules to live triggers. Rows are
// the source of truth; trigger registrations are rebuilt from them at
// startup and kept in sync on every mutation.
type Schedules struct {
	mu       sync.Mutex
	engine   *trigger.Engine
	store    storage.Store
	d        *Dispatcher
	log      logx.Logger
	triggers map[int64]string // schedule id -> trigger id
}

func NewSchedules(engine *trigger.Engine, store storage.Store, d *Dispatcher, log logx.Logger) *Schedules {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Schedules{
		engine:   engine,
		store:    store,
		d:        d,
		log:      log,
		triggers: map[int64]string{},
	}
}

// Replay registers triggers for every active schedule row. Called once
// after the engine starts; occurrences missed while down stay missed.
func (s *Schedules) Replay(ctx context.Context) error {
	rows, err := s.store.ActiveSchedules(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if err := s.registerLocked(row); err != nil {
			// A bad row must not block the rest of the replay.
			s.log.Warn("schedule replay skipped row",
				logx.Int64("id", row.ID), logx.String("at", row.At), logx.Err(err))
		}
	}
	s.log.Info("schedules replayed", logx.Int("count", len(rows)))
	return nil
}

// Create validates, persists, and activates a new daily schedule.
func (s *Schedules) Create(ctx context.Context, at, message string) (storage.Schedule, error) {
	if _, _, err := trigger.ParseHHMM(at); err != nil {
		return storage.Schedule{}, err
	}
	id, err := s.store.CreateSchedule(ctx, at, message, true)
	if err != nil {
		return storage.Schedule{}, err
	}
	row := storage.Schedule{ID: id, At: at, Message: message, Active: true}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registerLocked(row); err != nil {
		return storage.Schedule{}, err
	}
	s.log.Info("schedule created",
		logx.Int64("id", id), logx.String("at", at))
	return row, nil
}

// SetActive toggles a schedule. Deactivating removes the live trigger;
// reactivating re-registers it.
func (s *Schedules) SetActive(ctx context.Context, id int64, active bool) error {
	if err := s.store.SetScheduleActive(ctx, id, active); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !active {
		s.unregisterLocked(id)
		return nil
	}
	if _, ok := s.triggers[id]; ok {
		return nil
	}
	rows, err := s.store.ListSchedules(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ID == id {
			return s.registerLocked(row)
		}
	}
	return fmt.Errorf("schedule %d vanished after update", id)
}

// Delete removes the row and its live trigger.
func (s *Schedules) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.unregisterLocked(id)
	s.mu.Unlock()
	s.log.Info("schedule deleted", logx.Int64("id", id))
	return nil
}

func (s *Schedules) List(ctx context.Context) ([]storage.Schedule, error) {
	return s.store.ListSchedules(ctx)
}

func (s *Schedules) registerLocked(row storage.Schedule) error {
	message := row.Message
	name := fmt.Sprintf("schedule-%d", row.ID)
	tid, err := s.engine.AddDaily(name, row.At, 0, func(ctx context.Context) error {
		// Delivery failures are recorded by the dispatcher; the trigger
		// itself always succeeds.
		s.d.Dispatch(ctx, message, CategoryCustom)
		return nil
	})
	if err != nil {
		return err
	}
	s.triggers[row.ID] = tid
	return nil
}

func (s *Schedules) unregisterLocked(id int64) {
	if tid, ok := s.triggers[id]; ok {
		s.engine.Remove(tid)
		delete(s.triggers, id)
	}
}
