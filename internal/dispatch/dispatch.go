// Package dispatch is the core of the daemon: it resolves content for a
// trigger, pushes it to the board, and records every attempt in the
// audit log. Delivery failures are logged and recorded but never abort
// a job; the board being unreachable is a normal condition here.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"signboard/internal/board"
	"signboard/internal/content"
	"signboard/internal/eventbus"
	"signboard/internal/storage"
	"signboard/pkg/logx"
)

// Dispatch categories recorded in the audit log.
const (
	CategoryBirthday = "birthday"
	CategoryNews     = "news"
	CategoryCustom   = "custom"
	CategoryQuick    = "quick_message"
	CategoryProgram  = "program"
)

// Sender is the delivery surface the dispatcher needs.
type Sender interface {
	Send(ctx context.Context, tgt board.Target, message string) board.DeliveryResult
	Probe(ctx context.Context, tgt board.Target) bool
}

type Dispatcher struct {
	store    storage.Store
	sender   Sender
	resolver *content.Resolver
	bus      eventbus.Bus
	log      logx.Logger

	now   func() time.Time
	newID func() string
}

func New(store storage.Store, sender Sender, resolver *content.Resolver, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		store:    store,
		sender:   sender,
		resolver: resolver,
		bus:      bus,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Dispatch sends one message to the board and records the attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, message, category string) board.DeliveryResult {
	return d.dispatch(ctx, message, message, category)
}

// dispatch sends sendText and records recordText. The two differ only
// for programs, which log with a "Program: " prefix.
func (d *Dispatcher) dispatch(ctx context.Context, sendText, recordText, category string) board.DeliveryResult {
	bs, err := d.store.BoardSettings(ctx)
	if err != nil {
		d.log.Error("board settings unavailable", logx.Err(err))
		res := board.DeliveryResult{Err: err}
		d.finish(ctx, res, recordText, category)
		return res
	}

	tgt := board.Target{IP: bs.IP, Port: bs.Port, Protocol: bs.Protocol}
	res := d.sender.Send(ctx, tgt, sendText)
	d.finish(ctx, res, recordText, category)
	return res
}

// finish records the attempt and publishes events. Runs for every
// attempt, successful or not.
func (d *Dispatcher) finish(ctx context.Context, res board.DeliveryResult, recordText, category string) {
	rec := storage.DispatchRecord{
		ID:       d.newID(),
		Message:  recordText,
		At:       d.now(),
		Category: category,
	}
	if err := d.store.AppendDispatch(ctx, rec); err != nil {
		d.log.Error("dispatch record not persisted",
			logx.String("category", category), logx.Err(err))
	}

	ev := eventbus.Event{
		Type:     eventbus.TypeDispatchAttempted,
		Category: category,
		Message:  recordText,
		Target:   res.Target,
		OK:       res.OK,
	}
	if res.Err != nil {
		ev.Err = res.Err.Error()
	}
	if d.bus != nil {
		d.bus.Publish(ev)
		if !res.OK {
			ev.Type = eventbus.TypeDispatchFailed
			d.bus.Publish(ev)
		}
	}
	if !res.OK {
		d.log.Warn("dispatch failed",
			logx.String("category", category),
			logx.String("target", res.Target),
			logx.Err(res.Err))
		return
	}
	d.log.Info("dispatched",
		logx.String("category", category),
		logx.String("target", res.Target),
		logx.Duration("took", res.Took))
}

// RunBirthdayJob greets everyone whose birthday falls on today's
// month-day. Each match is its own dispatch with its own record.
func (d *Dispatcher) RunBirthdayJob(ctx context.Context) error {
	monthDay := d.now().Format("01-02")
	names, err := d.store.BirthdaysOn(ctx, monthDay)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		d.log.Debug("no birthdays today", logx.String("day", monthDay))
		return nil
	}

	opts := d.greetingOptions(ctx)
	for _, name := range names {
		msg := d.resolver.Birthday(ctx, name, opts)
		d.Dispatch(ctx, msg, CategoryBirthday)
	}
	return nil
}

// RunNewsJob shows the day's top headline. No headline means no
// dispatch: the skip is logged and published, never sent.
func (d *Dispatcher) RunNewsJob(ctx context.Context) error {
	opts := d.greetingOptions(ctx)
	msg, err := d.resolver.News(ctx, opts.Language)
	if err != nil {
		if errors.Is(err, content.ErrNoContent) {
			d.log.Info("news dispatch skipped", logx.Err(err))
			if d.bus != nil {
				d.bus.Publish(eventbus.Event{
					Type:     eventbus.TypeDispatchSkipped,
					Category: CategoryNews,
					Err:      err.Error(),
				})
			}
			return nil
		}
		return err
	}
	d.Dispatch(ctx, msg, CategoryNews)
	return nil
}

// SendQuick pushes an operator-typed message immediately.
func (d *Dispatcher) SendQuick(ctx context.Context, message string) board.DeliveryResult {
	return d.Dispatch(ctx, message, CategoryQuick)
}

// SendProgram renders a widget program and pushes the combined text.
func (d *Dispatcher) SendProgram(ctx context.Context, widgets []content.Widget) (string, board.DeliveryResult) {
	combined := d.resolver.Program(widgets)
	res := d.dispatch(ctx, combined, "Program: "+combined, CategoryProgram)
	return combined, res
}

// BoardStatus reports reachability plus the current device settings.
type BoardStatus struct {
	Online   bool
	Settings storage.BoardSettings
}

func (d *Dispatcher) BoardStatus(ctx context.Context) (BoardStatus, error) {
	bs, err := d.store.BoardSettings(ctx)
	if err != nil {
		return BoardStatus{}, err
	}
	tgt := board.Target{IP: bs.IP, Port: bs.Port, Protocol: bs.Protocol}
	return BoardStatus{Online: d.sender.Probe(ctx, tgt), Settings: bs}, nil
}

func (d *Dispatcher) greetingOptions(ctx context.Context) content.GreetingOptions {
	ai, err := d.store.AISettings(ctx)
	if err != nil {
		d.log.Warn("ai settings unavailable, using defaults", logx.Err(err))
		return content.GreetingOptions{}
	}
	return content.GreetingOptions{Style: ai.Style, Language: ai.Language, Tone: ai.Tone}
}
