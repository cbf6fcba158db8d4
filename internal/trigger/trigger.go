package trigger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"signboard/pkg/logx"
)

// ErrInvalidTimeSpec is returned for a time-of-day string that is not a
// valid "HH:MM". Rejected at registration time; never at fire time.
var ErrInvalidTimeSpec = errors.New("invalid time spec")

// ErrNotStarted is returned when registering against a stopped engine.
var ErrNotStarted = errors.New("trigger engine not started")

// Config controls the trigger engine.
type Config struct {
	Enabled        bool
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	Timezone       string // IANA TZ, e.g. "Asia/Kolkata"
}

// Job is one fire-and-forget unit of work. The returned error is logged
// by the worker and never propagated further.
type Job func(ctx context.Context) error

type task struct {
	id      string
	name    string
	timeout time.Duration
	run     Job
}

type entryDef struct {
	id      string
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

// JobInfo is a read-only snapshot of one registered trigger.
type JobInfo struct {
	ID   string
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

// Engine fires registered jobs at wall-clock times through a bounded
// queue and a fixed worker pool. Occurrences that pass while the
// process is down are skipped, never replayed.
type Engine struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []entryDef
	nextID uint64

	// queueMu guards queue on its own so enqueue, called from cron job
	// funcs, never contends for mu. Restarting the cron runner waits for
	// in-flight jobs while holding mu; enqueue taking mu there would
	// deadlock.
	queueMu sync.Mutex
	queue   chan task

	stopCh   chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Enabled
}

// Apply updates the engine config. A timezone change restarts the cron
// runner and re-registers every definition in the new location.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldTZ := strings.TrimSpace(e.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	e.cfg = cfg

	if e.stopCh == nil {
		return
	}
	if oldTZ != newTZ {
		e.restartLocked()
	}
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.runCtx, e.cancel = context.WithCancel(ctx)

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	size := e.cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	// Fresh queue per run so stale tasks don't execute after a stop/start.
	queue := make(chan task, size)
	e.queueMu.Lock()
	e.queue = queue
	e.queueMu.Unlock()

	loc := e.loadLocationLocked()
	e.loc = loc
	e.c = cron.New(cron.WithParser(e.parser), cron.WithLocation(loc))

	for i := range e.defs {
		e.addCronLocked(&e.defs[i])
	}

	runCtx := e.runCtx
	stopCh := e.stopCh

	e.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer e.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("panic in trigger worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			e.worker(runCtx, stopCh, queue)
		}()
	}
	e.c.Start()
	e.log.Info("trigger engine started",
		logx.Int("workers", workers), logx.String("tz", loc.String()),
		logx.Int("triggers", len(e.defs)))
}

func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	stopCh := e.stopCh
	cancel := e.cancel
	c := e.c
	e.stopCh = nil
	e.c = nil
	e.cancel = nil
	e.queueMu.Lock()
	e.queue = nil
	e.queueMu.Unlock()
	e.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info("trigger engine stopped")
	case <-ctx.Done():
		// workers finish in background
	}
}

// AddCron registers a job on a raw cron spec.
func (e *Engine) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c == nil {
		return "", ErrNotStarted
	}
	if _, err := e.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidTimeSpec, spec, err)
	}
	e.nextID++
	id := fmt.Sprintf("cron:%d", e.nextID)
	d := entryDef{id: id, name: name, spec: spec, timeout: e.resolveTimeout(timeout), job: job}
	e.defs = append(e.defs, d)
	return id, e.addCronLocked(&e.defs[len(e.defs)-1])
}

// AddDaily registers a job at HH:MM every day in the engine timezone.
func (e *Engine) AddDaily(name, atHHMM string, timeout time.Duration, job Job) (string, error) {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	spec := fmt.Sprintf("%d %d * * *", m, h)
	return e.AddCron(name, spec, timeout, job)
}

// AddInterval registers a job every fixed duration. Used by tests and
// periodic maintenance, not by the daily content jobs.
func (e *Engine) AddInterval(name string, every, timeout time.Duration, job Job) (string, error) {
	return e.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, job)
}

// Remove unregisters a trigger by id. Removing an unknown id is a no-op.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.defs {
		if e.defs[i].id != id {
			continue
		}
		if e.c != nil && e.defs[i].entryID != 0 {
			e.c.Remove(e.defs[i].entryID)
		}
		e.defs = append(e.defs[:i], e.defs[i+1:]...)
		return
	}
}

// Jobs lists the registered triggers with their next/previous fire times.
func (e *Engine) Jobs() []JobInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]JobInfo, 0, len(e.defs))
	for i := range e.defs {
		info := JobInfo{ID: e.defs[i].id, Name: e.defs[i].name, Spec: e.defs[i].spec}
		if e.c != nil {
			entry := e.c.Entry(e.defs[i].entryID)
			info.Next = entry.Next
			info.Prev = entry.Prev
		}
		out = append(out, info)
	}
	return out
}

func (e *Engine) addCronLocked(d *entryDef) error {
	// Capture by value: defs may shift when triggers are removed.
	t := task{id: d.id, name: d.name, timeout: d.timeout, run: d.job}
	id, err := e.c.AddFunc(d.spec, func() { e.enqueue(t) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (e *Engine) restartLocked() {
	if e.c != nil {
		<-e.c.Stop().Done()
	}
	loc := e.loadLocationLocked()
	e.loc = loc
	e.c = cron.New(cron.WithParser(e.parser), cron.WithLocation(loc))
	for i := range e.defs {
		_ = e.addCronLocked(&e.defs[i])
	}
	e.c.Start()
	e.log.Info("trigger engine restarted", logx.String("tz", loc.String()))
}

func (e *Engine) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(e.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (e *Engine) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return e.cfg.DefaultTimeout
}

func (e *Engine) enqueue(t task) {
	e.queueMu.Lock()
	queue := e.queue
	e.queueMu.Unlock()
	if queue == nil {
		return
	}
	select {
	case queue <- t:
	default:
		e.log.Warn("trigger queue full, dropping run", logx.String("trigger", t.name))
	}
}

func (e *Engine) worker(ctx context.Context, stopCh chan struct{}, queue chan task) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			e.execOne(ctx, t)
		}
	}
}

func (e *Engine) execOne(ctx context.Context, t task) {
	start := time.Now()
	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.run(runCtx)
	if err != nil {
		e.log.Warn("trigger run failed",
			logx.String("trigger", t.name),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))
		return
	}
	e.log.Debug("trigger run ok",
		logx.String("trigger", t.name),
		logx.Duration("took", time.Since(start)))
}

// ParseHHMM validates a "HH:MM" wall-clock time.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidTimeSpec, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidTimeSpec, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidTimeSpec, s)
	}
	return h, m, nil
}
