// Package app wires the daemon together: config, logging, storage,
// the trigger engine, the dispatch core, the management API, and the
// alert notifier, all supervised under one context.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"signboard/internal/alert"
	"signboard/internal/api"
	"signboard/internal/board"
	"signboard/internal/config"
	"signboard/internal/content"
	"signboard/internal/dispatch"
	"signboard/internal/eventbus"
	"signboard/internal/genai"
	"signboard/internal/news"
	"signboard/internal/runtime/supervisor"
	"signboard/internal/storage"
	"signboard/internal/trigger"
	"signboard/pkg/logx"
)

const defaultAPIAddr = "127.0.0.1:5000"

type App struct {
	manager *config.Manager
	logSvc  *logx.Service
	log     logx.Logger

	store      storage.Store
	bus        eventbus.Bus
	dispatcher *dispatch.Dispatcher
	engine     *trigger.Engine
	schedules  *dispatch.Schedules
	notifier   *alert.Notifier
	apiServer  *http.Server

	// Built-in daily jobs, rebindable on config reload.
	builtinMu  sync.Mutex
	birthdayAt string
	birthdayID string
	newsAt     string
	newsID     string
}

// Run builds the daemon from the config file and blocks until ctx is
// cancelled or a component fails fatally.
func Run(ctx context.Context, cfgPath string) error {
	a, err := build(cfgPath)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func build(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})

	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	// Durations are pre-validated; parse errors cannot occur here.
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	sendTimeout, _ := config.ParseDurationField("transport.send_timeout", cfg.Transport.SendTimeout)
	sender := board.NewSender(board.Config{
		SendTimeout: sendTimeout,
		RatePerSec:  cfg.Transport.RatePerSec,
	}, log.With(logx.String("component", "board")))

	genTimeout, _ := config.ParseDurationField("genai.timeout", cfg.GenAI.Timeout)
	gen := genai.NewClient(genai.Config{
		BaseURL: cfg.GenAI.BaseURL,
		APIKey:  cfg.GenAI.APIKey,
		Model:   cfg.GenAI.Model,
		Timeout: genTimeout,
	}, log.With(logx.String("component", "genai")))

	newsTimeout, _ := config.ParseDurationField("news.timeout", cfg.News.Timeout)
	headlines := news.NewClient(news.Config{
		BaseURL: cfg.News.BaseURL,
		APIKey:  cfg.News.APIKey,
		Country: cfg.News.Country,
		Timeout: newsTimeout,
	}, log.With(logx.String("component", "news")))

	bus := eventbus.New()
	resolver := content.NewResolver(gen, headlines, log.With(logx.String("component", "content")))
	dispatcher := dispatch.New(store, sender, resolver, bus, log.With(logx.String("component", "dispatch")))

	engine := trigger.New(engineConfig(cfg), log.With(logx.String("component", "trigger")))
	schedules := dispatch.NewSchedules(engine, store, dispatcher, log.With(logx.String("component", "schedules")))

	notifier, err := alert.New(alert.Config{
		Enabled:    cfg.Alerts.Enabled,
		Token:      cfg.Alerts.Token,
		ChatID:     cfg.Alerts.ChatID,
		RatePerMin: cfg.Alerts.RatePerMin,
	}, log.With(logx.String("component", "alert")))
	if err != nil {
		// Alerts are auxiliary: a bad token must not keep the board dark.
		log.Warn("alert notifier unavailable", logx.Err(err))
		notifier = nil
	}

	a := &App{
		manager:    mgr,
		logSvc:     logSvc,
		log:        log,
		store:      store,
		bus:        bus,
		dispatcher: dispatcher,
		engine:     engine,
		schedules:  schedules,
		notifier:   notifier,
	}

	if cfg.API.Enabled {
		h := api.NewHandler(dispatcher, schedules, store, log.With(logx.String("component", "api")))
		h.RegisterRoutes()

		addr := cfg.API.Addr
		if addr == "" {
			addr = defaultAPIAddr
		}
		read, _ := config.ParseDurationOrDefault("api.read_timeout", cfg.API.ReadTimeout, 10*time.Second)
		write, _ := config.ParseDurationOrDefault("api.write_timeout", cfg.API.WriteTimeout, 30*time.Second)
		idle, _ := config.ParseDurationOrDefault("api.idle_timeout", cfg.API.IdleTimeout, time.Minute)
		a.apiServer = &http.Server{
			Addr:         addr,
			Handler:      h.Mux,
			ReadTimeout:  read,
			WriteTimeout: write,
			IdleTimeout:  idle,
		}
	}

	return a, nil
}

func (a *App) run(ctx context.Context) error {
	cfg := a.manager.Get()
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	if cfg.Scheduler.Enabled {
		a.engine.Start(sup.Context())
		a.registerBuiltins(cfg)
		if cfg.Scheduler.ReplayOnStartValue() {
			if err := a.schedules.Replay(sup.Context()); err != nil {
				a.log.Warn("schedule replay failed", logx.Err(err))
			}
		}
	} else {
		a.log.Warn("scheduler disabled; only the management API is active")
	}

	sup.Go("config-watch", a.manager.Watch)
	sup.Go("config-apply", a.applyLoop)
	if a.notifier != nil {
		sup.Go("alerts", func(ctx context.Context) error {
			return a.notifier.Run(ctx, a.bus)
		})
	}
	if a.apiServer != nil {
		sup.Go("api", func(ctx context.Context) error {
			err := a.apiServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		a.log.Info("management api listening", logx.String("addr", a.apiServer.Addr))
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("signboard daemon ready")

	<-sup.Context().Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("shutting down")

	shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.apiServer != nil {
		_ = a.apiServer.Shutdown(shctx)
	}
	a.engine.Stop(shctx)
	err := sup.Wait(shctx)
	_ = a.store.Close()
	_ = a.logSvc.Close()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// applyLoop reacts to validated config reloads. Logging and the trigger
// engine apply live; transport, storage, and client endpoints are fixed
// at startup and need a restart.
func (a *App) applyLoop(ctx context.Context) error {
	ch := a.manager.Subscribe(2)
	defer a.manager.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	a.engine.Apply(engineConfig(cfg))
	if cfg.Scheduler.Enabled {
		a.rebindBuiltins(cfg)
	}
	a.log.Info("configuration reloaded")
}

// registerBuiltins wires the two daily content jobs.
func (a *App) registerBuiltins(cfg *config.Config) {
	a.builtinMu.Lock()
	defer a.builtinMu.Unlock()
	a.bindBuiltinLocked(cfg, true)
	a.bindBuiltinLocked(cfg, false)
}

// rebindBuiltins re-registers a daily job when its configured time
// changed on reload.
func (a *App) rebindBuiltins(cfg *config.Config) {
	birthdayAt, newsAt := builtinTimes(cfg)
	a.builtinMu.Lock()
	defer a.builtinMu.Unlock()
	if birthdayAt != a.birthdayAt {
		if a.birthdayID != "" {
			a.engine.Remove(a.birthdayID)
			a.birthdayID = ""
		}
		a.bindBuiltinLocked(cfg, true)
	}
	if newsAt != a.newsAt {
		if a.newsID != "" {
			a.engine.Remove(a.newsID)
			a.newsID = ""
		}
		a.bindBuiltinLocked(cfg, false)
	}
}

func (a *App) bindBuiltinLocked(cfg *config.Config, birthday bool) {
	birthdayAt, newsAt := builtinTimes(cfg)

	name, at := "news-digest", newsAt
	job := a.dispatcher.RunNewsJob
	if birthday {
		name, at = "birthday-greetings", birthdayAt
		job = a.dispatcher.RunBirthdayJob
	}

	if birthday {
		a.birthdayAt = at
	} else {
		a.newsAt = at
	}
	if at == "" {
		a.log.Info("daily job disabled", logx.String("job", name))
		return
	}

	id, err := a.engine.AddDaily(name, at, 0, job)
	if err != nil {
		a.log.Error("daily job registration failed",
			logx.String("job", name), logx.String("at", at), logx.Err(err))
		return
	}
	if birthday {
		a.birthdayID = id
	} else {
		a.newsID = id
	}
	a.log.Info("daily job registered", logx.String("job", name), logx.String("at", at))
}

func engineConfig(cfg *config.Config) trigger.Config {
	timeout, _ := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	return trigger.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		DefaultTimeout: timeout,
		Timezone:       cfg.Scheduler.Timezone,
	}
}
