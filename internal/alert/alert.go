// Package alert forwards delivery failures to a Telegram chat so an
// operator hears about an unreachable board without tailing logs.
// Alerts are best effort and rate limited; losing one is acceptable.
package alert

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"signboard/internal/eventbus"
	"signboard/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerMin int // default 6
}

// sender is the slice of the Telegram bot API the notifier uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Notifier struct {
	send    sender
	chat    tele.ChatID
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds the notifier, or (nil, nil) when alerts are disabled.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if !cfg.Enabled || cfg.Token == "" || cfg.ChatID == 0 {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newNotifier(bot, cfg, log), nil
}

func newNotifier(s sender, cfg Config, log logx.Logger) *Notifier {
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 6
	}
	return &Notifier{
		send:    s,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
		log:     log,
	}
}

// Run consumes dispatch failure events until ctx is done.
func (n *Notifier) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	n.log.Info("alert notifier started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Type != eventbus.TypeDispatchFailed {
				continue
			}
			n.notify(ev)
		}
	}
}

func (n *Notifier) notify(ev eventbus.Event) {
	if !n.limiter.Allow() {
		n.log.Debug("alert suppressed by rate limit")
		return
	}

	text := fmt.Sprintf("⚠️ signboard delivery failed\ncategory: %s\ntarget: %s\nerror: %s",
		ev.Category, ev.Target, ev.Err)
	if _, err := n.send.Send(n.chat, text); err != nil {
		n.log.Warn("alert send failed", logx.Err(err))
	}
}
