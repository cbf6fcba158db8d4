// Package board delivers messages to the LED signboard over its two
// wire protocols. Delivery never panics and never returns a Go error to
// the caller: every attempt produces a DeliveryResult so the dispatch
// core can record failures without unwinding.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"signboard/pkg/logx"
)

const defaultSendTimeout = 3 * time.Second

// Target is where a message goes and how.
type Target struct {
	IP       string
	Port     int
	Protocol string // "HTTP" or "TCP" (case-insensitive)
}

func (t Target) addr() string { return net.JoinHostPort(t.IP, strconv.Itoa(t.Port)) }

// DeliveryResult records one delivery attempt.
type DeliveryResult struct {
	OK       bool
	Protocol string
	Target   string
	Took     time.Duration
	Err      error // nil when OK
}

// Config tunes the sender.
type Config struct {
	SendTimeout time.Duration // per attempt; default 3s
	RatePerSec  int           // max sends per second; default 2
}

// Sender pushes messages to the board, throttled so a burst of triggers
// cannot flood the device's tiny network stack.
type Sender struct {
	httpc   *http.Client
	dialer  *net.Dialer
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

func NewSender(cfg Config, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	per := cfg.RatePerSec
	if per <= 0 {
		per = 2
	}
	return &Sender{
		httpc:   &http.Client{Timeout: timeout},
		dialer:  &net.Dialer{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(per), per),
		timeout: timeout,
		log:     log,
	}
}

// Send delivers one message. The result is always usable; check OK.
func (s *Sender) Send(ctx context.Context, tgt Target, message string) DeliveryResult {
	start := time.Now()
	res := DeliveryResult{Protocol: normalizeProtocol(tgt.Protocol), Target: tgt.addr()}

	if err := s.limiter.Wait(ctx); err != nil {
		res.Err = err
		res.Took = time.Since(start)
		return res
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	switch res.Protocol {
	case "TCP":
		err = s.sendTCP(sctx, tgt, message)
	default:
		err = s.sendHTTP(sctx, tgt, message)
	}

	res.Took = time.Since(start)
	if err != nil {
		res.Err = err
		s.log.Warn("delivery failed",
			logx.String("target", res.Target),
			logx.String("protocol", res.Protocol),
			logx.Duration("took", res.Took),
			logx.Err(err))
		return res
	}
	res.OK = true
	s.log.Debug("delivered",
		logx.String("target", res.Target),
		logx.String("protocol", res.Protocol),
		logx.Duration("took", res.Took))
	return res
}

func (s *Sender) sendHTTP(ctx context.Context, tgt Target, message string) error {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/display", tgt.addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("board returned %s", resp.Status)
	}
	return nil
}

func (s *Sender) sendTCP(ctx context.Context, tgt Target, message string) error {
	conn, err := s.dialer.DialContext(ctx, "tcp", tgt.addr())
	if err != nil {
		return err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	_, err = conn.Write([]byte(message))
	return err
}

// Probe reports whether the board accepts TCP connections. It is a
// health check for status displays; it does not log and does not count
// against the send rate limit.
func (s *Sender) Probe(ctx context.Context, tgt Target) bool {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(pctx, "tcp", tgt.addr())
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func normalizeProtocol(p string) string {
	switch p {
	case "tcp", "TCP", "Tcp":
		return "TCP"
	default:
		return "HTTP"
	}
}
