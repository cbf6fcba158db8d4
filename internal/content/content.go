// Package content turns dispatch intents into display text. Every
// resolver that can fall back does so locally; the only unrecoverable
// outcome is ErrNoContent, which means "skip this dispatch".
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signboard/pkg/logx"
)

// ErrNoContent means there is nothing worth showing. Callers must skip
// the send and still record the skip.
var ErrNoContent = errors.New("no content to dispatch")

// Completer is the text-generation surface the resolvers need.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// HeadlineSource supplies the day's top headline.
type HeadlineSource interface {
	Enabled() bool
	TopHeadline(ctx context.Context) (string, error)
}

// GreetingOptions shape the generated birthday text.
type GreetingOptions struct {
	Style    string
	Language string
	Tone     string
}

func (o GreetingOptions) withDefaults() GreetingOptions {
	if strings.TrimSpace(o.Style) == "" {
		o.Style = "casual"
	}
	if strings.TrimSpace(o.Language) == "" {
		o.Language = "English"
	}
	if strings.TrimSpace(o.Tone) == "" {
		o.Tone = "funny"
	}
	return o
}

type Resolver struct {
	gen       Completer
	headlines HeadlineSource
	log       logx.Logger
	now       func() time.Time
}

func NewResolver(gen Completer, headlines HeadlineSource, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{gen: gen, headlines: headlines, log: log, now: time.Now}
}

// Birthday produces a greeting for the given name. It never fails: when
// generation is unavailable or errors out, the deterministic fallback
// "Happy Birthday {name}!" is used.
func (r *Resolver) Birthday(ctx context.Context, name string, opts GreetingOptions) string {
	fallback := fmt.Sprintf("Happy Birthday %s!", name)
	if r.gen == nil || !r.gen.Enabled() {
		return fallback
	}

	o := opts.withDefaults()
	prompt := fmt.Sprintf(
		"Generate a %s birthday message for %s in %s, with a %s tone, including emojis.",
		o.Style, name, o.Language, o.Tone)
	text, err := r.gen.Complete(ctx, prompt, 50)
	if err != nil {
		r.log.Warn("greeting generation failed, using fallback",
			logx.String("name", name), logx.Err(err))
		return fallback
	}
	// Trim here too: the Completer contract doesn't promise clean output.
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

// News fetches the top headline and rephrases it for the board. A
// failed rephrase degrades to the raw headline; a missing headline is
// ErrNoContent and the dispatch must be skipped.
func (r *Resolver) News(ctx context.Context, language string) (string, error) {
	if r.headlines == nil || !r.headlines.Enabled() {
		return "", fmt.Errorf("%w: headlines not configured", ErrNoContent)
	}
	headline, err := r.headlines.TopHeadline(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	if r.gen == nil || !r.gen.Enabled() {
		return headline, nil
	}
	if strings.TrimSpace(language) == "" {
		language = "English"
	}
	prompt := fmt.Sprintf("Summarize and rephrase this news headline in %s: %s", language, headline)
	text, err := r.gen.Complete(ctx, prompt, 100)
	if err != nil {
		r.log.Warn("headline rephrase failed, using raw headline", logx.Err(err))
		return headline, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return headline, nil
	}
	return text, nil
}

// Widget is one element of a display program.
type Widget struct {
	Type       string           `json:"type"` // "text" or "clock"
	Properties WidgetProperties `json:"properties"`
}

type WidgetProperties struct {
	Text   string `json:"text,omitempty"`
	Format string `json:"format,omitempty"` // "12h" or "24h"
}

// Program renders a widget list into a single board message. Widgets
// render left to right joined by " | "; an empty program renders the
// placeholder "Program Active". Unknown widget types are ignored.
func (r *Resolver) Program(widgets []Widget) string {
	var parts []string
	for _, w := range widgets {
		switch w.Type {
		case "text":
			parts = append(parts, w.Properties.Text)
		case "clock":
			now := r.now()
			if w.Properties.Format == "12h" {
				parts = append(parts, now.Format("03:04 PM"))
			} else {
				parts = append(parts, now.Format("15:04"))
			}
		}
	}
	if len(parts) == 0 {
		return "Program Active"
	}
	return strings.Join(parts, " | ")
}
