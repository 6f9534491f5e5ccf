package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/valpere/infinitran/internal/chunker"
	"github.com/valpere/infinitran/internal/formatter"
	"github.com/valpere/infinitran/internal/placeholder"
	"github.com/valpere/infinitran/internal/retry"
	"github.com/valpere/infinitran/internal/translator"
)

// TranslateChunk translates a single unit into the configured target
// language. lead is source text already covered by the previous chunk and is
// sent as context only; window holds recent translations. It returns the
// number of retries performed.
func (o *Orchestrator) TranslateChunk(ctx context.Context, text, lead string, window []string) (string, int, error) {
	return o.translateChunk(ctx, o.cfg.TargetLang, text, lead, window, nil, nil)
}

func (o *Orchestrator) translateChunk(ctx context.Context, target, text, lead string, window, path []string, onRetry func(attempt int)) (string, int, error) {
	masked, spans := placeholder.Protect(text)
	masked = o.glossary.Apply(masked)

	prompt := buildChunkPrompt(promptInput{
		target:   target,
		text:     masked,
		hint:     spans.Hint(),
		terms:    o.glossary.Terms(),
		window:   window,
		lead:     lead,
		headings: path,
	})

	out, retries, err := o.complete(ctx, prompt, target, onRetry)
	if err != nil {
		return "", retries, err
	}
	if missing := spans.Missing(out); len(missing) > 0 {
		o.logger.Printf("completion dropped %d of %d protected spans", len(missing), spans.Len())
	}
	return formatter.Postprocess(placeholder.Restore(out, spans)), retries, nil
}

// complete calls the provider under the retry policy and returns the
// cleaned completion.
func (o *Orchestrator) complete(ctx context.Context, prompt translator.Prompt, target string, onRetry func(attempt int)) (string, int, error) {
	var out string
	retries, err := retry.Do(ctx, o.cfg.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 && onRetry != nil {
			onRetry(attempt)
		}
		completion, err := o.provider.Complete(ctx, prompt)
		if err != nil {
			if translator.IsPermanent(err) {
				return retry.Permanent(err)
			}
			return err
		}
		cleaned := formatter.CleanCompletion(completion)
		if strings.TrimSpace(cleaned) == "" {
			return translator.ErrEmptyCompletion
		}
		if o.cfg.CheckLanguage && o.checker != nil && target != "" {
			if err := o.checker.Check(cleaned, target); err != nil {
				return err
			}
		}
		out = cleaned
		return nil
	}, func(err error, wait time.Duration) {
		o.metrics.retry()
		o.logger.Printf("retrying in %s: %v", wait, err)
	})
	return out, retries, err
}

// translateHeadings translates every section heading without context. A
// heading that cannot be translated keeps its source text.
func (o *Orchestrator) translateHeadings(ctx context.Context, r *run) []string {
	headings := make([]string, len(r.sections))
	for i, s := range r.sections {
		headings[i] = s.Heading
	}
	o.forEach(ctx, len(r.sections), func(ctx context.Context, i int) {
		s := r.sections[i]
		if s.Level == 0 || strings.TrimSpace(s.Heading) == "" {
			return
		}
		if h, err := o.translateHeading(ctx, r.target, s); err == nil {
			headings[i] = h
		} else {
			o.logger.Printf("heading %q kept untranslated: %v", s.Heading, err)
		}
	})
	return headings
}

func (o *Orchestrator) translateHeading(ctx context.Context, target string, s chunker.Section) (string, error) {
	masked, spans := placeholder.Protect(s.Heading)
	masked = o.glossary.Apply(masked)

	out, _, err := o.complete(ctx, buildHeadingPrompt(target, spans.Hint(), masked), "", nil)
	if err != nil {
		return "", err
	}
	h := firstLine(out)
	h = strings.TrimSpace(strings.TrimLeft(h, "#"))
	if h == "" {
		return s.Heading, nil
	}
	return placeholder.Restore(h, spans), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
