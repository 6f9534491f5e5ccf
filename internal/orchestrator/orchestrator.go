// Package orchestrator drives a document translation run: decode, split,
// translate every chunk with retries and rolling context, then compose the
// output in sequence order while publishing progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/chunker"
	"github.com/valpere/infinitran/internal/composer"
	"github.com/valpere/infinitran/internal/formatter"
	"github.com/valpere/infinitran/internal/glossary"
	"github.com/valpere/infinitran/internal/progress"
	"github.com/valpere/infinitran/internal/ring"
	"github.com/valpere/infinitran/internal/translator"
)

type RunState string

const (
	StateInit        RunState = "INIT"
	StateSplitting   RunState = "SPLITTING"
	StateTranslating RunState = "TRANSLATING"
	StateComposing   RunState = "COMPOSING"
	StateComplete    RunState = "COMPLETE"
	StateAborted     RunState = "ABORTED"
)

type ChunkState string

const (
	ChunkPending    ChunkState = "PENDING"
	ChunkInProgress ChunkState = "IN_PROGRESS"
	ChunkRetrying   ChunkState = "RETRYING"
	ChunkDone       ChunkState = "DONE"
	ChunkFailed     ChunkState = "FAILED"
)

// FailureMarker prefixes the placeholder text of a chunk whose translation
// failed after all attempts.
const FailureMarker = "[TRANSLATION ERROR]"

type ChunkResult struct {
	Index   int           `json:"index"`
	Section int           `json:"section"`
	State   ChunkState    `json:"state"`
	Attempt int           `json:"attempt"`
	Retries int           `json:"retries"`
	Latency time.Duration `json:"latency"`
	Err     error         `json:"-"`
}

type Result struct {
	RunID    string          `json:"run_id"`
	State    RunState        `json:"state"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Output   composer.Output `json:"-"`
	Chunks   []ChunkResult   `json:"chunks"`
	Sections int             `json:"sections"`
	Failed   int             `json:"failed"`
	Retries  int             `json:"retries"`
	Duration time.Duration   `json:"duration"`
}

// LanguageChecker verifies a completion is in the target language.
type LanguageChecker interface {
	Check(text, targetLang string) error
}

type Orchestrator struct {
	provider translator.Provider
	hub      *progress.Hub
	cfg      Config
	splitter *chunker.Splitter
	glossary *glossary.Glossary
	checker  LanguageChecker
	logger   *log.Logger
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithGlossary(g *glossary.Glossary) Option {
	return func(o *Orchestrator) { o.glossary = g }
}

func WithLanguageCheck(c LanguageChecker) Option {
	return func(o *Orchestrator) { o.checker = c }
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New wires an orchestrator. Invalid configuration is returned as
// *internal.ConfigError. The hub is shared with progress observers and is
// reset at the start of every run.
func New(provider translator.Provider, hub *progress.Hub, cfg Config, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, &internal.ConfigError{Field: "active_provider", Err: errors.New("no completion provider configured")}
	}
	if cfg.Mode == "" {
		cfg.Mode = Sequential
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	splitter, err := chunker.New(cfg.Chunking)
	if err != nil {
		return nil, &internal.ConfigError{Field: "chunking", Err: err}
	}
	if hub == nil {
		hub = progress.NewHub(progress.DefaultOptions())
	}
	o := &Orchestrator{
		provider: provider,
		hub:      hub,
		cfg:      cfg,
		splitter: splitter,
		logger:   log.New(log.Writer(), "[orchestrator] ", log.LstdFlags),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) Config() Config { return o.cfg }

// run holds the mutable state of one TranslateDocument call.
type run struct {
	target   string
	sections []chunker.Section
	chunks   []chunker.Chunk

	mu      sync.Mutex
	results []ChunkResult
	outputs []string
	context *ring.Buffer[string]
	done    int
	failed  int
}

func (r *run) window() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.context.Items()
}

func (r *run) setState(i int, state ChunkState, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[i].State = state
	r.results[i].Attempt = attempt
}

// TranslateDocument runs the whole pipeline. Configuration and decoding
// problems abort the run with *internal.ConfigError or *internal.FormatError;
// chunk failures do not: the chunk is replaced by a failure marker and the
// run completes. A cancelled ctx ends the run ABORTED with ctx.Err().
func (o *Orchestrator) TranslateDocument(ctx context.Context, doc internal.Document) (*Result, error) {
	started := o.now()
	res := &Result{
		RunID:    uuid.NewString(),
		State:    StateInit,
		Provider: o.provider.Name(),
		Model:    o.provider.Model(),
	}
	defer func() {
		res.Duration = o.now().Sub(started)
		o.metrics.run(res.State)
	}()

	target := doc.TargetLang
	if target == "" {
		target = o.cfg.TargetLang
	}
	if strings.TrimSpace(target) == "" {
		res.State = StateAborted
		return res, &internal.ConfigError{Field: "target_language", Err: errors.New("target language is required")}
	}

	o.hub.Reset()
	res.State = StateSplitting
	o.hub.Update(0, 0, 0, progress.StatusSplitting, 0)

	text, err := formatter.Decode(doc.Content)
	if err != nil {
		res.State = StateAborted
		o.hub.Update(0, 0, 0, progress.StatusAborted, 0)
		return res, &internal.FormatError{Filename: doc.Filename, Err: err}
	}
	sections := chunker.SplitByHeadings(formatter.Preprocess(text))
	chunks := o.splitter.SplitDocument(sections)
	res.Sections = len(sections)

	r := &run{
		target:   target,
		sections: sections,
		chunks:   chunks,
		results:  make([]ChunkResult, len(chunks)),
		outputs:  make([]string, len(chunks)),
		context:  ring.New[string](o.cfg.ContextWindow),
	}
	for i, c := range chunks {
		r.results[i] = ChunkResult{Index: c.Index, Section: c.Section, State: ChunkPending}
	}
	o.logger.Printf("run %s: %q → %s, %d sections, %d chunks, %s mode, %s/%s",
		res.RunID, doc.Filename, target, len(sections), len(chunks), o.cfg.Mode, res.Provider, res.Model)

	res.State = StateTranslating
	o.hub.Update(0, 0, len(chunks), progress.StatusTranslating, 0)

	headings := o.translateHeadings(ctx, r)
	o.forEach(ctx, len(chunks), func(ctx context.Context, i int) {
		o.translateOne(ctx, r, i)
	})

	res.Chunks = r.results
	res.Failed = r.failed
	for _, c := range r.results {
		res.Retries += c.Retries
	}
	if err := ctx.Err(); err != nil {
		res.State = StateAborted
		o.hub.Update(0, 0, 0, progress.StatusAborted, 0)
		o.logger.Printf("run %s aborted after %d of %d chunks: %v", res.RunID, r.done, len(chunks), err)
		return res, err
	}

	res.State = StateComposing
	o.hub.Update(0, 0, 0, progress.StatusComposing, 0)
	res.Output = composer.Compose(assemble(sections, headings, chunks, r.outputs), res.Provider, res.Model, doc.Filename, o.now())

	res.State = StateComplete
	status := progress.StatusComplete
	if r.failed > 0 {
		status = fmt.Sprintf("%s with %d failed chunks", progress.StatusComplete, r.failed)
	}
	o.hub.Update(100, len(chunks), len(chunks), status, 0)
	o.logger.Printf("run %s complete: %d chunks, %d failed, %d retries", res.RunID, len(chunks), res.Failed, res.Retries)
	return res, nil
}

// forEach calls fn for 0..n-1, one at a time in sequential mode or with at
// most MaxConcurrent calls in flight. It stops dispatching when ctx is done
// and returns after every started call has finished.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if o.cfg.Mode != Concurrent || o.cfg.MaxConcurrent <= 1 {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, i)
		}
		return
	}

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrent))
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			fn(ctx, i)
		}(i)
	}
	wg.Wait()
}

func (o *Orchestrator) translateOne(ctx context.Context, r *run, i int) {
	c := r.chunks[i]
	r.setState(i, ChunkInProgress, 1)

	started := o.now()
	out, retries, err := o.translateChunk(ctx, r.target, c.Body(), c.Lead(), r.window(), r.sections[c.Section].Path,
		func(attempt int) { r.setState(i, ChunkRetrying, attempt) })
	latency := o.now().Sub(started)

	r.mu.Lock()
	defer r.mu.Unlock()
	cr := &r.results[i]
	cr.Retries = retries
	cr.Latency = latency
	if err != nil {
		cr.State = ChunkFailed
		cr.Err = err
		if ctx.Err() != nil {
			return
		}
		r.failed++
		r.outputs[i] = fmt.Sprintf("%s chunk %d: %v", FailureMarker, c.Index+1, err)
		o.logger.Printf("chunk %d failed after %d retries: %v", c.Index+1, retries, err)
	} else {
		cr.State = ChunkDone
		r.outputs[i] = out
		r.context.Push(out)
	}
	o.metrics.chunk(cr.State, latency)

	r.done++
	status := progress.StatusTranslating
	if r.failed > 0 {
		status = fmt.Sprintf("%s (%d failed)", status, r.failed)
	}
	// Published under r.mu so observers see counts in order.
	o.hub.Update(r.done*100/len(r.chunks), r.done, len(r.chunks), status, latency)
}

// assemble rebuilds each section from its heading and its chunk outputs in
// sequence order.
func assemble(sections []chunker.Section, headings []string, chunks []chunker.Chunk, outputs []string) []string {
	bodies := make([]strings.Builder, len(sections))
	for i, c := range chunks {
		b := &bodies[c.Section]
		text := strings.TrimSpace(outputs[i])
		if text == "" {
			continue
		}
		b.WriteString(text)
		if c.Joint != "" {
			b.WriteString(c.Joint)
		}
	}

	out := make([]string, len(sections))
	for _, s := range sections {
		var sb strings.Builder
		if s.Level > 0 {
			sb.WriteString(s.Marker())
			sb.WriteString(" ")
			sb.WriteString(headings[s.Index])
		}
		if body := strings.TrimSpace(bodies[s.Index].String()); body != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(body)
		}
		out[s.Index] = formatter.Postprocess(sb.String())
	}
	return out
}
