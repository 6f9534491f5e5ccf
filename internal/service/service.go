// Package service wires one translation run from the user's settings: it
// picks the provider and model, merges the configured and stored glossary,
// runs the orchestrator and records the run in the history. It admits one
// run at a time so that progress observers never see two runs interleave.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/chunker"
	"github.com/valpere/infinitran/internal/glossary"
	"github.com/valpere/infinitran/internal/orchestrator"
	"github.com/valpere/infinitran/internal/progress"
	"github.com/valpere/infinitran/internal/settings"
	"github.com/valpere/infinitran/internal/store"
	"github.com/valpere/infinitran/internal/translator"
)

var ErrBusy = errors.New("another translation is in progress")

// Overrides adjust the engine configuration for a single run. Zero values
// keep the configured setting.
type Overrides struct {
	Mode          string
	MaxConcurrent int
	Preset        string
	ContextWindow int
	CheckLanguage bool
}

type Request struct {
	Document internal.Document
	// Provider and Model select the completion service; empty means the
	// configured ones.
	Provider  string
	Model     string
	Overrides Overrides
}

type Options struct {
	// Store, when set, supplies glossary terms and the last selected model
	// and receives the run history.
	Store   *store.Store
	Hub     *progress.Hub
	Metrics *orchestrator.Metrics
	Checker orchestrator.LanguageChecker
	Logger  *log.Logger
	// PersistSettings writes the settings file when a request picks a model.
	PersistSettings bool
	// NewProvider defaults to translator.New.
	NewProvider func(translator.Config) (translator.Provider, error)
}

type Service struct {
	settings *settings.Settings
	opts     Options
	running  sync.Mutex
}

func New(s *settings.Settings, opts Options) *Service {
	if opts.Hub == nil {
		opts.Hub = progress.NewHub(progress.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[service] ", log.LstdFlags)
	}
	if opts.NewProvider == nil {
		opts.NewProvider = translator.New
	}
	return &Service{settings: s, opts: opts}
}

func (s *Service) Hub() *progress.Hub { return s.opts.Hub }

func (s *Service) Settings() *settings.Settings { return s.settings }

// Translate runs one document. It returns ErrBusy without side effects
// when another run is active. A non-nil Result is returned whenever the
// run started, including aborted runs.
func (s *Service) Translate(ctx context.Context, req Request) (*orchestrator.Result, error) {
	if !s.running.TryLock() {
		return nil, ErrBusy
	}
	defer s.running.Unlock()

	if err := s.settings.Validate(); err != nil {
		return nil, err
	}

	provider := strings.ToLower(req.Provider)
	if provider == "" {
		provider = s.settings.ActiveProvider()
	}
	model, err := s.selectModel(ctx, provider, req.Model)
	if err != nil {
		return nil, err
	}

	pc, err := s.settings.ProviderConfig(provider)
	if err != nil {
		return nil, err
	}
	if model != "" {
		pc.Model = model
	}
	p, err := s.opts.NewProvider(pc)
	if err != nil {
		return nil, err
	}

	engine, err := s.engine(req.Overrides)
	if err != nil {
		return nil, err
	}
	target := req.Document.TargetLang
	if target == "" {
		target = engine.TargetLang
	}
	g, err := s.glossary(ctx, target)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithGlossary(g),
		orchestrator.WithMetrics(s.opts.Metrics),
	}
	if s.opts.Checker != nil {
		opts = append(opts, orchestrator.WithLanguageCheck(s.opts.Checker))
	}
	orch, err := orchestrator.New(p, s.opts.Hub, engine, opts...)
	if err != nil {
		return nil, err
	}

	res, err := orch.TranslateDocument(ctx, req.Document)
	s.record(ctx, req.Document, target, res, err)
	return res, err
}

// selectModel persists an explicitly requested model, or falls back to the
// model last selected for provider.
func (s *Service) selectModel(ctx context.Context, provider, model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		if s.opts.Store == nil {
			return "", nil
		}
		stored, _, err := s.opts.Store.SelectedModel(ctx, provider)
		if err != nil {
			s.opts.Logger.Printf("failed to read selected model for %s: %v", provider, err)
			return "", nil
		}
		return stored, nil
	}

	if err := s.settings.SetModel(provider, model); err != nil {
		return "", err
	}
	if s.opts.PersistSettings {
		if err := s.settings.Save(); err != nil {
			s.opts.Logger.Printf("failed to save settings: %v", err)
		}
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.SetSelectedModel(ctx, provider, model); err != nil {
			s.opts.Logger.Printf("failed to store selected model: %v", err)
		}
	}
	return model, nil
}

func (s *Service) engine(o Overrides) (orchestrator.Config, error) {
	cfg, err := s.settings.Engine()
	if err != nil {
		return cfg, err
	}
	if o.Mode != "" {
		cfg.Mode = orchestrator.Mode(strings.ToLower(o.Mode))
	}
	if o.MaxConcurrent > 0 {
		cfg.MaxConcurrent = o.MaxConcurrent
	}
	if o.ContextWindow > 0 {
		cfg.ContextWindow = o.ContextWindow
	}
	if o.CheckLanguage {
		cfg.CheckLanguage = true
	}
	if o.Preset != "" {
		if err := applyPreset(&cfg, o.Preset); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// glossary merges the settings glossary with the stored terms for target;
// stored terms win.
func (s *Service) glossary(ctx context.Context, target string) (*glossary.Glossary, error) {
	terms := s.settings.Glossary().Map()
	if s.opts.Store != nil {
		stored, err := s.opts.Store.GlossaryMap(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to load glossary: %w", err)
		}
		for src, dst := range stored {
			terms[src] = dst
		}
	}
	return glossary.New(terms, s.settings.PreserveCase()), nil
}

func (s *Service) record(ctx context.Context, doc internal.Document, target string, res *orchestrator.Result, runErr error) {
	if s.opts.Store == nil || res == nil {
		return
	}
	run := store.Run{
		ID:             res.RunID,
		Filename:       doc.Filename,
		OutputFilename: res.Output.Filename,
		Provider:       res.Provider,
		Model:          res.Model,
		TargetLang:     target,
		State:          string(res.State),
		Sections:       res.Sections,
		Chunks:         len(res.Chunks),
		Failed:         res.Failed,
		Retries:        res.Retries,
		Duration:       res.Duration,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// An aborted run still gets recorded.
	if _, err := s.opts.Store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.opts.Logger.Printf("failed to record run %s: %v", res.RunID, err)
	}
}

func applyPreset(cfg *orchestrator.Config, name string) error {
	chunking, err := chunker.Preset(name)
	if err != nil {
		return &internal.ConfigError{Field: "translation.preset", Err: err}
	}
	cfg.Chunking = chunking
	return nil
}
