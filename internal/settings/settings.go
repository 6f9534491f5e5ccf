// Package settings loads and persists the user-facing configuration: the
// active completion provider and its model, the target language, the
// glossary and the translation engine knobs. Values come from a YAML (or
// JSON/TOML) file and INFINITRAN_* environment variables on top of
// built-in defaults. API keys are read from the environment or a .env file
// and are never written back.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/chunker"
	"github.com/valpere/infinitran/internal/glossary"
	"github.com/valpere/infinitran/internal/orchestrator"
	"github.com/valpere/infinitran/internal/retry"
	"github.com/valpere/infinitran/internal/translator"
)

const (
	EnvPrefix   = "INFINITRAN"
	DefaultFile = "infinitran.yaml"
)

type ProviderSettings struct {
	BaseURL     string        `mapstructure:"base_url" json:"base_url,omitempty"`
	Model       string        `mapstructure:"model_name" json:"model_name"`
	Models      []string      `mapstructure:"models" json:"models,omitempty"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
}

type Language struct {
	Code string `mapstructure:"code" json:"code"`
	Name string `mapstructure:"name" json:"name"`
}

type TranslationSettings struct {
	Mode            string        `mapstructure:"mode"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	ContextWindow   int           `mapstructure:"context_window"`
	Preset          string        `mapstructure:"preset"`
	CheckLanguage   bool          `mapstructure:"check_language"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier"`
}

type GlossarySettings struct {
	Terms        []glossary.Entry `mapstructure:"terms"`
	PreserveCase bool             `mapstructure:"preserve_case"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

// Config is the decoded settings tree.
type Config struct {
	ActiveProvider string                      `mapstructure:"active_provider"`
	Providers      map[string]ProviderSettings `mapstructure:"providers"`
	TargetLanguage string                      `mapstructure:"target_language"`
	LanguageList   []Language                  `mapstructure:"language_list"`
	Glossary       GlossarySettings            `mapstructure:"glossary"`
	Translation    TranslationSettings         `mapstructure:"translation"`
	Server         ServerSettings              `mapstructure:"server"`
	Database       string                      `mapstructure:"database"`
}

var defaultLanguages = []Language{
	{"zh-Hans", "Simplified Chinese"},
	{"zh-Hant", "Traditional Chinese"},
	{"en", "English"},
	{"ja", "Japanese"},
	{"ko", "Korean"},
	{"fr", "French"},
	{"de", "German"},
	{"es", "Spanish"},
	{"ru", "Russian"},
	{"uk", "Ukrainian"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("active_provider", translator.SiliconFlow)
	for _, p := range translator.Presets() {
		key := "providers." + p.ID
		v.SetDefault(key+".base_url", p.BaseURL)
		v.SetDefault(key+".model_name", p.DefaultModel)
		v.SetDefault(key+".temperature", translator.DefaultTemperature)
		v.SetDefault(key+".timeout", translator.DefaultTimeout)
	}
	v.SetDefault("target_language", "zh-Hans")

	langs := make([]map[string]any, len(defaultLanguages))
	for i, l := range defaultLanguages {
		langs[i] = map[string]any{"code": l.Code, "name": l.Name}
	}
	v.SetDefault("language_list", langs)
	v.SetDefault("glossary.preserve_case", false)

	engine := orchestrator.DefaultConfig()
	v.SetDefault("translation.mode", string(engine.Mode))
	v.SetDefault("translation.max_concurrent", engine.MaxConcurrent)
	v.SetDefault("translation.context_window", engine.ContextWindow)
	v.SetDefault("translation.preset", chunker.PresetDefault)
	v.SetDefault("translation.check_language", false)
	v.SetDefault("translation.max_retries", engine.Retry.MaxAttempts)
	v.SetDefault("translation.retry_delay", engine.Retry.MinDelay)
	v.SetDefault("translation.max_retry_delay", engine.Retry.MaxDelay)
	v.SetDefault("translation.retry_multiplier", engine.Retry.Multiplier)

	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("database", "infinitran.db")
}

// Settings is safe for concurrent use; the HTTP server reads it while a
// settings update may be in flight.
type Settings struct {
	mu    sync.RWMutex
	v     *viper.Viper
	path  string
	cfg   Config
	creds Credentials
}

// Load reads the settings file at path (a missing file is not an error;
// an empty path searches ./infinitran.*), applies INFINITRAN_* overrides
// and loads credentials.
func Load(path string) (*Settings, error) {
	creds, err := LoadCredentials("")
	if err != nil {
		return nil, err
	}
	return LoadWith(path, creds)
}

// LoadWith is Load with explicit credentials.
func LoadWith(path string, creds Credentials) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.AddConfigPath(".")
		path = DefaultFile
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
	} else {
		path = v.ConfigFileUsed()
	}

	s := &Settings{v: v, path: path, creds: creds}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) reload() error {
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	cfg.ActiveProvider = strings.ToLower(strings.TrimSpace(cfg.ActiveProvider))
	s.cfg = cfg
	return nil
}

func (s *Settings) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Config returns a copy of the decoded settings.
func (s *Settings) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Providers = make(map[string]ProviderSettings, len(s.cfg.Providers))
	for k, p := range s.cfg.Providers {
		p.Models = append([]string(nil), p.Models...)
		cfg.Providers[k] = p
	}
	cfg.LanguageList = append([]Language(nil), s.cfg.LanguageList...)
	cfg.Glossary.Terms = append([]glossary.Entry(nil), s.cfg.Glossary.Terms...)
	return cfg
}

func (s *Settings) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Validate checks everything needed before a run except credentials,
// which the provider constructor checks. Errors are *internal.ConfigError.
func (s *Settings) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validate()
}

func (s *Settings) validate() error {
	if _, ok := translator.LookupPreset(s.cfg.ActiveProvider); !ok {
		return &internal.ConfigError{Field: "active_provider", Err: fmt.Errorf("%w: %q", translator.ErrUnknownProvider, s.cfg.ActiveProvider)}
	}
	if err := validateLanguage(s.cfg.TargetLanguage); err != nil {
		return &internal.ConfigError{Field: "target_language", Err: err}
	}
	_, err := s.engine()
	return err
}

func validateLanguage(code string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("must not be empty")
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("unknown language %q", code)
	}
	return nil
}

// ActiveProvider returns the id of the provider used for translation.
func (s *Settings) ActiveProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ActiveProvider
}

// ProviderConfig assembles the translator configuration for provider id;
// an empty id means the active provider.
func (s *Settings) ProviderConfig(id string) (translator.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		id = s.cfg.ActiveProvider
	}
	id = strings.ToLower(id)
	preset, ok := translator.LookupPreset(id)
	if !ok {
		return translator.Config{}, &internal.ConfigError{Field: "active_provider", Err: fmt.Errorf("%w: %q", translator.ErrUnknownProvider, id)}
	}

	p := s.cfg.Providers[id]
	cfg := translator.Config{
		Provider:    id,
		Model:       p.Model,
		BaseURL:     p.BaseURL,
		APIKey:      s.creds.Key(preset.KeyEnv),
		Temperature: p.Temperature,
		Timeout:     p.Timeout,
		MaxTokens:   p.MaxTokens,
	}
	if id == translator.Ollama && s.creds.OllamaHost != "" && (cfg.BaseURL == "" || cfg.BaseURL == preset.BaseURL) {
		cfg.BaseURL = s.creds.OllamaURL()
	}
	return cfg, nil
}

// Engine returns the orchestrator configuration, validated.
func (s *Settings) Engine() (orchestrator.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine()
}

func (s *Settings) engine() (orchestrator.Config, error) {
	t := s.cfg.Translation
	chunking, err := chunker.Preset(t.Preset)
	if err != nil {
		return orchestrator.Config{}, &internal.ConfigError{Field: "translation.preset", Err: err}
	}
	cfg := orchestrator.Config{
		Mode:          orchestrator.Mode(strings.ToLower(t.Mode)),
		MaxConcurrent: t.MaxConcurrent,
		ContextWindow: t.ContextWindow,
		TargetLang:    s.cfg.TargetLanguage,
		CheckLanguage: t.CheckLanguage,
		Retry: retry.Policy{
			MaxAttempts: t.MaxRetries,
			MinDelay:    t.RetryDelay,
			MaxDelay:    t.MaxRetryDelay,
			Multiplier:  t.RetryMultiplier,
		},
		Chunking: chunking,
	}
	if err := cfg.Validate(); err != nil {
		return orchestrator.Config{}, err
	}
	return cfg, nil
}

// Glossary builds the glossary configured in the settings file.
func (s *Settings) Glossary() *glossary.Glossary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	terms := make(map[string]string, len(s.cfg.Glossary.Terms))
	for _, e := range s.cfg.Glossary.Terms {
		terms[e.Source] = e.Target
	}
	return glossary.New(terms, s.cfg.Glossary.PreserveCase)
}

func (s *Settings) PreserveCase() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Glossary.PreserveCase
}

func (s *Settings) TargetLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.TargetLanguage
}

func (s *Settings) Languages() []Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Language(nil), s.cfg.LanguageList...)
}

// ProviderInfo is the public view of a provider: no credentials, only
// whether one is present.
type ProviderInfo struct {
	ID         string   `json:"id"`
	BaseURL    string   `json:"base_url"`
	Model      string   `json:"model_name"`
	Models     []string `json:"models,omitempty"`
	Configured bool     `json:"configured"`
}

// Providers lists every known provider sorted by id.
func (s *Settings) Providers() []ProviderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	presets := translator.Presets()
	out := make([]ProviderInfo, 0, len(presets))
	for _, preset := range presets {
		p := s.cfg.Providers[preset.ID]
		out = append(out, ProviderInfo{
			ID:         preset.ID,
			BaseURL:    p.BaseURL,
			Model:      p.Model,
			Models:     append([]string(nil), p.Models...),
			Configured: preset.KeyEnv == "" || s.creds.Key(preset.KeyEnv) != "",
		})
	}
	return out
}

// Patch is a partial settings update. Empty fields are left unchanged.
type Patch struct {
	ActiveProvider string `json:"active_provider"`
	ModelName      string `json:"model_name"`
	TargetLanguage string `json:"target_language"`
}

// Update validates and applies p in memory. Call Save to persist it.
func (s *Settings) Update(p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	provider := s.cfg.ActiveProvider
	if p.ActiveProvider != "" {
		preset, ok := translator.LookupPreset(p.ActiveProvider)
		if !ok {
			return &internal.ConfigError{Field: "active_provider", Err: fmt.Errorf("%w: %q", translator.ErrUnknownProvider, p.ActiveProvider)}
		}
		provider = preset.ID
	}
	if p.TargetLanguage != "" {
		if err := validateLanguage(p.TargetLanguage); err != nil {
			return &internal.ConfigError{Field: "target_language", Err: err}
		}
	}

	if p.ActiveProvider != "" {
		s.v.Set("active_provider", provider)
	}
	if m := strings.TrimSpace(p.ModelName); m != "" {
		s.v.Set("providers."+provider+".model_name", m)
	}
	if p.TargetLanguage != "" {
		s.v.Set("target_language", p.TargetLanguage)
	}
	return s.reload()
}

// SetModel records model as the model of provider (the active one when
// provider is empty) without switching the active provider.
func (s *Settings) SetModel(provider, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if provider == "" {
		provider = s.cfg.ActiveProvider
	}
	preset, ok := translator.LookupPreset(provider)
	if !ok {
		return &internal.ConfigError{Field: "active_provider", Err: fmt.Errorf("%w: %q", translator.ErrUnknownProvider, provider)}
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return &internal.ConfigError{Field: "model_name", Err: translator.ErrMissingModel}
	}
	s.v.Set("providers."+preset.ID+".model_name", model)
	return s.reload()
}

// Save writes the current settings to the file they were loaded from, or
// to infinitran.yaml when there was none.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to save settings %s: %w", s.path, err)
	}
	return nil
}
