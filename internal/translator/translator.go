// Package translator talks to the LLM completion services that do the
// actual translation. Every provider turns a system/user prompt pair into a
// single completion; errors are classified so the caller knows which ones
// are worth retrying.
package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/valpere/infinitran/internal"
)

type Prompt struct {
	System string
	User   string
}

type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

type Config struct {
	Provider    string        `mapstructure:"provider" json:"provider"`
	Model       string        `mapstructure:"model_name" json:"model_name"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	APIKey      string        `mapstructure:"-" json:"-"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`
}

// Preset describes a provider the tool knows out of the box.
type Preset struct {
	ID           string `json:"id"`
	BaseURL      string `json:"base_url"`
	DefaultModel string `json:"default_model"`
	// KeyEnv names the environment variable holding the API key; empty
	// for providers that need none.
	KeyEnv string `json:"key_env,omitempty"`
}

const (
	SiliconFlow = "siliconflow"
	OpenRouter  = "openrouter"
	OpenAI      = "openai"
	Ollama      = "ollama"

	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second
)

var presets = map[string]Preset{
	SiliconFlow: {ID: SiliconFlow, BaseURL: "https://api.siliconflow.cn/v1", DefaultModel: "deepseek-ai/DeepSeek-V3", KeyEnv: "SILICONFLOW_API_KEY"},
	OpenRouter:  {ID: OpenRouter, BaseURL: "https://openrouter.ai/api/v1", DefaultModel: "deepseek/deepseek-chat", KeyEnv: "OPENROUTER_API_KEY"},
	OpenAI:      {ID: OpenAI, BaseURL: "https://api.openai.com/v1", DefaultModel: "gpt-4o-mini", KeyEnv: "OPENAI_API_KEY"},
	Ollama:      {ID: Ollama, BaseURL: "http://localhost:11434", DefaultModel: "qwen2.5:7b"},
}

// Presets lists the known providers sorted by id.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func LookupPreset(id string) (Preset, bool) {
	p, ok := presets[strings.ToLower(id)]
	return p, ok
}

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrMissingModel      = errors.New("model name is required")
	ErrMissingCredential = errors.New("API key is required")
	ErrEmptyCompletion   = errors.New("empty completion")
)

// New builds the provider named by cfg.Provider. Configuration problems are
// returned as *internal.ConfigError.
func New(cfg Config) (Provider, error) {
	preset, ok := LookupPreset(cfg.Provider)
	if !ok {
		return nil, &internal.ConfigError{Field: "active_provider", Err: fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)}
	}
	cfg.Provider = preset.ID
	if cfg.BaseURL == "" {
		cfg.BaseURL = preset.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = preset.DefaultModel
	}
	if cfg.Model == "" {
		return nil, &internal.ConfigError{Field: "model_name", Err: ErrMissingModel}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if preset.ID == Ollama {
		return NewOllamaService(cfg), nil
	}
	if cfg.APIKey == "" {
		return nil, &internal.ConfigError{Field: preset.KeyEnv, Err: ErrMissingCredential}
	}
	return NewChatService(cfg), nil
}

// Error is a failed completion call.
type Error struct {
	Provider string
	Status   int
	Message  string
	// Permanent is set when retrying cannot help (bad credentials,
	// unknown model, malformed request).
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Provider)
	if e.Status > 0 {
		fmt.Fprintf(&sb, ": status %d", e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a provider error that should not
// be retried.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Permanent
}

// permanentStatus classifies HTTP statuses: client errors are final except
// for timeouts, conflicts and rate limiting.
func permanentStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

func statusError(provider string, status int, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Provider: provider, Status: status, Message: abbreviate(msg, 300), Permanent: permanentStatus(status)}
}

// abbreviate shortens s to at most n runes, never splitting a rune.
func abbreviate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
