package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/infinitran/internal"
	"github.com/valpere/infinitran/internal/chunker"
	"github.com/valpere/infinitran/internal/orchestrator"
	"github.com/valpere/infinitran/internal/translator"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func load(t *testing.T, path string, creds Credentials) *Settings {
	t.Helper()
	s, err := LoadWith(path, creds)
	if err != nil {
		t.Fatalf("LoadWith failed: %v", err)
	}
	return s
}

func TestLoad_Defaults(t *testing.T) {
	s := load(t, filepath.Join(t.TempDir(), "missing.yaml"), Credentials{})

	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := s.ActiveProvider(); got != translator.SiliconFlow {
		t.Errorf("expected siliconflow, got %q", got)
	}
	if got := s.TargetLanguage(); got != "zh-Hans" {
		t.Errorf("expected zh-Hans, got %q", got)
	}
	if n := len(s.Languages()); n != len(defaultLanguages) {
		t.Errorf("expected %d languages, got %d", len(defaultLanguages), n)
	}

	engine, err := s.Engine()
	if err != nil {
		t.Fatalf("Engine failed: %v", err)
	}
	want := orchestrator.DefaultConfig()
	if engine.Mode != want.Mode || engine.MaxConcurrent != want.MaxConcurrent || engine.ContextWindow != want.ContextWindow {
		t.Errorf("unexpected engine config %+v", engine)
	}
	if engine.Retry != want.Retry {
		t.Errorf("expected default retry policy, got %+v", engine.Retry)
	}
	if engine.Chunking != chunker.DefaultConfig() {
		t.Errorf("expected default chunking, got %+v", engine.Chunking)
	}
	if engine.TargetLang != "zh-Hans" {
		t.Errorf("expected target language to flow into engine, got %q", engine.TargetLang)
	}

	pc, err := s.ProviderConfig("")
	if err != nil {
		t.Fatalf("ProviderConfig failed: %v", err)
	}
	if pc.Model != "deepseek-ai/DeepSeek-V3" || pc.Timeout != translator.DefaultTimeout || pc.Temperature != translator.DefaultTemperature {
		t.Errorf("unexpected provider defaults %+v", pc)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "settings.yaml", `
active_provider: OpenRouter
providers:
  openrouter:
    model_name: qwen/qwen-2.5-72b-instruct
    models: [qwen/qwen-2.5-72b-instruct, deepseek/deepseek-chat]
    temperature: 0.3
    timeout: 45s
target_language: uk
glossary:
  preserve_case: true
  terms:
    - source: pipeline
      target: конвеєр
translation:
  mode: concurrent
  max_concurrent: 5
  preset: compact
  retry_delay: 10ms
  max_retry_delay: 50ms
`)
	s := load(t, path, Credentials{OpenRouterKey: "or-key"})

	if err := s.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if s.Path() != path {
		t.Errorf("expected path %q, got %q", path, s.Path())
	}
	if s.ActiveProvider() != translator.OpenRouter {
		t.Errorf("expected provider id to be lower-cased, got %q", s.ActiveProvider())
	}

	pc, err := s.ProviderConfig("")
	if err != nil {
		t.Fatalf("ProviderConfig failed: %v", err)
	}
	if pc.Model != "qwen/qwen-2.5-72b-instruct" || pc.APIKey != "or-key" || pc.Timeout != 45*time.Second || pc.Temperature != 0.3 {
		t.Errorf("unexpected provider config %+v", pc)
	}
	if pc.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("expected default base url to survive a partial provider block, got %q", pc.BaseURL)
	}

	engine, err := s.Engine()
	if err != nil {
		t.Fatalf("Engine failed: %v", err)
	}
	compact, _ := chunker.Preset(chunker.PresetCompact)
	if engine.Mode != orchestrator.Concurrent || engine.MaxConcurrent != 5 || engine.Chunking != compact {
		t.Errorf("unexpected engine config %+v", engine)
	}
	if engine.Retry.MinDelay != 10*time.Millisecond || engine.Retry.MaxAttempts != 3 {
		t.Errorf("unexpected retry policy %+v", engine.Retry)
	}

	g := s.Glossary()
	if g.Len() != 1 || !s.PreserveCase() {
		t.Errorf("expected one case-preserving glossary term, got %d (preserve %v)", g.Len(), s.PreserveCase())
	}
	if got := g.Apply("Pipeline stages"); got != "Конвеєр stages" {
		t.Errorf("glossary apply = %q", got)
	}

	for _, p := range s.Providers() {
		if p.ID == translator.OpenRouter && (len(p.Models) != 2 || !p.Configured) {
			t.Errorf("unexpected openrouter info %+v", p)
		}
		if p.ID == translator.SiliconFlow && p.Configured {
			t.Error("siliconflow has no key and must not be reported as configured")
		}
		if p.ID == translator.Ollama && !p.Configured {
			t.Error("ollama needs no key")
		}
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INFINITRAN_TARGET_LANGUAGE", "de")
	t.Setenv("INFINITRAN_TRANSLATION_CONTEXT_WINDOW", "4")

	s := load(t, filepath.Join(t.TempDir(), "missing.yaml"), Credentials{})
	if s.TargetLanguage() != "de" {
		t.Errorf("expected env override, got %q", s.TargetLanguage())
	}
	engine, err := s.Engine()
	if err != nil {
		t.Fatalf("Engine failed: %v", err)
	}
	if engine.ContextWindow != 4 {
		t.Errorf("expected context window 4, got %d", engine.ContextWindow)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "bad.yaml", "active_provider: [unterminated\n")
	if _, err := LoadWith(path, Credentials{}); err == nil {
		t.Error("expected error for malformed settings file")
	}
}

func TestValidate_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown provider", "active_provider: nope\n", "active_provider"},
		{"bad language", "target_language: \"!!\"\n", "target_language"},
		{"empty language", "target_language: \"\"\n", "target_language"},
		{"bad mode", "translation:\n  mode: parallel\n", "mode"},
		{"bad preset", "translation:\n  preset: huge\n", "translation.preset"},
		{"bad retries", "translation:\n  max_retries: 0\n", "retry"},
		{"negative window", "translation:\n  context_window: -1\n", "context_window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := load(t, writeFile(t, "s.yaml", tt.yaml), Credentials{})
			err := s.Validate()
			var ce *internal.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ce.Field)
			}
		})
	}
}

func TestProviderConfig_UnknownProvider(t *testing.T) {
	s := load(t, filepath.Join(t.TempDir(), "missing.yaml"), Credentials{})
	_, err := s.ProviderConfig("nope")
	var ce *internal.ConfigError
	if !errors.As(err, &ce) || !errors.Is(err, translator.ErrUnknownProvider) {
		t.Errorf("expected unknown provider ConfigError, got %v", err)
	}
}

func TestProviderConfig_OllamaHost(t *testing.T) {
	s := load(t, filepath.Join(t.TempDir(), "missing.yaml"), Credentials{OllamaHost: "gpu-box:11434"})
	pc, err := s.ProviderConfig(translator.Ollama)
	if err != nil {
		t.Fatalf("ProviderConfig failed: %v", err)
	}
	if pc.BaseURL != "http://gpu-box:11434" {
		t.Errorf("expected OLLAMA_HOST to replace the default, got %q", pc.BaseURL)
	}

	path := writeFile(t, "s.yaml", "providers:\n  ollama:\n    base_url: http://other:1\n")
	s = load(t, path, Credentials{OllamaHost: "gpu-box:11434"})
	pc, _ = s.ProviderConfig(translator.Ollama)
	if pc.BaseURL != "http://other:1" {
		t.Errorf("expected explicit base_url to win, got %q", pc.BaseURL)
	}
}

func TestUpdate_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := load(t, path, Credentials{})

	err := s.Update(Patch{ActiveProvider: "ollama", ModelName: "llama3.1:8b", TargetLanguage: "uk"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := load(t, path, Credentials{})
	if reloaded.ActiveProvider() != translator.Ollama || reloaded.TargetLanguage() != "uk" {
		t.Errorf("unexpected reloaded settings provider=%q lang=%q", reloaded.ActiveProvider(), reloaded.TargetLanguage())
	}
	pc, _ := reloaded.ProviderConfig("")
	if pc.Model != "llama3.1:8b" {
		t.Errorf("expected saved model, got %q", pc.Model)
	}
	if pc.Timeout != translator.DefaultTimeout {
		t.Errorf("expected timeout to survive a save, got %v", pc.Timeout)
	}
	if err := reloaded.Validate(); err != nil {
		t.Errorf("saved settings should validate: %v", err)
	}
}

func TestUpdate_Invalid(t *testing.T) {
	s := load(t, filepath.Join(t.TempDir(), "missing.yaml"), Credentials{})

	var ce *internal.ConfigError
	if err := s.Update(Patch{ActiveProvider: "nope", ModelName: "x"}); !errors.As(err, &ce) {
		t.Errorf("expected ConfigError, got %v", err)
	}
	if err := s.Update(Patch{TargetLanguage: "!!"}); !errors.As(err, &ce) {
		t.Errorf("expected ConfigError, got %v", err)
	}
	if s.ActiveProvider() != translator.SiliconFlow || s.TargetLanguage() != "zh-Hans" {
		t.Error("a rejected patch must not change settings")
	}
}

func TestSetModel(t *testing.T) {
	s := load(t, filepath.Join(t.TempDir(), "missing.yaml"), Credentials{})

	if err := s.SetModel("", "Qwen/Qwen2.5-72B-Instruct"); err != nil {
		t.Fatalf("SetModel failed: %v", err)
	}
	if err := s.SetModel("ollama", "mistral:7b"); err != nil {
		t.Fatalf("SetModel failed: %v", err)
	}
	if s.ActiveProvider() != translator.SiliconFlow {
		t.Errorf("SetModel must not switch the active provider, got %q", s.ActiveProvider())
	}
	cfg := s.Config()
	if cfg.Providers["siliconflow"].Model != "Qwen/Qwen2.5-72B-Instruct" || cfg.Providers["ollama"].Model != "mistral:7b" {
		t.Errorf("unexpected provider models %+v", cfg.Providers)
	}

	var ce *internal.ConfigError
	if err := s.SetModel("", "  "); !errors.As(err, &ce) || ce.Field != "model_name" {
		t.Errorf("expected model_name ConfigError, got %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("SILICONFLOW_API_KEY", "sf-env")
	t.Setenv("OPENROUTER_API_KEY", "")
	os.Unsetenv("OPENROUTER_API_KEY")

	envFile := writeFile(t, ".env", "SILICONFLOW_API_KEY=sf-file\nOPENROUTER_API_KEY=or-file\n")
	c, err := LoadCredentials(envFile)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if c.SiliconFlowKey != "sf-env" {
		t.Errorf("environment must win over the env file, got %q", c.SiliconFlowKey)
	}
	if c.OpenRouterKey != "or-file" {
		t.Errorf("expected key from env file, got %q", c.OpenRouterKey)
	}

	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for an explicit missing env file")
	}
}

func TestCredentials(t *testing.T) {
	c := Credentials{SiliconFlowKey: "a", OpenRouterKey: "b", OpenAIKey: "c"}
	tests := []struct {
		name string
		want string
	}{
		{"SILICONFLOW_API_KEY", "a"},
		{"OPENROUTER_API_KEY", "b"},
		{"OPENAI_API_KEY", "c"},
		{"", ""},
		{"OTHER", ""},
	}
	for _, tt := range tests {
		if got := c.Key(tt.name); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	hosts := map[string]string{
		"":                        "",
		"localhost:11434":         "http://localhost:11434",
		"https://ollama.example/": "https://ollama.example",
	}
	for in, want := range hosts {
		if got := (Credentials{OllamaHost: in}).OllamaURL(); got != want {
			t.Errorf("OllamaURL(%q) = %q, want %q", in, got, want)
		}
	}
}
