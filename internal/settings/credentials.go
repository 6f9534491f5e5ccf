package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Credentials are secrets and endpoints taken from the process environment.
type Credentials struct {
	SiliconFlowKey string `env:"SILICONFLOW_API_KEY"`
	OpenRouterKey  string `env:"OPENROUTER_API_KEY"`
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	OllamaHost     string `env:"OLLAMA_HOST"`
}

// LoadCredentials loads envFile (".env" when empty) into the environment
// without overriding variables already set, then reads the credentials. A
// missing env file is not an error.
func LoadCredentials(envFile string) (Credentials, error) {
	name := envFile
	if name == "" {
		name = ".env"
	}
	if err := godotenv.Load(name); err != nil && (envFile != "" || !errors.Is(err, fs.ErrNotExist)) {
		return Credentials{}, fmt.Errorf("failed to load %s: %w", name, err)
	}

	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	return c, nil
}

// Key returns the credential stored under the environment variable name.
func (c Credentials) Key(name string) string {
	switch name {
	case "SILICONFLOW_API_KEY":
		return c.SiliconFlowKey
	case "OPENROUTER_API_KEY":
		return c.OpenRouterKey
	case "OPENAI_API_KEY":
		return c.OpenAIKey
	}
	return ""
}

// OllamaURL turns OLLAMA_HOST, which is often a bare host:port, into a
// base URL.
func (c Credentials) OllamaURL() string {
	h := strings.TrimSpace(c.OllamaHost)
	if h == "" {
		return ""
	}
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	return strings.TrimRight(h, "/")
}
