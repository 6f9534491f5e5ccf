package translator

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OllamaService calls a local Ollama server through /api/chat.
type OllamaService struct {
	cfg    Config
	client *resty.Client
}

func NewOllamaService(cfg Config) *OllamaService {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &OllamaService{cfg: cfg, client: client}
}

func (s *OllamaService) Name() string  { return Ollama }
func (s *OllamaService) Model() string { return s.cfg.Model }

func (s *OllamaService) Complete(ctx context.Context, p Prompt) (string, error) {
	messages := []chatMessage{{Role: "user", Content: p.User}}
	if p.System != "" {
		messages = append([]chatMessage{{Role: "system", Content: p.System}}, messages...)
	}
	body := map[string]any{
		"model":    s.cfg.Model,
		"messages": messages,
		"stream":   false,
		"options":  map[string]any{"temperature": s.cfg.Temperature},
	}

	var out struct {
		Message chatMessage `json:"message"`
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		return "", &Error{Provider: Ollama, Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.String()
		}
		return "", statusError(Ollama, resp.StatusCode(), msg)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", &Error{Provider: Ollama, Err: ErrEmptyCompletion}
	}
	return out.Message.Content, nil
}
