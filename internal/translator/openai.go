package translator

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatService calls an OpenAI-compatible /chat/completions endpoint. It
// serves SiliconFlow, OpenRouter and OpenAI.
type ChatService struct {
	cfg    Config
	client *resty.Client
}

func NewChatService(cfg Config) *ChatService {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	if cfg.Provider == OpenRouter {
		client.SetHeader("HTTP-Referer", "https://github.com/valpere/infinitran")
		client.SetHeader("X-Title", "InfiniTran")
	}
	return &ChatService{cfg: cfg, client: client}
}

func (s *ChatService) Name() string  { return s.cfg.Provider }
func (s *ChatService) Model() string { return s.cfg.Model }

func (s *ChatService) Complete(ctx context.Context, p Prompt) (string, error) {
	body := chatRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	if p.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: p.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: p.User})

	var out chatResponse
	var apiErr chatError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", &Error{Provider: s.Name(), Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return "", statusError(s.Name(), resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", &Error{Provider: s.Name(), Err: ErrEmptyCompletion}
	}
	return out.Choices[0].Message.Content, nil
}
