package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client

	// Defaults for Chat; Generate carries its own settings per request.
	ChatTemperature float64
	ChatMaxTokens   int
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterChatReq struct {
	Model          string          `json:"model"`
	Messages       []openRouterMsg `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message openRouterMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL:         baseURL,
		APIKey:          apiKey,
		Model:           model,
		Client:          &http.Client{Timeout: 90 * time.Second},
		ChatTemperature: 0.7,
		ChatMaxTokens:   1024,
	}
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	out := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, openRouterMsg{Role: m.Role, Content: m.Content})
	}
	temp := p.ChatTemperature
	return p.complete(ctx, openRouterChatReq{
		Model:       strings.TrimSpace(p.Model),
		Messages:    out,
		Temperature: &temp,
		MaxTokens:   p.ChatMaxTokens,
	})
}

func (p *OpenRouterProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	msgs := []openRouterMsg{
		{Role: "system", Content: req.Instructions},
		{Role: "user", Content: req.Input},
	}
	temp := req.Temperature
	body := openRouterChatReq{
		Model:       strings.TrimSpace(p.Model),
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONOnly {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return p.complete(ctx, body)
}

func (p *OpenRouterProvider) complete(ctx context.Context, reqBody openRouterChatReq) (string, error) {
	if p.Client == nil {
		return "", errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openrouter: api key is required")
	}
	if reqBody.Model == "" {
		return "", errors.New("openrouter: model is required")
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("openrouter: %s", msg)
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openrouter: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}
