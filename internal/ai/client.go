package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTokenURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultChatURL  = "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"
	DefaultModel    = "GigaChat-Pro"
	DefaultScope    = "GIGACHAT_API_PERS"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GigaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type GigaChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type GigaChatClient struct {
	authKey  string
	tokenURL string
	chatURL  string
	model    string
	client   *http.Client
}

type Option func(*GigaChatClient)

func WithEndpoints(tokenURL, chatURL string) Option {
	return func(c *GigaChatClient) {
		c.tokenURL = tokenURL
		c.chatURL = chatURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *GigaChatClient) { c.client = client }
}

func WithModel(model string) Option {
	return func(c *GigaChatClient) { c.model = model }
}

// WithInsecureTLS skips certificate checks; the GigaChat endpoints are
// signed by a CA most system trust stores lack.
func WithInsecureTLS() Option {
	return func(c *GigaChatClient) {
		c.client = &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
			Timeout:   60 * time.Second,
		}
	}
}

func NewGigaChatClient(authKey string, opts ...Option) *GigaChatClient {
	c := &GigaChatClient{
		authKey:  authKey,
		tokenURL: DefaultTokenURL,
		chatURL:  DefaultChatURL,
		model:    DefaultModel,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (gc *GigaChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	token, err := gc.accessToken(ctx)
	if err != nil {
		return "", err
	}

	reqBody := GigaChatRequest{
		Model:    gc.model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("chat marshal failed: %w", err)
	}

	chatHttpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gc.chatURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("chat request create failed: %w", err)
	}
	chatHttpReq.Header.Set("Authorization", "Bearer "+token)
	chatHttpReq.Header.Set("Content-Type", "application/json")
	chatHttpReq.Header.Set("RqUID", uuid.NewString())

	resp, err := gc.client.Do(chatHttpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp GigaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("chat decode failed: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

func (gc *GigaChatClient) accessToken(ctx context.Context) (string, error) {
	tokenForm := url.Values{}
	tokenForm.Set("scope", DefaultScope)

	tokenHttpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gc.tokenURL,
		strings.NewReader(tokenForm.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request create failed: %w", err)
	}

	tokenHttpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenHttpReq.Header.Set("RqUID", uuid.NewString())
	tokenHttpReq.Header.Set("Authorization", "Basic "+gc.authKey)

	tokenResp, err := gc.client.Do(tokenHttpReq)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer tokenResp.Body.Close()

	if tokenResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(tokenResp.Body, 1024))
		return "", fmt.Errorf("token http %d: %s", tokenResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
	}

	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenData); err != nil {
		return "", fmt.Errorf("token decode failed: %w", err)
	}
	if tokenData.AccessToken == "" {
		return "", fmt.Errorf("token response without access_token")
	}

	return tokenData.AccessToken, nil
}
