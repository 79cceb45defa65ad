package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1"

	defaultAnthropicMaxTokens = 8192
)

type anthropicRequest struct {
	Model      string             `json:"model"`
	Messages   []anthropicMessage `json:"messages"`
	System     []systemBlock      `json:"system,omitempty"`
	MaxTokens  int                `json:"max_tokens"`
	Tools      []toolDefinition   `json:"tools,omitempty"`
	ToolChoice *toolChoice        `json:"tool_choice,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type toolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"` // "tool"
	Name string `json:"name"`
}

type anthropicResponse struct {
	ID      string                   `json:"id"`
	Type    string                   `json:"type"`
	Role    string                   `json:"role"`
	Content []anthropicResponseBlock `json:"content"`
	Error   *anthropicError          `json:"error,omitempty"`
}

type anthropicResponseBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- Client Implementation ---

// AnthropicConfig configures the raw REST client. Empty fields fall
// back to environment variables and container secrets.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

var _ Client = (*AnthropicClient)(nil)

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Anthropic API Key from container secrets")
		}
	}
	if apiKey == "" {
		slog.Warn("Anthropic API Key is missing.")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
		slog.Info("Anthropic model not set, defaulting to", "model", model)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// Complete implements Client.
func (a *AnthropicClient) Complete(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	req := a.baseRequest(system, prompt, nil, params)
	resp, err := a.send(ctx, req)
	if err != nil {
		return "", err
	}
	return textContent(resp)
}

// CompleteStructured implements Client. Structured output uses a
// forced tool call: the schema becomes the tool's input schema and the
// model's tool input is the structured document.
func (a *AnthropicClient) CompleteStructured(ctx context.Context, system, prompt string, schema Schema, params GenerationParams) (string, error) {
	req := a.baseRequest(system, prompt, nil, params)
	a.forceTool(&req, schema)
	resp, err := a.send(ctx, req)
	if err != nil {
		return "", err
	}
	return toolInput(resp, schema.Name)
}

// CompleteVisionStructured implements Client.
func (a *AnthropicClient) CompleteVisionStructured(ctx context.Context, system, prompt string, images []ImageInput, schema Schema, params GenerationParams) (string, error) {
	req := a.baseRequest(system, prompt, images, params)
	a.forceTool(&req, schema)
	resp, err := a.send(ctx, req)
	if err != nil {
		return "", err
	}
	return toolInput(resp, schema.Name)
}

func (a *AnthropicClient) baseRequest(system, prompt string, images []ImageInput, params GenerationParams) anthropicRequest {
	content := make([]anthropicContentBlock, 0, len(images)+1)
	for _, img := range images {
		mime := img.MIME
		if mime == "" {
			mime = DetectImageMIME(img.Data)
		}
		content = append(content, anthropicContentBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: mime,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	content = append(content, anthropicContentBlock{Type: "text", Text: prompt})

	var systemBlocks []systemBlock
	if system != "" {
		block := systemBlock{Type: "text", Text: system}
		// Long system prompts are stable across calls; cache them.
		if len(system) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	req := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: content}},
		System:    systemBlocks,
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.StopSeqs = params.Stop
	}
	return req
}

func (a *AnthropicClient) forceTool(req *anthropicRequest, schema Schema) {
	req.Tools = []toolDefinition{{
		Name:        schema.Name,
		Description: schema.Description,
		InputSchema: schema.Raw,
	}}
	req.ToolChoice = &toolChoice{Type: "tool", Name: schema.Name}
}

func (a *AnthropicClient) send(ctx context.Context, payload anthropicRequest) (*anthropicResponse, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := withRetry(ctx, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/messages", bytes.NewBuffer(reqBody))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
		req.Header.Set("content-type", "application/json")

		slog.Debug("Sending REST request to Anthropic", "model", a.model)
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return "", &statusError{status: resp.StatusCode, body: string(bodyBytes)}
		}
		return string(bodyBytes), nil
	})
	if err != nil {
		return nil, err
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal([]byte(raw), &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("received empty content from Anthropic")
	}
	return &apiResp, nil
}

func textContent(resp *anthropicResponse) (string, error) {
	finalText := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			finalText += block.Text
		}
	}
	if finalText == "" {
		return "", fmt.Errorf("received content but no text block found")
	}
	return finalText, nil
}

func toolInput(resp *anthropicResponse, toolName string) (string, error) {
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			return string(block.Input), nil
		}
	}
	// Some models answer in text despite the forced tool; fall back so
	// the validation layer can judge it.
	return textContent(resp)
}
