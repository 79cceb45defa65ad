package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-backed client. Empty fields fall
// back to environment variables and container secrets.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o")
	}

	var client *openai.Client
	if cfg.BaseURL != "" {
		conf := openai.DefaultConfig(apiKey)
		conf.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(conf)
	} else {
		client = openai.NewClient(apiKey)
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{client: client, model: model}, nil
}

// Complete implements Client.
func (o *OpenAIClient) Complete(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	req := o.baseRequest(system, params)
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return o.send(ctx, req)
}

// CompleteStructured implements Client. The schema is tightened for
// strict mode (additionalProperties=false, all keys required) and
// enforced through the json_schema response format.
func (o *OpenAIClient) CompleteStructured(ctx context.Context, system, prompt string, schema Schema, params GenerationParams) (string, error) {
	req := o.baseRequest(system, params)
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	if err := o.applySchema(&req, schema); err != nil {
		return "", err
	}
	return o.send(ctx, req)
}

// CompleteVisionStructured implements Client. Images travel as base64
// data URIs with MIME types sniffed from magic bytes when unset.
func (o *OpenAIClient) CompleteVisionStructured(ctx context.Context, system, prompt string, images []ImageInput, schema Schema, params GenerationParams) (string, error) {
	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	})
	for _, img := range images {
		mime := img.MIME
		if mime == "" {
			mime = DetectImageMIME(img.Data)
		}
		dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURI,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	req := o.baseRequest(system, params)
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
	if err := o.applySchema(&req, schema); err != nil {
		return "", err
	}
	return o.send(ctx, req)
}

func (o *OpenAIClient) baseRequest(system string, params GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{Model: o.model}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

func (o *OpenAIClient) applySchema(req *openai.ChatCompletionRequest, schema Schema) error {
	strict, err := PrepareSchemaForStrictMode(schema.Raw)
	if err != nil {
		return fmt.Errorf("prepare schema %q: %w", schema.Name, err)
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   schema.Name,
			Schema: strict,
			Strict: true,
		},
	}
	return nil
}

func (o *OpenAIClient) send(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	return withRetry(ctx, func() (string, error) {
		slog.Debug("Generating text via OpenAI", "model", o.model)
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return "", &statusError{status: apiErr.HTTPStatusCode, body: apiErr.Message}
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			slog.Warn("OpenAI returned no choices or empty content")
			return "", fmt.Errorf("OpenAI returned no choices")
		}
		slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
		return resp.Choices[0].Message.Content, nil
	})
}
