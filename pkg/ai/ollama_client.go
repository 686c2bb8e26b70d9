package ai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// ollamaClient - локальные модели через нативный API Ollama.
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newOllamaClient(cfg ClientConfig, model string, logger *zap.Logger) (*ollamaClient, error) {
	// api.NewClient требует URL без суффикса /v1
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}
	return &ollamaClient{
		client: api.NewClient(parsedURL, newHTTPClient(cfg)),
		model:  model,
		logger: logger.Named("OllamaClient").With(zap.String("model", model)),
	}, nil
}

func (c *ollamaClient) Model() string { return c.model }

func (c *ollamaClient) request(messages []Message, params GenerationParams, stream bool) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}
	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	return &api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}
}

func (c *ollamaClient) GenerateText(ctx context.Context, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	startTime := time.Now()

	var resp api.ChatResponse
	err := c.client.Chat(ctx, c.request(messages, params, false), func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("Ollama request timed out", zap.Duration("duration", duration))
		} else {
			c.logger.Warn("Ollama request failed", zap.Duration("duration", duration), zap.Error(err))
		}
		observeRequest(c.model, "error", 0)
		return "", UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		observeRequest(c.model, "error_empty_response", 0)
		return "", UsageInfo{}, fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
	}

	usage := UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeRequest(c.model, "success", duration.Seconds())
	observeUsage(c.model, usage)
	c.logger.Info("Ollama response received", zap.Duration("duration", duration), zap.Int("length", len(resp.Message.Content)))
	return resp.Message.Content, usage, nil
}

func (c *ollamaClient) GenerateTextStream(ctx context.Context, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	startTime := time.Now()

	var (
		usage    UsageInfo
		received int
	)
	err := c.client.Chat(ctx, c.request(messages, params, true), func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			received += len(resp.Message.Content)
			if chunkHandler != nil {
				if err := chunkHandler(resp.Message.Content); err != nil {
					return fmt.Errorf("ошибка обработчика стрима: %w", err)
				}
			}
		}
		if resp.Done {
			usage = UsageInfo{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				c.logger.Warn("Ollama stream finished with non-stop reason", zap.String("reason", resp.DoneReason))
			}
		}
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Error during Ollama stream", zap.Duration("duration", duration), zap.Error(err))
		observeRequest(c.model, "error_stream", 0)
		return UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if received == 0 {
		observeRequest(c.model, "error_empty_response", 0)
		return UsageInfo{}, fmt.Errorf("%w: пустой стрим", ErrAIGenerationFailed)
	}

	observeRequest(c.model, "success_stream", duration.Seconds())
	observeUsage(c.model, usage)
	return usage, nil
}
