package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIClient работает с любым OpenAI-совместимым API (OpenRouter по умолчанию).
type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

func newOpenAIClient(cfg ClientConfig, model string, logger *zap.Logger) *openAIClient {
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	openaiConfig.HTTPClient = newHTTPClient(cfg)
	return &openAIClient{
		client: openaigo.NewClientWithConfig(openaiConfig),
		model:  model,
		logger: logger.Named("OpenAIClient").With(zap.String("model", model)),
	}
}

func (c *openAIClient) Model() string { return c.model }

func toOpenAIMessages(messages []Message) []openaigo.ChatCompletionMessage {
	out := make([]openaigo.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openaigo.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *openAIClient) GenerateText(ctx context.Context, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	startTime := time.Now()
	c.logger.Debug("Sending AI request", zap.Int("messages", len(messages)))

	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32Val(params.Temperature, 0.8),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP, 1.0),
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("AI request failed", zap.Duration("duration", duration), zap.Error(err))
		observeRequest(c.model, "error", 0)
		return "", UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Warn("AI returned empty response", zap.Duration("duration", duration))
		observeRequest(c.model, "error_empty_response", 0)
		return "", UsageInfo{}, fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
	}

	text := resp.Choices[0].Message.Content
	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage(c.model, messages, text)
	}

	observeRequest(c.model, "success", duration.Seconds())
	observeUsage(c.model, usage)
	c.logger.Info("AI response received",
		zap.Duration("duration", duration),
		zap.Int("length", len(text)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
	)
	return text, usage, nil
}

func (c *openAIClient) GenerateTextStream(ctx context.Context, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	request := openaigo.ChatCompletionRequest{
		Model:         c.model,
		Messages:      toOpenAIMessages(messages),
		Stream:        true,
		StreamOptions: &openaigo.StreamOptions{IncludeUsage: true},
		Temperature:   float32Val(params.Temperature, 0.8),
		MaxTokens:     intVal(params.MaxTokens),
		TopP:          float32Val(params.TopP, 1.0),
	}

	startTime := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		c.logger.Warn("Failed to open AI stream", zap.Error(err))
		observeRequest(c.model, "error_stream_init", 0)
		return UsageInfo{}, fmt.Errorf("%w: ошибка создания стрима: %v", ErrAIGenerationFailed, err)
	}
	defer stream.Close()

	var (
		finalUsage *openaigo.Usage
		fullText   strings.Builder
	)
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Warn("Error reading AI stream", zap.Int("receivedBytes", fullText.Len()), zap.Error(err))
			observeRequest(c.model, "error_stream_read", 0)
			return UsageInfo{}, fmt.Errorf("%w: ошибка чтения стрима: %v", ErrAIGenerationFailed, err)
		}

		// Usage приходит отдельным последним блоком без choices
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		chunk := response.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		fullText.WriteString(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				observeRequest(c.model, "error_chunk_handler", 0)
				return UsageInfo{}, fmt.Errorf("ошибка обработчика стрима: %w", err)
			}
		}
	}
	duration := time.Since(startTime)

	if strings.TrimSpace(fullText.String()) == "" {
		observeRequest(c.model, "error_empty_response", 0)
		return UsageInfo{}, fmt.Errorf("%w: пустой стрим", ErrAIGenerationFailed)
	}

	var usage UsageInfo
	if finalUsage != nil {
		usage = UsageInfo{
			PromptTokens:     finalUsage.PromptTokens,
			CompletionTokens: finalUsage.CompletionTokens,
			TotalTokens:      finalUsage.TotalTokens,
		}
		observeRequest(c.model, "success_stream", duration.Seconds())
	} else {
		c.logger.Debug("Final usage block not received in stream, using estimated token counts")
		usage = estimateUsage(c.model, messages, fullText.String())
		observeRequest(c.model, "success_stream_estimated", duration.Seconds())
	}
	observeUsage(c.model, usage)

	c.logger.Info("AI stream completed",
		zap.Duration("duration", duration),
		zap.Int("length", fullText.Len()),
		zap.Bool("estimatedUsage", usage.Estimated),
	)
	return usage, nil
}
