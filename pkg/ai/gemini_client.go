package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// geminiClient - Google Gemini через generative-ai-go.
type geminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func newGeminiClient(ctx context.Context, cfg ClientConfig, model string, logger *zap.Logger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для Gemini")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{
		client: client,
		model:  model,
		logger: logger.Named("GeminiClient").With(zap.String("model", model)),
	}, nil
}

func (c *geminiClient) Model() string { return c.model }

// session splits messages into system instruction, history and the last user turn.
func (c *geminiClient) session(messages []Message, params GenerationParams) (*genai.ChatSession, genai.Text, error) {
	gm := c.client.GenerativeModel(c.model)
	if params.Temperature != nil {
		gm.SetTemperature(float32(*params.Temperature))
	}
	if params.TopP != nil {
		gm.SetTopP(float32(*params.TopP))
	}
	if params.MaxTokens != nil {
		gm.SetMaxOutputTokens(int32(*params.MaxTokens))
	}

	var (
		system  []string
		history []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, "", fmt.Errorf("%w: последнее сообщение должно быть от пользователя", ErrAIGenerationFailed)
	}

	last := history[len(history)-1]
	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	return cs, last.Parts[0].(genai.Text), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return sb.String()
}

func usageOf(resp *genai.GenerateContentResponse) UsageInfo {
	if resp == nil || resp.UsageMetadata == nil {
		return UsageInfo{}
	}
	return UsageInfo{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

func (c *geminiClient) GenerateText(ctx context.Context, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	cs, input, err := c.session(messages, params)
	if err != nil {
		return "", UsageInfo{}, err
	}

	startTime := time.Now()
	resp, err := cs.SendMessage(ctx, input)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Gemini request failed", zap.Duration("duration", duration), zap.Error(err))
		observeRequest(c.model, "error", 0)
		return "", UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		observeRequest(c.model, "error_empty_response", 0)
		return "", UsageInfo{}, fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
	}
	usage := usageOf(resp)
	observeRequest(c.model, "success", duration.Seconds())
	observeUsage(c.model, usage)
	return text, usage, nil
}

func (c *geminiClient) GenerateTextStream(ctx context.Context, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	cs, input, err := c.session(messages, params)
	if err != nil {
		return UsageInfo{}, err
	}

	startTime := time.Now()
	iter := cs.SendMessageStream(ctx, input)
	var (
		usage    UsageInfo
		received int
	)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			c.logger.Warn("Error reading Gemini stream", zap.Error(err))
			observeRequest(c.model, "error_stream_read", 0)
			return UsageInfo{}, fmt.Errorf("%w: ошибка чтения стрима: %v", ErrAIGenerationFailed, err)
		}
		if u := usageOf(resp); u.TotalTokens > 0 {
			usage = u
		}
		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		received += len(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				return UsageInfo{}, fmt.Errorf("ошибка обработчика стрима: %w", err)
			}
		}
	}
	if received == 0 {
		observeRequest(c.model, "error_empty_response", 0)
		return UsageInfo{}, fmt.Errorf("%w: пустой стрим", ErrAIGenerationFailed)
	}

	observeRequest(c.model, "success_stream", time.Since(startTime).Seconds())
	observeUsage(c.model, usage)
	return usage, nil
}
