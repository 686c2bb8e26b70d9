package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrAIGenerationFailed - ошибка при генерации текста AI
var ErrAIGenerationFailed = errors.New("ошибка генерации текста AI")

// Роли сообщений в запросе к модели.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message - одно сообщение диалога с моделью.
type Message struct {
	Role    string
	Content string
}

// GenerationParams - параметры генерации.
// Используем указатели, чтобы отличить 0/0.0 от отсутствия.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Params is a shorthand for the common temperature + max tokens pair.
func Params(temperature float64, maxTokens int) GenerationParams {
	return GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens}
}

// UsageInfo содержит информацию об использовании токенов
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool // Токены посчитаны локально, а не получены от API
}

// TextGenerator - клиент одной модели.
type TextGenerator interface {
	// GenerateText returns the whole reply at once.
	GenerateText(ctx context.Context, messages []Message, params GenerationParams) (string, UsageInfo, error)
	// GenerateTextStream calls chunkHandler for every fragment as it arrives.
	GenerateTextStream(ctx context.Context, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error)
	// Model returns the model name used for requests and metric labels.
	Model() string
}

// ClientConfig - настройки подключения к провайдеру.
type ClientConfig struct {
	ClientType string // openai | ollama | gemini
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Referer    string // HTTP-Referer для OpenRouter
	AppTitle   string // X-Title для OpenRouter
}

// NewTextGenerator создает клиент для указанной модели в зависимости от типа провайдера.
func NewTextGenerator(ctx context.Context, cfg ClientConfig, model string, logger *zap.Logger) (TextGenerator, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("не указана модель AI")
	}
	switch strings.ToLower(cfg.ClientType) {
	case "openai", "openrouter", "":
		logger.Info("Используется реализация AI клиента: OpenAI", zap.String("model", model), zap.String("baseURL", cfg.BaseURL))
		return newOpenAIClient(cfg, model, logger), nil
	case "ollama":
		logger.Info("Используется реализация AI клиента: Ollama", zap.String("model", model), zap.String("baseURL", cfg.BaseURL))
		return newOllamaClient(cfg, model, logger)
	case "gemini":
		logger.Info("Используется реализация AI клиента: Gemini", zap.String("model", model))
		return newGeminiClient(ctx, cfg, model, logger)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.ClientType)
	}
}

// headerTransport добавляет служебные заголовки к каждому запросу.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func newHTTPClient(cfg ClientConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"HTTP-Referer": cfg.Referer,
				"X-Title":      cfg.AppTitle,
			},
		},
	}
}

func float32Val(f64 *float64, def float32) float32 {
	if f64 == nil {
		return def
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
