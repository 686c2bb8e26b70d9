package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Кодировка по умолчанию для моделей, которых tiktoken не знает (OpenRouter, Ollama).
const fallbackEncoding = "cl100k_base"

var (
	encodingsMu sync.Mutex
	encodings   = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingsMu.Lock()
	defer encodingsMu.Unlock()

	if tke, ok := encodings[model]; ok {
		return tke
	}
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			tke = nil
		}
	}
	encodings[model] = tke
	return tke
}

// CountTokens оценивает число токенов текста. Возвращает 0, если токенизатор недоступен.
func CountTokens(model, text string) int {
	tke := encodingFor(model)
	if tke == nil || text == "" {
		return 0
	}
	return len(tke.Encode(text, nil, nil))
}

// estimateUsage заполняет UsageInfo локальной оценкой, когда API не прислал usage.
func estimateUsage(model string, messages []Message, completion string) UsageInfo {
	prompt := 0
	for _, m := range messages {
		prompt += CountTokens(model, m.Content)
	}
	out := CountTokens(model, completion)
	return UsageInfo{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
		Estimated:        true,
	}
}
