package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf16"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"go.uber.org/zap"
)

// ErrImageSaveFailed - не удалось сохранить скачанный аватар.
var ErrImageSaveFailed = errors.New("failed to save avatar image")

// maxAvatarBytes ограничивает размер скачиваемого изображения.
const maxAvatarBytes = 8 << 20

// AvatarConfig - настройки генерации аватаров через Pollinations.
type AvatarConfig struct {
	BaseURL       string // https://image.pollinations.ai/prompt
	Size          int
	Model         string
	SavePath      string // Пусто: возвращаем удаленный URL без скачивания
	PublicBaseURL string
	Timeout       time.Duration
}

// AvatarGenerator строит детерминированный URL портрета и, если задан
// SavePath, скачивает изображение и отдает публичный URL локальной копии.
type AvatarGenerator struct {
	cfg        AvatarConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ interfaces.AvatarGenerator = (*AvatarGenerator)(nil)

func NewAvatarGenerator(cfg AvatarConfig, logger *zap.Logger) *AvatarGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://image.pollinations.ai/prompt"
	}
	if cfg.Size <= 0 {
		cfg.Size = 512
	}
	if cfg.Model == "" {
		cfg.Model = "flux"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &AvatarGenerator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("AvatarGenerator"),
	}
}

// AvatarSeed - стабильный seed по id персонажа: acc*31+c от 5381 по UTF-16 единицам, mod 2^32.
func AvatarSeed(id string) uint32 {
	acc := uint32(5381)
	for _, unit := range utf16.Encode([]rune(id)) {
		acc = acc*31 + uint32(unit)
	}
	return acc
}

// AvatarPrompt - текстовый промпт портрета.
func AvatarPrompt(c models.Character) string {
	return fmt.Sprintf("Stylized anime headshot portrait of %s, the %s. Danganronpa art style, high contrast, vibrant colors. Minimalistic solid dark background.",
		c.Name, c.UltimateTitle)
}

// AvatarURL returns the remote image URL for the character.
func (g *AvatarGenerator) AvatarURL(c models.Character) string {
	return fmt.Sprintf("%s/%s?width=%d&height=%d&nologo=true&seed=%d&model=%s",
		strings.TrimSuffix(g.cfg.BaseURL, "/"),
		url.PathEscape(AvatarPrompt(c)),
		g.cfg.Size, g.cfg.Size,
		AvatarSeed(c.ID),
		url.QueryEscape(g.cfg.Model),
	)
}

// GenerateAvatar returns "" without error when the character has no title yet.
func (g *AvatarGenerator) GenerateAvatar(ctx context.Context, c models.Character) (string, error) {
	if strings.TrimSpace(c.UltimateTitle) == "" {
		return "", nil
	}
	remote := g.AvatarURL(c)
	if g.cfg.SavePath == "" {
		avatarsGeneratedTotal.WithLabelValues("remote").Inc()
		return remote, nil
	}

	log := g.logger.With(zap.String("characterID", c.ID), zap.String("name", c.Name))
	data, err := g.download(ctx, remote)
	if err != nil {
		log.Warn("Avatar download failed", zap.Error(err))
		avatarsGeneratedTotal.WithLabelValues("error").Inc()
		return "", err
	}

	fileName := sanitizeFileName(c.ID) + ".jpg"
	if err := os.MkdirAll(g.cfg.SavePath, 0o755); err != nil {
		avatarsGeneratedTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	filePath := filepath.Join(g.cfg.SavePath, fileName)
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		log.Error("Failed to save avatar to file", zap.String("path", filePath), zap.Error(err))
		avatarsGeneratedTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}

	publicURL := strings.TrimSuffix(g.cfg.PublicBaseURL, "/") + "/" + fileName
	log.Info("Avatar saved", zap.String("path", filePath), zap.String("url", publicURL), zap.Int("sizeBytes", len(data)))
	avatarsGeneratedTotal.WithLabelValues("stored").Inc()
	return publicURL, nil
}

func (g *AvatarGenerator) download(ctx context.Context, remote string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return nil, fmt.Errorf("build avatar request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("avatar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("avatar provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		return nil, fmt.Errorf("read avatar body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("avatar provider returned empty body")
	}
	return data, nil
}

// sanitizeFileName оставляет в id только безопасные для имени файла символы.
func sanitizeFileName(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return fmt.Sprintf("avatar-%d", AvatarSeed(id))
	}
	return sb.String()
}
