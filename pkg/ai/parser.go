package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ronpa-server/shared/models"
	"ronpa-server/shared/schemas"
)

// Маркеры структурированного обновления каста внутри текста ведущего.
const (
	UpdateOpenMarker  = "<CHARACTER_UPDATE>"
	UpdateCloseMarker = "</CHARACTER_UPDATE>"
)

var (
	updateRegionRe = regexp.MustCompile(`(?s)<CHARACTER_UPDATE>(.*?)</CHARACTER_UPDATE>`)
	codeFenceRe    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// ParsedNarration - результат разбора финального текста хода.
type ParsedNarration struct {
	DisplayText string             // Текст без области обновления, обрезанный
	Cast        []models.Character // nil, если маркера нет или payload битый
	Found       bool               // Область обновления присутствовала
	Err         error              // Оборачивает models.ErrMalformedPayload
}

// ParseNarration extracts the structured cast update from the final narration
// text. The first complete region is decoded; every complete region is
// stripped from the display text, even when the payload is malformed.
// Text without any marker is returned trimmed and otherwise unchanged.
func ParseNarration(text string) ParsedNarration {
	match := updateRegionRe.FindStringSubmatchIndex(text)
	display := updateRegionRe.ReplaceAllString(text, "")
	// Незакрытый маркер (ответ оборван по лимиту токенов) скрывается вместе
	// с хвостом.
	unterminated := strings.Index(display, UpdateOpenMarker)
	if unterminated >= 0 {
		display = display[:unterminated]
	}

	if match == nil {
		result := ParsedNarration{DisplayText: strings.TrimSpace(display)}
		if unterminated >= 0 {
			result.Found = true
			result.Err = fmt.Errorf("%w: unterminated update region", models.ErrMalformedPayload)
		}
		return result
	}

	result := ParsedNarration{
		DisplayText: strings.TrimSpace(display),
		Found:       true,
	}

	cast, err := decodeCast(text[match[2]:match[3]])
	if err != nil {
		result.Err = err
		return result
	}
	result.Cast = cast
	return result
}

func decodeCast(payload string) ([]models.Character, error) {
	payload = strings.TrimSpace(payload)
	if m := codeFenceRe.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", models.ErrMalformedPayload)
	}

	if err := schemas.Validate(schemas.KindStructuredCast, []byte(payload)); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}

	var cast []models.Character
	if err := json.Unmarshal([]byte(payload), &cast); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	return cast, nil
}

// StripPartial returns the part of a still-streaming text that is safe to show:
// complete update regions are removed, and everything from an unterminated
// opening marker (or a trailing prefix of one) onward is hidden.
func StripPartial(text string) string {
	visible := updateRegionRe.ReplaceAllString(text, "")

	if idx := strings.Index(visible, UpdateOpenMarker); idx >= 0 {
		visible = visible[:idx]
	} else {
		visible = visible[:len(visible)-trailingMarkerPrefix(visible)]
	}
	return strings.TrimSpace(visible)
}

// trailingMarkerPrefix returns the length of the longest suffix of s that is a
// proper prefix of the opening marker.
func trailingMarkerPrefix(s string) int {
	limit := len(UpdateOpenMarker) - 1
	if len(s) < limit {
		limit = len(s)
	}
	for n := limit; n > 0; n-- {
		if strings.HasSuffix(s, UpdateOpenMarker[:n]) {
			return n
		}
	}
	return 0
}
