package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Kind - тип проверяемого документа.
type Kind string

const (
	KindGameState      Kind = "game_state"
	KindSaveSlot       Kind = "save_slot"
	KindCharacter      Kind = "character"
	KindStructuredCast Kind = "structured_cast"
)

// maxReportedErrors ограничивает число нарушений схемы в тексте ошибки.
const maxReportedErrors = 5

var statusEnum = []interface{}{"ALIVE", "DEAD", "EXECUTED"}

func matchHistorySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"gameTitle", "outcome"},
		"properties": map[string]interface{}{
			"gameTitle": map[string]interface{}{"type": "string"},
			"outcome":   map[string]interface{}{"enum": []interface{}{"SURVIVOR", "VICTIM", "CULPRIT", "MASTERMIND", "UNKNOWN"}},
			"details":   map[string]interface{}{"type": "string"},
		},
	}
}

// characterSchema описывает сохраненного персонажа. Необязательные поля
// (ultimateTitle, avatarUrl, history, isPlayer) допускаются в любом составе,
// статус проверяется строго.
func characterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"id", "name", "status"},
		"properties": map[string]interface{}{
			"id":            map[string]interface{}{"type": "string", "minLength": 1},
			"name":          map[string]interface{}{"type": "string", "minLength": 1},
			"ultimateTitle": map[string]interface{}{"type": "string"},
			"origin":        map[string]interface{}{"type": "string"},
			"traits":        map[string]interface{}{"type": []interface{}{"array", "null"}, "items": map[string]interface{}{"type": "string"}},
			"backstory":     map[string]interface{}{"type": "string"},
			"description":   map[string]interface{}{"type": "string"},
			"status":        map[string]interface{}{"enum": statusEnum},
			"avatarUrl":     map[string]interface{}{"type": "string"},
			"isPlayer":      map[string]interface{}{"type": "boolean"},
			"history":       map[string]interface{}{"type": []interface{}{"array", "null"}, "items": matchHistorySchema()},
		},
	}
}

func gameStateSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"id", "title", "phase", "mode", "characters", "messages"},
		"properties": map[string]interface{}{
			"id":           map[string]interface{}{"type": "string", "minLength": 1},
			"title":        map[string]interface{}{"type": "string"},
			"isLocked":     map[string]interface{}{"type": "boolean"},
			"phase":        map[string]interface{}{"enum": []interface{}{"SETUP", "INTRODUCTION", "DAILY_LIFE", "INCIDENT", "INVESTIGATION", "TRIAL", "RESOLUTION", "ENDGAME"}},
			"mode":         map[string]interface{}{"enum": []interface{}{"WATCH", "PARTICIPATE"}},
			"theme":        map[string]interface{}{"type": "string"},
			"hostName":     map[string]interface{}{"type": "string"},
			"restrictions": map[string]interface{}{"type": "string"},
			"turnCount":    map[string]interface{}{"type": "integer", "minimum": 0},
			"characters":   map[string]interface{}{"type": []interface{}{"array", "null"}, "items": characterSchema()},
			"evidence": map[string]interface{}{
				"type": []interface{}{"array", "null"},
				"items": map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"id", "name"},
					"properties": map[string]interface{}{
						"id":          map[string]interface{}{"type": "string"},
						"name":        map[string]interface{}{"type": "string"},
						"description": map[string]interface{}{"type": "string"},
					},
				},
			},
			"messages": map[string]interface{}{
				"type": []interface{}{"array", "null"},
				"items": map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"role", "content"},
					"properties": map[string]interface{}{
						"role":      map[string]interface{}{"enum": []interface{}{"user", "model"}},
						"content":   map[string]interface{}{"type": "string"},
						"timestamp": map[string]interface{}{"type": "integer"},
					},
				},
			},
		},
	}
}

func saveSlotSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"id", "title", "lastPlayed", "state"},
		"properties": map[string]interface{}{
			"id":         map[string]interface{}{"type": "string", "minLength": 1},
			"title":      map[string]interface{}{"type": "string"},
			"lastPlayed": map[string]interface{}{"type": "integer"},
			"state":      gameStateSchema(),
		},
	}
}

// structuredCastSchema мягче схемы хранения: модель может опускать id и
// любые поля кроме name. Статус, если есть, обязан быть из перечисления.
func structuredCastSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"name"},
			"properties": map[string]interface{}{
				"id":            map[string]interface{}{"type": "string"},
				"name":          map[string]interface{}{"type": "string", "minLength": 1},
				"ultimateTitle": map[string]interface{}{"type": "string"},
				"origin":        map[string]interface{}{"type": "string"},
				"traits":        map[string]interface{}{"type": []interface{}{"array", "null"}, "items": map[string]interface{}{"type": "string"}},
				"backstory":     map[string]interface{}{"type": "string"},
				"description":   map[string]interface{}{"type": "string"},
				"status":        map[string]interface{}{"enum": statusEnum},
				"avatarUrl":     map[string]interface{}{"type": "string"},
			},
		},
	}
}

var (
	compileOnce sync.Once
	compiled    map[Kind]*gojsonschema.Schema
	compileErr  error
)

func compile() {
	defs := map[Kind]map[string]interface{}{
		KindGameState:      gameStateSchema(),
		KindSaveSlot:       saveSlotSchema(),
		KindCharacter:      characterSchema(),
		KindStructuredCast: structuredCastSchema(),
	}
	compiled = make(map[Kind]*gojsonschema.Schema, len(defs))
	for kind, def := range defs {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
		if err != nil {
			compileErr = fmt.Errorf("compile %s schema: %w", kind, err)
			return
		}
		compiled[kind] = s
	}
}

// Validate проверяет JSON-документ по схеме указанного типа.
// Возвращает nil, если документ валиден.
func Validate(kind Kind, doc []byte) error {
	compileOnce.Do(compile)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("unknown schema kind %q", kind)
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if !res.Valid() {
		var msgs []string
		for i, e := range res.Errors() {
			if i >= maxReportedErrors {
				break
			}
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s: %s", kind, strings.Join(msgs, "; "))
	}
	return nil
}
