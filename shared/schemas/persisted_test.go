package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validState = `{
	"id": "g1", "title": "Killing Game #1", "phase": "INTRODUCTION", "mode": "WATCH",
	"turnCount": 0,
	"characters": [{"id": "c1", "name": "Ann", "status": "ALIVE", "history": null}],
	"messages": [{"role": "model", "content": "Welcome!", "timestamp": 1700000000000}]
}`

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		doc     string
		wantErr string
	}{
		{"game state", KindGameState, validState, ""},
		{"save slot", KindSaveSlot, `{"id":"g1","title":"t","lastPlayed":1,"state":` + validState + `}`, ""},
		{"character with history", KindCharacter, `{"id":"c","name":"Ann","status":"DEAD","history":[{"gameTitle":"g","outcome":"VICTIM"}]}`, ""},
		{"structured cast without ids", KindStructuredCast, `[{"name":"Ann"},{"name":"Bo","status":"EXECUTED"}]`, ""},

		{"bad phase", KindGameState, `{"id":"g","title":"t","phase":"LUNCH","mode":"WATCH","characters":[],"messages":[]}`, "phase"},
		{"bad role", KindGameState, `{"id":"g","title":"t","phase":"TRIAL","mode":"WATCH","characters":[],"messages":[{"role":"system","content":"x"}]}`, "role"},
		{"missing state", KindSaveSlot, `{"id":"g1","title":"t","lastPlayed":1}`, "state"},
		{"bad status", KindCharacter, `{"id":"c","name":"Ann","status":"ZOMBIE"}`, "status"},
		{"bad outcome", KindCharacter, `{"id":"c","name":"Ann","status":"ALIVE","history":[{"gameTitle":"g","outcome":"WINNER"}]}`, "outcome"},
		{"cast not array", KindStructuredCast, `{"name":"Ann"}`, "structured_cast"},
		{"cast empty name", KindStructuredCast, `[{"name":""}]`, "name"},
		{"not json", KindCharacter, `{`, "character"},
		{"unknown kind", Kind("nope"), `{}`, "unknown schema kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.kind, []byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
