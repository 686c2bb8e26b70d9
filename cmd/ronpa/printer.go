package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"
)

// terminalSink печатает стрим ведущего в терминал по мере поступления.
// StreamUpdated присылает всю видимую часть, поэтому печатается только
// прирост относительно уже выведенного.
type terminalSink struct {
	mu      sync.Mutex
	out     io.Writer
	printed string
	phase   models.GamePhase
	cast    map[string]models.CharacterStatus
}

var _ interfaces.DisplaySink = (*terminalSink)(nil)

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{out: out, cast: make(map[string]models.CharacterStatus)}
}

func (t *terminalSink) StreamUpdated(_ string, visible string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !strings.HasPrefix(visible, t.printed) {
		// Видимая часть сократилась (скрыт начавшийся маркер) или сменилась
		// на ответ запасной модели: начинаем с новой строки.
		fmt.Fprintln(t.out)
		t.printed = ""
	}
	fmt.Fprint(t.out, visible[len(t.printed):])
	t.printed = visible
}

func (t *terminalSink) StreamCleared(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.printed != "" {
		fmt.Fprintln(t.out)
		fmt.Fprintln(t.out)
	}
	t.printed = ""
}

func (t *terminalSink) StateChanged(state *models.GameState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state.Phase != t.phase {
		if t.phase != "" {
			fmt.Fprintf(t.out, ">>> PHASE: %s\n", state.Phase)
		}
		t.phase = state.Phase
	}
	for _, c := range state.Characters {
		prev, known := t.cast[c.ID]
		if known && prev != c.Status {
			fmt.Fprintf(t.out, ">>> %s is now %s\n", c.Name, c.Status)
		}
		t.cast[c.ID] = c.Status
	}
}

// printCast выводит ростер.
func printCast(out io.Writer, cast []models.Character) {
	fmt.Fprintf(out, "Cast (%d alive of %d):\n", models.CountAlive(cast), len(cast))
	for _, c := range cast {
		title := c.UltimateTitle
		if title == "" {
			title = "TBD"
		}
		avatar := ""
		if c.AvatarURL != "" {
			avatar = " [portrait]"
		}
		fmt.Fprintf(out, "  %-28s %-30s %-8s %s%s\n", c.ID, c.Name+" ("+title+")", c.Status, c.Origin, avatar)
	}
}
