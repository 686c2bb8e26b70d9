package models

// GamePhase - фаза сюжетной арки игры.
type GamePhase string

const (
	PhaseSetup         GamePhase = "SETUP"
	PhaseIntroduction  GamePhase = "INTRODUCTION"
	PhaseDailyLife     GamePhase = "DAILY_LIFE"
	PhaseIncident      GamePhase = "INCIDENT"
	PhaseInvestigation GamePhase = "INVESTIGATION"
	PhaseTrial         GamePhase = "TRIAL"
	PhaseResolution    GamePhase = "RESOLUTION"
	PhaseEndgame       GamePhase = "ENDGAME"
)

// phaseOrder is the narrative arc order; index doubles as rank.
var phaseOrder = []GamePhase{
	PhaseSetup,
	PhaseIntroduction,
	PhaseDailyLife,
	PhaseIncident,
	PhaseInvestigation,
	PhaseTrial,
	PhaseResolution,
	PhaseEndgame,
}

// Rank returns the position of the phase in the arc, or -1 for unknown values.
func (p GamePhase) Rank() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p GamePhase) Valid() bool {
	return p.Rank() >= 0
}

// AllPhases returns the arc in order.
func AllPhases() []GamePhase {
	return append([]GamePhase(nil), phaseOrder...)
}

// GameMode - режим участия пользователя.
type GameMode string

const (
	ModeWatch       GameMode = "WATCH"
	ModeParticipate GameMode = "PARTICIPATE"
)

// MessageRole - автор реплики в транскрипте.
type MessageRole string

const (
	RoleUserMessage  MessageRole = "user"
	RoleModelMessage MessageRole = "model"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp,omitempty"` // unix ms, необязательное поле
}

// Evidence is part of the persisted contract; narration logic does not use it yet.
type Evidence struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GameState - одно прохождение (playthrough).
type GameState struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	IsLocked     bool          `json:"isLocked"`
	Phase        GamePhase     `json:"phase"`
	Mode         GameMode      `json:"mode"`
	Theme        string        `json:"theme"`
	HostName     string        `json:"hostName"`
	Restrictions string        `json:"restrictions"`
	Characters   []Character   `json:"characters"` // Живой каст, 16 по задумке, не проверяется
	Evidence     []Evidence    `json:"evidence"`
	Messages     []ChatMessage `json:"messages"` // Только добавление, без правок и удалений
	TurnCount    int           `json:"turnCount"`
}

// Clone returns a deep copy of the state. Snapshots handed to views and
// storage are always clones so the live state is never aliased.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	out.Characters = CloneCast(g.Characters)
	if g.Evidence != nil {
		out.Evidence = append([]Evidence(nil), g.Evidence...)
	}
	if g.Messages != nil {
		out.Messages = append([]ChatMessage(nil), g.Messages...)
	}
	return &out
}

// LastMessage returns the newest transcript entry.
func (g *GameState) LastMessage() (ChatMessage, bool) {
	if g == nil || len(g.Messages) == 0 {
		return ChatMessage{}, false
	}
	return g.Messages[len(g.Messages)-1], true
}

// FindCharacter looks a live cast member up by id.
func (g *GameState) FindCharacter(id string) (Character, bool) {
	for _, c := range g.Characters {
		if c.ID == id {
			return c, true
		}
	}
	return Character{}, false
}

// SaveSlot is one entry of the slot map, keyed by GameState.ID.
type SaveSlot struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	LastPlayed int64      `json:"lastPlayed"` // unix ms
	State      *GameState `json:"state"`
}
