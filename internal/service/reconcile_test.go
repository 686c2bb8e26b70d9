package service

import (
	"testing"

	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCastReconciler_Reconcile(t *testing.T) {
	r := NewCastReconciler(zap.NewNop())

	t.Run("id from update, avatar kept", func(t *testing.T) {
		prev := []models.Character{{ID: "c1", Name: "Ann", AvatarURL: "a.png", Status: models.StatusAlive}}
		incoming := []models.Character{{Name: "Ann", ID: "x9"}}

		got := r.Reconcile(prev, incoming)

		require.Len(t, got, 1)
		assert.Equal(t, "x9", got[0].ID)
		assert.Equal(t, "Ann", got[0].Name)
		assert.Equal(t, "a.png", got[0].AvatarURL)
		assert.Equal(t, models.StatusAlive, got[0].Status)
	})

	t.Run("new avatar wins", func(t *testing.T) {
		prev := []models.Character{{ID: "c1", Name: "Ann", AvatarURL: "a.png"}}
		got := r.Reconcile(prev, []models.Character{{Name: "Ann", AvatarURL: "b.png"}})
		require.Len(t, got, 1)
		assert.Equal(t, "b.png", got[0].AvatarURL)
		assert.Equal(t, "c1", got[0].ID)
	})

	t.Run("dead never comes back", func(t *testing.T) {
		prev := []models.Character{{ID: "c1", Name: "Ann", Status: models.StatusDead}}
		got := r.Reconcile(prev, []models.Character{{Name: "Ann", Status: models.StatusAlive}})
		require.Len(t, got, 1)
		assert.Equal(t, models.StatusDead, got[0].Status)
	})

	t.Run("missing characters leave, new ones get ids", func(t *testing.T) {
		prev := []models.Character{
			{ID: "c1", Name: "Ann", Status: models.StatusAlive},
			{ID: "c2", Name: "Bob", Status: models.StatusAlive},
		}
		got := r.Reconcile(prev, []models.Character{{Name: "Cid"}, {Name: "Ann"}})

		require.Len(t, got, 2)
		assert.Equal(t, "Cid", got[0].Name)
		assert.Equal(t, CharacterIDForName("Cid"), got[0].ID)
		assert.Equal(t, models.StatusAlive, got[0].Status)
		assert.NotNil(t, got[0].Traits)
		assert.Equal(t, "c1", got[1].ID)
	})

	t.Run("empty update keeps cast", func(t *testing.T) {
		prev := []models.Character{{ID: "c1", Name: "Ann"}}
		assert.Equal(t, prev, r.Reconcile(prev, nil))
		assert.Equal(t, prev, r.Reconcile(prev, []models.Character{}))
	})

	t.Run("first duplicate wins", func(t *testing.T) {
		got := r.Reconcile(nil, []models.Character{
			{Name: "Ann", UltimateTitle: "Ultimate Archer"},
			{Name: "Ann", UltimateTitle: "Ultimate Baker"},
		})
		require.Len(t, got, 1)
		assert.Equal(t, "Ultimate Archer", got[0].UltimateTitle)
	})

	t.Run("history stripped and player flag kept", func(t *testing.T) {
		prev := []models.Character{{ID: "p", Name: "Me", IsPlayer: true}}
		incoming := []models.Character{{Name: "Me", History: []models.MatchHistory{{GameTitle: "g", Outcome: models.OutcomeSurvivor}}}}
		got := r.Reconcile(prev, incoming)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].History)
		assert.True(t, got[0].IsPlayer)
	})
}

func TestCastReconciler_Idempotent(t *testing.T) {
	r := NewCastReconciler(zap.NewNop())
	prev := []models.Character{
		{ID: "c1", Name: "Ann", AvatarURL: "a.png", Status: models.StatusAlive},
		{ID: "c2", Name: "Bob", Status: models.StatusDead},
	}
	incoming := []models.Character{
		{Name: "Ann", UltimateTitle: "Ultimate Archer"},
		{Name: "Bob", Status: models.StatusAlive},
		{Name: "Dee"},
	}

	first := r.Reconcile(prev, incoming)
	second := r.Reconcile(prev, incoming)
	assert.Equal(t, first, second)

	// Повторное применение к результату тоже ничего не меняет.
	assert.Equal(t, first, r.Reconcile(first, incoming))
}

func TestCharacterIDForName(t *testing.T) {
	assert.Equal(t, CharacterIDForName("Ann"), CharacterIDForName(" Ann "))
	assert.NotEqual(t, CharacterIDForName("Ann"), CharacterIDForName("Bob"))
	assert.Contains(t, CharacterIDForName("Ann"), "char-")
}
