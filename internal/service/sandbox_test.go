package service

import (
	"context"
	"testing"

	"ronpa-server/shared/interfaces/mocks"
	"ronpa-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSandboxService(t *testing.T) {
	ctx := context.Background()
	kyoko := models.Character{ID: "k", Name: "Kyoko", UltimateTitle: "Ultimate Detective", Status: models.StatusAlive}
	archive := stubArchive{"k": kyoko}

	t.Run("open greets", func(t *testing.T) {
		s := NewSandboxService(&mocks.MockRoleplayHost{}, archive, zap.NewNop())
		c, history, err := s.Open("k")
		require.NoError(t, err)
		assert.Equal(t, kyoko, c)
		require.Len(t, history, 1)
		assert.Equal(t, "Hey! I'm Kyoko, the Ultimate Detective. What's up?", history[0].Content)
		assert.Equal(t, models.RoleModelMessage, history[0].Role)

		_, _, err = s.Open("nobody")
		assert.ErrorIs(t, err, models.ErrCharacterNotFound)
	})

	t.Run("chat appends both lines", func(t *testing.T) {
		host := &mocks.MockRoleplayHost{}
		history := []models.ChatMessage{Greeting(kyoko)}
		host.On("Roleplay", ctx, kyoko, history, "Who did it?").Return("Let's look at the evidence.", nil).Once()
		s := NewSandboxService(host, archive, zap.NewNop())

		out, err := s.Chat(ctx, "k", history, " Who did it? ")
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, models.ChatMessage{Role: models.RoleUserMessage, Content: "Who did it?"}, out[1])
		assert.Equal(t, models.ChatMessage{Role: models.RoleModelMessage, Content: "Let's look at the evidence."}, out[2])
		host.AssertExpectations(t)
	})

	t.Run("empty reply becomes ellipsis", func(t *testing.T) {
		host := &mocks.MockRoleplayHost{}
		host.On("Roleplay", ctx, kyoko, mock.Anything, "hi").Return("  ", nil).Once()
		out, err := NewSandboxService(host, archive, zap.NewNop()).Chat(ctx, "k", nil, "hi")
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "...", out[1].Content)
	})

	t.Run("errors", func(t *testing.T) {
		host := &mocks.MockRoleplayHost{}
		host.On("Roleplay", ctx, kyoko, mock.Anything, "hi").Return("", models.ErrTransportFailure).Once()
		s := NewSandboxService(host, archive, zap.NewNop())

		_, err := s.Chat(ctx, "k", nil, "   ")
		assert.ErrorIs(t, err, models.ErrInvalidInput)
		_, err = s.Chat(ctx, "nobody", nil, "hi")
		assert.ErrorIs(t, err, models.ErrCharacterNotFound)
		_, err = s.Chat(ctx, "k", nil, "hi")
		assert.ErrorIs(t, err, models.ErrTransportFailure)
	})
}
