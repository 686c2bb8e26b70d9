package mocks

import (
	"context"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"github.com/stretchr/testify/mock"
)

// MockNarrationHost is a mock type for the NarrationHost type
type MockNarrationHost struct {
	mock.Mock
}

// StreamNarration provides a mock function with given fields: ctx, state, userInput, onChunk
func (_m *MockNarrationHost) StreamNarration(ctx context.Context, state *models.GameState, userInput string, onChunk func(string)) (string, error) {
	ret := _m.Called(ctx, state, userInput, onChunk)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, *models.GameState, string, func(string)) string); ok {
		r0 = rf(ctx, state, userInput, onChunk)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, *models.GameState, string, func(string)) error); ok {
		r1 = rf(ctx, state, userInput, onChunk)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// MockRoleplayHost is a mock type for the RoleplayHost type
type MockRoleplayHost struct {
	mock.Mock
}

// Roleplay provides a mock function with given fields: ctx, character, history, userInput
func (_m *MockRoleplayHost) Roleplay(ctx context.Context, character models.Character, history []models.ChatMessage, userInput string) (string, error) {
	ret := _m.Called(ctx, character, history, userInput)
	return ret.String(0), ret.Error(1)
}

// MockAvatarGenerator is a mock type for the AvatarGenerator type
type MockAvatarGenerator struct {
	mock.Mock
}

// GenerateAvatar provides a mock function with given fields: ctx, character
func (_m *MockAvatarGenerator) GenerateAvatar(ctx context.Context, character models.Character) (string, error) {
	ret := _m.Called(ctx, character)
	return ret.String(0), ret.Error(1)
}

var (
	_ interfaces.NarrationHost   = (*MockNarrationHost)(nil)
	_ interfaces.RoleplayHost    = (*MockRoleplayHost)(nil)
	_ interfaces.AvatarGenerator = (*MockAvatarGenerator)(nil)
)
