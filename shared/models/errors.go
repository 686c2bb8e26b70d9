package models

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Common Resource/Storage Errors
	ErrNotFound     = errors.New("resource not found") // General not found
	ErrCorruptState = errors.New("persisted state is corrupt")

	// Game & Cast Errors
	ErrGameNotFound      = errors.New("game not found")
	ErrCharacterNotFound = errors.New("character not found")
	ErrTurnInProgress    = errors.New("a narration turn is already in progress")
	ErrSessionClosed     = errors.New("game session is closed")

	// Narration Errors
	ErrMalformedPayload = errors.New("structured cast update is malformed")
	ErrTransportFailure = errors.New("narration transport failed")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)

// CorruptStateError описывает запись хранилища, не прошедшую проверку схемы.
// errors.Is(err, ErrCorruptState) возвращает true.
type CorruptStateError struct {
	Key string // Ключ хранилища
	Err error  // Исходная причина (ошибка JSON или схемы)
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state at key %q: %v", e.Key, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func (e *CorruptStateError) Is(target error) bool {
	return target == ErrCorruptState
}
