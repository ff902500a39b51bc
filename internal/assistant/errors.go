// Package assistant implements the parts-matching assistant: query interpretation,
// symptom mapping, compatibility validation, recommendations and the conversation lifecycle.
package assistant

import (
	"errors"

	"github.com/machineparts/parts-assistant/internal/storage"
)

// Error taxonomy shared by every service in this package.
var (
	ErrNotFound           = storage.ErrNotFound
	ErrStorageUnavailable = storage.ErrUnavailable
	ErrConflict           = storage.ErrConflict
	ErrInvalidState       = errors.New("invalid state transition")
	ErrInvalidInput       = errors.New("invalid input")
)
