// Package relay implements the relay server: user registration, room
// admission, and authenticated bidirectional message forwarding.
package relay

import (
	"fmt"
	"net/http"

	"github.com/kshaa/racer/internal/ids"
)

// ErrorTag is the stable machine-readable identifier carried in an
// AppError's JSON body, mirroring the original domain::AppError variant
// names.
type ErrorTag string

const (
	TagTicketInvalid            ErrorTag = "TicketInvalid"
	TagNotEnoughPlayers         ErrorTag = "NotEnoughPlayers"
	TagUserAlreadyExists        ErrorTag = "UserAlreadyExists"
	TagUsernameAlreadyExists    ErrorTag = "UsernameAlreadyExists"
	TagNotAlphanumericUsername  ErrorTag = "NotAlphanumericUsername"
	TagTooLongUsername          ErrorTag = "TooLongUsername"
	TagGameAlreadyExists        ErrorTag = "GameAlreadyExists"
	TagGameDoesNotExist         ErrorTag = "GameDoesNotExist"
	TagGameNotReady             ErrorTag = "GameNotReady"
	TagRoomFull                 ErrorTag = "RoomFull"
	TagBadMessage                ErrorTag = "BadMessage"
	TagInternal                  ErrorTag = "Internal"
)

var statusByTag = map[ErrorTag]int{
	TagTicketInvalid:           http.StatusUnauthorized,
	TagNotEnoughPlayers:        http.StatusBadRequest,
	TagUserAlreadyExists:       http.StatusBadRequest,
	TagUsernameAlreadyExists:   http.StatusBadRequest,
	TagNotAlphanumericUsername: http.StatusBadRequest,
	TagTooLongUsername:         http.StatusBadRequest,
	TagGameAlreadyExists:       http.StatusBadRequest,
	TagGameDoesNotExist:        http.StatusBadRequest,
	TagGameNotReady:            http.StatusNotFound,
	TagRoomFull:                http.StatusBadRequest,
	TagBadMessage:              http.StatusBadRequest,
	TagInternal:                http.StatusBadGateway,
}

// AppError is the relay's uniform error type: every domain failure
// carries a stable Tag for machine handling plus a human Message, and
// maps to exactly one HTTP status code.
type AppError struct {
	Tag     ErrorTag
	Message string
}

func (e *AppError) Error() string { return e.Message }

// StatusCode returns the HTTP status assigned to e.Tag.
func (e *AppError) StatusCode() int {
	if code, ok := statusByTag[e.Tag]; ok {
		return code
	}
	return http.StatusBadGateway
}

func newAppError(tag ErrorTag, format string, args ...any) *AppError {
	return &AppError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

func errTicketInvalid() *AppError {
	// Never leak which of (pid, ticket) was wrong.
	return newAppError(TagTicketInvalid, "invalid user ticket, unauthorized")
}

func errNotEnoughPlayers() *AppError {
	return newAppError(TagNotEnoughPlayers, "a room requires at least 2 players")
}

func errUserAlreadyExists(id ids.PlayerId) *AppError {
	return newAppError(TagUserAlreadyExists, "user with id %s already exists", id)
}

func errUsernameAlreadyExists(name string) *AppError {
	return newAppError(TagUsernameAlreadyExists, "user with name '%s' already exists", name)
}

func errNotAlphanumericUsername(name string) *AppError {
	return newAppError(TagNotAlphanumericUsername, "username must be alphanumeric: '%s'", name)
}

func errTooLongUsername(maxLength int, name string) *AppError {
	return newAppError(TagTooLongUsername, "username must be no longer than %d symbols: '%s'", maxLength, name)
}

func errGameAlreadyExists(id ids.RoomId) *AppError {
	return newAppError(TagGameAlreadyExists, "game with id %s already exists", id)
}

func errGameDoesNotExist(id ids.RoomId) *AppError {
	return newAppError(TagGameDoesNotExist, "game with id %s does not exist", id)
}

func errGameNotReady() *AppError {
	return newAppError(TagGameNotReady, "game not started yet")
}

func errRoomFull() *AppError {
	return newAppError(TagRoomFull, "room is already full of players")
}

func errBadMessage(reason string) *AppError {
	return newAppError(TagBadMessage, "unrecognized or bad message received: %s", reason)
}
