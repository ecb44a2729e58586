package errs

import "errors"

// Sentinel errors mapped to HTTP codes in the REST handlers and to
// per-connection error-queue messages in the WebSocket handler.
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrMessageNotFound      = errors.New("chat message not found")
	ErrPlaylistItemNotFound = errors.New("playlist item not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrRateLimited          = errors.New("chat rate limit exceeded")
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
)
