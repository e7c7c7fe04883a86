package delay

import "errors"

var (
	// ErrStorageNil is returned when a dispatcher is constructed without storage.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrLayerNil is returned when a dispatcher is constructed without a channel layer.
	ErrLayerNil = errors.New("channel layer cannot be nil")

	// ErrMessageNotFound is returned by storage operations targeting an unknown message ID.
	ErrMessageNotFound = errors.New("delayed message not found")

	// ErrInvalidRequest is returned when an intake message is missing required
	// fields or carries values of the wrong type.
	ErrInvalidRequest = errors.New("invalid delay request")
)
