package channel

import "errors"

var (
	// ErrChannelFull is returned by Send when the target channel already holds
	// its full capacity of live messages. This is a backpressure signal, not a
	// failure of the layer; the producer decides whether to retry, drop, or back off.
	ErrChannelFull = errors.New("channel at capacity")

	// ErrInvalidChannelName is returned when a channel name is empty, too long,
	// or contains disallowed characters.
	ErrInvalidChannelName = errors.New("invalid channel name")

	// ErrInvalidGroupName is returned when a group name is empty or contains
	// disallowed characters.
	ErrInvalidGroupName = errors.New("invalid group name")

	// ErrInvalidCapacity is returned at construction time for capacities below 1.
	ErrInvalidCapacity = errors.New("capacity must be at least 1")

	// ErrInvalidExpiry is returned at construction time for a non-positive
	// default expiry.
	ErrInvalidExpiry = errors.New("expiry must be positive")

	// ErrReservedMessageKey is returned by Send when the message payload uses
	// the reserved delivery-channel key.
	ErrReservedMessageKey = errors.New("message uses reserved key")

	// ErrNotSerializable is returned by Send when the message payload cannot be
	// serialized. Serializability is a contract with out-of-process backends,
	// enforced here so portability bugs surface early.
	ErrNotSerializable = errors.New("message is not serializable")
)
