package channel

import (
	"encoding/json"
	"fmt"
)

// DeliveryChannelKey is reserved for backend-internal routing metadata and must
// not appear in user payloads. Out-of-process backends stamp the concrete
// delivery channel into the serialized message under this key.
const DeliveryChannelKey = "__channel__"

// Message is an opaque mapping of string keys to serializable values. The layer
// serializes every message on Send and deserializes on Receive, so a message
// read from a channel never shares memory with the one that was sent.
type Message map[string]any

// encodeMessage validates and serializes a message for enqueueing.
func encodeMessage(msg Message) ([]byte, error) {
	if _, ok := msg[DeliveryChannelKey]; ok {
		return nil, fmt.Errorf("%w: %q", ErrReservedMessageKey, DeliveryChannelKey)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return data, nil
}

// decodeMessage restores a message from its queued form.
func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode queued message: %w", err)
	}
	return msg, nil
}
