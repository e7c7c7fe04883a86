package delay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/channelkit/core/channel"
)

// Intake message keys. A delay request carries the target channel, the
// content to redeliver, and a one-shot delay and/or a repeat interval in
// seconds.
const (
	KeyChannel  = "channel"
	KeyContent  = "content"
	KeyDelay    = "delay"
	KeyInterval = "interval"
)

// DelayedMessage is a persisted record of a message to be redelivered later.
// One-shot messages (Interval == 0) are deleted after firing; repeating ones
// are rescheduled to LastSentAt + Interval instead.
type DelayedMessage struct {
	ID         uuid.UUID       `json:"id"`
	Channel    string          `json:"channel"`
	Content    json.RawMessage `json:"content"`
	DueAt      time.Time       `json:"due_at"`
	Interval   time.Duration   `json:"interval,omitempty"`
	LastSentAt *time.Time      `json:"last_sent_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Due reports whether the message should fire.
func (m *DelayedMessage) Due(now time.Time) bool {
	return !m.DueAt.After(now)
}

// NextDue returns the next firing time after a send at sentAt, and whether
// the message repeats at all.
func (m *DelayedMessage) NextDue(sentAt time.Time) (time.Time, bool) {
	if m.Interval <= 0 {
		return time.Time{}, false
	}
	return sentAt.Add(m.Interval), true
}

// NewRequestMessage builds a valid intake payload for the dispatcher's intake
// channel. Either delay or interval must be positive; an interval alone
// schedules the first firing one interval from receipt.
func NewRequestMessage(targetChannel string, content channel.Message, delay, interval time.Duration) channel.Message {
	msg := channel.Message{
		KeyChannel: targetChannel,
		KeyContent: map[string]any(content),
	}
	if delay > 0 {
		msg[KeyDelay] = delay.Seconds()
	}
	if interval > 0 {
		msg[KeyInterval] = interval.Seconds()
	}
	return msg
}

// parseRequest turns an intake message into a DelayedMessage. The request
// must name a target channel, carry a mapping content, and set a positive
// delay and/or interval.
func parseRequest(msg channel.Message, now time.Time) (*DelayedMessage, error) {
	target, ok := msg[KeyChannel].(string)
	if !ok || target == "" {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidRequest, KeyChannel)
	}

	rawContent, ok := msg[KeyContent]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidRequest, KeyContent)
	}
	content, err := json.Marshal(rawContent)
	if err != nil {
		return nil, fmt.Errorf("%w: content not serializable: %v", ErrInvalidRequest, err)
	}

	delaySec, delayOK, err := secondsField(msg, KeyDelay)
	if err != nil {
		return nil, err
	}
	intervalSec, intervalOK, err := secondsField(msg, KeyInterval)
	if err != nil {
		return nil, err
	}
	if !delayOK && !intervalOK {
		return nil, fmt.Errorf("%w: requires %q and/or %q", ErrInvalidRequest, KeyDelay, KeyInterval)
	}

	m := &DelayedMessage{
		ID:        uuid.New(),
		Channel:   target,
		Content:   content,
		CreatedAt: now,
	}
	if intervalOK {
		m.Interval = time.Duration(intervalSec * float64(time.Second))
	}
	switch {
	case delayOK:
		m.DueAt = now.Add(time.Duration(delaySec * float64(time.Second)))
	default:
		m.DueAt = now.Add(m.Interval)
	}
	return m, nil
}

// secondsField reads an optional numeric seconds value from a decoded
// message, where JSON numbers arrive as float64.
func secondsField(msg channel.Message, key string) (float64, bool, error) {
	raw, ok := msg[key]
	if !ok {
		return 0, false, nil
	}
	seconds, ok := raw.(float64)
	if !ok {
		return 0, false, fmt.Errorf("%w: %q must be a number of seconds", ErrInvalidRequest, key)
	}
	if seconds <= 0 {
		return 0, false, fmt.Errorf("%w: %q must be positive", ErrInvalidRequest, key)
	}
	return seconds, true, nil
}
