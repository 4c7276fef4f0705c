package push

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Hub when no client holds the device token.
var ErrNotConnected = errors.New("device not connected")

// ErrDeviceInUse is returned by Hub when another user holds the device token.
var ErrDeviceInUse = errors.New("device token held by another user")

// Message is one push addressed to a single device.
type Message struct {
	Token string            `json:"-"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers a message best-effort. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
