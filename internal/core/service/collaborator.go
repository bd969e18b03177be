package service

import (
	"context"
	"time"
)

// Recipient identifies the chat user a key is issued to.
type Recipient struct {
	ID          string
	DisplayName string
}

// Courier delivers an issued key to its recipient, typically by direct
// message. A returned error makes the issuing operation roll back.
type Courier interface {
	Deliver(ctx context.Context, recipient Recipient, keyID string) error
}

// ChannelGateway is the chat-platform side of a ticket channel.
type ChannelGateway interface {
	// HasParticipantMessages reports whether any non-bot, non-administrative
	// message was posted in the channel since the given instant.
	HasParticipantMessages(ctx context.Context, channelID string, since time.Time) (bool, error)

	// PostNotice posts a system notice into the channel.
	PostNotice(ctx context.Context, channelID, text string) error

	// DeleteChannel removes the channel.
	DeleteChannel(ctx context.Context, channelID string) error
}

// CourierFunc adapts a function to Courier.
type CourierFunc func(ctx context.Context, recipient Recipient, keyID string) error

// Deliver calls f.
func (f CourierFunc) Deliver(ctx context.Context, recipient Recipient, keyID string) error {
	return f(ctx, recipient, keyID)
}
