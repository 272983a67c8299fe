package usecase

import (
	"marketlink/internal/domain/entity"
	"marketlink/internal/infrastructure/channel"
)

// Channel is the push-channel surface the usecases drive. Implemented by
// *channel.Manager; tests substitute fakes.
type Channel interface {
	Connect()
	Disconnect()
	Connected() bool
	Status() channel.Status
	Send(frame []byte) error
}

// ChannelFactory opens a push channel for one scope: the empty scope is the
// list-level channel covering all threads, a thread ID scopes the channel to
// that conversation. The factory binds the endpoint URL, token and reconnect
// policy; callbacks are supplied per call site.
type ChannelFactory func(scope string, onEvent func(entity.Event), onStatus func(channel.Status)) Channel
