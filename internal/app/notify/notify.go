// Package notify defines the user-facing notification sink.
package notify

import (
	zlog "github.com/rs/zerolog/log"
)

// Notification is a one-shot user-facing message.
type Notification struct {
	Title  string
	Body   string
	Author string
	Image  string // Optional image reference
}

// Sink receives notifications. Delivery is fire-and-forget; implementations
// log failures instead of returning them.
type Sink interface {
	Emit(n Notification)
}

// LogSink writes notifications to the structured log. The surrounding
// application replaces it with a platform notification bridge.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(n Notification) {
	zlog.Info().
		Str("title", n.Title).
		Str("author", n.Author).
		Msg(n.Body)
}
