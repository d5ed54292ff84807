// Package transport defines the messaging surface the bot core consumes.
// The Max adapter in internal/bot implements Sender and produces Events;
// tests substitute fakes.
package transport

import "context"

type EventKind int

const (
	KindCommand EventKind = iota
	KindText
	KindButton
)

// Event is one inbound interaction, already resolved to a user and chat.
type Event struct {
	UserID    string
	ChatID    int64
	FirstName string
	Username  string
	Kind      EventKind
	// Text carries the message text for commands and plain text,
	// Payload the callback payload for button presses.
	Text    string
	Payload string
	// MessageSeq references the message the button belonged to, when the
	// transport supports editing it. Zero means no editable reference.
	MessageSeq int64
}

// Button is one inline callback button.
type Button struct {
	Label   string
	Payload string
}

// Sender delivers outbound messages. Buttons are rows of inline buttons and
// may be nil.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) error
	EditMessage(ctx context.Context, messageSeq int64, text string) error
}
