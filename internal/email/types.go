package email

import (
	"context"
	"time"
)

// RawMessage is what the pipeline consumes from a mailbox: subject, body
// text, timestamps and addressing. Body is plain text; HTML parts are
// converted before the message leaves this package.
type RawMessage struct {
	Mailbox   string
	UID       uint32
	MessageID string
	From      string
	Recipient string
	Subject   string
	Body      string
	Date      time.Time
}

// Client is the narrow mailbox contract the cycle driver depends on.
type Client interface {
	// FetchUnseenSince returns unseen messages received after the cutoff.
	FetchUnseenSince(ctx context.Context, since time.Time) ([]RawMessage, error)

	// MarkSeen flags the given messages as seen on the server.
	MarkSeen(ctx context.Context, uids []uint32) error

	// Mailbox identifies the account this client polls.
	Mailbox() string

	// Close releases the connection.
	Close() error
}
