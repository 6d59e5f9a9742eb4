package transport

import "context"

// Message is one inbound chat message, normalized away from the
// platform-specific update shape.
type Message struct {
	ID        int
	ChatID    int64
	FromID    int64
	FirstName string
	Username  string
	Text      string
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the chat transport boundary. The rest of the system only ever
// sends text and consumes inbound messages; everything else the platform
// offers stays behind this interface.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
