package bot

import (
	"context"

	"github.com/ternarybob/huntbot/internal/models"
)

// maxMessageLength is kept under Telegram's 4096 limit
const maxMessageLength = 4000

// IncomingKind classifies a normalized update
type IncomingKind string

const (
	IncomingMessage     IncomingKind = "message"
	IncomingPreCheckout IncomingKind = "pre_checkout"
	IncomingPayment     IncomingKind = "payment"
)

// Incoming is one update from the chat transport, reduced to what the handler needs
type Incoming struct {
	Kind      IncomingKind
	ChatID    int64
	MessageID int
	User      models.User
	Text      string
	Command   string // Without the leading slash; empty for free text
	Args      string

	// Payment fields
	PreCheckoutID string
	Payload       string
	Currency      string
	TotalAmount   int
}

// Invoice is a single-price payment request
type Invoice struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	Label       string
	Amount      int
}

// Messenger sends messages through the chat transport
type Messenger interface {
	// SendText sends a plain message and returns its message ID
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	// SendLink sends a message with a single URL button
	SendLink(ctx context.Context, chatID int64, text, label, url string) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendInvoice(ctx context.Context, chatID int64, invoice Invoice) error
	AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// truncateMessage shortens text that would exceed the transport limit
func truncateMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return text
	}
	const notice = "\n\n... (truncated)"
	return string(runes[:maxMessageLength-len([]rune(notice))]) + notice
}
