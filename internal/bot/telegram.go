package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/models"
)

// TelegramMessenger implements Messenger over the Telegram Bot API
type TelegramMessenger struct {
	api           *tgbotapi.BotAPI
	providerToken string
	pollTimeout   int
	logger        arbor.ILogger
}

var _ Messenger = (*TelegramMessenger)(nil)

// NewTelegramMessenger connects to the Bot API and verifies the token
func NewTelegramMessenger(config common.TelegramConfig, logger arbor.ILogger) (*TelegramMessenger, error) {
	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = config.Debug

	logger.Info().Str("bot", api.Self.UserName).Msg("Authorized on Telegram")

	return &TelegramMessenger{
		api:           api,
		providerToken: config.PaymentProviderToken,
		pollTimeout:   config.PollTimeout,
		logger:        logger,
	}, nil
}

// Updates long-polls the Bot API and emits normalized updates until ctx ends
func (m *TelegramMessenger) Updates(ctx context.Context) <-chan Incoming {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = m.pollTimeout
	raw := m.api.GetUpdatesChan(u)

	out := make(chan Incoming)
	common.SafeGo(m.logger, "telegram.updates", func() {
		defer close(out)
		defer m.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-raw:
				if !ok {
					return
				}
				in, ok := normalizeUpdate(update)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return out
}

// normalizeUpdate maps a Bot API update to Incoming; false for updates the bot ignores
func normalizeUpdate(update tgbotapi.Update) (Incoming, bool) {
	if q := update.PreCheckoutQuery; q != nil {
		in := Incoming{
			Kind:          IncomingPreCheckout,
			PreCheckoutID: q.ID,
			Payload:       q.InvoicePayload,
			Currency:      q.Currency,
			TotalAmount:   q.TotalAmount,
		}
		if q.From != nil {
			in.User = toUser(q.From)
			in.ChatID = q.From.ID
		}
		return in, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return Incoming{}, false
	}

	in := Incoming{
		Kind:      IncomingMessage,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		User:      toUser(msg.From),
		Text:      msg.Text,
	}

	if p := msg.SuccessfulPayment; p != nil {
		in.Kind = IncomingPayment
		in.Payload = p.InvoicePayload
		in.Currency = p.Currency
		in.TotalAmount = p.TotalAmount
		return in, true
	}

	if msg.IsCommand() {
		in.Command = msg.Command()
		in.Args = msg.CommandArguments()
	}
	return in, msg.Text != ""
}

func toUser(u *tgbotapi.User) models.User {
	return models.User{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// SendText sends a plain message
func (m *TelegramMessenger) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sent, err := m.api.Send(tgbotapi.NewMessage(chatID, truncateMessage(text)))
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendLink sends a message with one inline URL button
func (m *TelegramMessenger) SendLink(ctx context.Context, chatID int64, text, label, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, truncateMessage(text))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, url)),
	)
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send link: %w", err)
	}
	return nil
}

// SendPhoto uploads an image file
func (m *TelegramMessenger) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := m.api.Send(photo); err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	return nil
}

// SendDocument uploads an in-memory file
func (m *TelegramMessenger) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if _, err := m.api.Send(doc); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

// DeleteMessage removes a message the bot sent earlier
func (m *TelegramMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SendInvoice sends a payment request. An empty provider token selects Telegram Stars.
func (m *TelegramMessenger) SendInvoice(ctx context.Context, chatID int64, invoice Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewInvoice(chatID, invoice.Title, invoice.Description, invoice.Payload,
		m.providerToken, "premium_subscription", invoice.Currency,
		[]tgbotapi.LabeledPrice{{Label: invoice.Label, Amount: invoice.Amount}})
	// The API rejects a null tip list
	cfg.SuggestedTipAmounts = []int{}
	if _, err := m.api.Send(cfg); err != nil {
		return fmt.Errorf("failed to send invoice: %w", err)
	}
	return nil
}

// AnswerPreCheckout approves or rejects a pending payment
func (m *TelegramMessenger) AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
		ErrorMessage:       errorMessage,
	}
	if _, err := m.api.Request(answer); err != nil {
		return fmt.Errorf("failed to answer pre-checkout: %w", err)
	}
	return nil
}
