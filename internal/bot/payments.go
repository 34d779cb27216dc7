package bot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (h *Handler) cmdBuy(ctx context.Context, in Incoming) {
	h.register(ctx, in.User)

	settings, err := h.quota.Settings(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load settings")
		h.reply(ctx, in.ChatID, "❌ Payments are unavailable right now.")
		return
	}

	invoice := Invoice{
		Title:       invoiceTitle,
		Description: fmt.Sprintf("%d requests per day for %d days", settings.PremiumDailyRequests, settings.PremiumDays),
		Payload:     fmt.Sprintf("%s%d", paymentPrefix, in.User.ID),
		Currency:    currencyStars,
		Label:       invoiceTitle,
		Amount:      settings.SubscriptionPrice,
	}

	if err := h.messenger.SendInvoice(ctx, in.ChatID, invoice); err != nil {
		h.logger.Error().Err(err).Int64("user_id", in.User.ID).Msg("Failed to send invoice")
		h.reply(ctx, in.ChatID, "❌ Payments are unavailable right now.")
	}
}

func validPayment(payload, currency string) bool {
	return strings.HasPrefix(payload, paymentPrefix) && currency == currencyStars
}

func (h *Handler) handlePreCheckout(ctx context.Context, in Incoming) {
	ok := validPayment(in.Payload, in.Currency)
	errorMessage := ""
	if !ok {
		errorMessage = msgPaymentUnknown
		h.logger.Warn().
			Str("payload", in.Payload).
			Str("currency", in.Currency).
			Msg("Pre-checkout rejected")
	}

	if err := h.messenger.AnswerPreCheckout(ctx, in.PreCheckoutID, ok, errorMessage); err != nil {
		h.logger.Error().Err(err).Str("query_id", in.PreCheckoutID).Msg("Failed to answer pre-checkout")
	}
}

func (h *Handler) handlePayment(ctx context.Context, in Incoming) {
	if !validPayment(in.Payload, in.Currency) {
		h.logger.Warn().Str("payload", in.Payload).Msg("Ignoring unknown payment")
		return
	}

	h.register(ctx, in.User)

	sub, err := h.quota.GrantPremium(ctx, in.User.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", in.User.ID).Int("amount", in.TotalAmount).Msg("Failed to grant premium after payment")
		h.reply(ctx, in.ChatID, "❌ Your payment was received but the subscription could not be activated. Please contact the administrator.")
		return
	}

	settings, err := h.quota.Settings(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to load settings")
	}

	h.logger.Info().
		Int64("user_id", in.User.ID).
		Int("amount", in.TotalAmount).
		Str("until", sub.EndDate.Format(time.RFC3339)).
		Msg("Premium granted")
	h.reply(ctx, in.ChatID, paymentMessage(sub, settings))
}
