package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/huntbot/internal/services/quota"
)

func (h *Handler) cmdAdmin(ctx context.Context, in Incoming) {
	h.reply(ctx, in.ChatID, adminPanelMessage())
}

func (h *Handler) cmdStats(ctx context.Context, in Incoming) {
	stats, err := h.quota.Stats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load stats")
		h.reply(ctx, in.ChatID, "❌ Failed to load statistics.")
		return
	}
	settings, err := h.quota.Settings(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load settings")
		h.reply(ctx, in.ChatID, "❌ Failed to load settings.")
		return
	}
	h.reply(ctx, in.ChatID, statsMessage(stats, settings))
}

func (h *Handler) cmdSetFreeRequests(ctx context.Context, in Incoming) {
	h.updateSetting(ctx, in, "/set_free_requests <count>", h.quota.SetFreeLimit,
		"✅ Free plan limit set to %d requests per day.")
}

func (h *Handler) cmdSetPremiumRequests(ctx context.Context, in Incoming) {
	h.updateSetting(ctx, in, "/set_premium_requests <count>", h.quota.SetPremiumLimit,
		"✅ Premium plan limit set to %d requests per day.")
}

func (h *Handler) cmdSetPrice(ctx context.Context, in Incoming) {
	h.updateSetting(ctx, in, "/set_price <price in XTR>", h.quota.SetPrice,
		"✅ Subscription price set to %d XTR.")
}

func (h *Handler) updateSetting(ctx context.Context, in Incoming, usage string, apply func(context.Context, int) error, done string) {
	n, err := strconv.Atoi(strings.TrimSpace(in.Args))
	if err != nil {
		h.reply(ctx, in.ChatID, "Usage: "+usage)
		return
	}

	if err := apply(ctx, n); err != nil {
		if errors.Is(err, quota.ErrInvalidValue) {
			h.reply(ctx, in.ChatID, "❌ The value must be a positive integer.")
			return
		}
		h.logger.Error().Err(err).Str("command", in.Command).Msg("Failed to update settings")
		h.reply(ctx, in.ChatID, "❌ Failed to update settings.")
		return
	}

	h.logger.Info().
		Int64("admin_id", in.User.ID).
		Str("command", in.Command).
		Int("value", n).
		Msg("Settings updated")
	h.reply(ctx, in.ChatID, fmt.Sprintf(done, n))
}

func (h *Handler) cmdBroadcast(ctx context.Context, in Incoming) {
	text := strings.TrimSpace(in.Args)
	if text == "" {
		h.reply(ctx, in.ChatID, "Usage: /broadcast <message>")
		return
	}

	ids, err := h.users.ListUserIDs(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list users for broadcast")
		h.reply(ctx, in.ChatID, "❌ Failed to load the user list.")
		return
	}

	h.logger.Info().Int("recipients", len(ids)).Msg("Broadcast started")

	h.goBackground("bot.broadcast", func() {
		message := broadcastMessage(text)
		sent, failed := 0, 0
		for _, id := range ids {
			if err := h.limiter.Wait(ctx); err != nil {
				h.logger.Warn().Err(err).Msg("Broadcast interrupted")
				failed += len(ids) - sent - failed
				break
			}
			if _, err := h.messenger.SendText(ctx, id, message); err != nil {
				h.logger.Warn().Err(err).Int64("user_id", id).Msg("Broadcast delivery failed")
				failed++
				continue
			}
			sent++
		}

		h.logger.Info().Int("sent", sent).Int("failed", failed).Msg("Broadcast finished")
		h.reply(ctx, in.ChatID, broadcastSummary(sent, failed))
	})
}

func (h *Handler) cmdChangePassword(ctx context.Context, in Incoming) {
	h.conversations.StartPasswordChange(in.User.ID)
	h.reply(ctx, in.ChatID, passwordPrompt(h.options.MinPasswordLength, h.options.MaxPasswordLength))
}
