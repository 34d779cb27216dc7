package bot

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/pdf"
)

const (
	reportFileName = "videohunt_results.pdf"
	jsonFileName   = "results.json"
)

// deliver sends an outcome to the chat, then deletes the processing notice and the
// outcome's artifacts whatever happened
func (h *Handler) deliver(ctx context.Context, chatID int64, noticeID int, task models.AutomationTask, outcome models.Outcome, err error) {
	logger := h.logger.WithCorrelationId(task.ID)

	defer func() {
		if noticeID != 0 {
			if err := h.messenger.DeleteMessage(ctx, chatID, noticeID); err != nil {
				logger.Debug().Err(err).Msg("Failed to delete processing notice")
			}
		}
		if err := outcome.Cleanup(); err != nil {
			logger.Warn().Err(err).Str("dir", outcome.ArtifactDir).Msg("Failed to remove artifacts")
		}
	}()

	if err != nil {
		logger.Error().Err(err).Msg("Task ended without an outcome")
		h.reply(ctx, chatID, DispatchErrorMessage(err))
		return
	}

	h.reply(ctx, chatID, StatusMessage(outcome))

	if outcome.Kind == models.OutcomeAuthFailure {
		h.notifyAdmins(ctx, msgAuthAlert)
	}
	if !outcome.Succeeded() {
		return
	}

	if outcome.ResultsURL != "" {
		if err := h.messenger.SendLink(ctx, chatID, msgResultsLinkText, msgResultsLinkLabel, outcome.ResultsURL); err != nil {
			logger.Warn().Err(err).Msg("Failed to send results link")
			h.reply(ctx, chatID, msgResultsLinkText+"\n"+outcome.ResultsURL)
		}
	}

	h.reply(ctx, chatID, itemSummary(outcome.Items))

	photos := h.sendRowScreenshots(ctx, chatID, outcome.Items)
	if photos == 0 && outcome.FullPageScreenshot != "" {
		if err := h.messenger.SendPhoto(ctx, chatID, outcome.FullPageScreenshot, msgFullPageCaption); err != nil {
			logger.Warn().Err(err).Msg("Failed to send full page screenshot")
		}
	}

	if h.options.SendReport && h.reports != nil {
		data, err := h.reports.RenderReport(task, outcome)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to render report")
		} else if err := h.messenger.SendDocument(ctx, chatID, reportFileName, data, msgReportCaption); err != nil {
			logger.Warn().Err(err).Msg("Failed to send report")
		}
	}

	if h.options.SendJSON {
		data, err := json.MarshalIndent(outcome.Items, "", "  ")
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to encode results")
		} else if err := h.messenger.SendDocument(ctx, chatID, jsonFileName, data, msgJSONCaption); err != nil {
			logger.Warn().Err(err).Msg("Failed to send results data")
		}
	}

	logger.Info().
		Int("items", len(outcome.Items)).
		Int("photos", photos).
		Dur("duration", outcome.Duration).
		Msg("Results delivered")
}

// sendRowScreenshots sends up to MaxPhotos captioned row screenshots and returns how many were sent
func (h *Handler) sendRowScreenshots(ctx context.Context, chatID int64, items []models.ResultItem) int {
	sent := 0
	for _, item := range items {
		if h.options.MaxPhotos > 0 && sent >= h.options.MaxPhotos {
			break
		}
		if !item.HasScreenshot() {
			continue
		}
		if err := h.messenger.SendPhoto(ctx, chatID, item.Screenshot, pdf.Caption(item)); err != nil {
			h.logger.Warn().Err(err).Str("index", item.Index).Msg("Failed to send row screenshot")
			continue
		}
		sent++
	}
	return sent
}

func (h *Handler) notifyAdmins(ctx context.Context, text string) {
	for id := range h.admins {
		if _, err := h.messenger.SendText(ctx, id, text); err != nil {
			h.logger.Warn().Err(err).Int64("admin_id", id).Msg("Failed to notify admin")
		}
	}
}
