package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/dispatch"
	"github.com/ternarybob/huntbot/internal/services/pdf"
)

const (
	msgNoAccess          = "❌ You do not have access to this command."
	msgAskVideoURL       = "Send a YouTube video link:"
	msgURLAccepted       = "✅ Link accepted. Now send your search prompt:"
	msgURLRejected       = "❌ Please send a valid YouTube link."
	msgProcessing        = "🔄 Processing the video, please wait..."
	msgTaskInProgress    = "⏳ Your previous request is still being processed. Please wait for it to finish or use /cancel."
	msgQueueFull         = "⏳ The bot is busy right now. Please try again in a few minutes."
	msgShuttingDown      = "⚠️ The bot is restarting. Please try again shortly."
	msgUseCommands       = "Use /video to analyse a video or /start to see available commands."
	msgUnknownCommand    = "Unknown command. Use /start to see available commands."
	msgFlowReset         = "Current step cancelled."
	msgCancelled         = "✅ Cancelled."
	msgNothingToCancel   = "Nothing to cancel."
	msgRotationStarting  = "🔄 Starting the password change..."
	msgCodeSent          = "✅ A verification code was sent. Please enter the code from the email:"
	msgPasswordChanged   = "✅ Password changed successfully!"
	msgRotationAuthError = "❌ Could not log in to the videohunt.ai account."
	msgRotationFailed    = "❌ The password change failed."
	msgCodeRejected      = "❌ The verification code was not accepted. Start again with /change_password."
	msgNoRotation        = "❌ No password change is in progress. Start again with /change_password."
	msgRotationBusy      = "❌ Another password change is already in progress."
	msgPaymentUnknown    = "Unknown payment."
	msgAuthAlert         = "⚠️ Login to the videohunt.ai account failed during a user request. Check the account credentials and site selectors."
	msgResultsLinkText   = "Your results link is ready!"
	msgResultsLinkLabel  = "🔗 Open results"
	msgFullPageCaption   = "Full results page"
	msgReportCaption     = "Results report"
	msgJSONCaption       = "Results data"
)

// StatusMessage maps an outcome to the one short message the user sees
func StatusMessage(outcome models.Outcome) string {
	switch outcome.Kind {
	case models.OutcomeSuccess:
		return fmt.Sprintf("✅ Video analysis complete! Found %d %s.", len(outcome.Items), plural(len(outcome.Items), "match", "matches"))
	case models.OutcomeNoResults:
		return "🔍 Nothing in this video matched your prompt. Try rephrasing it."
	case models.OutcomeAuthFailure:
		return "❌ The analysis service is unavailable right now. The administrator has been notified."
	case models.OutcomeExtractionTimeout:
		return "⌛ The analysis took too long. Please try again later."
	case models.OutcomeTransientError:
		switch outcome.Reason {
		case models.ReasonCancelled:
			return "✅ Processing cancelled."
		case models.ReasonLaunch:
			return "❌ Failed to process the video. Please try again later."
		}
		return "❌ Failed to process the video. Please try again."
	}
	return "❌ Failed to process the video."
}

// DispatchErrorMessage maps a boundary-level failure to a user message
func DispatchErrorMessage(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrTaskInProgress):
		return msgTaskInProgress
	case errors.Is(err, dispatch.ErrQueueFull):
		return msgQueueFull
	case errors.Is(err, dispatch.ErrDispatcherClosed):
		return msgShuttingDown
	case errors.Is(err, dispatch.ErrInvalidTask):
		return msgURLRejected
	}
	return "❌ An error occurred while processing the video."
}

func welcomeMessage(user models.User, quota models.QuotaStatus, admin bool) string {
	var b strings.Builder
	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	fmt.Fprintf(&b, "Hi, %s! I analyse videos for you.\n\n", name)
	fmt.Fprintf(&b, "Your plan: %s\n", quota.Plan.DisplayName())
	fmt.Fprintf(&b, "Requests per day: %d (used today: %d)\n\n", quota.Limit, quota.Used)
	b.WriteString("Available commands:\n")
	b.WriteString("/video [link] [prompt] - Analyse a video\n")
	b.WriteString("/cancel - Cancel the current request\n")
	b.WriteString("/buy - Buy a premium subscription\n")
	if admin {
		b.WriteString("\nAdmin commands:\n/admin - Admin panel")
	}
	return b.String()
}

func quotaExceededMessage(quota models.QuotaStatus) string {
	return fmt.Sprintf("❌ You have used your daily limit of %d requests.\nUse /buy to get a premium subscription.", quota.Limit)
}

func adminPanelMessage() string {
	return "Admin panel:\n\n" +
		"Available commands:\n" +
		"/stats - Bot statistics\n" +
		"/set_free_requests <n> - Daily requests on the free plan\n" +
		"/set_premium_requests <n> - Daily requests on the premium plan\n" +
		"/set_price <n> - Subscription price in XTR\n" +
		"/broadcast <text> - Message every user\n" +
		"/change_password - Change the videohunt.ai account password\n"
}

func statsMessage(stats models.BotStats, settings models.Settings) string {
	return fmt.Sprintf("📊 Bot statistics:\n\n"+
		"Users: %d\n"+
		"Users with an active premium plan: %d\n"+
		"Total requests: %d\n\n"+
		"Current settings:\n"+
		"- Subscription price: %d XTR\n"+
		"- Requests/day (free): %d\n"+
		"- Requests/day (premium): %d\n",
		stats.TotalUsers, stats.PremiumUsers, stats.TotalRequests,
		settings.SubscriptionPrice, settings.FreeDailyRequests, settings.PremiumDailyRequests)
}

func paymentMessage(sub *models.Subscription, settings models.Settings) string {
	return fmt.Sprintf("✅ Payment received! Your premium subscription is active.\n"+
		"You now have %d requests per day.\n"+
		"Subscription active until %s",
		settings.PremiumDailyRequests, sub.EndDate.Format("02.01.2006"))
}

func passwordPrompt(min, max int) string {
	return fmt.Sprintf("Enter the new password for the videohunt.ai account (%d-%d characters):", min, max)
}

func broadcastMessage(text string) string {
	return "📢 Message from the administrator:\n\n" + text
}

func broadcastSummary(sent, failed int) string {
	return fmt.Sprintf("✅ Broadcast finished:\nSent: %d\nFailed: %d", sent, failed)
}

// itemSummary lists every item as caption plus description
func itemSummary(items []models.ResultItem) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pdf.Caption(item))
		if item.Description != "" {
			b.WriteString("\n")
			b.WriteString(item.Description)
		}
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
