package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the resolved, sanitized settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("HuntBot", GetVersion())

	logger.Info().
		Str("environment", config.Environment).
		Str("site", config.Site.BaseURL).
		Str("account", config.Account.Email).
		Int("max_concurrency", config.Pipeline.MaxConcurrency).
		Bool("headless", config.Browser.Headless).
		Int("admins", len(config.Telegram.AdminIDs)).
		Msg("Configuration resolved")
}
