package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/automation"
	"github.com/ternarybob/huntbot/internal/services/conversation"
	"github.com/ternarybob/huntbot/internal/services/dispatch"
	"golang.org/x/time/rate"
)

// TaskDispatcher queues automation tasks off the update loop
type TaskDispatcher interface {
	Submit(ctx context.Context, task models.AutomationTask) (*dispatch.Handle, error)
	InFlight(requesterID int64) bool
	CancelRequester(requesterID int64) bool
}

// PasswordRotator drives the two-phase credential rotation
type PasswordRotator interface {
	Begin(ctx context.Context, requesterID int64, newPassword string) error
	Confirm(ctx context.Context, requesterID int64, code string) error
	Abort(requesterID int64) bool
}

// QuotaService manages users, plans and limits
type QuotaService interface {
	RegisterUser(ctx context.Context, user models.User) (bool, error)
	CheckQuota(ctx context.Context, userID int64) (models.QuotaStatus, error)
	GrantPremium(ctx context.Context, userID int64) (*models.Subscription, error)
	Stats(ctx context.Context) (models.BotStats, error)
	Settings(ctx context.Context) (models.Settings, error)
	SetFreeLimit(ctx context.Context, n int) error
	SetPremiumLimit(ctx context.Context, n int) error
	SetPrice(ctx context.Context, n int) error
}

// UserDirectory lists broadcast recipients
type UserDirectory interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// Options controls handler behaviour
type Options struct {
	AdminIDs          []int64
	MaxPhotos         int
	SendReport        bool
	SendJSON          bool
	BroadcastRate     float64 // Messages per second; <= 0 means unlimited
	MinPasswordLength int
	MaxPasswordLength int
}

// OptionsFromConfig builds handler options from the application config
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		AdminIDs:          config.Telegram.AdminIDs,
		MaxPhotos:         config.Bot.MaxPhotos,
		SendReport:        config.Bot.SendReport,
		SendJSON:          config.Bot.SendJSON,
		BroadcastRate:     config.Bot.BroadcastRate,
		MinPasswordLength: config.Rotation.MinLength,
		MaxPasswordLength: config.Rotation.MaxLength,
	}
}

const (
	currencyStars = "XTR"
	paymentPrefix = "subscription_"
	invoiceTitle  = "Premium subscription"
)

// Handler routes updates: commands directly, free text through the conversation state.
// It runs on one goroutine; pipeline runs and deliveries happen in the background.
type Handler struct {
	messenger     Messenger
	conversations *conversation.Manager
	dispatcher    TaskDispatcher
	rotator       PasswordRotator
	quota         QuotaService
	users         UserDirectory
	reports       interfaces.ReportRenderer
	options       Options
	admins        map[int64]bool
	limiter       *rate.Limiter
	logger        arbor.ILogger
	now           func() time.Time
	background    sync.WaitGroup
}

// NewHandler creates a new update handler. reports may be nil to disable PDF reports.
func NewHandler(messenger Messenger, conversations *conversation.Manager, dispatcher TaskDispatcher,
	rotator PasswordRotator, quota QuotaService, users UserDirectory, reports interfaces.ReportRenderer,
	options Options, logger arbor.ILogger) *Handler {

	admins := make(map[int64]bool, len(options.AdminIDs))
	for _, id := range options.AdminIDs {
		admins[id] = true
	}

	limit := rate.Inf
	if options.BroadcastRate > 0 {
		limit = rate.Limit(options.BroadcastRate)
	}

	return &Handler{
		messenger:     messenger,
		conversations: conversations,
		dispatcher:    dispatcher,
		rotator:       rotator,
		quota:         quota,
		users:         users,
		reports:       reports,
		options:       options,
		admins:        admins,
		limiter:       rate.NewLimiter(limit, 1),
		logger:        logger,
		now:           time.Now,
	}
}

// Run consumes updates until ctx ends or the channel closes
func (h *Handler) Run(ctx context.Context, updates <-chan Incoming) error {
	h.logger.Info().Msg("Bot update loop started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("Bot update loop stopped")
			return ctx.Err()
		case in, ok := <-updates:
			if !ok {
				h.logger.Info().Msg("Update channel closed")
				return nil
			}
			h.handleSafely(ctx, in)
		}
	}
}

// Wait blocks until background deliveries, rotations and broadcasts finish
func (h *Handler) Wait() {
	h.background.Wait()
}

func (h *Handler) handleSafely(ctx context.Context, in Incoming) {
	defer common.RecoverPanic(h.logger, "bot.handle", nil)
	h.Handle(ctx, in)
}

// Handle processes one update
func (h *Handler) Handle(ctx context.Context, in Incoming) {
	switch in.Kind {
	case IncomingPreCheckout:
		h.handlePreCheckout(ctx, in)
	case IncomingPayment:
		h.handlePayment(ctx, in)
	case IncomingMessage:
		if in.Command != "" {
			h.handleCommand(ctx, in)
			return
		}
		h.handleText(ctx, in)
	}
}

// goBackground runs fn off the update loop with panic recovery
func (h *Handler) goBackground(name string, fn func()) {
	h.background.Add(1)
	common.SafeGo(h.logger, name, func() {
		defer h.background.Done()
		fn()
	})
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.messenger.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

func (h *Handler) isAdmin(userID int64) bool {
	return h.admins[userID]
}

// resetFlow abandons any active conversation track and reports whether one was active
func (h *Handler) resetFlow(userID int64) bool {
	prev := h.conversations.Reset(userID)
	if prev.Track() == models.TrackPassword {
		h.rotator.Abort(userID)
	}
	return prev != models.StateIdle
}

func (h *Handler) handleCommand(ctx context.Context, in Incoming) {
	command := strings.ToLower(in.Command)
	userID := in.User.ID

	h.logger.Debug().
		Int64("user_id", userID).
		Str("command", command).
		Msg("Command received")

	// Any command arriving mid-flow abandons that flow
	abandoned := h.resetFlow(userID)

	switch command {
	case "start", "help":
		h.cmdStart(ctx, in)
	case "video":
		h.cmdVideo(ctx, in)
	case "cancel":
		h.cmdCancel(ctx, in, abandoned)
	case "buy":
		h.cmdBuy(ctx, in)
	case "admin":
		h.adminOnly(ctx, in, h.cmdAdmin)
	case "stats":
		h.adminOnly(ctx, in, h.cmdStats)
	case "set_free_requests":
		h.adminOnly(ctx, in, h.cmdSetFreeRequests)
	case "set_premium_requests":
		h.adminOnly(ctx, in, h.cmdSetPremiumRequests)
	case "set_price":
		h.adminOnly(ctx, in, h.cmdSetPrice)
	case "broadcast":
		h.adminOnly(ctx, in, h.cmdBroadcast)
	case "change_password", "change_videohunt_password":
		h.adminOnly(ctx, in, h.cmdChangePassword)
	default:
		if abandoned {
			h.reply(ctx, in.ChatID, msgFlowReset+" "+msgUnknownCommand)
			return
		}
		h.reply(ctx, in.ChatID, msgUnknownCommand)
	}
}

func (h *Handler) adminOnly(ctx context.Context, in Incoming, fn func(context.Context, Incoming)) {
	if !h.isAdmin(in.User.ID) {
		h.logger.Warn().Int64("user_id", in.User.ID).Str("command", in.Command).Msg("Admin command denied")
		h.reply(ctx, in.ChatID, msgNoAccess)
		return
	}
	fn(ctx, in)
}

func (h *Handler) register(ctx context.Context, user models.User) {
	if _, err := h.quota.RegisterUser(ctx, user); err != nil {
		h.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to register user")
	}
}

func (h *Handler) cmdStart(ctx context.Context, in Incoming) {
	h.register(ctx, in.User)

	quota, err := h.quota.CheckQuota(ctx, in.User.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", in.User.ID).Msg("Failed to check quota")
	}
	h.reply(ctx, in.ChatID, welcomeMessage(in.User, quota, h.isAdmin(in.User.ID)))
}

func (h *Handler) cmdVideo(ctx context.Context, in Incoming) {
	userID := in.User.ID
	h.register(ctx, in.User)

	if h.dispatcher.InFlight(userID) {
		h.reply(ctx, in.ChatID, msgTaskInProgress)
		return
	}

	quota, err := h.quota.CheckQuota(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to check quota")
		h.reply(ctx, in.ChatID, DispatchErrorMessage(err))
		return
	}
	if !quota.Allowed() {
		h.reply(ctx, in.ChatID, quotaExceededMessage(quota))
		return
	}

	h.conversations.StartVideo(userID)

	// "/video <link> [prompt]" fills the steps inline
	args := strings.TrimSpace(in.Args)
	if args == "" {
		h.reply(ctx, in.ChatID, msgAskVideoURL)
		return
	}

	link, prompt := splitFirstField(args)
	step := in
	step.Command, step.Args, step.Text = "", "", link
	h.handleText(ctx, step)

	if prompt != "" && h.conversations.State(userID) == models.StateAwaitingPrompt {
		step.Text = prompt
		h.handleText(ctx, step)
	}
}

// splitFirstField splits s at the first run of whitespace
func splitFirstField(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func (h *Handler) cmdCancel(ctx context.Context, in Incoming, abandoned bool) {
	cancelled := h.dispatcher.CancelRequester(in.User.ID)
	if cancelled || abandoned {
		h.logger.Info().
			Int64("user_id", in.User.ID).
			Bool("task_cancelled", cancelled).
			Msg("User cancelled")
		h.reply(ctx, in.ChatID, msgCancelled)
		return
	}
	h.reply(ctx, in.ChatID, msgNothingToCancel)
}

// handleText interprets free text through the user's conversation state
func (h *Handler) handleText(ctx context.Context, in Incoming) {
	userID := in.User.ID
	action := h.conversations.HandleText(userID, in.Text)

	switch action.Kind {
	case conversation.ActionNone:
		if h.dispatcher.InFlight(userID) {
			h.reply(ctx, in.ChatID, msgTaskInProgress)
			return
		}
		h.reply(ctx, in.ChatID, msgUseCommands)

	case conversation.ActionURLAccepted:
		h.reply(ctx, in.ChatID, msgURLAccepted)

	case conversation.ActionURLRejected:
		h.logger.Debug().Err(action.Err).Int64("user_id", userID).Msg("Video URL rejected")
		h.reply(ctx, in.ChatID, msgURLRejected)

	case conversation.ActionPromptRejected:
		h.reply(ctx, in.ChatID, "❌ "+capitalize(action.Err.Error())+". Send another prompt:")

	case conversation.ActionDispatch:
		h.dispatchTask(ctx, in, action)

	case conversation.ActionPasswordRejected:
		h.reply(ctx, in.ChatID, "❌ "+passwordPrompt(h.options.MinPasswordLength, h.options.MaxPasswordLength))

	case conversation.ActionBeginRotation:
		h.beginRotation(ctx, in, action.Password)

	case conversation.ActionConfirmRotation:
		h.confirmRotation(ctx, in, action.Code)
	}
}

func (h *Handler) dispatchTask(ctx context.Context, in Incoming, action conversation.Action) {
	task := models.AutomationTask{
		ID:          common.NewTaskID(),
		VideoURL:    action.VideoURL,
		Prompt:      action.Prompt,
		RequesterID: in.User.ID,
		ChatID:      in.ChatID,
		CreatedAt:   h.now(),
	}

	handle, err := h.dispatcher.Submit(ctx, task)
	if err != nil {
		h.logger.Warn().Err(err).Int64("user_id", in.User.ID).Msg("Task rejected")
		h.reply(ctx, in.ChatID, DispatchErrorMessage(err))
		return
	}

	noticeID, err := h.messenger.SendText(ctx, in.ChatID, msgProcessing)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send processing notice")
	}

	h.goBackground("bot.deliver", func() {
		outcome, err := handle.Wait(ctx)
		if err != nil && ctx.Err() != nil {
			// Shutting down: stop the run and clean up whatever it produced
			handle.Cancel()
			<-handle.Done()
			outcome, _ = handle.Wait(context.Background())
			if cleanupErr := outcome.Cleanup(); cleanupErr != nil {
				h.logger.Warn().Err(cleanupErr).Str("task_id", task.ID).Msg("Failed to remove artifacts")
			}
			return
		}
		h.deliver(ctx, in.ChatID, noticeID, task, outcome, err)
	})
}

func (h *Handler) beginRotation(ctx context.Context, in Incoming, password string) {
	userID := in.User.ID
	h.reply(ctx, in.ChatID, msgRotationStarting)

	h.goBackground("bot.rotation.begin", func() {
		if err := h.rotator.Begin(ctx, userID, password); err != nil {
			if errors.Is(err, automation.ErrRotationAborted) {
				// The user already got the cancel reply
				h.logger.Info().Int64("user_id", userID).Msg("Password change abandoned before the code was sent")
				return
			}
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("Password change failed to start")
			if h.conversations.State(userID) == models.StateAwaitingVerificationCode {
				h.conversations.Reset(userID)
			}
			h.reply(ctx, in.ChatID, rotationErrorMessage(err, h.options))
			return
		}
		h.reply(ctx, in.ChatID, msgCodeSent)
	})
}

func (h *Handler) confirmRotation(ctx context.Context, in Incoming, code string) {
	userID := in.User.ID

	h.goBackground("bot.rotation.confirm", func() {
		if err := h.rotator.Confirm(ctx, userID, code); err != nil {
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("Password change failed")
			h.reply(ctx, in.ChatID, rotationErrorMessage(err, h.options))
			return
		}
		h.logger.Info().Int64("user_id", userID).Msg("Account password changed")
		h.reply(ctx, in.ChatID, msgPasswordChanged)
	})
}

func rotationErrorMessage(err error, options Options) string {
	switch {
	case errors.Is(err, automation.ErrAuthFailure):
		return msgRotationAuthError
	case errors.Is(err, automation.ErrCodeRejected):
		return msgCodeRejected
	case errors.Is(err, automation.ErrNoSuspendedRotation):
		return msgNoRotation
	case errors.Is(err, automation.ErrRotationInProgress):
		return msgRotationBusy
	case errors.Is(err, automation.ErrInvalidPassword):
		return "❌ " + passwordPrompt(options.MinPasswordLength, options.MaxPasswordLength)
	}
	return msgRotationFailed
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
