package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/automation"
)

func TestStart_RegistersAndWelcomes(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "/start")
	welcome := f.messenger.lastText(userID)
	assert.Contains(t, welcome, "Your plan: Free")
	assert.Contains(t, welcome, "Requests per day: 5")
	assert.NotContains(t, welcome, "/admin")

	ids, err := f.storage.UserStorage().ListUserIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{userID}, ids)

	f.send(adminID, "/start")
	assert.Contains(t, f.messenger.lastText(adminID), "/admin")
}

func TestVideoFlow_DeliversResults(t *testing.T) {
	f := newFixture(t)
	var outcome models.Outcome
	f.runner.fn = func(task models.AutomationTask) models.Outcome {
		outcome = successOutcome(t, task)
		return outcome
	}

	f.send(userID, "/video")
	assert.Equal(t, msgAskVideoURL, f.messenger.lastText(userID))
	assert.Equal(t, models.StateAwaitingVideoURL, f.conversations.State(userID))

	f.send(userID, "https://www.youtube.com/watch?v=abc123&list=PL1")
	assert.Equal(t, msgURLAccepted, f.messenger.lastText(userID))

	f.send(userID, "find the intro")
	assert.Equal(t, models.StateIdle, f.conversations.State(userID))
	f.handler.Wait()

	tasks := f.runner.started()
	require.Len(t, tasks, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", tasks[0].VideoURL)
	assert.Equal(t, "find the intro", tasks[0].Prompt)
	assert.Equal(t, userID, tasks[0].RequesterID)
	assert.NotEmpty(t, tasks[0].ID)

	assert.True(t, f.messenger.hasText(userID, msgProcessing))
	assert.True(t, f.messenger.hasText(userID, "Found 2 matches"))
	assert.True(t, f.messenger.hasText(userID, "#2 00:40 - Host"))
	assert.Len(t, f.messenger.items("delete", userID), 1)

	links := f.messenger.items("link", userID)
	require.Len(t, links, 1)
	assert.Equal(t, outcome.ResultsURL, links[0].Path)

	// Only the first item has a row screenshot; the full page is not needed
	photos := f.messenger.items("photo", userID)
	require.Len(t, photos, 1)
	assert.Equal(t, "#1 00:05 - Intro", photos[0].Text)

	docs := f.messenger.items("document", userID)
	require.Len(t, docs, 2)
	assert.Equal(t, reportFileName, docs[0].Name)
	assert.Equal(t, "%PDF", string(docs[0].Data[:4]))
	assert.Equal(t, jsonFileName, docs[1].Name)
	assert.Contains(t, string(docs[1].Data), `"title": "Intro"`)

	_, err := os.Stat(outcome.ArtifactDir)
	assert.True(t, os.IsNotExist(err), "artifacts are removed after delivery")

	assert.Eventually(t, func() bool {
		status, err := f.quota.CheckQuota(context.Background(), userID)
		return err == nil && status.Used == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestVideoFlow_FullPageFallback(t *testing.T) {
	f := newFixture(t)
	f.runner.fn = func(task models.AutomationTask) models.Outcome {
		outcome := successOutcome(t, task)
		for i := range outcome.Items {
			outcome.Items[i].Screenshot = ""
		}
		return outcome
	}

	f.send(userID, "/video https://youtu.be/abc123 find the intro")
	f.handler.Wait()

	photos := f.messenger.items("photo", userID)
	require.Len(t, photos, 1)
	assert.Equal(t, msgFullPageCaption, photos[0].Text)
}

func TestVideoCommand_InlineArguments(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "/video https://youtu.be/abc123?t=10&feature=share find the intro please")
	f.handler.Wait()

	tasks := f.runner.started()
	require.Len(t, tasks, 1)
	assert.Equal(t, "https://youtu.be/abc123?t=10", tasks[0].VideoURL)
	assert.Equal(t, "find the intro please", tasks[0].Prompt)
	assert.True(t, f.messenger.hasText(userID, "Nothing in this video matched"))

	// URL only: waits for the prompt
	f.send(userID, "/video https://youtu.be/xyz")
	assert.Equal(t, models.StateAwaitingPrompt, f.conversations.State(userID))
}

func TestVideoCommand_InlineArgumentsAnyWhitespace(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "/video https://youtu.be/abc123\n\tfind the intro")
	f.handler.Wait()

	tasks := f.runner.started()
	require.Len(t, tasks, 1)
	assert.Equal(t, "https://youtu.be/abc123", tasks[0].VideoURL)
	assert.Equal(t, "find the intro", tasks[0].Prompt)
}

func TestSplitFirstField(t *testing.T) {
	first, rest := splitFirstField("  https://youtu.be/a\nfind  it ")
	assert.Equal(t, "https://youtu.be/a", first)
	assert.Equal(t, "find  it", rest)

	first, rest = splitFirstField("https://youtu.be/a")
	assert.Equal(t, "https://youtu.be/a", first)
	assert.Empty(t, rest)
}

func TestStateGatesInterpretation(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "/video")
	f.send(userID, "find the intro")
	assert.Equal(t, msgURLRejected, f.messenger.lastText(userID))
	assert.Equal(t, models.StateAwaitingVideoURL, f.conversations.State(userID))

	f.send(userID, "https://vimeo.com/123")
	assert.Equal(t, msgURLRejected, f.messenger.lastText(userID))

	f.send(userID, "https://youtu.be/abc123")
	f.send(userID, "   ")
	assert.Contains(t, f.messenger.lastText(userID), "Send another prompt")
	assert.Equal(t, models.StateAwaitingPrompt, f.conversations.State(userID))

	assert.Empty(t, f.runner.started())
}

func TestFreeTextWithoutFlow(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "hello")
	assert.Equal(t, msgUseCommands, f.messenger.lastText(userID))
}

func TestVideo_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.quota.RegisterUser(ctx, models.User{ID: userID})
	require.NoError(t, err)
	require.NoError(t, f.quota.SetFreeLimit(ctx, 1))
	require.NoError(t, f.quota.RecordUsage(ctx, userID, "video_analysis", "t-0"))

	f.send(userID, "/video")
	assert.Contains(t, f.messenger.lastText(userID), "daily limit of 1")
	assert.Equal(t, models.StateIdle, f.conversations.State(userID))
}

func TestTaskInProgressAndCancel(t *testing.T) {
	f := newFixture(t)
	f.runner.block = make(chan struct{})

	f.send(userID, "/video https://youtu.be/abc123 find the intro")
	require.Eventually(t, func() bool { return len(f.runner.started()) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.send(userID, "/video")
	assert.Equal(t, msgTaskInProgress, f.messenger.lastText(userID))

	f.send(userID, "another message")
	assert.Equal(t, msgTaskInProgress, f.messenger.lastText(userID))

	f.send(userID, "/cancel")
	f.handler.Wait()

	assert.True(t, f.messenger.hasText(userID, msgCancelled))
	assert.True(t, f.messenger.hasText(userID, "Processing cancelled"))
	assert.False(t, f.dispatcher.InFlight(userID))

	f.send(userID, "/cancel")
	assert.Equal(t, msgNothingToCancel, f.messenger.lastText(userID))
}

func TestAuthFailure_NotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	f.runner.fn = func(task models.AutomationTask) models.Outcome {
		return models.Outcome{TaskID: task.ID, Kind: models.OutcomeAuthFailure}
	}

	f.send(userID, "/video https://youtu.be/abc123 find the intro")
	f.handler.Wait()

	assert.True(t, f.messenger.hasText(userID, "administrator has been notified"))
	assert.Equal(t, msgAuthAlert, f.messenger.lastText(adminID))
	assert.Empty(t, f.messenger.items("document", userID))
}

func TestCommandMidFlowResets(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "/video")
	f.send(userID, "/whatever")
	assert.Equal(t, msgFlowReset+" "+msgUnknownCommand, f.messenger.lastText(userID))
	assert.Equal(t, models.StateIdle, f.conversations.State(userID))

	f.send(userID, "/whatever")
	assert.Equal(t, msgUnknownCommand, f.messenger.lastText(userID))

	// Abandoning the password track aborts a suspended rotation
	f.send(adminID, "/change_password")
	f.send(adminID, "newpassword1")
	f.handler.Wait()
	f.send(adminID, "/start")

	_, _, aborts := f.rotator.snapshot()
	assert.Equal(t, 1, aborts)
	assert.Equal(t, models.StateIdle, f.conversations.State(adminID))
}

func TestPasswordRotation(t *testing.T) {
	f := newFixture(t)

	f.send(userID, "/change_password")
	assert.Equal(t, msgNoAccess, f.messenger.lastText(userID))
	assert.Equal(t, models.StateIdle, f.conversations.State(userID))

	f.send(adminID, "/change_videohunt_password")
	assert.Contains(t, f.messenger.lastText(adminID), "8-20 characters")

	f.send(adminID, "short")
	assert.Contains(t, f.messenger.lastText(adminID), "❌")
	assert.Equal(t, models.StateAwaitingNewPassword, f.conversations.State(adminID))

	f.send(adminID, "newpassword1")
	f.handler.Wait()
	assert.True(t, f.messenger.hasText(adminID, msgRotationStarting))
	assert.Equal(t, msgCodeSent, f.messenger.lastText(adminID))
	assert.Equal(t, models.StateAwaitingVerificationCode, f.conversations.State(adminID))

	f.send(adminID, "123456")
	f.handler.Wait()
	assert.Equal(t, msgPasswordChanged, f.messenger.lastText(adminID))
	assert.Equal(t, models.StateIdle, f.conversations.State(adminID))

	passwords, codes, _ := f.rotator.snapshot()
	assert.Equal(t, []string{"newpassword1"}, passwords)
	assert.Equal(t, []string{"123456"}, codes)
}

func TestPasswordRotation_Failures(t *testing.T) {
	f := newFixture(t)
	f.rotator.beginErr = fmt.Errorf("%w: login timed out", automation.ErrAuthFailure)

	f.send(adminID, "/change_password")
	f.send(adminID, "newpassword1")
	f.handler.Wait()
	assert.Equal(t, msgRotationAuthError, f.messenger.lastText(adminID))
	assert.Equal(t, models.StateIdle, f.conversations.State(adminID))

	f.rotator.beginErr = nil
	f.rotator.confirmErr = automation.ErrCodeRejected
	f.send(adminID, "/change_password")
	f.send(adminID, "newpassword1")
	f.handler.Wait()
	f.send(adminID, "000000")
	f.handler.Wait()
	assert.Equal(t, msgCodeRejected, f.messenger.lastText(adminID))
}

func TestPasswordRotation_AbortedBeforeCodeSentIsSilent(t *testing.T) {
	f := newFixture(t)
	f.rotator.beginErr = automation.ErrRotationAborted

	f.send(adminID, "/change_password")
	f.send(adminID, "newpassword1")
	f.handler.Wait()

	assert.Equal(t, msgRotationStarting, f.messenger.lastText(adminID))
	assert.False(t, f.messenger.hasText(adminID, msgRotationFailed))
}

func TestRotationErrorMessage(t *testing.T) {
	options := Options{MinPasswordLength: 8, MaxPasswordLength: 20}
	assert.Equal(t, msgNoRotation, rotationErrorMessage(automation.ErrNoSuspendedRotation, options))
	assert.Equal(t, msgRotationBusy, rotationErrorMessage(automation.ErrRotationInProgress, options))
	assert.Contains(t, rotationErrorMessage(automation.ErrInvalidPassword, options), "8-20")
	assert.Equal(t, msgRotationFailed, rotationErrorMessage(errors.New("browser gone"), options))
}

func TestAdminSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(userID, "/stats")
	assert.Equal(t, msgNoAccess, f.messenger.lastText(userID))

	f.send(adminID, "/admin")
	assert.Contains(t, f.messenger.lastText(adminID), "/broadcast")

	f.send(adminID, "/set_free_requests 3")
	assert.Contains(t, f.messenger.lastText(adminID), "set to 3")

	f.send(adminID, "/set_premium_requests abc")
	assert.Equal(t, "Usage: /set_premium_requests <count>", f.messenger.lastText(adminID))

	f.send(adminID, "/set_price 0")
	assert.Contains(t, f.messenger.lastText(adminID), "positive integer")

	f.send(adminID, "/set_price 250")
	settings, err := f.quota.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, settings.FreeDailyRequests)
	assert.Equal(t, 250, settings.SubscriptionPrice)

	f.send(userID, "/start")
	f.send(adminID, "/stats")
	stats := f.messenger.lastText(adminID)
	assert.Contains(t, stats, "Users: 1")
	assert.Contains(t, stats, "Subscription price: 250 XTR")
	assert.Contains(t, stats, "Requests/day (free): 3")
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t)

	for _, id := range []int64{1, 2, 3} {
		f.send(id, "/start")
	}

	f.send(adminID, "/broadcast")
	assert.Equal(t, "Usage: /broadcast <message>", f.messenger.lastText(adminID))

	f.send(adminID, "/broadcast Maintenance tonight")
	f.handler.Wait()

	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, broadcastMessage("Maintenance tonight"), f.messenger.lastText(id))
	}
	assert.Equal(t, broadcastSummary(3, 0), f.messenger.lastText(adminID))
}

func TestPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(userID, "/buy")
	invoices := f.messenger.items("invoice", userID)
	require.Len(t, invoices, 1)
	assert.Equal(t, currencyStars, invoices[0].Invoice.Currency)
	assert.Equal(t, 100, invoices[0].Invoice.Amount)
	assert.Equal(t, fmt.Sprintf("subscription_%d", userID), invoices[0].Invoice.Payload)

	user := models.User{ID: userID, FirstName: "Test"}
	f.handler.Handle(ctx, Incoming{Kind: IncomingPreCheckout, PreCheckoutID: "q1", User: user, Payload: invoices[0].Invoice.Payload, Currency: currencyStars})
	f.handler.Handle(ctx, Incoming{Kind: IncomingPreCheckout, PreCheckoutID: "q2", User: user, Payload: "donation", Currency: currencyStars})

	answers := f.messenger.items("precheckout", 0)
	require.Len(t, answers, 2)
	assert.True(t, answers[0].OK)
	assert.False(t, answers[1].OK)
	assert.Equal(t, msgPaymentUnknown, answers[1].Text)

	f.handler.Handle(ctx, Incoming{Kind: IncomingPayment, ChatID: userID, User: user, Payload: invoices[0].Invoice.Payload, Currency: currencyStars, TotalAmount: 100})
	assert.Contains(t, f.messenger.lastText(userID), "15 requests per day")

	status, err := f.quota.CheckQuota(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, status.Plan)
	assert.Equal(t, 15, status.Limit)
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	f := newFixture(t)

	updates := make(chan Incoming, 2)
	updates <- Incoming{Kind: IncomingMessage, ChatID: userID, User: models.User{ID: userID}, Command: "start"}
	updates <- Incoming{Kind: IncomingMessage, ChatID: userID, User: models.User{ID: userID}, Text: "hi"}
	close(updates)

	require.NoError(t, f.handler.Run(context.Background(), updates))
	assert.Len(t, f.messenger.texts(userID), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.handler.Run(ctx, make(chan Incoming)), context.Canceled)
}
