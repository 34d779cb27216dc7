package bot

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/conversation"
	"github.com/ternarybob/huntbot/internal/services/dispatch"
	"github.com/ternarybob/huntbot/internal/services/events"
	"github.com/ternarybob/huntbot/internal/services/pdf"
	"github.com/ternarybob/huntbot/internal/services/quota"
	"github.com/ternarybob/huntbot/internal/storage/badger"
)

const (
	adminID = int64(1000)
	userID  = int64(42)
)

type sentItem struct {
	Kind    string
	ChatID  int64
	Text    string
	Path    string
	Name    string
	Data    []byte
	Invoice Invoice
	OK      bool
}

// fakeMessenger records everything the handler sends
type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	sent   []sentItem
}

func (m *fakeMessenger) record(item sentItem) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, item)
	return m.nextID
}

func (m *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	return m.record(sentItem{Kind: "text", ChatID: chatID, Text: text}), nil
}

func (m *fakeMessenger) SendLink(ctx context.Context, chatID int64, text, label, url string) error {
	m.record(sentItem{Kind: "link", ChatID: chatID, Text: text, Path: url})
	return nil
}

func (m *fakeMessenger) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	m.record(sentItem{Kind: "photo", ChatID: chatID, Text: caption, Path: path})
	return nil
}

func (m *fakeMessenger) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	m.record(sentItem{Kind: "document", ChatID: chatID, Text: caption, Name: name, Data: data})
	return nil
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	m.record(sentItem{Kind: "delete", ChatID: chatID})
	return nil
}

func (m *fakeMessenger) SendInvoice(ctx context.Context, chatID int64, invoice Invoice) error {
	m.record(sentItem{Kind: "invoice", ChatID: chatID, Invoice: invoice})
	return nil
}

func (m *fakeMessenger) AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	m.record(sentItem{Kind: "precheckout", Text: errorMessage, OK: ok})
	return nil
}

func (m *fakeMessenger) items(kind string, chatID int64) []sentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentItem
	for _, item := range m.sent {
		if item.Kind == kind && (chatID == 0 || item.ChatID == chatID) {
			out = append(out, item)
		}
	}
	return out
}

func (m *fakeMessenger) texts(chatID int64) []string {
	var out []string
	for _, item := range m.items("text", chatID) {
		out = append(out, item.Text)
	}
	return out
}

func (m *fakeMessenger) lastText(chatID int64) string {
	texts := m.texts(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (m *fakeMessenger) hasText(chatID int64, substr string) bool {
	for _, text := range m.texts(chatID) {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

// scriptedRunner returns outcomes built by fn, optionally blocking until released
type scriptedRunner struct {
	mu    sync.Mutex
	tasks []models.AutomationTask
	block chan struct{}
	fn    func(task models.AutomationTask) models.Outcome
}

func (r *scriptedRunner) Run(ctx context.Context, task models.AutomationTask) models.Outcome {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.Outcome{TaskID: task.ID, Kind: models.OutcomeTransientError, Reason: models.ReasonCancelled}
		}
	}
	return r.fn(task)
}

func (r *scriptedRunner) started() []models.AutomationTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AutomationTask(nil), r.tasks...)
}

// fakeRotator records rotation calls
type fakeRotator struct {
	mu         sync.Mutex
	passwords  []string
	codes      []string
	aborts     int
	beginErr   error
	confirmErr error
}

func (r *fakeRotator) Begin(ctx context.Context, requesterID int64, newPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passwords = append(r.passwords, newPassword)
	return r.beginErr
}

func (r *fakeRotator) Confirm(ctx context.Context, requesterID int64, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return r.confirmErr
}

func (r *fakeRotator) Abort(requesterID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborts++
	return true
}

func (r *fakeRotator) snapshot() (passwords, codes []string, aborts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.passwords...), append([]string(nil), r.codes...), r.aborts
}

type fixture struct {
	t             *testing.T
	handler       *Handler
	messenger     *fakeMessenger
	runner        *scriptedRunner
	rotator       *fakeRotator
	conversations *conversation.Manager
	dispatcher    *dispatch.Dispatcher
	quota         *quota.Service
	storage       interfaces.StorageManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)

	eventService := events.NewService(logger)
	quotaService := quota.NewService(storage.UserStorage(), storage.UsageStorage(), storage.SettingsStorage(), logger)
	require.NoError(t, quotaService.Subscribe(eventService))

	runner := &scriptedRunner{fn: func(task models.AutomationTask) models.Outcome {
		return models.Outcome{TaskID: task.ID, Kind: models.OutcomeNoResults}
	}}

	pipeline := common.PipelineConfig{
		MaxConcurrency: 2,
		QueueSize:      4,
		TaskTimeout:    common.Duration(5 * time.Second),
		AllowedHosts:   []string{"youtube.com", "youtu.be"},
	}
	dispatcher := dispatch.NewDispatcher(runner, pipeline, eventService, logger)

	conversations := conversation.NewManager(conversation.Options{
		AllowedHosts:      pipeline.AllowedHosts,
		MaxPromptChars:    500,
		MinPasswordLength: 8,
		MaxPasswordLength: 20,
	}, logger)

	messenger := &fakeMessenger{}
	rotator := &fakeRotator{}

	options := Options{
		AdminIDs:          []int64{adminID},
		MaxPhotos:         10,
		SendReport:        true,
		SendJSON:          true,
		MinPasswordLength: 8,
		MaxPasswordLength: 20,
	}

	handler := NewHandler(messenger, conversations, dispatcher, rotator, quotaService,
		storage.UserStorage(), pdf.NewService(logger), options, logger)

	t.Cleanup(func() {
		dispatcher.Close()
		handler.Wait()
		_ = eventService.Close()
		_ = storage.Close()
	})

	return &fixture{
		t:             t,
		handler:       handler,
		messenger:     messenger,
		runner:        runner,
		rotator:       rotator,
		conversations: conversations,
		dispatcher:    dispatcher,
		quota:         quotaService,
		storage:       storage,
	}
}

func (f *fixture) send(from int64, text string) {
	in := Incoming{
		Kind:   IncomingMessage,
		ChatID: from,
		User:   models.User{ID: from, Username: "user", FirstName: "Test"},
		Text:   text,
	}
	if strings.HasPrefix(text, "/") {
		command, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
		in.Command = command
		in.Args = args
	}
	f.handler.Handle(context.Background(), in)
}

// successOutcome builds an outcome with a real artifact directory holding PNGs
func successOutcome(t *testing.T, task models.AutomationTask) models.Outcome {
	dir, err := os.MkdirTemp(t.TempDir(), "run-")
	require.NoError(t, err)
	row := writePNG(t, filepath.Join(dir, "row_0.png"))
	full := writePNG(t, filepath.Join(dir, "full_page.png"))

	return models.Outcome{
		TaskID:     task.ID,
		Kind:       models.OutcomeSuccess,
		ResultsURL: "https://videohunt.ai/results?video_url=x",
		Items: []models.ResultItem{
			{Position: 0, Index: "1", Timestamp: "00:05", Title: "Intro", Description: "Opening titles", Screenshot: row},
			{Position: 1, Index: "2", Timestamp: "00:40", Title: "Host", Description: "Host greets viewers"},
		},
		FullPageScreenshot: full,
		ArtifactDir:        dir,
	}
}

func writePNG(t *testing.T, path string) string {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}
