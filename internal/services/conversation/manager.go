package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/models"
)

var (
	// ErrEmptyPrompt is returned for a blank search prompt
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrPromptTooLong is returned for a prompt over the configured limit
	ErrPromptTooLong = errors.New("prompt is too long")
	// ErrPasswordLength is returned for a new password outside the length bounds
	ErrPasswordLength = errors.New("password length out of range")
)

// ActionKind tells the caller what a free-text message resolved to
type ActionKind string

const (
	ActionNone             ActionKind = "none"              // No flow active
	ActionURLAccepted      ActionKind = "url_accepted"      // Ask for the prompt next
	ActionURLRejected      ActionKind = "url_rejected"      // Still waiting for a URL
	ActionPromptRejected   ActionKind = "prompt_rejected"   // Still waiting for a prompt
	ActionDispatch         ActionKind = "dispatch"          // Submit VideoURL + Prompt
	ActionPasswordRejected ActionKind = "password_rejected" // Still waiting for a password
	ActionBeginRotation    ActionKind = "begin_rotation"    // Request a code for Password
	ActionConfirmRotation  ActionKind = "confirm_rotation"  // Submit Code
)

// Action is the outcome of interpreting one message
type Action struct {
	Kind     ActionKind
	VideoURL string
	Prompt   string
	Password string
	Code     string
	Err      error
}

// Options bounds the accepted input
type Options struct {
	AllowedHosts      []string
	MaxPromptChars    int
	MinPasswordLength int
	MaxPasswordLength int
}

type session struct {
	state    models.ConversationState
	videoURL string
}

// Manager keeps the per-user conversation state. Free text is interpreted only
// through the user's current state; each user has at most one active track.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*session
	options  Options
	logger   arbor.ILogger
}

// NewManager creates a new conversation manager
func NewManager(options Options, logger arbor.ILogger) *Manager {
	return &Manager{
		sessions: make(map[int64]*session),
		options:  options,
		logger:   logger,
	}
}

// State returns the user's current state
func (m *Manager) State(userID int64) models.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s.state
	}
	return models.StateIdle
}

// StartVideo enters the video track, abandoning any other flow
func (m *Manager) StartVideo(userID int64) {
	m.transition(userID, models.StateAwaitingVideoURL, "")
}

// StartPasswordChange enters the password track, abandoning any other flow
func (m *Manager) StartPasswordChange(userID int64) {
	m.transition(userID, models.StateAwaitingNewPassword, "")
}

// Reset returns the user to Idle and reports the state that was abandoned
func (m *Manager) Reset(userID int64) models.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := models.StateIdle
	if s, ok := m.sessions[userID]; ok {
		prev = s.state
		delete(m.sessions, userID)
	}
	if prev != models.StateIdle {
		m.logger.Debug().Int64("user_id", userID).Str("from", string(prev)).Msg("Conversation reset")
	}
	return prev
}

func (m *Manager) transition(userID int64, next models.ConversationState, videoURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(userID, next, videoURL)
}

func (m *Manager) setLocked(userID int64, next models.ConversationState, videoURL string) {
	prev := models.StateIdle
	if s, ok := m.sessions[userID]; ok {
		prev = s.state
	}

	if next == models.StateIdle {
		delete(m.sessions, userID)
	} else {
		m.sessions[userID] = &session{state: next, videoURL: videoURL}
	}

	m.logger.Debug().
		Int64("user_id", userID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Conversation state")
}

// HandleText interprets a free-text message according to the user's state
func (m *Manager) HandleText(userID int64, text string) Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Action{Kind: ActionNone}
	}

	text = strings.TrimSpace(text)

	switch s.state {
	case models.StateAwaitingVideoURL:
		videoURL, err := common.NormalizeVideoURL(common.CleanVideoURL(text), m.options.AllowedHosts)
		if err != nil {
			return Action{Kind: ActionURLRejected, Err: err}
		}
		m.setLocked(userID, models.StateAwaitingPrompt, videoURL)
		return Action{Kind: ActionURLAccepted, VideoURL: videoURL}

	case models.StateAwaitingPrompt:
		if text == "" {
			return Action{Kind: ActionPromptRejected, Err: ErrEmptyPrompt}
		}
		if m.options.MaxPromptChars > 0 && utf8.RuneCountInString(text) > m.options.MaxPromptChars {
			return Action{Kind: ActionPromptRejected, Err: fmt.Errorf("%w: limit is %d characters", ErrPromptTooLong, m.options.MaxPromptChars)}
		}
		videoURL := s.videoURL
		m.setLocked(userID, models.StateIdle, "")
		return Action{Kind: ActionDispatch, VideoURL: videoURL, Prompt: text}

	case models.StateAwaitingNewPassword:
		if !common.ValidPassword(text, m.options.MinPasswordLength, m.options.MaxPasswordLength) {
			return Action{Kind: ActionPasswordRejected, Err: fmt.Errorf("%w: %d-%d characters without spaces", ErrPasswordLength, m.options.MinPasswordLength, m.options.MaxPasswordLength)}
		}
		m.setLocked(userID, models.StateAwaitingVerificationCode, "")
		return Action{Kind: ActionBeginRotation, Password: text}

	case models.StateAwaitingVerificationCode:
		m.setLocked(userID, models.StateIdle, "")
		return Action{Kind: ActionConfirmRotation, Code: text}
	}

	return Action{Kind: ActionNone}
}
