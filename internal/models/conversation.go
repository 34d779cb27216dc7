package models

// ConversationState is the per-user state gating how free text is interpreted
type ConversationState string

const (
	StateIdle                     ConversationState = "idle"
	StateAwaitingVideoURL         ConversationState = "awaiting_video_url"
	StateAwaitingPrompt           ConversationState = "awaiting_prompt"
	StateAwaitingNewPassword      ConversationState = "awaiting_new_password"
	StateAwaitingVerificationCode ConversationState = "awaiting_verification_code"
)

// ConversationTrack identifies which flow a state belongs to. Only one track is active per user.
type ConversationTrack string

const (
	TrackNone     ConversationTrack = ""
	TrackVideo    ConversationTrack = "video"
	TrackPassword ConversationTrack = "password"
)

// Track returns the flow the state belongs to
func (s ConversationState) Track() ConversationTrack {
	switch s {
	case StateAwaitingVideoURL, StateAwaitingPrompt:
		return TrackVideo
	case StateAwaitingNewPassword, StateAwaitingVerificationCode:
		return TrackPassword
	default:
		return TrackNone
	}
}
