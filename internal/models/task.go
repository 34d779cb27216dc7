package models

import (
	"time"
)

// Credentials is the remote site account used by the Authentication Step
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"-"`
}

// AutomationTask is one extraction request, created when a user completes both
// conversational steps and consumed exactly once by the pipeline. Never persisted.
type AutomationTask struct {
	ID          string    `json:"id" validate:"required"`
	VideoURL    string    `json:"video_url" validate:"required,url"`
	Prompt      string    `json:"prompt" validate:"required"`
	RequesterID int64     `json:"requester_id" validate:"required"`
	ChatID      int64     `json:"chat_id"`
	CreatedAt   time.Time `json:"created_at"`
}
