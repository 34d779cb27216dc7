package models

import (
	"os"
	"time"
)

// OutcomeKind tags the terminal result of one pipeline invocation
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeAuthFailure       OutcomeKind = "auth_failure"
	OutcomeExtractionTimeout OutcomeKind = "extraction_timeout"
	OutcomeNoResults         OutcomeKind = "no_results"
	OutcomeTransientError    OutcomeKind = "transient_error"
)

// Transient error reasons
const (
	ReasonLaunch     = "launch"
	ReasonCancelled  = "cancelled"
	ReasonDeadline   = "deadline"
	ReasonNavigation = "navigation"
	ReasonPanic      = "panic"
)

// ResultItem is one row of the remote result list.
// Position is the DOM order of the structured row; Index is the ordinal the page displays.
type ResultItem struct {
	Position    int    `json:"position"`
	Index       string `json:"index"`
	Timestamp   string `json:"timestamp"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Screenshot  string `json:"screenshot,omitempty"` // Path inside the artifact dir; empty when not captured
}

// HasScreenshot reports whether a row screenshot was captured and correlated
func (i ResultItem) HasScreenshot() bool {
	return i.Screenshot != ""
}

// Outcome is the terminal, tagged result of a pipeline invocation.
// On success the outcome owns ArtifactDir until Cleanup is called.
type Outcome struct {
	TaskID             string        `json:"task_id"`
	Kind               OutcomeKind   `json:"kind"`
	Items              []ResultItem  `json:"items,omitempty"`
	FullPageScreenshot string        `json:"full_page_screenshot,omitempty"`
	ResultsURL         string        `json:"results_url,omitempty"`
	ArtifactDir        string        `json:"-"`
	Reason             string        `json:"reason,omitempty"`
	Err                error         `json:"-"`
	Duration           time.Duration `json:"duration"`
}

// Succeeded reports whether the outcome carries results
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Retryable reports whether a caller may retry the task.
// Launch failures and cancellations are never retryable.
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeTransientError && o.Reason != ReasonLaunch && o.Reason != ReasonCancelled
}

// Cleanup removes the artifact directory owned by the outcome. Safe to call more than once.
func (o Outcome) Cleanup() error {
	if o.ArtifactDir == "" {
		return nil
	}
	return os.RemoveAll(o.ArtifactDir)
}
