package interfaces

import "github.com/ternarybob/huntbot/internal/models"

// ReportRenderer turns a successful outcome into a shareable document
type ReportRenderer interface {
	// RenderReport returns PDF bytes listing every item of the outcome
	RenderReport(task models.AutomationTask, outcome models.Outcome) ([]byte, error)
}
