package pdf

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

const (
	fontFamily   = "Arial"
	pageWidth    = 190.0 // A4 width minus 10mm margins
	imageWidth   = 120.0
	lineHeight   = 5.0
	footerMargin = 15.0
)

// Service renders extraction results as a PDF report
type Service struct {
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ReportRenderer = (*Service)(nil)

// NewService creates a new PDF report service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// RenderReport builds a report listing every result item with its row screenshot when one
// was captured. Images that cannot be decoded are skipped, not fatal.
func (s *Service) RenderReport(task models.AutomationTask, outcome models.Outcome) ([]byte, error) {
	s.logger.Debug().
		Str("task_id", task.ID).
		Int("items", len(outcome.Items)).
		Msg("Rendering PDF report")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, footerMargin)
	pdf.SetTitle("VideoHunt results", true)
	pdf.SetCreator("huntbot", true)

	r := &reportRenderer{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		logger: s.logger,
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-footerMargin + 5)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	r.header(task, outcome)
	r.summaryTable(outcome.Items)

	for _, item := range outcome.Items {
		r.item(item)
	}

	if len(outcome.Items) == 0 && outcome.FullPageScreenshot != "" {
		r.image(outcome.FullPageScreenshot, pageWidth)
	}

	if err := pdf.Error(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF")
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Msg("PDF generated successfully")
	return buf.Bytes(), nil
}

type reportRenderer struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	logger arbor.ILogger
}

func (r *reportRenderer) header(task models.AutomationTask, outcome models.Outcome) {
	r.pdf.SetFont(fontFamily, "B", 16)
	r.pdf.CellFormat(0, 10, "VideoHunt results", "", 1, "L", false, 0, "")
	r.pdf.Ln(2)

	r.field("Video", task.VideoURL)
	r.field("Prompt", task.Prompt)
	if !task.CreatedAt.IsZero() {
		r.field("Requested", task.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if outcome.ResultsURL != "" {
		r.field("Results", outcome.ResultsURL)
	}
	r.field("Matches", fmt.Sprintf("%d", len(outcome.Items)))
	r.pdf.Ln(4)
}

func (r *reportRenderer) field(label, value string) {
	r.pdf.SetFont(fontFamily, "B", 9)
	r.pdf.CellFormat(25, lineHeight, r.tr(label+":"), "", 0, "L", false, 0, "")
	r.pdf.SetFont(fontFamily, "", 9)
	r.pdf.MultiCell(pageWidth-25, lineHeight, r.tr(value), "", "L", false)
}

// summaryTable renders one line per item: index, timestamp and title
func (r *reportRenderer) summaryTable(items []models.ResultItem) {
	if len(items) == 0 {
		return
	}

	widths := []float64{15, 30, pageWidth - 45}
	headers := []string{"#", "Time", "Title"}

	r.pdf.SetFont(fontFamily, "B", 8)
	r.pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		r.pdf.CellFormat(widths[i], 6, h, "1", 0, "L", true, 0, "")
	}
	r.pdf.Ln(-1)

	r.pdf.SetFont(fontFamily, "", 8)
	for _, item := range items {
		title := truncateToWidth(r.pdf, r.tr(item.Title), widths[2]-2)
		r.pdf.CellFormat(widths[0], 6, r.tr(item.Index), "1", 0, "L", false, 0, "")
		r.pdf.CellFormat(widths[1], 6, r.tr(item.Timestamp), "1", 0, "L", false, 0, "")
		r.pdf.CellFormat(widths[2], 6, title, "1", 0, "L", false, 0, "")
		r.pdf.Ln(-1)
	}
	r.pdf.Ln(4)
}

func (r *reportRenderer) item(item models.ResultItem) {
	r.pdf.SetFont(fontFamily, "B", 11)
	r.pdf.MultiCell(pageWidth, 6, r.tr(Caption(item)), "", "L", false)

	if item.Description != "" {
		r.pdf.SetFont(fontFamily, "", 9)
		r.pdf.MultiCell(pageWidth, lineHeight, r.tr(item.Description), "", "L", false)
	}

	if item.HasScreenshot() {
		r.pdf.Ln(1)
		r.image(item.Screenshot, imageWidth)
	}
	r.pdf.Ln(4)
}

// image embeds a PNG at the current position, keeping its aspect ratio
func (r *reportRenderer) image(path string, width float64) {
	if _, err := os.Stat(path); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Screenshot missing, skipping in report")
		return
	}

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	info := r.pdf.RegisterImageOptions(path, opts)
	if !r.pdf.Ok() || info == nil {
		// A bad image must not fail the whole report
		r.logger.Warn().Err(r.pdf.Error()).Str("path", path).Msg("Failed to embed screenshot")
		r.pdf.ClearError()
		return
	}

	r.pdf.ImageOptions(path, r.pdf.GetX(), r.pdf.GetY(), width, 0, true, opts, 0, "")
}

// Caption formats the one-line label used for an item in reports and photo captions
func Caption(item models.ResultItem) string {
	parts := make([]string, 0, 3)
	if item.Index != "" {
		parts = append(parts, "#"+item.Index)
	}
	if item.Timestamp != "" {
		parts = append(parts, item.Timestamp)
	}
	head := strings.Join(parts, " ")
	if item.Title == "" {
		return head
	}
	if head == "" {
		return item.Title
	}
	return head + " - " + item.Title
}

// truncateToWidth shortens text with an ellipsis so it fits a table cell
func truncateToWidth(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
