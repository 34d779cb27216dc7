package automation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

var (
	// ErrExtractionTimeout is returned when no result marker appears within the results bound
	ErrExtractionTimeout = errors.New("results did not appear in time")
	// ErrNoResults is returned when the result page renders but yields no usable rows
	ErrNoResults = errors.New("no results")
)

const (
	resultsFile  = "results.json"
	fullPageFile = "full_page.png"
)

// Extraction is the raw product of a successful extraction step
type Extraction struct {
	Items              []models.ResultItem `json:"items"`
	FullPageScreenshot string              `json:"full_page_screenshot,omitempty"`
	ResultsURL         string              `json:"results_url"`
}

// Extractor submits a search on the result page and scrapes the rendered rows
type Extractor struct {
	locators Locators
	timeouts Timeouts
	logger   arbor.ILogger
}

// NewExtractor creates a new extractor
func NewExtractor(locators Locators, timeouts Timeouts, logger arbor.ILogger) *Extractor {
	return &Extractor{
		locators: locators,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Extract runs the search for task on an authenticated session and writes its artifacts
func (e *Extractor) Extract(ctx context.Context, session interfaces.BrowserSession, task models.AutomationTask, artifacts *Artifacts) (*Extraction, error) {
	logger := e.logger.WithCorrelationId(task.ID)

	if err := e.submitSearch(ctx, session, task); err != nil {
		return nil, err
	}

	if err := e.waitForResults(ctx, session); err != nil {
		return nil, err
	}

	shots := e.captureRowScreenshots(ctx, session, artifacts, logger)

	items, err := e.parseRows(ctx, session, shots, logger)
	if err != nil {
		return nil, err
	}

	extraction := &Extraction{Items: items}

	if png, err := session.Screenshot(ctx, nil); err != nil {
		logger.Warn().Err(err).Msg("Full page screenshot failed")
	} else if path, err := artifacts.WriteFile(fullPageFile, png); err != nil {
		logger.Warn().Err(err).Msg("Failed to save full page screenshot")
	} else {
		extraction.FullPageScreenshot = path
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(items) == 0 {
		return nil, ErrNoResults
	}

	if current, err := session.CurrentURL(ctx); err == nil {
		extraction.ResultsURL = current
	}

	if _, err := artifacts.WriteJSON(resultsFile, extraction); err != nil {
		logger.Warn().Err(err).Msg("Failed to write results file")
	}

	logger.Info().
		Int("items", len(items)).
		Int("screenshots", countShots(shots)).
		Msg("Extraction complete")

	return extraction, nil
}

func (e *Extractor) submitSearch(ctx context.Context, session interfaces.BrowserSession, task models.AutomationTask) error {
	if err := session.Navigate(ctx, e.locators.ResultURL(task.VideoURL)); err != nil {
		return err
	}

	if _, err := session.WaitFor(ctx, e.locators.Body, e.timeouts.Element); err != nil {
		return fmt.Errorf("result page did not load: %w", err)
	}

	input, err := session.WaitFor(ctx, e.locators.PromptInput, e.timeouts.Element)
	if err != nil {
		return err
	}
	if err := session.Type(ctx, input, task.Prompt); err != nil {
		return err
	}

	search, err := session.WaitFor(ctx, e.locators.SearchButton, e.timeouts.Element)
	if err != nil {
		return err
	}
	return session.Click(ctx, search)
}

// waitForResults waits for a URL marker or the row container. A marker without rows
// gets a second, shorter bound for the rows to render.
func (e *Extractor) waitForResults(ctx context.Context, session interfaces.BrowserSession) error {
	markerSeen := false
	rowsSeen := false

	err := pollUntil(ctx, e.timeouts.Results, e.timeouts.Poll, func(ctx context.Context) (bool, error) {
		current, err := session.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		markerSeen = e.locators.HasResultMarker(current)

		rowsSeen, err = session.Exists(ctx, e.locators.RowContainer)
		if err != nil {
			return markerSeen, err
		}
		return markerSeen || rowsSeen, nil
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrWaitTimeout) {
			return fmt.Errorf("%w: %w", ErrExtractionTimeout, err)
		}
		return err
	}

	if rowsSeen {
		return nil
	}

	err = pollUntil(ctx, e.timeouts.RowRender, e.timeouts.Poll, func(ctx context.Context) (bool, error) {
		return session.Exists(ctx, e.locators.RowContainer)
	})
	if errors.Is(err, interfaces.ErrWaitTimeout) {
		return fmt.Errorf("%w: result rows never rendered", ErrNoResults)
	}
	return err
}

// captureRowScreenshots returns one path per screenshot row in DOM order; failed captures stay empty
func (e *Extractor) captureRowScreenshots(ctx context.Context, session interfaces.BrowserSession, artifacts *Artifacts, logger arbor.ILogger) []string {
	rows, err := session.FindAll(ctx, e.locators.ScreenshotRow)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to enumerate screenshot rows")
		return nil
	}

	shots := make([]string, len(rows))
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if err := session.ScrollIntoView(ctx, row); err != nil {
			logger.Debug().Err(err).Int("row", i).Msg("Scroll into view failed")
		}

		png, err := session.Screenshot(ctx, &row)
		if err != nil {
			logger.Warn().Err(err).Int("row", i).Msg("Row screenshot failed")
			continue
		}

		path, err := artifacts.WriteFile(fmt.Sprintf("rows/row_%d.png", i), png)
		if err != nil {
			logger.Warn().Err(err).Int("row", i).Msg("Failed to save row screenshot")
			continue
		}
		shots[i] = path
	}
	return shots
}

// parseRows parses every data row; malformed rows are skipped
func (e *Extractor) parseRows(ctx context.Context, session interfaces.BrowserSession, shots []string, logger arbor.ILogger) ([]models.ResultItem, error) {
	rows, err := session.FindAll(ctx, e.locators.DataRow)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate result rows: %w", err)
	}

	items := make([]models.ResultItem, 0, len(rows))
	for pos, row := range rows {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		html, err := session.OuterHTML(ctx, row)
		if err != nil {
			logger.Warn().Err(err).Int("row", pos).Msg("Failed to read result row")
			continue
		}

		item, err := parseRow(html, e.locators)
		if err != nil {
			logger.Warn().Err(err).Int("row", pos).Msg("Skipping result row")
			continue
		}
		item.Position = pos

		if idx, err := strconv.Atoi(item.Index); err == nil && idx >= 0 && idx < len(shots) {
			item.Screenshot = shots[idx]
		}

		items = append(items, item)
	}
	return items, nil
}

func countShots(shots []string) int {
	n := 0
	for _, s := range shots {
		if s != "" {
			n++
		}
	}
	return n
}
