package automation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/huntbot/internal/models"
)

// ErrMalformedRow is returned for a result row missing a required field
var ErrMalformedRow = errors.New("malformed result row")

// parseRow extracts one result item from the outer HTML of a data row
func parseRow(html string, locators Locators) (models.ResultItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ResultItem{}, fmt.Errorf("failed to parse row html: %w", err)
	}

	row := doc.Find("[data-index]").First()
	if row.Length() == 0 {
		return models.ResultItem{}, fmt.Errorf("%w: no data-index element", ErrMalformedRow)
	}

	index, _ := row.Attr("data-index")
	item := models.ResultItem{
		Index:       strings.TrimSpace(index),
		Timestamp:   fieldText(row, locators.RowTimestamp.Query),
		Title:       fieldText(row, locators.RowTitle.Query),
		Description: fieldText(row, locators.RowDescription.Query),
	}

	var missing []string
	if item.Index == "" {
		missing = append(missing, "index")
	}
	if item.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if item.Title == "" {
		missing = append(missing, "title")
	}
	if item.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return models.ResultItem{}, fmt.Errorf("%w: missing %s", ErrMalformedRow, strings.Join(missing, ", "))
	}

	return item, nil
}

func fieldText(row *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(row.Find(selector).First().Text()), " ")
}
