package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/huntbot/internal/interfaces"
)

func TestLocators_URLs(t *testing.T) {
	l := DefaultLocators("https://videohunt.ai/")

	assert.Equal(t, "https://videohunt.ai/login", l.LoginURL())
	assert.Equal(t, "https://videohunt.ai/settings/profile", l.ProfileURL())
	assert.Equal(t,
		"https://videohunt.ai/video/result?url=https%3A%2F%2Fyoutu.be%2Fabc123&input_t=URL",
		l.ResultURL("https://youtu.be/abc123"))
}

func TestLocators_HasResultMarker(t *testing.T) {
	l := DefaultLocators(testBaseURL)

	assert.True(t, l.HasResultMarker(testBaseURL+"/video/hmtask/9"))
	assert.True(t, l.HasResultMarker(testBaseURL+"/moments?id=2"))
	assert.False(t, l.HasResultMarker(l.ResultURL("https://youtu.be/abc123")))
}

func TestLocators_WithOverrides(t *testing.T) {
	l, unknown := DefaultLocators(testBaseURL).WithOverrides(map[string]string{
		"search_button":  "button.find",
		"confirm_button": "//button[text()='OK']",
		"no_such_name":   "div",
	})

	assert.Equal(t, "button.find", l.SearchButton.Query)
	assert.Equal(t, interfaces.ByCSS, l.SearchButton.Kind)
	assert.Equal(t, interfaces.ByXPath, l.ConfirmButton.Kind)
	assert.Equal(t, []string{"no_such_name"}, unknown)

	// The defaults are not mutated
	assert.Equal(t, "button.search-button", DefaultLocators(testBaseURL).SearchButton.Query)
}
