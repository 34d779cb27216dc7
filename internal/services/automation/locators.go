package automation

import (
	"net/url"
	"strings"

	"github.com/ternarybob/huntbot/internal/interfaces"
)

// Locators is the complete contract with the remote site: page paths, URL markers and
// element selectors. Every name can be overridden from the [site.selectors] config table.
type Locators struct {
	BaseURL     string
	LoginPath   string
	ResultPath  string
	ProfilePath string

	// Substrings of the page URL that show the site accepted a search
	ResultURLMarkers []string

	// Login page
	EmailInput    interfaces.Locator
	PasswordInput interfaces.Locator
	LoginSubmit   interfaces.Locator

	// Result page
	Body          interfaces.Locator
	PromptInput   interfaces.Locator
	SearchButton  interfaces.Locator
	RowContainer  interfaces.Locator
	ScreenshotRow interfaces.Locator
	DataRow       interfaces.Locator

	// Fields inside a data row's outer HTML (CSS only)
	RowTimestamp   interfaces.Locator
	RowTitle       interfaces.Locator
	RowDescription interfaces.Locator

	// Profile page, password change
	ChangePasswordButton interfaces.Locator
	NewPasswordInput     interfaces.Locator
	RepeatPasswordInput  interfaces.Locator
	SendCodeButton       interfaces.Locator
	VerificationInput    interfaces.Locator
	ConfirmButton        interfaces.Locator
}

func css(name, query string) interfaces.Locator {
	return interfaces.Locator{Name: name, Query: query, Kind: interfaces.ByCSS}
}

func xpath(name, query string) interfaces.Locator {
	return interfaces.Locator{Name: name, Query: query, Kind: interfaces.ByXPath}
}

// DefaultLocators returns the selectors the site currently serves
func DefaultLocators(baseURL string) Locators {
	return Locators{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		LoginPath:   "/login",
		ResultPath:  "/video/result",
		ProfilePath: "/settings/profile",

		ResultURLMarkers: []string{"hmtask", "moments"},

		EmailInput:    css("email_input", "#basic_email_login"),
		PasswordInput: css("password_input", "input.vh-input[type='password']"),
		LoginSubmit:   css("login_submit", "button[type='submit'].vh-btn-primary"),

		Body:          css("body", "body"),
		PromptInput:   css("prompt_input", "input.vh-input"),
		SearchButton:  css("search_button", "button.search-button"),
		RowContainer:  css("row_container", "div.w-full.relative"),
		ScreenshotRow: css("screenshot_row", "div.flex-1.min-w-0.flex.flex-col"),
		DataRow:       css("data_row", "div[data-index]"),

		RowTimestamp:   css("row_timestamp", "span.text-gray-500"),
		RowTitle:       css("row_title", "span.font-medium"),
		RowDescription: css("row_description", "span.text-gray-700"),

		ChangePasswordButton: xpath("change_password_button", "//button[contains(@class,'vh-btn') and contains(., 'Change')]"),
		NewPasswordInput:     css("new_password_input", "#basic_password"),
		RepeatPasswordInput:  css("repeat_password_input", "#basic_repeat"),
		SendCodeButton:       xpath("send_code_button", "//div[contains(@class,'send-code-right-btn') and contains(., 'Send')]"),
		VerificationInput:    xpath("verification_input", "//input[@placeholder='Enter verification code']"),
		ConfirmButton:        xpath("confirm_button", "//button[contains(@class,'vh-btn-primary') and contains(., 'Confirm')]"),
	}
}

func (l *Locators) all() []*interfaces.Locator {
	return []*interfaces.Locator{
		&l.EmailInput, &l.PasswordInput, &l.LoginSubmit,
		&l.Body, &l.PromptInput, &l.SearchButton, &l.RowContainer, &l.ScreenshotRow, &l.DataRow,
		&l.RowTimestamp, &l.RowTitle, &l.RowDescription,
		&l.ChangePasswordButton, &l.NewPasswordInput, &l.RepeatPasswordInput,
		&l.SendCodeButton, &l.VerificationInput, &l.ConfirmButton,
	}
}

// WithOverrides returns a copy with selector queries replaced by name.
// A query starting with "/" or "(" is treated as XPath. Unknown names are returned.
func (l Locators) WithOverrides(overrides map[string]string) (Locators, []string) {
	var unknown []string
	for name, query := range overrides {
		found := false
		for _, loc := range l.all() {
			if loc.Name != name {
				continue
			}
			loc.Query = query
			loc.Kind = interfaces.ByCSS
			if strings.HasPrefix(query, "/") || strings.HasPrefix(query, "(") {
				loc.Kind = interfaces.ByXPath
			}
			found = true
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	return l, unknown
}

func (l Locators) LoginURL() string {
	return l.BaseURL + l.LoginPath
}

func (l Locators) ProfileURL() string {
	return l.BaseURL + l.ProfilePath
}

// ResultURL builds the result page address for a video
func (l Locators) ResultURL(videoURL string) string {
	return l.BaseURL + l.ResultPath + "?url=" + url.QueryEscape(videoURL) + "&input_t=URL"
}

// HasResultMarker reports whether pageURL shows the search was accepted
func (l Locators) HasResultMarker(pageURL string) bool {
	for _, marker := range l.ResultURLMarkers {
		if strings.Contains(pageURL, marker) {
			return true
		}
	}
	return false
}
