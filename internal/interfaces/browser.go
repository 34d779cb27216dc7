package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLaunch is returned when the automation browser cannot be started
	ErrLaunch = errors.New("browser launch failed")
	// ErrWaitTimeout is returned when a bounded wait expires before its condition holds
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrElementNotFound is returned when an element handle no longer resolves
	ErrElementNotFound = errors.New("element not found")
	// ErrSessionClosed is returned by operations on a closed session
	ErrSessionClosed = errors.New("browser session closed")
)

// LocatorKind selects how a Locator query is resolved
type LocatorKind string

const (
	ByCSS   LocatorKind = "css"
	ByXPath LocatorKind = "xpath"
	ByID    LocatorKind = "id"
)

// Locator addresses elements on the remote page
type Locator struct {
	Name  string      // Stable name used in logs and config overrides
	Query string      // CSS selector, XPath expression or element id
	Kind  LocatorKind // Defaults to ByCSS
}

func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Query
}

// Element is a session-scoped handle to a DOM node
type Element struct {
	NodeID  int64
	Locator Locator
}

// BrowserSession owns one automated-browser process.
// Every wait is bounded by its timeout and by ctx; Close is idempotent.
type BrowserSession interface {
	// Navigate loads url and waits for the navigation to commit
	Navigate(ctx context.Context, url string) error

	// WaitFor waits until the first element matching loc is visible and enabled
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)

	// FindAll returns every element matching loc in DOM order without waiting
	FindAll(ctx context.Context, loc Locator) ([]Element, error)

	// Exists reports whether any element matches loc right now
	Exists(ctx context.Context, loc Locator) (bool, error)

	// Click clicks the element
	Click(ctx context.Context, el Element) error

	// Type clears the element and types text into it
	Type(ctx context.Context, el Element, text string) error

	// OuterHTML returns the element's outer HTML
	OuterHTML(ctx context.Context, el Element) (string, error)

	// ScrollIntoView scrolls the element to the centre of the viewport
	ScrollIntoView(ctx context.Context, el Element) error

	// Screenshot captures the element, or the full page when el is nil, as PNG bytes
	Screenshot(ctx context.Context, el *Element) ([]byte, error)

	// CurrentURL returns the URL of the current page
	CurrentURL(ctx context.Context) (string, error)

	// Close terminates the browser process. Safe to call more than once.
	Close() error
}

// BrowserLauncher opens new browser sessions
type BrowserLauncher interface {
	// Open starts a browser. Errors wrap ErrLaunch.
	Open(ctx context.Context) (BrowserSession, error)
}
