package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
)

func TestSession_CloseIsIdempotent(t *testing.T) {
	browserCtx, browserCancel := context.WithCancel(context.Background())
	browserCalls, allocatorCalls := 0, 0

	s := newSession(browserCtx,
		func() { browserCalls++; browserCancel() },
		func() { allocatorCalls++ },
		arbor.NewLogger(),
	)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, browserCalls)
	assert.Equal(t, 1, allocatorCalls)
}

func TestSession_OperationsAfterCloseFail(t *testing.T) {
	browserCtx, browserCancel := context.WithCancel(context.Background())
	s := newSession(browserCtx, browserCancel, func() {}, arbor.NewLogger())
	require.NoError(t, s.Close())

	ctx := context.Background()
	err := s.Navigate(ctx, "https://example.com")
	assert.ErrorIs(t, err, interfaces.ErrSessionClosed)

	_, err = s.WaitFor(ctx, interfaces.Locator{Name: "body", Query: "body"}, time.Second)
	assert.ErrorIs(t, err, interfaces.ErrSessionClosed)

	_, err = s.CurrentURL(ctx)
	assert.ErrorIs(t, err, interfaces.ErrSessionClosed)
}

func TestLauncher_AllocatorOptions(t *testing.T) {
	l := NewLauncher(common.BrowserConfig{
		Headless:  true,
		NoSandbox: true,
		WindowW:   1280,
		WindowH:   720,
		ExecPath:  "/usr/bin/chromium",
		UserAgent: "test-agent",
	}, arbor.NewLogger())

	base := NewLauncher(common.BrowserConfig{}, arbor.NewLogger())

	// Window size, user agent and exec path each add one option
	assert.Equal(t, len(base.allocatorOptions())+3, len(l.allocatorOptions()))
	assert.Equal(t, 30*time.Second, base.config.LaunchWait.Std())
}

func TestLauncher_OpenHonoursCancelledContext(t *testing.T) {
	l := NewLauncher(common.BrowserConfig{LaunchRate: common.Duration(time.Hour)}, arbor.NewLogger())
	// Drain the single burst token so the next Wait has to block
	require.True(t, l.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Open(ctx)
	assert.ErrorIs(t, err, interfaces.ErrLaunch)
}

func TestFirstReady_SkipsHiddenMatches(t *testing.T) {
	nodes := []*cdp.Node{{NodeID: 11}, nil, {NodeID: 12}, {NodeID: 13}}
	visible := map[cdp.NodeID]bool{12: true, 13: true}

	id, ok := firstReady(nodes, func(id cdp.NodeID) bool { return visible[id] })
	assert.True(t, ok)
	assert.Equal(t, cdp.NodeID(12), id)

	_, ok = firstReady(nodes, func(cdp.NodeID) bool { return false })
	assert.False(t, ok)

	_, ok = firstReady(nil, func(cdp.NodeID) bool { return true })
	assert.False(t, ok)
}

func findChrome(t *testing.T) string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary available")
	return ""
}

const duplicateInputsPage = `<html><body>
<input class="vh-input" style="display:none">
<input class="vh-input" disabled>
<input class="vh-input" id="ready">
<div><span>Search</span></div>
<div style="display:none"><span>Hidden</span></div>
</body></html>`

func TestSession_WaitForPicksInteractableMatch(t *testing.T) {
	execPath := findChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, duplicateInputsPage)
	}))
	defer server.Close()

	l := NewLauncher(common.BrowserConfig{Headless: true, NoSandbox: true, ExecPath: execPath}, arbor.NewLogger())
	ctx := context.Background()
	session, err := l.Open(ctx)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(ctx, server.URL))

	input := interfaces.Locator{Name: "prompt_input", Kind: interfaces.ByCSS, Query: "input.vh-input"}
	el, err := session.WaitFor(ctx, input, 5*time.Second)
	require.NoError(t, err)

	html, err := session.OuterHTML(ctx, el)
	require.NoError(t, err)
	assert.Contains(t, html, `id="ready"`)

	hidden := interfaces.Locator{Name: "hidden", Kind: interfaces.ByXPath, Query: "//span[text()='Hidden']"}
	_, err = session.WaitFor(ctx, hidden, 500*time.Millisecond)
	assert.ErrorIs(t, err, interfaces.ErrWaitTimeout)

	search := interfaces.Locator{Name: "search", Kind: interfaces.ByXPath, Query: "//span[text()='Search']"}
	_, err = session.WaitFor(ctx, search, 5*time.Second)
	assert.NoError(t, err)
}
