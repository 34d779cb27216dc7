package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
)

const waitPollInterval = 100 * time.Millisecond

// interactableJS reports whether the node is rendered with a box and not disabled
const interactableJS = `function() {
	return !this.disabled && Boolean(this.offsetWidth || this.offsetHeight || this.getClientRects().length);
}`

// Session is a chromedp-backed BrowserSession.
// Element handles are DOM node IDs and are only valid for the current document.
type Session struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	closeOnce       sync.Once
	logger          arbor.ILogger
}

func newSession(browserCtx context.Context, browserCancel, allocatorCancel context.CancelFunc, logger arbor.ILogger) *Session {
	return &Session{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		logger:          logger,
	}
}

// run executes actions on the browser, bounded by both ctx and timeout (0 = ctx only)
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.browserCtx.Err() != nil {
		return interfaces.ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, timeout)
		defer timeoutCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}

	switch {
	case s.browserCtx.Err() != nil:
		return interfaces.ErrSessionClosed
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return interfaces.ErrWaitTimeout
	}
	return err
}

func queryOption(kind interfaces.LocatorKind) chromedp.QueryOption {
	switch kind {
	case interfaces.ByXPath:
		return chromedp.BySearch
	case interfaces.ByID:
		return chromedp.ByID
	default:
		return chromedp.ByQueryAll
	}
}

func nodeSel(el interfaces.Element) []cdp.NodeID {
	return []cdp.NodeID{cdp.NodeID(el.NodeID)}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// WaitFor polls until one element matching loc is visible and enabled and returns
// the first such element. Hidden or disabled matches are skipped.
func (s *Session) WaitFor(ctx context.Context, loc interfaces.Locator, timeout time.Duration) (interfaces.Element, error) {
	var found cdp.NodeID
	err := s.run(ctx, timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(waitPollInterval)
		defer ticker.Stop()

		for {
			var nodes []*cdp.Node
			if err := chromedp.Nodes(loc.Query, &nodes, queryOption(loc.Kind), chromedp.AtLeast(0)).Do(ctx); err != nil {
				return err
			}
			if id, ok := firstReady(nodes, func(id cdp.NodeID) bool { return interactable(ctx, id) }); ok {
				found = id
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}))
	if err != nil {
		return interfaces.Element{}, fmt.Errorf("wait for %s: %w", loc, err)
	}

	return interfaces.Element{NodeID: int64(found), Locator: loc}, nil
}

// firstReady returns the first node in document order accepted by ready
func firstReady(nodes []*cdp.Node, ready func(cdp.NodeID) bool) (cdp.NodeID, bool) {
	for _, n := range nodes {
		if n != nil && ready(n.NodeID) {
			return n.NodeID, true
		}
	}
	return cdp.EmptyNodeID, false
}

// interactable must run on a chromedp executor context. Nodes that vanished
// between query and check count as not ready.
func interactable(ctx context.Context, id cdp.NodeID) bool {
	if _, err := dom.GetBoxModel().WithNodeID(id).Do(ctx); err != nil {
		return false
	}

	obj, err := dom.ResolveNode().WithNodeID(id).Do(ctx)
	if err != nil {
		return false
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	var ready bool
	err = chromedp.CallFunctionOn(interactableJS, &ready,
		func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		},
	).Do(ctx)
	return err == nil && ready
}

func (s *Session) FindAll(ctx context.Context, loc interfaces.Locator) ([]interfaces.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, 0, chromedp.Nodes(loc.Query, &nodes, queryOption(loc.Kind), chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}

	elements := make([]interfaces.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, interfaces.Element{NodeID: int64(n.NodeID), Locator: loc})
	}
	return elements, nil
}

func (s *Session) Exists(ctx context.Context, loc interfaces.Locator) (bool, error) {
	elements, err := s.FindAll(ctx, loc)
	if err != nil {
		return false, err
	}
	return len(elements) > 0, nil
}

func (s *Session) Click(ctx context.Context, el interfaces.Element) error {
	if err := s.run(ctx, 0, chromedp.Click(nodeSel(el), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click %s: %w", el.Locator, err)
	}
	return nil
}

func (s *Session) Type(ctx context.Context, el interfaces.Element, text string) error {
	err := s.run(ctx, 0,
		chromedp.Clear(nodeSel(el), chromedp.ByNodeID),
		chromedp.SendKeys(nodeSel(el), text, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("type into %s: %w", el.Locator, err)
	}
	return nil
}

func (s *Session) OuterHTML(ctx context.Context, el interfaces.Element) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML(nodeSel(el), &html, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("outer html of %s: %w", el.Locator, err)
	}
	return html, nil
}

func (s *Session) ScrollIntoView(ctx context.Context, el interfaces.Element) error {
	if err := s.run(ctx, 0, chromedp.ScrollIntoView(nodeSel(el), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("scroll to %s: %w", el.Locator, err)
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context, el *interfaces.Element) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if el == nil {
		// Quality 100 keeps the capture lossless PNG
		action = chromedp.FullScreenshot(&buf, 100)
	} else {
		action = chromedp.Screenshot(nodeSel(*el), &buf, chromedp.ByNodeID)
	}

	if err := s.run(ctx, 0, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, 0, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("current url: %w", err)
	}
	return url, nil
}

// Close terminates the browser process. Later calls are no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocatorCancel != nil {
			s.allocatorCancel()
		}
		s.logger.Debug().Msg("Browser session closed")
	})
	return nil
}
