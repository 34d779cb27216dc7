package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

const testBaseURL = "https://videohunt.test"

type fakeNode struct {
	html    string
	shotErr error
}

type fakeHandle struct {
	name  string
	index int
}

// fakeSession is a scripted page keyed by locator name
type fakeSession struct {
	mu         sync.Mutex
	url        string
	nodes      map[string][]fakeNode
	onClick    map[string]func(s *fakeSession)
	typed      map[string]string
	handles    []fakeHandle
	closeCalls int
	panicOn    string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		nodes:   make(map[string][]fakeNode),
		onClick: make(map[string]func(s *fakeSession)),
		typed:   make(map[string]string),
	}
}

func (s *fakeSession) set(name string, nodes ...fakeNode) {
	s.nodes[name] = nodes
}

func (s *fakeSession) setURL(url string) {
	s.url = url
}

func (s *fakeSession) handle(name string, i int) interfaces.Element {
	s.handles = append(s.handles, fakeHandle{name: name, index: i})
	return interfaces.Element{NodeID: int64(len(s.handles) - 1), Locator: interfaces.Locator{Name: name}}
}

func (s *fakeSession) resolve(el interfaces.Element) (fakeNode, fakeHandle, error) {
	if el.NodeID < 0 || int(el.NodeID) >= len(s.handles) {
		return fakeNode{}, fakeHandle{}, interfaces.ErrElementNotFound
	}
	h := s.handles[el.NodeID]
	nodes := s.nodes[h.name]
	if h.index >= len(nodes) {
		return fakeNode{}, h, interfaces.ErrElementNotFound
	}
	return nodes[h.index], h, nil
}

func (s *fakeSession) check(ctx context.Context, op string) error {
	if s.panicOn == op {
		panic("fake session: " + op)
	}
	if s.closeCalls > 0 {
		return interfaces.ErrSessionClosed
	}
	return ctx.Err()
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "navigate"); err != nil {
		return err
	}
	s.url = url
	return nil
}

func (s *fakeSession) WaitFor(ctx context.Context, loc interfaces.Locator, timeout time.Duration) (interfaces.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "wait"); err != nil {
		return interfaces.Element{}, err
	}
	if len(s.nodes[loc.Name]) == 0 {
		return interfaces.Element{}, fmt.Errorf("wait for %s: %w", loc, interfaces.ErrWaitTimeout)
	}
	return s.handle(loc.Name, 0), nil
}

func (s *fakeSession) FindAll(ctx context.Context, loc interfaces.Locator) ([]interfaces.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "find"); err != nil {
		return nil, err
	}
	var out []interfaces.Element
	for i := range s.nodes[loc.Name] {
		out = append(out, s.handle(loc.Name, i))
	}
	return out, nil
}

func (s *fakeSession) Exists(ctx context.Context, loc interfaces.Locator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "exists"); err != nil {
		return false, err
	}
	return len(s.nodes[loc.Name]) > 0, nil
}

func (s *fakeSession) Click(ctx context.Context, el interfaces.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "click"); err != nil {
		return err
	}
	_, h, err := s.resolve(el)
	if err != nil {
		return err
	}
	if fn := s.onClick[h.name]; fn != nil {
		fn(s)
	}
	return nil
}

func (s *fakeSession) Type(ctx context.Context, el interfaces.Element, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "type"); err != nil {
		return err
	}
	_, h, err := s.resolve(el)
	if err != nil {
		return err
	}
	s.typed[h.name] = text
	return nil
}

func (s *fakeSession) OuterHTML(ctx context.Context, el interfaces.Element) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "html"); err != nil {
		return "", err
	}
	node, _, err := s.resolve(el)
	return node.html, err
}

func (s *fakeSession) ScrollIntoView(ctx context.Context, el interfaces.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx, "scroll")
}

func (s *fakeSession) Screenshot(ctx context.Context, el *interfaces.Element) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "screenshot"); err != nil {
		return nil, err
	}
	if el == nil {
		return []byte("full-page-png"), nil
	}
	node, h, err := s.resolve(*el)
	if err != nil {
		return nil, err
	}
	if node.shotErr != nil {
		return nil, node.shotErr
	}
	return []byte(fmt.Sprintf("png-%s-%d", h.name, h.index)), nil
}

func (s *fakeSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "url"); err != nil {
		return "", err
	}
	return s.url, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *fakeSession) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

type fakeLauncher struct {
	session *fakeSession
	err     error
	opens   int
}

func (l *fakeLauncher) Open(ctx context.Context) (interfaces.BrowserSession, error) {
	l.opens++
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type staticCreds struct {
	mu    sync.Mutex
	creds models.Credentials
}

func (c *staticCreds) Current() models.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

func (c *staticCreds) Update(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds.Password = password
	return nil
}

func testTimeouts() Timeouts {
	return Timeouts{
		Element:   20 * time.Millisecond,
		Login:     40 * time.Millisecond,
		Results:   40 * time.Millisecond,
		RowRender: 40 * time.Millisecond,
		Confirm:   40 * time.Millisecond,
		Poll:      2 * time.Millisecond,
	}
}

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func rowHTML(index int, timestamp, title, description string) string {
	html := fmt.Sprintf(`<div data-index="%d" class="item"><div class="content">`, index)
	if timestamp != "" {
		html += fmt.Sprintf(`<span class="text-gray-500">%s</span>`, timestamp)
	}
	if title != "" {
		html += fmt.Sprintf(`<span class="font-medium">%s</span>`, title)
	}
	if description != "" {
		html += fmt.Sprintf(`<span class="text-gray-700">%s</span>`, description)
	}
	return html + `</div></div>`
}

// loginPage scripts a login form whose submit moves to the dashboard
func loginPage(s *fakeSession, succeed bool) {
	s.set("email_input", fakeNode{})
	s.set("password_input", fakeNode{})
	s.set("login_submit", fakeNode{})
	s.onClick["login_submit"] = func(s *fakeSession) {
		if succeed {
			s.setURL(testBaseURL + "/dashboard")
		}
	}
}

// resultPage scripts the search form; clicking search moves to marker and renders rows
func resultPage(s *fakeSession, marker bool, rows []fakeNode, shots []fakeNode) {
	s.set("body", fakeNode{})
	s.set("prompt_input", fakeNode{})
	s.set("search_button", fakeNode{})
	s.onClick["search_button"] = func(s *fakeSession) {
		if marker {
			s.setURL(testBaseURL + "/video/hmtask/42")
		}
		if len(rows) > 0 {
			s.set("row_container", fakeNode{})
			s.set("data_row", rows...)
			s.set("screenshot_row", shots...)
		}
	}
}

var errShot = errors.New("capture failed")
