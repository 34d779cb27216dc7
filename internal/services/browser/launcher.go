package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"golang.org/x/time/rate"
)

// Launcher starts one Chrome process per session via chromedp.
// Launches are paced so concurrent tasks do not start browsers in a burst.
type Launcher struct {
	config  common.BrowserConfig
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewLauncher creates a new browser launcher
func NewLauncher(config common.BrowserConfig, logger arbor.ILogger) *Launcher {
	limit := rate.Inf
	if config.LaunchRate > 0 {
		limit = rate.Every(config.LaunchRate.Std())
	}
	if config.LaunchWait <= 0 {
		config.LaunchWait = common.Duration(30 * time.Second)
	}

	return &Launcher{
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("start-maximized", true),

		// Anti-detection
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
	)

	if l.config.WindowW > 0 && l.config.WindowH > 0 {
		opts = append(opts, chromedp.WindowSize(l.config.WindowW, l.config.WindowH))
	}
	if l.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.config.UserAgent))
	}
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}

	return opts
}

// Open starts a browser and runs a startup test against about:blank.
// The browser lives until Close; ctx only bounds the launch.
func (l *Launcher) Open(ctx context.Context) (interfaces.BrowserSession, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLaunch, err)
	}

	startTime := time.Now()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			l.logger.Debug().Msgf("ChromeDP: "+s, i...)
		}),
	)

	session := newSession(browserCtx, browserCancel, allocatorCancel, l.logger)

	// The first Run allocates the browser and binds it to the context it is given,
	// so it must run on browserCtx itself and be bounded from outside.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(browserCtx, chromedp.Navigate("about:blank"))
	}()

	timer := time.NewTimer(l.config.LaunchWait.Std())
	defer timer.Stop()

	var err error
	select {
	case err = <-started:
	case <-timer.C:
		err = fmt.Errorf("no response within %s", l.config.LaunchWait)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("%w: startup test failed: %v", interfaces.ErrLaunch, err)
	}

	l.logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Bool("headless", l.config.Headless).
		Msg("Browser session started")

	return session, nil
}
