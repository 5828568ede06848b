package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

var _ Fetcher = (*Browser)(nil)

const extractScript = `(() => {
  const el = document.querySelector('main, [role="main"], article') || document.body;
  return el ? el.innerText : '';
})()`

// Browser renders client-side applications in headless Chrome. Each Fetch
// starts its own browser process and tears it down before returning.
type Browser struct {
	timeout     time.Duration
	settleDelay time.Duration
	allocOpts   []chromedp.ExecAllocatorOption
	logger      *zap.Logger
}

func NewBrowser(timeout, settleDelay time.Duration, logger *zap.Logger) *Browser {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(userAgent),
	)
	return &Browser{timeout: timeout, settleDelay: settleDelay, allocOpts: opts, logger: logger}
}

func (b *Browser) Fetch(ctx context.Context, rawURL string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, b.timeout)
	defer cancelRun()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	var text string
	err := chromedp.Run(runCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(rawURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			select {
			case <-idle:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
		chromedp.Sleep(b.settleDelay),
		chromedp.Evaluate(extractScript, &text),
	)
	if err != nil {
		return "", fmt.Errorf("%w: render %s: %w", models.ErrAcquisition, rawURL, err)
	}

	b.logger.Debug("rendered page", zap.String("url", rawURL), zap.Int("chars", len(text)))
	return text, nil
}
