package invoice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrRenderFailed wraps every failure mode of the browser pipeline. Callers
// only need to know the upstream renderer broke, not which step.
var ErrRenderFailed = errors.New("invoice rendering failed")

// Renderer turns a bill into a downloadable PDF and returns the download URL
// path for it.
type Renderer interface {
	Render(ctx context.Context, shopID string, billID string) (string, error)
}

// ChromeRenderer drives a headless Chrome session against the server's own
// invoice view and prints it to PDF.
type ChromeRenderer struct {
	baseURL   string
	outputDir string
	timeout   time.Duration
}

func NewChromeRenderer(baseURL string, outputDir string, timeout time.Duration) *ChromeRenderer {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		outputDir: outputDir,
		timeout:   timeout,
	}
}

func (r *ChromeRenderer) OutputDir() string {
	return r.outputDir
}

func (r *ChromeRenderer) Render(ctx context.Context, shopID string, billID string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// The whole navigate-wait-print sequence shares one deadline so a page
	// that never finishes loading cannot hold the request open.
	runCtx, cancelRun := context.WithTimeout(browserCtx, r.timeout)
	defer cancelRun()

	viewURL := fmt.Sprintf("%s/invoice/%s-%s", r.baseURL, shopID, billID)

	var pdf []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate(viewURL),
		chromedp.WaitVisible(".invoice-items", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var printErr error
			pdf, _, printErr = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			return printErr
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	fileName := fmt.Sprintf("invoice-%s.pdf", billID)
	if err := os.WriteFile(filepath.Join(r.outputDir, fileName), pdf, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	return "/api/invoiceDownload?file=" + url.QueryEscape(fileName), nil
}
