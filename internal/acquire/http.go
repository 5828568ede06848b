package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

const (
	maxBodyBytes = 10 << 20
	userAgent    = "Mozilla/5.0 (compatible; OnboardAssistant/1.0; +https://github.com/HanTheDev/onboard-assistant)"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// get returns the response body, mapping transport failures and non-2xx
// statuses to ErrAcquisition.
func get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", models.ErrAcquisition, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", models.ErrAcquisition, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetch %s: status %d", models.ErrAcquisition, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrAcquisition, rawURL, err)
	}
	return body, nil
}
