package acquire

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

var _ Fetcher = (*DocExport)(nil)

// hosted word-processor and slide documents that offer a plain-text export
var exportPattern = regexp.MustCompile(`^/(document|presentation)/d/([A-Za-z0-9_-]+)`)

func exportURL(u *url.URL) (string, bool) {
	if u.Hostname() != "docs.google.com" {
		return "", false
	}
	m := exportPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return "https://docs.google.com/" + m[1] + "/d/" + m[2] + "/export?format=txt", true
}

// DocExport downloads the plain-text export of a hosted document instead
// of rendering it.
type DocExport struct {
	client  *http.Client
	rewrite func(*url.URL) (string, bool)
}

func NewDocExport(timeout time.Duration) *DocExport {
	return &DocExport{client: newHTTPClient(timeout), rewrite: exportURL}
}

func (d *DocExport) Fetch(ctx context.Context, rawURL string) (string, error) {
	target := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		if exp, ok := d.rewrite(u); ok {
			target = exp
		}
	}
	body, err := get(ctx, d.client, target)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
