package plugin

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"dlq/internal/textutil"
)

// DirectID is the ID of the built-in direct-link service.
const DirectID = "direct"

// Direct handles plain http and https links. It never asks for a captcha,
// settings, or a wait.
type Direct struct {
	client    *http.Client
	userAgent string
}

// DirectOption customizes Direct.
type DirectOption func(*Direct)

// WithHTTPClient replaces the HTTP client used for HEAD probes.
func WithHTTPClient(client *http.Client) DirectOption {
	return func(d *Direct) {
		if client != nil {
			d.client = client
		}
	}
}

// WithUserAgent sets the User-Agent sent with probes.
func WithUserAgent(ua string) DirectOption {
	return func(d *Direct) { d.userAgent = strings.TrimSpace(ua) }
}

// NewDirect constructs the direct-link service.
func NewDirect(timeout time.Duration, opts ...DirectOption) *Direct {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Direct{client: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Direct) ID() string { return DirectID }

func (d *Direct) Matches(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CheckURL probes rawURL with HEAD and names the result from
// Content-Disposition, falling back to the URL path. Servers that reject HEAD
// still yield a result named from the URL.
func (d *Direct) CheckURL(ctx context.Context, rawURL string, _ Settings) ([]URLResult, error) {
	if !d.Matches(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrNoPlugin, rawURL)
	}
	result := URLResult{URL: rawURL, FileName: fileNameFromURL(rawURL), PluginID: DirectID}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build head request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		return []URLResult{result}, nil
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("probe %s: %s", rawURL, resp.Status)
	}
	if name := fileNameFromDisposition(resp.Header.Get("Content-Disposition")); name != "" {
		result.FileName = name
	} else if final := resp.Request.URL.String(); final != rawURL {
		result.FileName = fileNameFromURL(final)
	}
	if resp.ContentLength > 0 {
		result.Size = resp.ContentLength
	}
	return []URLResult{result}, nil
}

func (d *Direct) GetDownloadRequest(_ context.Context, rawURL string, _ Settings) (Result, error) {
	if !d.Matches(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrNoPlugin, rawURL)
	}
	return DownloadRequest{URL: rawURL, Method: http.MethodGet}, nil
}

func (d *Direct) SubmitCaptchaResponse(context.Context, string, string) (Result, error) {
	return nil, ErrUnknownCallback
}

func (d *Direct) SubmitSettingsResponse(context.Context, string, map[string]any) (Result, error) {
	return nil, ErrUnknownCallback
}

func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return textutil.SanitizeFileName(path.Base(params["filename"]))
}

func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return textutil.SanitizeFileName(u.Host)
	}
	return textutil.SanitizeFileName(base)
}
