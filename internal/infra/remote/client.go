package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/you-humble/docsort/internal/domain"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the plain-HTTP implementation of the remote document-processing
// capability: multipart submissions, URL-addressed status polling and
// document downloads.
type Client struct {
	httpc   *http.Client
	baseURL *url.URL
	apiKey  string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("empty remote base url")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  cfg.APIKey,
	}, nil
}

func (c *Client) SubmitRename(ctx context.Context, path string) (domain.RenameSuggestion, error) {
	var out domain.RenameSuggestion
	if err := c.upload(ctx, "/v1/rename", path, nil, &out); err != nil {
		return domain.RenameSuggestion{}, err
	}
	return out, nil
}

func (c *Client) SubmitSplit(ctx context.Context, path, mode string) (domain.SplitJob, error) {
	var out domain.SplitJob
	fields := map[string]string{"mode": mode}
	if err := c.upload(ctx, "/v1/split", path, fields, &out); err != nil {
		return domain.SplitJob{}, err
	}
	return out, nil
}

func (c *Client) JobStatus(ctx context.Context, statusURL string) (domain.SplitJob, error) {
	target, err := c.resolve(statusURL)
	if err != nil {
		return domain.SplitJob{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.SplitJob{}, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.SplitJob{}, fmt.Errorf("job status: %w", err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return domain.SplitJob{}, err
	}

	var job domain.SplitJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return domain.SplitJob{}, fmt.Errorf("decode job status: %w", err)
	}
	if job.StatusURL == "" {
		job.StatusURL = statusURL
	}
	return job, nil
}

// DownloadDocument streams url into destPath through a temp file so a failed
// download never leaves a half-written destination.
func (c *Client) DownloadDocument(ctx context.Context, rawURL, destPath string) error {
	target, err := c.resolve(rawURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tempPath := destPath + ".tmp-" + fmt.Sprint(time.Now().UnixNano())
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tempPath)
	}()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// upload POSTs path as a multipart form with optional extra fields and
// decodes the JSON response into out. The body is streamed through a pipe so
// large files are never buffered in memory.
func (c *Client) upload(ctx context.Context, endpoint, path string, fields map[string]string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.Permanent(fmt.Errorf("open source: %w", err))
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(endpoint).String(), pr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// resolve turns a possibly-relative service URL into an absolute one.
func (c *Client) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("parse url %q: %w", raw, err))
	}
	if u.IsAbs() {
		return raw, nil
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// classify converts a non-2xx response into an error. Statuses that cannot
// succeed on retry are wrapped as permanent; timeouts, throttling and server
// errors stay retryable.
func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	err := fmt.Errorf("remote: %s", msg)

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return err
	default:
		return domain.Permanent(err)
	}
}
