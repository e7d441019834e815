// Package api is the HTTP client for a site's file, process and database
// endpoints.
//
// Failures are returned to the caller as *APIError and never retried: the
// console reports them and the user repeats the action.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"director-console/internal/metrics"
)

// Files is the file-operation surface shared by the HTTP API and the SFTP
// backend.
type Files interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte) error
	Create(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Chmod(ctx context.Context, path string, executable bool) error
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	SiteID  int
	// Token is sent as a bearer token when set.
	Token string
	// SessionCookie and CSRFToken authenticate like a browser session.
	SessionCookie string
	CSRFToken     string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client talks to one site's endpoints.
type Client struct {
	base       *url.URL
	siteID     int
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:       base,
		siteID:     cfg.SiteID,
		cfg:        cfg,
		httpClient: hc,
		log:        log.Named("api"),
	}, nil
}

// SiteID returns the site this client is bound to.
func (c *Client) SiteID() int { return c.siteID }

func (c *Client) siteURL(endpoint string, q url.Values) string {
	u := *c.base
	u.Path = fmt.Sprintf("%s/sites/%d/%s", u.Path, c.siteID, endpoint)
	u.RawQuery = q.Encode()
	return u.String()
}

// SocketURL returns the WebSocket URL of a site socket endpoint, such as
// "files/monitor/". The empty endpoint is the site status socket.
func (c *Client) SocketURL(endpoint string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("%s/sites/%d/%s", u.Path, c.siteID, endpoint)
	return u.String()
}

// Header returns the authentication headers for sockets and requests.
func (c *Client) Header() http.Header {
	h := http.Header{}
	if c.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.SessionCookie != "" {
		h.Add("Cookie", "sessionid="+c.cfg.SessionCookie)
	}
	if c.cfg.CSRFToken != "" {
		h.Add("Cookie", "csrftoken="+c.cfg.CSRFToken)
		h.Set("X-CSRFToken", c.cfg.CSRFToken)
	}
	origin := *c.base
	origin.Path = ""
	h.Set("Origin", origin.String())
	return h
}

func (c *Client) do(ctx context.Context, method, endpoint string, q url.Values, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.siteURL(endpoint, q), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.Header() {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordAPIRequest(endpoint, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = "Unknown error"
		}
		c.log.Debug("request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func pathQuery(path string) url.Values {
	return url.Values{"path": {path}}
}

func formBody(key, value string) (io.Reader, string) {
	return strings.NewReader(url.Values{key: {value}}.Encode()), "application/x-www-form-urlencoded"
}

// Get returns a file's contents.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "files/get/", pathQuery(path), nil, "")
}

// Write replaces a file's contents.
func (c *Client) Write(ctx context.Context, path string, content []byte) error {
	body, ct := formBody("contents", string(content))
	_, err := c.do(ctx, http.MethodPost, "files/write/", pathQuery(path), body, ct)
	return err
}

// Create creates an empty file.
func (c *Client) Create(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, "files/create/", pathQuery(path), nil, "")
	return err
}

// Upload writes the named local files into the directory dir in one
// multipart request.
func (c *Client) Upload(ctx context.Context, dir string, files map[string]io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, r := range files {
		part, err := mw.CreateFormFile("files[]", filepath.Base(name))
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, r); err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish upload form: %w", err)
	}
	_, err := c.do(ctx, http.MethodPost, "files/write/", pathQuery(dir), &buf, mw.FormDataContentType())
	return err
}

// Mkdir creates a directory.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, "files/mkdir/", pathQuery(path), nil, "")
	return err
}

// Remove deletes a file or an empty directory.
func (c *Client) Remove(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, "files/rm/", pathQuery(path), nil, "")
	return err
}

// RemoveAll deletes a directory and everything under it.
func (c *Client) RemoveAll(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, "files/rmdir-recur/", pathQuery(path), nil, "")
	return err
}

// Rename moves oldPath to newPath.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	q := url.Values{"oldpath": {oldPath}, "newpath": {newPath}}
	_, err := c.do(ctx, http.MethodPost, "files/rename/", q, nil, "")
	return err
}

// Chmod sets or clears the executable bits.
func (c *Client) Chmod(ctx context.Context, path string, executable bool) error {
	mode := "-x"
	if executable {
		mode = "+x"
	}
	q := pathQuery(path)
	q.Set("mode", mode)
	_, err := c.do(ctx, http.MethodPost, "files/chmod/", q, nil, "")
	return err
}

// DownloadZip returns a zip archive of a directory.
func (c *Client) DownloadZip(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "files/download_zip/", pathQuery(path), nil, "")
}

// Restart restarts the site's process.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "restart/raw/", nil, nil, "")
	return err
}

// Query runs SQL in the site's database shell and returns its output.
func (c *Client) Query(ctx context.Context, sql string) (string, error) {
	body, ct := formBody("sql", sql)
	out, err := c.do(ctx, http.MethodPost, "database/shell/", nil, body, ct)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
