// Package client submits documents to the translation gateway, tracks the
// resulting jobs until they finish and retrieves the translated artifacts.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"translator-api-scalable/api"
)

// MaxUploadSize is the largest document the gateway accepts.
const MaxUploadSize int64 = 15 << 20

// DefaultLanguageCode is preselected when the gateway offers it.
const DefaultLanguageCode = "sk"

// defaultFileName is used when a download carries no filename.
const defaultFileName = "translated"

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 4 << 10

// Client talks to one translation gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the gateway at baseURL. An empty baseURL makes
// every URL the client exposes relative to the serving host.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Requests are bounded by the caller's context only.
		httpClient: &http.Client{Transport: http.DefaultTransport},
		logger:     log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Languages fetches the ordered list of supported target languages.
func (c *Client) Languages(ctx context.Context) ([]api.Language, error) {
	body, err := c.get(ctx, "languages", api.LanguagesPath)
	if err != nil {
		return nil, err
	}

	var langs []api.Language
	if err := json.Unmarshal(body, &langs); err != nil {
		return nil, &ProtocolError{Reason: "language list is not a JSON array", Body: string(body)}
	}
	return langs, nil
}

// DefaultLanguage picks the language preselected for the user: code when
// offered, otherwise the first entry. It returns false for an empty list.
func DefaultLanguage(langs []api.Language, code string) (api.Language, bool) {
	if len(langs) == 0 {
		return api.Language{}, false
	}
	for _, lang := range langs {
		if lang.Code == code {
			return lang, true
		}
	}
	return langs[0], true
}

// Status reads the current snapshot of a job.
func (c *Client) Status(ctx context.Context, jobID string) (api.StatusResponse, error) {
	body, err := c.get(ctx, "status", api.StatusPath(url.PathEscape(jobID)))
	if err != nil {
		return api.StatusResponse{}, err
	}

	var snap api.StatusResponse
	if err := json.Unmarshal(body, &snap); err != nil {
		return api.StatusResponse{}, &ProtocolError{Reason: "status response is not valid JSON", Body: string(body)}
	}
	if snap.Phase == "" {
		return api.StatusResponse{}, &ProtocolError{Reason: "status response has no phase", Body: string(body)}
	}
	return snap, nil
}

// DownloadURL returns where the artifact of a finished job can be fetched.
func (c *Client) DownloadURL(jobID string) string {
	return c.baseURL + api.DownloadPath(url.PathEscape(jobID))
}

// Download streams the artifact of a finished job into w and returns the
// filename suggested by the server.
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) (string, int64, error) {
	resp, err := c.do(ctx, "download", http.MethodGet, c.DownloadURL(jobID), nil, "", -1)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return "", n, &TransportError{Op: "download", Err: err}
	}
	return filenameFromDisposition(resp.Header.Get("Content-Disposition")), n, nil
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	resp, err := c.do(ctx, op, http.MethodGet, c.baseURL+path, nil, "", -1)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return body, nil
}

// do performs one request. Any answer outside [200,300) is converted into a
// TransportError and its body closed; on success the caller owns the body.
func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType string, contentLength int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if contentLength >= 0 {
		req.ContentLength = contentLength
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		level.Debug(c.logger).Log("msg", "request failed", "op", op, "url", target, "err", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	level.Debug(c.logger).Log("msg", "request done", "op", op, "url", target, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			Detail:     errorDetail(raw),
		}
	}
	return resp, nil
}

// errorDetail extracts the "detail" message of a JSON error body.
func errorDetail(body []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Detail
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return defaultFileName
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return defaultFileName
	}
	name := strings.TrimSpace(params["filename"])
	// Never let the server choose a directory.
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	if name == "" || name == "." || name == ".." {
		return defaultFileName
	}
	return name
}

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
