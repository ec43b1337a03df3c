package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-kit/log/level"

	"translator-api-scalable/api"
)

// UploadRequest is one document to translate.
type UploadRequest struct {
	FileName   string
	Data       []byte
	TargetLang string
}

// Validate checks the request before anything is sent.
func (r UploadRequest) Validate() error {
	if len(r.Data) == 0 {
		return ErrEmptyFile
	}
	if size := int64(len(r.Data)); size > MaxUploadSize {
		return &LimitExceededError{Size: size, Limit: MaxUploadSize}
	}
	if strings.TrimSpace(r.TargetLang) == "" {
		return ErrMissingLanguage
	}
	return nil
}

// Upload sends the document and returns the handle of the created job.
// onProgress, when set, receives the transferred percentage; values never
// decrease and the last one is 100 for a completed transfer. It is never
// called after Upload returns, even if the transport is still draining the body.
func (c *Client) Upload(ctx context.Context, req UploadRequest, onProgress func(percent int)) (JobHandle, error) {
	if err := req.Validate(); err != nil {
		return JobHandle{}, err
	}

	body, contentType, err := encodeUpload(req)
	if err != nil {
		return JobHandle{}, err
	}
	total := int64(body.Len())
	reader := &progressReader{r: body, total: total, report: onProgress}
	defer reader.stop()

	resp, err := c.do(ctx, "upload", http.MethodPost, c.baseURL+api.TranslatePath, reader, contentType, total)
	if err != nil {
		if statusCode(err) == http.StatusRequestEntityTooLarge {
			return JobHandle{}, &LimitExceededError{Size: int64(len(req.Data)), Limit: MaxUploadSize, Err: err}
		}
		return JobHandle{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobHandle{}, &TransportError{Op: "upload", Err: err}
	}
	reader.finish()

	handle, err := Resolve(raw)
	if err != nil {
		return JobHandle{}, err
	}
	level.Debug(c.logger).Log("msg", "upload accepted", "job_id", handle.JobID, "bytes", total)
	return handle, nil
}

func encodeUpload(req UploadRequest) (*bytes.Buffer, string, error) {
	name := filepath.Base(req.FileName)
	if name == "." || name == string(filepath.Separator) {
		name = "document.txt"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField(api.TargetLangField, req.TargetLang); err != nil {
		return nil, "", err
	}
	part, err := mw.CreateFormFile(api.FileField, name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// progressReader reports the share of the body consumed by the transport.
// Read runs on the transport's goroutine, so state is guarded.
type progressReader struct {
	r      io.Reader
	total  int64
	report func(int)

	mu      sync.Mutex
	sent    int64
	last    int
	stopped bool
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.sent += int64(n)
		p.emit(int(p.sent * 100 / p.total))
	}
	if errors.Is(err, io.EOF) {
		p.emit(100)
	}
	return n, err
}

func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(100)
}

// stop silences the reporter; reads keep working.
func (p *progressReader) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// emit must be called with mu held.
func (p *progressReader) emit(percent int) {
	if percent > 100 {
		percent = 100
	}
	if p.report == nil || p.stopped || percent <= p.last {
		return
	}
	p.last = percent
	p.report(percent)
}
