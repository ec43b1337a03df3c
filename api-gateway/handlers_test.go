package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"

	"translator-api-scalable/api"
	"translator-api-scalable/client"
	"translator-api-scalable/shared"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type gatewayFixture struct {
	srv    *server
	router *gin.Engine
	db     *shared.InMemoryDB
	queue  *shared.InMemoryQueue
	store  *shared.LocalStore
}

func newGatewayFixture(t *testing.T, mutate func(*shared.Config)) *gatewayFixture {
	t.Helper()
	cfg := &shared.Config{
		AdminToken:     "secret",
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: shared.DefaultMaxUploadBytes,
		BatchMaxChars:  shared.DefaultBatchMaxChars,
		MaxWorkers:     2,
	}
	if mutate != nil {
		mutate(cfg)
	}
	store, err := shared.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	f := &gatewayFixture{db: shared.NewInMemoryDB(), queue: shared.NewInMemoryQueue(10), store: store}
	backends := &shared.Backends{DB: f.db, Queue: f.queue, Store: store, Translator: shared.PassthroughTranslator{}}
	f.srv = newServer(cfg, backends, shared.NewRateLimiter(cfg.RateLimitRPM, nil), nil, log.NewNopLogger())
	f.srv.newID = func() string { return "abc123" }
	f.router = f.srv.routes()
	return f
}

func (f *gatewayFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fileName, content, lang string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if lang != "" {
		mw.WriteField(api.TargetLangField, lang)
	}
	if fileName != "" {
		part, err := mw.CreateFormFile(api.FileField, fileName)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		io.WriteString(part, content)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, api.TranslatePath, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return e.Detail
}

// TestLanguagesEndpoint serves the ordered catalog.
func TestLanguagesEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, api.LanguagesPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var langs []api.Language
	if err := json.Unmarshal(rec.Body.Bytes(), &langs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(langs) == 0 || langs[0].Code != "sk" {
		t.Fatalf("languages = %+v", langs)
	}
}

// TestTranslateQueuesJob checks the accepted-upload path end to end.
func TestTranslateQueuesJob(t *testing.T) {
	f := newGatewayFixture(t, nil)
	rec := f.do(uploadRequest(t, "notes.txt", "hello", "SK"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var ack api.UploadResponse
	json.Unmarshal(rec.Body.Bytes(), &ack)
	if ack.JobID != "abc123" {
		t.Fatalf("ack = %s", rec.Body.String())
	}

	job, err := f.db.GetJob(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Phase != api.PhaseQueued || job.TargetLang != "sk" || job.FileName != "notes.txt" {
		t.Fatalf("job = %+v", job)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("queued messages = %d, want 1", f.queue.Len())
	}
	rc, err := f.store.Get(context.Background(), job.SourceKey)
	if err != nil {
		t.Fatalf("source not stored: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("source = %q", data)
	}
}

// TestTranslateRejectsBadRequests covers every 4xx of the upload endpoint.
func TestTranslateRejectsBadRequests(t *testing.T) {
	f := newGatewayFixture(t, nil)
	cases := map[string]struct {
		req    *http.Request
		status int
		detail string
	}{
		"missing language": {uploadRequest(t, "a.txt", "x", ""), http.StatusBadRequest, "Missing target_lang"},
		"unsupported type": {uploadRequest(t, "scan.rtf", "x", "sk"), http.StatusBadRequest, "Unsupported file type: .rtf"},
		"unknown language": {uploadRequest(t, "a.txt", "x", "xx"), http.StatusBadRequest, "Unsupported target language: xx"},
		"missing file":     {uploadRequest(t, "", "", "sk"), http.StatusBadRequest, "Missing file"},
	}
	for name, tc := range cases {
		rec := f.do(tc.req)
		if rec.Code != tc.status || detailOf(t, rec) != tc.detail {
			t.Errorf("%s: %d %s, want %d %q", name, rec.Code, rec.Body.String(), tc.status, tc.detail)
		}
	}
	if f.queue.Len() != 0 {
		t.Fatalf("rejected uploads were queued: %d", f.queue.Len())
	}
}

// TestTranslateTooLarge checks both the header guard and the file size check.
func TestTranslateTooLarge(t *testing.T) {
	f := newGatewayFixture(t, nil)
	req := uploadRequest(t, "big.txt", "x", "sk")
	req.ContentLength = 16 << 20
	rec := f.do(req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if got := detailOf(t, rec); got != "File too large. Max 15 MB allowed." {
		t.Fatalf("detail = %q", got)
	}

	small := newGatewayFixture(t, func(c *shared.Config) { c.MaxUploadBytes = 4 })
	rec = small.do(uploadRequest(t, "big.txt", "more than four bytes", "sk"))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 for oversize file part", rec.Code)
	}
	if _, err := small.db.GetJob(context.Background(), "abc123"); err == nil {
		t.Fatal("job created for an oversize upload")
	}
}

// TestTranslatePublishFailureMarksJobFailed checks queue errors surface on the job.
func TestTranslatePublishFailureMarksJobFailed(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.queue.Close()

	rec := f.do(uploadRequest(t, "a.txt", "x", "sk"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	job, err := f.db.GetJob(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Phase != api.PhaseError || !strings.Contains(job.Error, "Failed to queue job") {
		t.Fatalf("job = %s %q", job.Phase, job.Error)
	}
}

// flakyDB fails the first n job updates.
type flakyDB struct {
	*shared.InMemoryDB
	mu       sync.Mutex
	failures int
}

func (d *flakyDB) UpdateJob(ctx context.Context, job *shared.Job) error {
	d.mu.Lock()
	fail := d.failures > 0
	if fail {
		d.failures--
	}
	d.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return d.InMemoryDB.UpdateJob(ctx, job)
}

// TestTranslateQueueMarkFailureFailsJob leaves no job stuck in uploading.
func TestTranslateQueueMarkFailureFailsJob(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.srv.db = &flakyDB{InMemoryDB: f.db, failures: 1}

	rec := f.do(uploadRequest(t, "a.txt", "x", "sk"))
	if rec.Code != http.StatusInternalServerError || detailOf(t, rec) != "Failed to initialize job" {
		t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
	}
	job, err := f.db.GetJob(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Phase != api.PhaseError || job.Error != "Failed to initialize job" {
		t.Fatalf("job = %s %q", job.Phase, job.Error)
	}
	if f.queue.Len() != 0 {
		t.Fatalf("queued messages = %d, want 0", f.queue.Len())
	}
	if _, err := f.store.Get(context.Background(), shared.SourceKey("abc123")); !errors.Is(err, shared.ErrObjectNotFound) {
		t.Fatalf("source still stored: %v", err)
	}
}

// TestStatusEndpoint serves snapshots and 404s unknown jobs.
func TestStatusEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, api.StatusPath("missing"), nil))
	if rec.Code != http.StatusNotFound || detailOf(t, rec) != "Job not found" {
		t.Fatalf("unknown job: %d %s", rec.Code, rec.Body.String())
	}

	f.db.CreateJob(context.Background(), &shared.Job{ID: "abc123", Phase: api.PhaseProcessing, Progress: 55})
	rec = f.do(httptest.NewRequest(http.MethodGet, api.StatusPath("abc123"), nil))
	var snap api.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Phase != api.PhaseProcessing || snap.Progress != 55 || snap.Done {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// TestDownloadEndpoint streams finished artifacts only.
func TestDownloadEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()
	f.db.CreateJob(ctx, &shared.Job{ID: "busy", Phase: api.PhaseProcessing})
	rec := f.do(httptest.NewRequest(http.MethodGet, api.DownloadPath("busy"), nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("unfinished job status = %d, want 409", rec.Code)
	}

	job := &shared.Job{ID: "abc123", FileName: "notes.txt", TargetLang: "sk", Phase: api.PhaseQueued}
	f.db.CreateJob(ctx, job)
	f.store.Put(ctx, shared.ResultKey("abc123"), strings.NewReader("ahoj svet"), 9)
	job.MarkDone(time.Now(), shared.ResultKey("abc123"), "notes_translated_sk.txt", api.DownloadPath("abc123"))
	f.db.UpdateJob(ctx, job)

	rec = f.do(httptest.NewRequest(http.MethodGet, api.DownloadPath("abc123"), nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ahoj svet" {
		t.Fatalf("download: %d %q", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes_translated_sk.txt") || !strings.HasPrefix(cd, "attachment") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("Content-Type = %q", ct)
	}

	word := &shared.Job{ID: "doc1", FileName: "letter.docx", TargetLang: "sk", Phase: api.PhaseQueued}
	f.db.CreateJob(ctx, word)
	f.store.Put(ctx, shared.ResultKey("doc1"), strings.NewReader("PK"), 2)
	word.MarkDone(time.Now(), shared.ResultKey("doc1"), "letter_translated_sk.docx", api.DownloadPath("doc1"))
	f.db.UpdateJob(ctx, word)

	rec = f.do(httptest.NewRequest(http.MethodGet, api.DownloadPath("doc1"), nil))
	if ct := rec.Header().Get("Content-Type"); rec.Code != http.StatusOK || ct != shared.ContentType("x.docx") || !strings.Contains(ct, "wordprocessingml") {
		t.Fatalf("docx download: %d %q", rec.Code, ct)
	}
}

// TestAdminRoutes checks bearer auth, listing and deletion.
func TestAdminRoutes(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()
	f.db.CreateJob(ctx, &shared.Job{ID: "abc123", Phase: api.PhaseQueued, SourceKey: shared.SourceKey("abc123")})
	f.store.Put(ctx, shared.SourceKey("abc123"), strings.NewReader("x"), 1)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/jobs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	authed := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer secret")
		return f.do(req)
	}
	rec = authed(http.MethodGet, "/admin/jobs")
	var jobs []shared.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil || len(jobs) != 1 {
		t.Fatalf("list = %d %s", rec.Code, rec.Body.String())
	}

	if rec = authed(http.MethodDelete, "/admin/jobs/abc123"); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, err := f.store.Get(ctx, shared.SourceKey("abc123")); err == nil {
		t.Fatal("source object survived job deletion")
	}
	if rec = authed(http.MethodGet, "/admin/jobs/abc123"); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

// TestRateLimitedAPI answers 429 once the per-IP quota is spent.
func TestRateLimitedAPI(t *testing.T) {
	f := newGatewayFixture(t, func(c *shared.Config) { c.RateLimitRPM = 1 })

	rec := f.do(httptest.NewRequest(http.MethodGet, api.LanguagesPath, nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("first: %d limit=%q", rec.Code, rec.Header().Get("X-RateLimit-Limit"))
	}
	rec = f.do(httptest.NewRequest(http.MethodGet, api.LanguagesPath, nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec = f.do(httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Fatalf("health is rate limited: %d", rec.Code)
	}
}

// TestCORSPreflight allows browser clients from any origin by default.
func TestCORSPreflight(t *testing.T) {
	f := newGatewayFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, api.TranslatePath, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := f.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

// TestClientRoundTripWithEmbeddedWorker drives the real client against the gateway.
func TestClientRoundTripWithEmbeddedWorker(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.srv.newID = func() string { return "e2e-job" }
	f.srv.processor = shared.NewProcessor(f.db, f.queue, f.store, shared.PassthroughTranslator{}, nil, shared.ProcessorOptions{MaxWorkers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.processor.Run(ctx)

	ts := httptest.NewServer(f.router)
	defer ts.Close()

	c := client.New(ts.URL)
	var (
		mu      sync.Mutex
		updates []client.Update
	)
	orch := client.NewOrchestrator(c, client.PollPolicy{Interval: 10 * time.Millisecond, MaxDuration: 10 * time.Second}, func(u client.Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}, nil)

	res, err := orch.Submit(ctx, client.UploadRequest{FileName: "notes.txt", Data: []byte("hello\n\nworld"), TargetLang: "sk"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.JobID != "e2e-job" || !res.Snapshot.Done {
		t.Fatalf("result = %+v", res)
	}
	if res.DownloadURL != ts.URL+"/api/download/e2e-job" {
		t.Fatalf("download url = %q", res.DownloadURL)
	}
	mu.Lock()
	last := updates[len(updates)-1]
	mu.Unlock()
	if last.State != client.StateDone {
		t.Fatalf("last update = %+v", last)
	}

	var buf bytes.Buffer
	name, _, err := c.Download(ctx, res.JobID, &buf)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if name != "notes_translated_sk.txt" || buf.String() != "hello\n\nworld" {
		t.Fatalf("download = %q %q", name, buf.String())
	}
}

// TestClientSeesUnsupportedEncoding surfaces the job error message to the client.
func TestClientSeesUnsupportedEncoding(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.srv.processor = shared.NewProcessor(f.db, f.queue, f.store, shared.PassthroughTranslator{}, nil, shared.ProcessorOptions{MaxWorkers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.processor.Run(ctx)

	ts := httptest.NewServer(f.router)
	defer ts.Close()

	orch := client.NewOrchestrator(client.New(ts.URL), client.PollPolicy{Interval: 10 * time.Millisecond, MaxDuration: 10 * time.Second}, nil, nil)
	_, err := orch.Submit(ctx, client.UploadRequest{FileName: "scan.txt", Data: []byte{0xff, 0xfe, 'x'}, TargetLang: "sk"})

	var jobErr *client.JobError
	if !errors.As(err, &jobErr) || jobErr.Message != "unsupported encoding" {
		t.Fatalf("error = %v, want JobError(unsupported encoding)", err)
	}
	if orch.State() != client.StateFailed {
		t.Fatalf("state = %s, want failed", orch.State())
	}
}
