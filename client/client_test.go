package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"translator-api-scalable/api"
)

// TestLanguagesAndDefaultSelection verifies list decoding and the sk preference.
func TestLanguagesAndDefaultSelection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.LanguagesPath {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `[{"code":"en","name":"English"},{"code":"sk","name":"Slovak"}]`)
	}))
	defer srv.Close()

	langs, err := New(srv.URL).Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages() error = %v", err)
	}
	if len(langs) != 2 || langs[0].Code != "en" {
		t.Fatalf("languages = %+v", langs)
	}

	lang, ok := DefaultLanguage(langs, DefaultLanguageCode)
	if !ok || lang.Code != "sk" {
		t.Fatalf("default = %+v, %v; want sk", lang, ok)
	}
	lang, ok = DefaultLanguage(langs[:1], DefaultLanguageCode)
	if !ok || lang.Code != "en" {
		t.Fatalf("fallback default = %+v, %v; want en", lang, ok)
	}
	if _, ok := DefaultLanguage(nil, DefaultLanguageCode); ok {
		t.Fatal("expected no default for empty list")
	}
}

// TestStatusRepeatedReadsAreIdentical checks polling the same job twice yields the same snapshot.
func TestStatusRepeatedReadsAreIdentical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.StatusPath("abc123") {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"job_id":"abc123","phase":"processing","progress":55,"done":false}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	first, err := c.Status(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	second, err := c.Status(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if first != second {
		t.Fatalf("snapshots differ: %+v vs %+v", first, second)
	}
	if first.Phase != api.PhaseProcessing || first.Progress != 55 {
		t.Fatalf("snapshot = %+v", first)
	}
}

// TestStatusErrors classifies unknown jobs and malformed snapshots.
func TestStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.StatusPath("garbled"):
			io.WriteString(w, `<html>`)
		case api.StatusPath("nophase"):
			io.WriteString(w, `{"progress":3}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"Job not found"}`)
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	var perr *ProtocolError
	if _, err := c.Status(context.Background(), "garbled"); !errors.As(err, &perr) {
		t.Fatalf("garbled error = %v, want ProtocolError", err)
	}
	if _, err := c.Status(context.Background(), "nophase"); !errors.As(err, &perr) {
		t.Fatalf("nophase error = %v, want ProtocolError", err)
	}

	_, err := c.Status(context.Background(), "missing")
	var terr *TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusNotFound {
		t.Fatalf("missing error = %v, want 404 TransportError", err)
	}
	if terr.Detail != "Job not found" {
		t.Fatalf("detail = %q, want Job not found", terr.Detail)
	}
}

// TestDownloadFilename verifies Content-Disposition parsing and its fallback.
func TestDownloadFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.DownloadPath("named"):
			w.Header().Set("Content-Disposition", `attachment; filename="notes_translated_sk.txt"`)
		case api.DownloadPath("sneaky"):
			w.Header().Set("Content-Disposition", `attachment; filename="../../etc/passwd"`)
		}
		io.WriteString(w, "ahoj svet")
	}))
	defer srv.Close()
	c := New(srv.URL)

	cases := map[string]string{
		"named":   "notes_translated_sk.txt",
		"sneaky":  "passwd",
		"unnamed": "translated",
	}
	for id, want := range cases {
		var buf bytes.Buffer
		name, n, err := c.Download(context.Background(), id, &buf)
		if err != nil {
			t.Fatalf("Download(%s) error = %v", id, err)
		}
		if name != want {
			t.Fatalf("Download(%s) name = %q, want %q", id, name, want)
		}
		if buf.String() != "ahoj svet" || n != int64(buf.Len()) {
			t.Fatalf("Download(%s) body = %q (%d bytes)", id, buf.String(), n)
		}
	}
}

// TestDownloadURL checks the artifact link exposed for a job.
func TestDownloadURL(t *testing.T) {
	if got := New("").DownloadURL("abc123"); got != "/api/download/abc123" {
		t.Fatalf("relative url = %q", got)
	}
	if got := New("http://translate.local/").DownloadURL("abc123"); got != "http://translate.local/api/download/abc123" {
		t.Fatalf("absolute url = %q", got)
	}
}
