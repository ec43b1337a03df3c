package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := parseOptions([]string{"notes.txt"})
	if err != nil {
		t.Fatalf("parseOptions() error = %v", err)
	}
	if opts.File != "notes.txt" || opts.Server != "http://localhost:8080" || opts.OutDir != "." {
		t.Fatalf("opts = %+v", opts)
	}
	p := opts.pollPolicy()
	if p.Interval != time.Second || p.MaxDuration != 30*time.Minute || p.MaxAttempts != 0 {
		t.Fatalf("policy = %+v", p)
	}
}

func TestParseOptionsFlagsAndEnv(t *testing.T) {
	t.Setenv("TRANSLATE_SERVER", "http://gateway:9000/")
	t.Setenv("TRANSLATE_POLL_INTERVAL", "250ms")

	opts, err := parseOptions([]string{"-f", "a.txt", "-l", " DE ", "--max-attempts", "7"})
	if err != nil {
		t.Fatalf("parseOptions() error = %v", err)
	}
	if opts.Server != "http://gateway:9000" {
		t.Errorf("server = %q, want env value without trailing slash", opts.Server)
	}
	if opts.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %s", opts.PollInterval)
	}
	if opts.Lang != "de" || opts.MaxAttempts != 7 {
		t.Errorf("lang = %q attempts = %d", opts.Lang, opts.MaxAttempts)
	}

	opts, err = parseOptions([]string{"-f", "a.txt", "--server", "http://flag:1"})
	if err != nil {
		t.Fatalf("parseOptions() error = %v", err)
	}
	if opts.Server != "http://flag:1" {
		t.Errorf("flag did not override env: %q", opts.Server)
	}
}

func TestParseOptionsValidation(t *testing.T) {
	cases := map[string]struct {
		args []string
		want string
	}{
		"no file":           {[]string{}, "--file is required"},
		"bad interval":      {[]string{"a.txt", "--poll-interval", "0s"}, "--poll-interval must be positive"},
		"negative attempts": {[]string{"a.txt", "--max-attempts", "-1"}, "--max-attempts must not be negative"},
		"unknown flag":      {[]string{"--bogus"}, "unknown flag"},
	}
	for name, tc := range cases {
		_, err := parseOptions(tc.args)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error = %v, want %q", name, err, tc.want)
		}
	}

	if _, err := parseOptions([]string{"--list-languages"}); err != nil {
		t.Errorf("--list-languages without a file: %v", err)
	}
}
