// translate-cli/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/go-kit/log"

	"translator-api-scalable/api"
	"translator-api-scalable/client"
	"translator-api-scalable/shared"
)

const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitUsage)
	}
	logger := log.With(shared.NewLogger(opts.LogLevel, "logfmt"), "service", "translate-cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, opts, os.Stdout, os.Stderr, logger))
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer, logger log.Logger) int {
	c := client.New(opts.Server, client.WithLogger(logger))

	langs, err := c.Languages(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "error: failed to load languages:", err)
		return exitFailed
	}
	if opts.ListLanguages {
		for _, l := range langs {
			fmt.Fprintf(stdout, "%s\t%s\n", l.Code, l.Name)
		}
		return exitOK
	}

	lang, err := chooseLanguage(langs, opts.Lang)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}

	info, err := os.Stat(opts.File)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailed
	}
	if info.Size() > client.MaxUploadSize {
		fmt.Fprintln(stderr, "error:", &client.LimitExceededError{Size: info.Size(), Limit: client.MaxUploadSize})
		return exitFailed
	}
	data, err := os.ReadFile(opts.File)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailed
	}

	var (
		mu          sync.Mutex
		lastMessage string
	)
	orch := client.NewOrchestrator(c, opts.pollPolicy(), func(u client.Update) {
		mu.Lock()
		defer mu.Unlock()
		if u.Message != "" && u.Message != lastMessage {
			lastMessage = u.Message
			fmt.Fprintln(stdout, u.Message)
		}
	}, logger)

	res, err := orch.Submit(ctx, client.UploadRequest{
		FileName:   filepath.Base(opts.File),
		Data:       data,
		TargetLang: lang.Code,
	})
	if errors.Is(err, client.ErrCancelled) {
		fmt.Fprintln(stderr, "cancelled")
		return exitCancelled
	}
	if err != nil {
		if orch.Last().Message == "" {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return exitFailed
	}

	if opts.NoDownload {
		fmt.Fprintln(stdout, res.DownloadURL)
		return exitOK
	}
	path, err := download(ctx, c, res.JobID, opts.OutDir)
	if err != nil {
		fmt.Fprintln(stderr, "error: download failed:", err)
		return exitFailed
	}
	fmt.Fprintln(stdout, "Saved", path)
	return exitOK
}

func chooseLanguage(langs []api.Language, code string) (api.Language, error) {
	if code == "" {
		lang, ok := client.DefaultLanguage(langs, client.DefaultLanguageCode)
		if !ok {
			return api.Language{}, errors.New("the server offers no target languages")
		}
		return lang, nil
	}
	for _, l := range langs {
		if l.Code == code {
			return l, nil
		}
	}
	return api.Language{}, fmt.Errorf("unsupported target language %q (see --list-languages)", code)
}

// download writes the artifact into dir under the name the server suggests.
func download(ctx context.Context, c *client.Client, jobID, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	name, _, err := c.Download(ctx, jobID, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		name = jobID + ".txt"
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}
