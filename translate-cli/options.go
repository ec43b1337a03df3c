package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"translator-api-scalable/client"
)

type options struct {
	Server         string
	File           string
	Lang           string
	OutDir         string
	ListLanguages  bool
	NoDownload     bool
	PollInterval   time.Duration
	PollMultiplier float64
	MaxInterval    time.Duration
	MaxAttempts    int
	MaxWait        time.Duration
	LogLevel       string
}

// parseOptions reads flags, falling back to TRANSLATE_* environment variables.
func parseOptions(args []string) (options, error) {
	fs := pflag.NewFlagSet("translate-cli", pflag.ContinueOnError)
	fs.String("server", "http://localhost:8080", "translation gateway base URL")
	fs.StringP("file", "f", "", "text document to translate")
	fs.StringP("lang", "l", "", "target language code (default: "+client.DefaultLanguageCode+" when offered)")
	fs.StringP("out", "o", ".", "directory for the translated document")
	fs.Bool("list-languages", false, "print the supported languages and exit")
	fs.Bool("no-download", false, "print the download link instead of saving the result")
	fs.Duration("poll-interval", time.Second, "wait between status queries")
	fs.Float64("poll-multiplier", 1, "growth factor applied to the poll interval")
	fs.Duration("max-interval", 0, "upper bound of the grown poll interval (0 = none)")
	fs.Int("max-attempts", 0, "maximum number of status queries (0 = unlimited)")
	fs.Duration("max-wait", 30*time.Minute, "maximum total polling time (0 = unlimited)")
	fs.String("log-level", "warn", "log level: debug, info, warn, error")

	v := viper.New()
	v.SetEnvPrefix("TRANSLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return options{}, err
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		Server:         strings.TrimRight(v.GetString("server"), "/"),
		File:           v.GetString("file"),
		Lang:           strings.ToLower(strings.TrimSpace(v.GetString("lang"))),
		OutDir:         v.GetString("out"),
		ListLanguages:  v.GetBool("list-languages"),
		NoDownload:     v.GetBool("no-download"),
		PollInterval:   v.GetDuration("poll-interval"),
		PollMultiplier: v.GetFloat64("poll-multiplier"),
		MaxInterval:    v.GetDuration("max-interval"),
		MaxAttempts:    v.GetInt("max-attempts"),
		MaxWait:        v.GetDuration("max-wait"),
		LogLevel:       v.GetString("log-level"),
	}
	if opts.File == "" && fs.NArg() > 0 {
		opts.File = fs.Arg(0)
	}
	return opts, opts.validate()
}

func (o options) validate() error {
	if o.Server == "" {
		return errors.New("--server is required")
	}
	if !o.ListLanguages && o.File == "" {
		return errors.New("--file is required")
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive, got %s", o.PollInterval)
	}
	if o.MaxAttempts < 0 {
		return fmt.Errorf("--max-attempts must not be negative, got %d", o.MaxAttempts)
	}
	return nil
}

func (o options) pollPolicy() client.PollPolicy {
	return client.PollPolicy{
		Interval:    o.PollInterval,
		Multiplier:  o.PollMultiplier,
		MaxInterval: o.MaxInterval,
		MaxAttempts: o.MaxAttempts,
		MaxDuration: o.MaxWait,
	}
}
