package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-podcast/internal/i18n"
)

var version = "0.1.0-dev"

const usageText = `usage: podcastctl [-addr url] [-lang code] [-config file] <command> [args]

commands:
  extract [-clipboard] [file]        list the URLs found in text
  add [-clipboard] [text]            add references from text
  refs                               show accumulated references
  remove [-kind content|image] -url  remove one reference
  clear                              reset references, preferences and draft
  prefs [-set file.yaml]             show or replace preferences
  generate [-tui] [-download path]   start a podcast and follow it
  news -topics text [-detach]        start a news podcast
  history [-limit n] [session-id]    list past sessions or one session's events
  keys set <provider>                store an API key in podcastd
  keys verify                        check the Google key with a live request
  version                            print the version
`

// errInterrupted reports a generation abandoned by the user.
var errInterrupted = errors.New("interrupted")

type app struct {
	api        *apiClient
	loc        *i18n.Localizer
	configPath string
	in         io.Reader
	out        io.Writer
	log        *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("podcastctl", flag.ContinueOnError)
	addr := global.String("addr", envOr("PODCASTCTL_ADDR", "http://127.0.0.1:8780"), "podcastd base URL")
	lang := global.String("lang", envOr("PODCASTCTL_LANG", "en"), "Message language")
	configPath := global.String("config", "podcast.yaml", "Configuration file used by keys verify")
	global.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) < 1 {
		global.Usage()
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	catalog, err := i18n.New()
	if err != nil {
		logger.Error("load messages failed", slogError(err))
		return 1
	}
	a := &app{
		api:        newAPIClient(*addr),
		loc:        catalog.Localizer(*lang),
		configPath: *configPath,
		in:         os.Stdin,
		out:        os.Stdout,
		log:        logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "extract":
		err = a.extract(cmdArgs)
	case "add":
		err = a.add(ctx, cmdArgs)
	case "refs":
		err = a.refs(ctx)
	case "remove":
		err = a.remove(ctx, cmdArgs)
	case "clear":
		err = a.clear(ctx)
	case "prefs":
		err = a.prefs(ctx, cmdArgs)
	case "generate":
		err = a.generate(ctx, cmdArgs)
	case "news":
		err = a.news(ctx, cmdArgs)
	case "history":
		err = a.history(ctx, cmdArgs)
	case "keys":
		err = a.keys(ctx, cmdArgs)
	case "version":
		fmt.Fprintln(a.out, version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, errInterrupted):
		return 130
	}
	fmt.Fprintln(os.Stderr, a.describe(err))
	return 1
}

// describe renders podcastd errors in the selected language.
func (a *app) describe(err error) string {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	if apiErr.Provider != "" {
		return a.loc.Text(i18n.MsgMissingCredential, map[string]any{"Provider": apiErr.Provider})
	}
	return apiErr.Error()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
