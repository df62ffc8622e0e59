package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/artifact"
	"github.com/loqalabs/loqa-podcast/internal/i18n"
	"github.com/loqalabs/loqa-podcast/internal/session"
)

type followOptions struct {
	tui       bool
	download  string
	audioBase string
}

func (o *followOptions) register(fset *flag.FlagSet) {
	fset.BoolVar(&o.tui, "tui", false, "Follow progress in a terminal UI")
	fset.StringVar(&o.download, "download", "", "Save the finished audio to this path")
	fset.StringVar(&o.audioBase, "audio-base", "", "Base URL for relative audio references (default: podcastd address)")
}

func (a *app) generate(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("generate", flag.ContinueOnError)
	var opts followOptions
	opts.register(fset)
	if err := fset.Parse(args); err != nil {
		return err
	}
	return a.submitAndFollow(ctx, "/v1/sessions", nil, opts)
}

func (a *app) news(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("news", flag.ContinueOnError)
	topics := fset.String("topics", "", "Comma separated news topics")
	detach := fset.Bool("detach", false, "Print the session id and return")
	var opts followOptions
	opts.register(fset)
	if err := fset.Parse(args); err != nil {
		return err
	}
	body := map[string]string{"topics": *topics}
	if *detach {
		id, err := a.submit(ctx, "/v1/news", body)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "session %s started\n", id)
		return nil
	}
	return a.submitAndFollow(ctx, "/v1/news", body, opts)
}

func (a *app) submit(ctx context.Context, path string, body any) (string, error) {
	var res struct {
		SessionID string `json:"session_id"`
	}
	if err := a.api.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return "", err
	}
	return res.SessionID, nil
}

func (a *app) submitAndFollow(ctx context.Context, path string, body any, opts followOptions) error {
	// The stream is opened first so no transition between submit and
	// subscribe is missed.
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	snaps, streamErrs, err := a.api.events(streamCtx)
	if err != nil {
		return err
	}

	id, err := a.submit(ctx, path, body)
	if err != nil {
		return err
	}

	var final session.Snapshot
	if opts.tui {
		final, err = runTUI(ctx, a, id, snaps)
	} else {
		final, err = a.follow(ctx, id, snaps, streamErrs)
	}
	if err != nil {
		return err
	}
	return a.report(ctx, final, opts.download, opts.audioBase)
}

// follow prints one line per snapshot of the session until it settles.
func (a *app) follow(ctx context.Context, id string, snaps <-chan session.Snapshot, errs <-chan error) (session.Snapshot, error) {
	var last session.Snapshot
	for {
		select {
		case <-ctx.Done():
			a.cancelRemote()
			fmt.Fprintln(a.out, a.loc.Text(i18n.MsgGenerationCancelled, nil))
			return last, errInterrupted
		case snap, ok := <-snaps:
			if !ok {
				if err := <-errs; err != nil {
					return last, fmt.Errorf("event stream: %w", err)
				}
				return last, errors.New("event stream closed")
			}
			if snap.SessionID != id {
				continue
			}
			last = snap
			if snap.State == session.StateActive || snap.State == session.StateConnecting {
				fmt.Fprintf(a.out, "[%3.0f%%] %s\n", snap.Progress, snap.StatusMessage)
			}
			if settled(snap) {
				return snap, nil
			}
		}
	}
}

// report prints the outcome and downloads the audio when asked.
func (a *app) report(ctx context.Context, snap session.Snapshot, dest, base string) error {
	switch snap.State {
	case session.StateCompleted:
		if snap.Result == nil {
			return errors.New("session completed without a result")
		}
	case session.StateIdle:
		fmt.Fprintln(a.out, a.loc.Text(i18n.MsgGenerationCancelled, nil))
		return errInterrupted
	default:
		msg := snap.Failure
		if msg == "" {
			msg = snap.StatusMessage
		}
		return errors.New(a.loc.Text(i18n.MsgGenerationFailed, map[string]any{"Message": msg}))
	}

	if base == "" {
		base = a.api.base
	}
	src, err := artifact.Resolve(base, snap.Result.AudioURL)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, a.loc.Text(i18n.MsgGenerationComplete, map[string]any{"URL": src}))
	if dest == "" {
		return nil
	}

	info, err := artifact.Fetch(ctx, a.api.http, src, dest)
	if err != nil {
		return err
	}
	if info.Decoded {
		fmt.Fprintf(a.out, "saved %s (%d bytes, %s, %d Hz)\n", info.Path, info.Bytes, info.Duration.Round(time.Second), info.SampleRate)
	} else {
		fmt.Fprintf(a.out, "saved %s (%d bytes)\n", info.Path, info.Bytes)
	}
	return nil
}

// cancelRemote asks podcastd to drop the session. It runs after the command
// context is already done, so it uses its own deadline.
func (a *app) cancelRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.api.do(ctx, http.MethodDelete, "/v1/session", nil, nil); err != nil {
		a.log.Warn("cancel failed", slogError(err))
	}
}

// settled reports whether the session of snap will not change any more.
// Idle with a session id means it was cancelled.
func settled(snap session.Snapshot) bool {
	return snap.State.Terminal() || (snap.State == session.StateIdle && snap.SessionID != "")
}
