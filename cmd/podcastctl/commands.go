package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atotto/clipboard"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/eventstore"
	"github.com/loqalabs/loqa-podcast/internal/i18n"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/reference"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func (a *app) extract(args []string) error {
	fset := flag.NewFlagSet("extract", flag.ContinueOnError)
	fromClipboard := fset.Bool("clipboard", false, "Read text from the clipboard")
	if err := fset.Parse(args); err != nil {
		return err
	}

	var text string
	var err error
	switch {
	case *fromClipboard:
		text, err = clipboard.ReadAll()
	case fset.NArg() > 0 && fset.Arg(0) != "-":
		var data []byte
		data, err = os.ReadFile(fset.Arg(0))
		text = string(data)
	default:
		text, err = readAll(a.in)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ex := reference.Extract(text)
	if ex.Empty() {
		fmt.Fprintln(a.out, a.loc.Text(i18n.MsgNoURLsFound, nil))
		return nil
	}
	printReferences(a.out, ex.Content, ex.Image)
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("add", flag.ContinueOnError)
	fromClipboard := fset.Bool("clipboard", false, "Read text from the clipboard")
	if err := fset.Parse(args); err != nil {
		return err
	}

	var text string
	var err error
	switch {
	case *fromClipboard:
		text, err = clipboard.ReadAll()
	case fset.NArg() > 0:
		text = strings.Join(fset.Args(), " ")
	default:
		text, err = readAll(a.in)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var res reference.Ingest
	if err := a.api.do(ctx, http.MethodPost, "/v1/references", map[string]string{"text": text}, &res); err != nil {
		return err
	}
	if res.NoMatches() {
		fmt.Fprintln(a.out, a.loc.Text(i18n.MsgNoURLsFound, nil))
		return nil
	}
	fmt.Fprintln(a.out, a.loc.Text(i18n.MsgReferencesAdded, map[string]any{
		"Added":   res.Added,
		"Content": res.AddedContent,
		"Image":   res.AddedImage,
	}))
	return nil
}

type referencesBody struct {
	Content []reference.Reference `json:"content"`
	Image   []reference.Reference `json:"image"`
}

func (a *app) refs(ctx context.Context) error {
	var body referencesBody
	if err := a.api.do(ctx, http.MethodGet, "/v1/references", nil, &body); err != nil {
		return err
	}
	if len(body.Content) == 0 && len(body.Image) == 0 {
		fmt.Fprintln(a.out, "no references")
		return nil
	}
	printReferences(a.out, body.Content, body.Image)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("remove", flag.ContinueOnError)
	kind := fset.String("kind", "content", "Reference kind: content or image")
	target := fset.String("url", "", "URL to remove")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("remove: -url is required")
	}
	if _, ok := reference.ParseKind(*kind); !ok {
		return fmt.Errorf("remove: unknown kind %q", *kind)
	}
	q := url.Values{"kind": {*kind}, "url": {*target}}
	if err := a.api.do(ctx, http.MethodDelete, "/v1/references?"+q.Encode(), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %s\n", *target)
	return nil
}

func (a *app) clear(ctx context.Context) error {
	if err := a.api.do(ctx, http.MethodDelete, "/v1/draft", nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "draft cleared")
	return nil
}

type preferencesBody struct {
	Preferences preferences.Preferences `json:"preferences"`
	Catalog     preferences.Catalog     `json:"catalog"`
	Engines     []preferences.Engine    `json:"engines"`
}

// prefs prints the current preferences as YAML. With -set, the file is
// applied on top of the current values so partial files are accepted.
func (a *app) prefs(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("prefs", flag.ContinueOnError)
	setPath := fset.String("set", "", "YAML file with preferences to apply")
	if err := fset.Parse(args); err != nil {
		return err
	}

	var body preferencesBody
	if err := a.api.do(ctx, http.MethodGet, "/v1/preferences", nil, &body); err != nil {
		return err
	}
	p := body.Preferences
	if *setPath != "" {
		data, err := os.ReadFile(*setPath)
		if err != nil {
			return fmt.Errorf("read preferences: %w", err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("parse preferences: %w", err)
		}
		if err := a.api.do(ctx, http.MethodPut, "/v1/preferences", p, &p); err != nil {
			return err
		}
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	_, err = a.out.Write(out)
	return err
}

func (a *app) history(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fset.Int("limit", 20, "Maximum number of rows")
	if err := fset.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if id := fset.Arg(0); id != "" {
		var body struct {
			Events []eventstore.Event `json:"events"`
		}
		path := "/v1/history/" + url.PathEscape(id) + "?limit=" + strconv.Itoa(*limit)
		if err := a.api.do(ctx, http.MethodGet, path, nil, &body); err != nil {
			return err
		}
		fmt.Fprintln(tw, "TIME\tSTATE\tPROGRESS\tMESSAGE")
		for _, e := range body.Events {
			fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%s\n", e.CreatedAt.Local().Format(time.TimeOnly), e.State, e.Progress, e.Message)
		}
		return nil
	}

	var body struct {
		Sessions []eventstore.SessionRecord `json:"sessions"`
	}
	if err := a.api.do(ctx, http.MethodGet, "/v1/history?limit="+strconv.Itoa(*limit), nil, &body); err != nil {
		return err
	}
	fmt.Fprintln(tw, "SESSION\tKIND\tENGINE\tSTATE\tUPDATED\tDETAIL")
	for _, s := range body.Sessions {
		detail := s.AudioURL
		if s.Failure != "" {
			detail = s.Failure
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.SessionID, s.Kind, s.Engine, s.State, s.UpdatedAt.Local().Format(time.DateTime), detail)
	}
	return nil
}

func (a *app) keys(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("expected 'keys set <provider>' or 'keys verify'")
	}
	switch args[0] {
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("usage: keys set <%s>", strings.Join(credential.Providers(), "|"))
		}
		provider := strings.ToLower(args[1])
		if !credential.KnownProvider(provider) {
			return fmt.Errorf("unknown provider %q", args[1])
		}
		secret, err := a.readSecret(provider + " API key: ")
		if err != nil {
			return err
		}
		path := "/v1/credentials/" + url.PathEscape(provider)
		if err := a.api.do(ctx, http.MethodPut, path, map[string]string{"secret": secret}, nil); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s key stored for this podcastd session\n", provider)
		return nil
	case "verify":
		return a.verify(ctx, args[1:])
	}
	return fmt.Errorf("unknown keys command %q", args[0])
}

// verify checks the Google key from the environment or .env file, prompting
// when neither has one.
func (a *app) verify(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("keys verify", flag.ContinueOnError)
	timeout := fset.Duration("timeout", 20*time.Second, "Probe timeout")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return err
	}

	store := credential.NewMemoryStore()
	if _, err := credential.SeedFromEnv(store, cfg.Credentials.EnvFile); err != nil {
		a.log.Warn("could not read env file", slog.String("path", cfg.Credentials.EnvFile), slog.String("error", err.Error()))
	}
	secret, ok := store.Get(credential.ProviderGoogle)
	if !ok {
		if secret, err = a.readSecret("google API key: "); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	if err := credential.VerifyGoogle(ctx, secret, cfg.Verify.Model); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "google key accepted by %s\n", cfg.Verify.Model)
	return nil
}

// readSecret prompts without echo on a terminal and reads one line otherwise.
func (a *app) readSecret(prompt string) (string, error) {
	var secret string
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		secret = string(data)
	} else {
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read secret: %w", err)
		}
		secret = line
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", credential.ErrEmptySecret
	}
	return secret, nil
}

func printReferences(w io.Writer, content, image []reference.Reference) {
	for _, r := range content {
		fmt.Fprintf(w, "content  %s\n", r.URL)
	}
	for _, r := range image {
		fmt.Fprintf(w, "image    %s\n", r.URL)
	}
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	return string(data), err
}
