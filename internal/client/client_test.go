package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/channel/channeltest"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/draft"
	"github.com/loqalabs/loqa-podcast/internal/job"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/loqalabs/loqa-podcast/internal/reference"
	"github.com/loqalabs/loqa-podcast/internal/session"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	client *Client
	dialer *channeltest.Dialer
	drafts *draft.Store
}

func newFixture(t *testing.T, draftPath string) fixture {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()

	dialer := &channeltest.Dialer{Configure: func(f *channeltest.Fake) {
		f.AutoConnect = true
		f.Script = []protocol.Inbound{
			{Kind: protocol.EventProgress, Progress: 30, Message: "Generating podcast content..."},
			{Kind: protocol.EventComplete, AudioURL: "/audio/podcast_abc.mp3", Transcript: "Hello"},
		}
	}}
	mgr, err := session.NewManager(ctx, dialer, session.NewSurface(), newLogger())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	t.Cleanup(mgr.Close)

	var drafts *draft.Store
	if draftPath != "" {
		drafts, err = draft.Open(ctx, config.DraftsConfig{Enabled: true, Path: draftPath}, newLogger())
		if err != nil {
			t.Fatalf("drafts: %v", err)
		}
		t.Cleanup(func() { _ = drafts.Close() })
	}

	c, err := New(ctx, Options{
		Defaults: preferences.FromConfig(cfg.Defaults),
		Catalog:  preferences.CatalogFromConfig(cfg.Catalog),
		Drafts:   drafts,
		Manager:  mgr,
		Logger:   newLogger(),
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return fixture{client: c, dialer: dialer, drafts: drafts}
}

func waitState(t *testing.T, c *Client, want session.State) session.Snapshot {
	t.Helper()
	snaps, stop := c.Watch(16)
	defer stop()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if snap.State == want {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; last %+v", want, c.Session())
		}
	}
}

func TestSubmitRequiresContent(t *testing.T) {
	fx := newFixture(t, "")
	fx.client.Ingest(context.Background(), "only a picture https://img.example/p.png")
	fx.client.RemoveReference(context.Background(), reference.Content, "https://img.example/p.png")

	_, err := fx.client.Submit()
	var verr *job.ValidationError
	if !errors.As(err, &verr) || verr.Field != "urls" {
		t.Fatalf("expected urls ValidationError, got %v", err)
	}
	if fx.dialer.Last() != nil {
		t.Fatal("no channel may be opened for an invalid job")
	}
}

func TestSubmitRequiresCredential(t *testing.T) {
	fx := newFixture(t, "")
	fx.client.Ingest(context.Background(), "https://example.com/article")

	_, err := fx.client.Submit()
	var merr *job.MissingCredentialError
	if !errors.As(err, &merr) || merr.Provider != credential.ProviderGoogle {
		t.Fatalf("expected missing google credential, got %v", err)
	}
	if fx.dialer.Last() != nil {
		t.Fatal("no channel may be opened without a credential")
	}
}

func TestSubmitCompletes(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	res := fx.client.Ingest(ctx, "https://example.com/article https://cdn.example.com/cover.jpg")
	if res.Added != 3 {
		t.Fatalf("unexpected ingest %+v", res)
	}
	if err := fx.client.SetCredential(credential.ProviderGoogle, "g-key"); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.client.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitState(t, fx.client, session.StateCompleted)
	if snap.Result == nil || snap.Result.AudioURL != "/audio/podcast_abc.mp3" {
		t.Fatalf("unexpected result %+v", snap.Result)
	}

	sent := fx.dialer.Last().Sent()
	req, ok := sent[0].(protocol.PodcastRequest)
	if !ok {
		t.Fatalf("unexpected request %#v", sent[0])
	}
	if len(req.URLs) != 2 || len(req.ImageURLs) != 1 || req.GoogleKey != "g-key" {
		t.Fatalf("unexpected payload %+v", req)
	}
}

func TestEdgeNeedsNoCredential(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	fx.client.Ingest(ctx, "https://example.com/a")
	err := fx.client.UpdatePreferences(ctx, func(p *preferences.Preferences) { p.Engine = preferences.EngineEdge })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.client.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, fx.client, session.StateCompleted)
}

func TestSubmitNews(t *testing.T) {
	fx := newFixture(t, "")
	if _, err := fx.client.SubmitNews("ai, space"); err == nil {
		t.Fatal("news without a google key must fail")
	}
	if err := fx.client.SetCredential(credential.ProviderGoogle, "g"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.client.SubmitNews("ai, space"); err != nil {
		t.Fatalf("submit news: %v", err)
	}
	waitState(t, fx.client, session.StateCompleted)
	if _, ok := fx.dialer.Last().Sent()[0].(protocol.NewsRequest); !ok {
		t.Fatal("expected a news request")
	}
}

func TestSetPreferencesRejectsUnknownEngine(t *testing.T) {
	fx := newFixture(t, "")
	err := fx.client.UpdatePreferences(context.Background(), func(p *preferences.Preferences) { p.Engine = "espeak" })
	var verr *job.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fx.client.Preferences().Engine != preferences.EngineGeminiMulti {
		t.Fatal("rejected preferences must not be stored")
	}
}

func TestSetCredentialUnknownProvider(t *testing.T) {
	fx := newFixture(t, "")
	if err := fx.client.SetCredential("anthropic", "x"); err == nil {
		t.Fatal("expected error")
	}
	if err := fx.client.SetCredential(credential.ProviderOpenAI, "o"); err != nil {
		t.Fatal(err)
	}
	if got := fx.client.ConfiguredProviders(); len(got) != 1 || got[0] != credential.ProviderOpenAI {
		t.Fatalf("configured = %v", got)
	}
}

func TestDraftRestoredAndCleared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts.db")
	ctx := context.Background()

	fx := newFixture(t, path)
	fx.client.Ingest(ctx, "https://example.com/one https://example.com/two.png")
	if err := fx.client.UpdatePreferences(ctx, func(p *preferences.Preferences) { p.Name = "Daily" }); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.client.AddOption(ctx, preferences.ConversationStyle, "Witty"); err != nil {
		t.Fatal(err)
	}

	mgr, err := session.NewManager(ctx, &channeltest.Dialer{}, session.NewSurface(), newLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)
	cfg := config.Default()
	restored, err := New(ctx, Options{
		Defaults: preferences.FromConfig(cfg.Defaults),
		Catalog:  preferences.CatalogFromConfig(cfg.Catalog),
		Drafts:   fx.drafts,
		Manager:  mgr,
		Logger:   newLogger(),
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	content, image := restored.References()
	if len(content) != 2 || len(image) != 1 {
		t.Fatalf("references not restored: %v / %v", content, image)
	}
	if restored.Preferences().Name != "Daily" {
		t.Fatalf("preferences not restored: %+v", restored.Preferences())
	}
	opts := restored.Catalog().Options(preferences.ConversationStyle)
	if opts[len(opts)-1] != "Witty" {
		t.Fatalf("custom option not restored: %v", opts)
	}

	if err := restored.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if content, _ := restored.References(); len(content) != 0 {
		t.Fatal("clear must drop references")
	}
	if restored.Preferences().Name != "" {
		t.Fatal("clear must restore default preferences")
	}
	if _, ok, err := fx.drafts.Load(ctx); err != nil || ok {
		t.Fatalf("clear must drop the saved draft, ok=%v err=%v", ok, err)
	}
}
