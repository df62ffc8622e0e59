// Package client composes the pieces a user interacts with: the accumulated
// references, preferences and their catalog, credentials, the saved draft and
// the session manager.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/draft"
	"github.com/loqalabs/loqa-podcast/internal/job"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/reference"
	"github.com/loqalabs/loqa-podcast/internal/session"
)

type Options struct {
	Defaults    preferences.Preferences
	Catalog     preferences.Catalog
	Credentials credential.Store
	// Drafts is optional.
	Drafts  *draft.Store
	Manager *session.Manager
	Logger  *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	defaults       preferences.Preferences
	defaultCatalog preferences.Catalog
	creds          credential.Store
	resolver       *credential.Resolver
	drafts         *draft.Store
	manager        *session.Manager
	log            *slog.Logger

	mu      sync.Mutex
	refs    *reference.Collection
	prefs   preferences.Preferences
	catalog preferences.Catalog
}

// New builds a client and restores the saved draft, if any.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("client: session manager is required")
	}
	if opts.Credentials == nil {
		opts.Credentials = credential.NewMemoryStore()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		defaults:       opts.Defaults.Clone(),
		defaultCatalog: opts.Catalog,
		creds:          opts.Credentials,
		resolver:       credential.NewResolver(opts.Credentials),
		drafts:         opts.Drafts,
		manager:        opts.Manager,
		log:            log.With(slog.String("component", "client")),
		refs:           reference.NewCollection(),
		prefs:          opts.Defaults.Clone(),
		catalog:        opts.Catalog.Clone(),
	}

	if c.drafts != nil {
		d, ok, err := c.drafts.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore draft: %w", err)
		}
		if ok {
			c.refs.Restore(d.Content, d.Image)
			if d.Preferences.Engine != "" {
				c.prefs = d.Preferences
			}
			c.catalog = mergeCatalog(c.catalog, d.Catalog)
			c.log.Info("restored draft",
				slog.Int("content", len(d.Content)),
				slog.Int("image", len(d.Image)),
				slog.Time("saved_at", d.SavedAt))
		}
	}
	return c, nil
}

// Ingest extracts references from text and adds the new ones.
func (c *Client) Ingest(ctx context.Context, text string) reference.Ingest {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.refs.Ingest(text)
	if res.Added > 0 {
		c.saveLocked(ctx)
	}
	return res
}

func (c *Client) References() (content, image []reference.Reference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs.Content(), c.refs.Image()
}

func (c *Client) RemoveReference(ctx context.Context, kind reference.Kind, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.refs.Remove(kind, url)
	if removed {
		c.saveLocked(ctx)
	}
	return removed
}

func (c *Client) ResetReferences(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs.Reset()
	c.saveLocked(ctx)
}

func (c *Client) Preferences() preferences.Preferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs.Clone()
}

// SetPreferences replaces the preferences. Only the engine is checked here;
// everything else is validated when a job is built.
func (c *Client) SetPreferences(ctx context.Context, p preferences.Preferences) error {
	if !p.Engine.Valid() {
		return &job.ValidationError{Field: "tts_model", Reason: fmt.Sprintf("unknown engine %q", p.Engine)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs = p.Normalized()
	c.saveLocked(ctx)
	return nil
}

// UpdatePreferences applies fn to a copy of the current preferences.
func (c *Client) UpdatePreferences(ctx context.Context, fn func(*preferences.Preferences)) error {
	p := c.Preferences()
	fn(&p)
	return c.SetPreferences(ctx, p)
}

func (c *Client) Catalog() preferences.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Clone()
}

// AddOption adds a user entry to a category list.
func (c *Client) AddOption(ctx context.Context, cat preferences.Category, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	added, err := c.catalog.Add(cat, value)
	if added {
		c.saveLocked(ctx)
	}
	return added, err
}

// SetCredential stores a provider secret for this session only.
func (c *Client) SetCredential(provider, secret string) error {
	if !credential.KnownProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	c.creds.Set(provider, secret)
	return nil
}

// Credential returns the stored credential of a provider, if any.
func (c *Client) Credential(provider string) *credential.Credential {
	return c.resolver.Lookup(provider)
}

// ConfiguredProviders lists providers with a non-empty secret.
func (c *Client) ConfiguredProviders() []string {
	var out []string
	for _, p := range credential.Providers() {
		if c.resolver.Lookup(p).Present() {
			out = append(out, p)
		}
	}
	return out
}

// Submit builds a podcast job from the current input and opens a session.
// Build failures are returned before any channel is opened.
func (c *Client) Submit() (string, error) {
	c.mu.Lock()
	prefs := c.prefs.Clone()
	content, image := c.refs.Content(), c.refs.Image()
	c.mu.Unlock()

	req, err := job.Build(prefs, content, image, c.resolver.Resolve(prefs.Engine))
	if err != nil {
		return "", err
	}
	return c.manager.Open(req)
}

// SubmitNews opens a news session for the given topics.
func (c *Client) SubmitNews(topics string) (string, error) {
	req, err := job.BuildNews(topics, c.resolver.Lookup(credential.ProviderGoogle))
	if err != nil {
		return "", err
	}
	return c.manager.Open(req)
}

func (c *Client) Cancel() bool { return c.manager.Cancel() }

func (c *Client) Session() session.Snapshot { return c.manager.Current() }

// Watch streams session snapshots; see session.Surface.Watch.
func (c *Client) Watch(buffer int) (<-chan session.Snapshot, func()) {
	return c.manager.Surface().Watch(buffer)
}

// Clear resets every input to its defaults and drops the saved draft.
// Credentials and the session are left alone.
func (c *Client) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs.Reset()
	c.prefs = c.defaults.Clone()
	c.catalog = c.defaultCatalog.Clone()
	if c.drafts == nil {
		return nil
	}
	return c.drafts.Clear(ctx)
}

func (c *Client) saveLocked(ctx context.Context) {
	if c.drafts == nil {
		return
	}
	d := draft.Draft{
		Content:     c.refs.Content(),
		Image:       c.refs.Image(),
		Preferences: c.prefs.Clone(),
		Catalog:     c.catalog,
	}
	if err := c.drafts.Save(ctx, d); err != nil {
		c.log.Warn("failed to save draft", slog.String("error", err.Error()))
	}
}

// mergeCatalog keeps the configured seeds and appends the saved custom
// entries.
func mergeCatalog(base, saved preferences.Catalog) preferences.Catalog {
	out := base.Clone()
	for _, cat := range []preferences.Category{preferences.ConversationStyle, preferences.DialogueStructure, preferences.EngagementTechniques} {
		for _, v := range saved.Options(cat) {
			_, _ = out.Add(cat, v)
		}
	}
	return out
}
