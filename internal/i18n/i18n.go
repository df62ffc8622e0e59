// Package i18n provides the localized user-facing strings.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/loqalabs/loqa-podcast/internal/session"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

const (
	MsgConnecting          = "session_connecting"
	MsgConnected           = "session_connected"
	MsgConnectionLost      = "session_connection_lost"
	MsgConnectTimeout      = "session_connect_timeout"
	MsgNoURLsFound         = "no_urls_found"
	MsgReferencesAdded     = "references_added"
	MsgInvalidInput        = "invalid_input"
	MsgMissingCredential   = "missing_credential"
	MsgGenerationComplete  = "generation_complete"
	MsgGenerationFailed    = "generation_failed"
	MsgGenerationCancelled = "generation_cancelled"
)

// Catalog holds every bundled translation.
type Catalog struct {
	bundle *goi18n.Bundle
}

func New() (*Catalog, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := bundle.LoadMessageFileFS(locales, "locales/"+e.Name()); err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
	}
	return &Catalog{bundle: bundle}, nil
}

// Languages lists the bundled language tags.
func (c *Catalog) Languages() []string {
	tags := c.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

// Localizer resolves messages for the given preferences, falling back to
// English.
func (c *Catalog) Localizer(langs ...string) *Localizer {
	return &Localizer{l: goi18n.NewLocalizer(c.bundle, langs...)}
}

type Localizer struct {
	l *goi18n.Localizer
}

// Text renders a message. Unknown ids render as the id itself.
func (l *Localizer) Text(id string, data map[string]any) string {
	s, err := l.l.Localize(&goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil || s == "" {
		return id
	}
	return s
}

// SessionMessages returns the transport status strings for the session
// manager.
func (l *Localizer) SessionMessages() session.Messages {
	return session.Messages{
		Connecting:     l.Text(MsgConnecting, nil),
		Connected:      l.Text(MsgConnected, nil),
		ConnectionLost: l.Text(MsgConnectionLost, nil),
		ConnectTimeout: l.Text(MsgConnectTimeout, nil),
	}
}
