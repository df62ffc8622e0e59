// Package job assembles immutable generation requests from references,
// preferences and resolved credentials.
package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/loqalabs/loqa-podcast/internal/reference"
)

// Kind distinguishes the two job flavours.
type Kind string

const (
	KindPodcast Kind = "podcast"
	KindNews    Kind = "news"
)

// ValidationError reports input that can never be submitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MissingCredentialError reports a required secret that is not configured.
type MissingCredentialError struct {
	Provider string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing %s credential", e.Provider)
}

// Request is a built job. It is a value: callers get copies of every slice.
type Request struct {
	kind    Kind
	engine  preferences.Engine
	payload protocol.Outbound
}

func (r Request) Kind() Kind                 { return r.kind }
func (r Request) Engine() preferences.Engine { return r.engine }

// Outbound returns the wire message. Slices are copied on every call.
func (r Request) Outbound() protocol.Outbound {
	switch p := r.payload.(type) {
	case protocol.PodcastRequest:
		return clonePodcast(p)
	case protocol.NewsRequest:
		return p
	}
	return r.payload
}

// Build validates the inputs and produces a generate_podcast request.
// Content references are checked first, then preferences, then the
// credential, so an empty submission never reports a missing key.
func Build(prefs preferences.Preferences, content, image []reference.Reference, cred *credential.Credential) (Request, error) {
	urls := reference.URLs(content)
	if len(urls) == 0 {
		return Request{}, &ValidationError{Field: "urls", Reason: "at least one content reference is required"}
	}
	prefs = prefs.Normalized()
	if err := prefs.Validate(); err != nil {
		var fe *preferences.FieldError
		if errors.As(err, &fe) {
			return Request{}, &ValidationError{Field: fe.Field, Reason: fe.Reason}
		}
		return Request{}, &ValidationError{Field: "preferences", Reason: err.Error()}
	}

	req := protocol.PodcastRequest{
		URLs:                 urls,
		ImageURLs:            reference.URLs(image),
		Name:                 prefs.Name,
		Tagline:              prefs.Tagline,
		IsLongForm:           prefs.LongForm,
		Creativity:           prefs.Creativity,
		ConversationStyle:    prefs.ConversationStyles,
		DialogueStructure:    prefs.DialogueStructure,
		EngagementTechniques: prefs.EngagementTechniques,
		RolesPerson1:         prefs.RolesPerson1,
		RolesPerson2:         prefs.RolesPerson2,
		UserInstructions:     strings.TrimSpace(prefs.Instructions),
		TTSModel:             string(prefs.Engine),
	}

	if provider, needed := credential.ProviderFor(prefs.Engine); needed {
		if !cred.Present() || cred.Provider != provider {
			return Request{}, &MissingCredentialError{Provider: provider}
		}
		switch provider {
		case credential.ProviderGoogle:
			req.GoogleKey = cred.Secret
		case credential.ProviderOpenAI:
			req.OpenAIKey = cred.Secret
		case credential.ProviderElevenLabs:
			req.ElevenLabsKey = cred.Secret
		}
	}

	return Request{kind: KindPodcast, engine: prefs.Engine, payload: clonePodcast(req)}, nil
}

// BuildNews produces a generate_news_podcast request. The Google secret is
// always required.
func BuildNews(topics string, cred *credential.Credential) (Request, error) {
	topics = strings.TrimSpace(topics)
	if topics == "" {
		return Request{}, &ValidationError{Field: "topics", Reason: "must not be empty"}
	}
	if !cred.Present() || cred.Provider != credential.ProviderGoogle {
		return Request{}, &MissingCredentialError{Provider: credential.ProviderGoogle}
	}
	return Request{
		kind:    KindNews,
		engine:  preferences.EngineGeminiMulti,
		payload: protocol.NewsRequest{Topics: topics, GoogleKey: cred.Secret},
	}, nil
}

func clonePodcast(p protocol.PodcastRequest) protocol.PodcastRequest {
	p.URLs = cloneStrings(p.URLs)
	p.ImageURLs = cloneStrings(p.ImageURLs)
	p.ConversationStyle = cloneStrings(p.ConversationStyle)
	p.DialogueStructure = cloneStrings(p.DialogueStructure)
	p.EngagementTechniques = cloneStrings(p.EngagementTechniques)
	return p
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
