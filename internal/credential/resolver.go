package credential

import "github.com/loqalabs/loqa-podcast/internal/preferences"

// Credential is a provider name paired with the secret found for it.
type Credential struct {
	Provider string
	Secret   string
}

// Present reports whether a non-empty secret was found.
func (c *Credential) Present() bool {
	return c != nil && c.Secret != ""
}

// ProviderFor maps an engine to the provider whose secret it needs. The
// second result is false for engines that need no secret.
func ProviderFor(engine preferences.Engine) (string, bool) {
	switch engine {
	case preferences.EngineGeminiMulti:
		return ProviderGoogle, true
	case preferences.EngineOpenAI:
		return ProviderOpenAI, true
	case preferences.EngineElevenLabs:
		return ProviderElevenLabs, true
	}
	return "", false
}

// Resolver looks secrets up in a Store. It never writes to the store.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns nil when the engine needs no credential. Otherwise it
// returns the provider and whatever secret is stored, possibly empty.
func (r *Resolver) Resolve(engine preferences.Engine) *Credential {
	provider, ok := ProviderFor(engine)
	if !ok {
		return nil
	}
	return r.Lookup(provider)
}

// Lookup returns the stored secret for a provider, possibly empty.
func (r *Resolver) Lookup(provider string) *Credential {
	var secret string
	if r.store != nil {
		secret, _ = r.store.Get(provider)
	}
	return &Credential{Provider: provider, Secret: secret}
}
