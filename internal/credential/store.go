package credential

import (
	"strings"
	"sync"
)

// Provider names used as store keys.
const (
	ProviderGoogle     = "google"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
)

// Providers lists every provider a secret can be stored for.
func Providers() []string {
	return []string{ProviderGoogle, ProviderOpenAI, ProviderElevenLabs}
}

// KnownProvider reports whether name is a provider the store accepts.
func KnownProvider(name string) bool {
	switch name {
	case ProviderGoogle, ProviderOpenAI, ProviderElevenLabs:
		return true
	}
	return false
}

// Store is a session-lifetime secret holder keyed by provider name.
type Store interface {
	Get(provider string) (string, bool)
	Set(provider, secret string)
}

// MemoryStore keeps secrets in process memory only.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func (m *MemoryStore) Get(provider string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.secrets[provider]
	return secret, ok
}

// Set stores the trimmed secret; an empty secret removes the entry.
func (m *MemoryStore) Set(provider, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret = strings.TrimSpace(secret)
	if secret == "" {
		delete(m.secrets, provider)
		return
	}
	m.secrets[provider] = secret
}

// Configured returns the providers that currently hold a secret.
func (m *MemoryStore) Configured() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, p := range Providers() {
		if m.secrets[p] != "" {
			out = append(out, p)
		}
	}
	return out
}
