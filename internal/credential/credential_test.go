package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-podcast/internal/preferences"
)

func TestProviderFor(t *testing.T) {
	cases := map[preferences.Engine]string{
		preferences.EngineGeminiMulti: ProviderGoogle,
		preferences.EngineOpenAI:      ProviderOpenAI,
		preferences.EngineElevenLabs:  ProviderElevenLabs,
	}
	for engine, want := range cases {
		got, ok := ProviderFor(engine)
		if !ok || got != want {
			t.Fatalf("ProviderFor(%s) = %q, %v", engine, got, ok)
		}
	}
	if _, ok := ProviderFor(preferences.EngineEdge); ok {
		t.Fatal("edge must not require a provider")
	}
}

func TestResolveEdgeIsNil(t *testing.T) {
	store := NewMemoryStore()
	store.Set(ProviderGoogle, "g")
	if cred := NewResolver(store).Resolve(preferences.EngineEdge); cred != nil {
		t.Fatalf("expected nil credential for edge, got %+v", cred)
	}
}

func TestResolveReturnsEmptySecret(t *testing.T) {
	r := NewResolver(NewMemoryStore())
	cred := r.Resolve(preferences.EngineOpenAI)
	if cred == nil {
		t.Fatal("expected a credential value even without a secret")
	}
	if cred.Provider != ProviderOpenAI || cred.Secret != "" || cred.Present() {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestResolveFindsSecret(t *testing.T) {
	store := NewMemoryStore()
	store.Set(ProviderElevenLabs, "  el-key  ")
	cred := NewResolver(store).Resolve(preferences.EngineElevenLabs)
	if !cred.Present() || cred.Secret != "el-key" {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestMemoryStoreSetEmptyRemoves(t *testing.T) {
	store := NewMemoryStore()
	store.Set(ProviderGoogle, "g")
	store.Set(ProviderGoogle, "")
	if _, ok := store.Get(ProviderGoogle); ok {
		t.Fatal("expected secret to be removed")
	}
	if len(store.Configured()) != 0 {
		t.Fatalf("unexpected configured providers %v", store.Configured())
	}
}

func TestSeedFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "GEMINI_API_KEY=file-google\nOPENAI_API_KEY=file-openai\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "proc-openai")
	t.Setenv("ELEVENLABS_API_KEY", "")

	store := NewMemoryStore()
	seeded, err := SeedFromEnv(store, envFile)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seeded) != 2 {
		t.Fatalf("expected two providers seeded, got %v", seeded)
	}
	if v, _ := store.Get(ProviderGoogle); v != "file-google" {
		t.Fatalf("google = %q", v)
	}
	if v, _ := store.Get(ProviderOpenAI); v != "proc-openai" {
		t.Fatalf("process env must win, got %q", v)
	}
	if os.Getenv("GEMINI_API_KEY") != "" {
		t.Fatal("env file must not be loaded into the process environment")
	}
}

func TestSeedFromEnvMissingFile(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "g")
	store := NewMemoryStore()
	if _, err := SeedFromEnv(store, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
	if v, _ := store.Get(ProviderGoogle); v != "g" {
		t.Fatalf("google = %q", v)
	}
}

func TestVerifyGoogleEmpty(t *testing.T) {
	if err := VerifyGoogle(context.Background(), "", "gemini-2.5-flash"); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}
