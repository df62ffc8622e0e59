package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var envKeys = map[string][]string{
	ProviderGoogle:     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderElevenLabs: {"ELEVENLABS_API_KEY"},
}

// SeedFromEnv copies provider secrets from the process environment and an
// optional .env file into the store. Process variables win over the file.
// The process environment itself is left untouched. It returns the providers
// that were seeded.
func SeedFromEnv(store Store, envFile string) ([]string, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		if vars != nil {
			fileVars = vars
		}
	}

	var seeded []string
	for _, provider := range Providers() {
		secret := lookup(envKeys[provider], os.Getenv)
		if secret == "" {
			secret = lookup(envKeys[provider], func(k string) string { return fileVars[k] })
		}
		if secret == "" {
			continue
		}
		store.Set(provider, secret)
		seeded = append(seeded, provider)
	}
	return seeded, nil
}

func lookup(keys []string, get func(string) string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(get(key)); v != "" {
			return v
		}
	}
	return ""
}
