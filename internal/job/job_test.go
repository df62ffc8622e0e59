package job

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/loqalabs/loqa-podcast/internal/reference"
)

func prefsWith(engine preferences.Engine) preferences.Preferences {
	p := preferences.FromConfig(config.Default().Defaults)
	p.Engine = engine
	return p
}

func content(urls ...string) []reference.Reference {
	var out []reference.Reference
	for _, u := range urls {
		out = append(out, reference.Reference{URL: u, Kind: reference.Content})
	}
	return out
}

func TestBuildRejectsImageOnly(t *testing.T) {
	img := []reference.Reference{{URL: "https://i.example/p.png", Kind: reference.Image}}
	cred := &credential.Credential{Provider: credential.ProviderGoogle, Secret: "g"}
	_, err := Build(prefsWith(preferences.EngineGeminiMulti), nil, img, cred)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "urls" {
		t.Fatalf("field = %q", ve.Field)
	}
}

func TestBuildMissingCredential(t *testing.T) {
	_, err := Build(prefsWith(preferences.EngineOpenAI), content("https://a.example/1"), nil, nil)
	var me *MissingCredentialError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingCredentialError, got %v", err)
	}
	if me.Provider != "openai" {
		t.Fatalf("provider = %q", me.Provider)
	}

	_, err = Build(prefsWith(preferences.EngineOpenAI), content("https://a.example/1"), nil, &credential.Credential{Provider: "openai"})
	if !errors.As(err, &me) {
		t.Fatalf("empty secret must count as missing, got %v", err)
	}
}

func TestBuildEdgeHasNoKey(t *testing.T) {
	req, err := Build(prefsWith(preferences.EngineEdge), content("https://a.example/1"), nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out := req.Outbound().(protocol.PodcastRequest)
	if out.GoogleKey != "" || out.OpenAIKey != "" || out.ElevenLabsKey != "" {
		t.Fatalf("edge request carries a key: %+v", out)
	}
	data, err := protocol.Encode(out)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"google_key", "openai_key", "elevenlabs_key"} {
		if _, ok := env.Data[key]; ok {
			t.Fatalf("%s must be absent for edge", key)
		}
	}
}

func TestBuildPopulatesExactlyOneKey(t *testing.T) {
	cases := []struct {
		engine   preferences.Engine
		provider string
		pick     func(protocol.PodcastRequest) string
	}{
		{preferences.EngineGeminiMulti, "google", func(p protocol.PodcastRequest) string { return p.GoogleKey }},
		{preferences.EngineOpenAI, "openai", func(p protocol.PodcastRequest) string { return p.OpenAIKey }},
		{preferences.EngineElevenLabs, "elevenlabs", func(p protocol.PodcastRequest) string { return p.ElevenLabsKey }},
	}
	for _, tc := range cases {
		req, err := Build(prefsWith(tc.engine), content("https://a.example/1"), nil, &credential.Credential{Provider: tc.provider, Secret: "s3cret"})
		if err != nil {
			t.Fatalf("%s: build: %v", tc.engine, err)
		}
		out := req.Outbound().(protocol.PodcastRequest)
		if tc.pick(out) != "s3cret" {
			t.Fatalf("%s: key not populated", tc.engine)
		}
		set := 0
		for _, k := range []string{out.GoogleKey, out.OpenAIKey, out.ElevenLabsKey} {
			if k != "" {
				set++
			}
		}
		if set != 1 {
			t.Fatalf("%s: expected exactly one key, got %d", tc.engine, set)
		}
		if out.TTSModel != string(tc.engine) {
			t.Fatalf("tts_model = %q", out.TTSModel)
		}
	}
}

func TestBuildValidationBeforeCredential(t *testing.T) {
	p := prefsWith(preferences.EngineOpenAI)
	p.Creativity = 2
	_, err := Build(p, content("https://a.example/1"), nil, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "creativity" {
		t.Fatalf("expected creativity ValidationError, got %v", err)
	}
}

func TestBuildRejectsNaNCreativity(t *testing.T) {
	p := prefsWith(preferences.EngineEdge)
	p.Creativity = math.NaN()
	_, err := Build(p, content("https://a.example/1"), nil, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "creativity" {
		t.Fatalf("expected creativity ValidationError, got %v", err)
	}
}

func TestBuildRequestIsImmutable(t *testing.T) {
	refs := content("https://a.example/1", "https://a.example/2")
	p := prefsWith(preferences.EngineEdge)
	req, err := Build(p, refs, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	refs[0].URL = "https://mutated.example"
	p.ConversationStyles[0] = "Mutated"

	out := req.Outbound().(protocol.PodcastRequest)
	if out.URLs[0] != "https://a.example/1" || out.ConversationStyle[0] == "Mutated" {
		t.Fatalf("request shares caller storage: %+v", out)
	}
	out.URLs[0] = "changed"
	if req.Outbound().(protocol.PodcastRequest).URLs[0] != "https://a.example/1" {
		t.Fatal("Outbound must hand out copies")
	}
}

func TestBuildDeduplicatesAndCarriesImages(t *testing.T) {
	refs := content("https://a.example/1", "https://a.example/1")
	img := []reference.Reference{{URL: "https://i.example/p.png", Kind: reference.Image}}
	req, err := Build(prefsWith(preferences.EngineEdge), refs, img, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out := req.Outbound().(protocol.PodcastRequest)
	if len(out.URLs) != 1 || len(out.ImageURLs) != 1 {
		t.Fatalf("unexpected lists %v %v", out.URLs, out.ImageURLs)
	}
	if req.Kind() != KindPodcast || req.Engine() != preferences.EngineEdge {
		t.Fatalf("unexpected kind/engine %s %s", req.Kind(), req.Engine())
	}
}

func TestBuildNews(t *testing.T) {
	if _, err := BuildNews("  ", &credential.Credential{Provider: "google", Secret: "g"}); err == nil {
		t.Fatal("expected ValidationError for blank topics")
	}
	_, err := BuildNews("ai", nil)
	var me *MissingCredentialError
	if !errors.As(err, &me) || me.Provider != "google" {
		t.Fatalf("expected missing google credential, got %v", err)
	}
	req, err := BuildNews(" ai, space ", &credential.Credential{Provider: "google", Secret: "g"})
	if err != nil {
		t.Fatalf("build news: %v", err)
	}
	out := req.Outbound().(protocol.NewsRequest)
	if out.Topics != "ai, space" || out.GoogleKey != "g" || req.Kind() != KindNews {
		t.Fatalf("unexpected news request %+v", out)
	}
}
