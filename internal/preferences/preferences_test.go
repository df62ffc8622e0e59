package preferences

import (
	"errors"
	"math"
	"testing"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

func defaults() Preferences {
	return FromConfig(config.Default().Defaults)
}

func TestDefaultsAreValid(t *testing.T) {
	p := defaults()
	if err := p.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if p.Engine != EngineGeminiMulti {
		t.Fatalf("expected geminimulti default, got %q", p.Engine)
	}
	if p.Creativity != 0.7 {
		t.Fatalf("expected creativity 0.7, got %v", p.Creativity)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Preferences)
		field  string
	}{
		"creativity low":  {func(p *Preferences) { p.Creativity = -0.1 }, "creativity"},
		"creativity high": {func(p *Preferences) { p.Creativity = 1.01 }, "creativity"},
		"creativity NaN":  {func(p *Preferences) { p.Creativity = math.NaN() }, "creativity"},
		"engine":          {func(p *Preferences) { p.Engine = "espeak" }, "tts_model"},
		"role one":        {func(p *Preferences) { p.RolesPerson1 = "  " }, "roles_person1"},
		"role two":        {func(p *Preferences) { p.RolesPerson2 = "" }, "roles_person2"},
		"styles":          {func(p *Preferences) { p.ConversationStyles = []string{" "} }, "conversation_style"},
		"structure":       {func(p *Preferences) { p.DialogueStructure = nil }, "dialogue_structure"},
		"techniques":      {func(p *Preferences) { p.EngagementTechniques = []string{} }, "engagement_techniques"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := defaults()
			tc.mutate(&p)
			err := p.Validate()
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tc.field {
				t.Fatalf("field = %q, want %q", fe.Field, tc.field)
			}
		})
	}
}

func TestCreativityBoundsInclusive(t *testing.T) {
	for _, v := range []float64{0, 1} {
		p := defaults()
		p.Creativity = v
		if err := p.Validate(); err != nil {
			t.Fatalf("creativity %v should be valid: %v", v, err)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	p := defaults()
	c := p.Clone()
	c.ConversationStyles[0] = "Changed"
	if p.ConversationStyles[0] == "Changed" {
		t.Fatal("clone shares slice storage")
	}
}

func TestNormalized(t *testing.T) {
	p := defaults()
	p.ConversationStyles = []string{" Casual ", "Casual", "", "Witty"}
	p.RolesPerson1 = "  Host "
	n := p.Normalized()
	if len(n.ConversationStyles) != 2 || n.ConversationStyles[0] != "Casual" || n.ConversationStyles[1] != "Witty" {
		t.Fatalf("unexpected normalized styles %v", n.ConversationStyles)
	}
	if n.RolesPerson1 != "Host" {
		t.Fatalf("unexpected role %q", n.RolesPerson1)
	}
}

func TestParseEngine(t *testing.T) {
	for _, e := range Engines() {
		got, err := ParseEngine(string(e))
		if err != nil || got != e {
			t.Fatalf("ParseEngine(%q) = %q, %v", e, got, err)
		}
	}
	if got, err := ParseEngine(" OpenAI "); err != nil || got != EngineOpenAI {
		t.Fatalf("expected case-insensitive parse, got %q %v", got, err)
	}
	if _, err := ParseEngine("gemini"); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestCatalogIsOpen(t *testing.T) {
	cat := CatalogFromConfig(config.Default().Catalog)

	added, err := cat.Add(ConversationStyle, "Witty")
	if err != nil || !added {
		t.Fatalf("expected custom entry to be added: %v", err)
	}
	added, err = cat.Add(ConversationStyle, "Engaging")
	if err != nil || added {
		t.Fatalf("seed entries must not be duplicated")
	}
	added, _ = cat.Add(ConversationStyle, "   ")
	if added {
		t.Fatal("blank entries must be ignored")
	}

	opts := cat.Options(ConversationStyle)
	if opts[0] != "Engaging" || opts[len(opts)-1] != "Witty" {
		t.Fatalf("expected seed first and custom last, got %v", opts)
	}

	if _, err := cat.Add(Category("moods"), "Calm"); err == nil {
		t.Fatal("expected unknown category error")
	}

	// selections outside the catalog are still valid preferences
	p := defaults()
	p.EngagementTechniques = []string{"Cliffhangers"}
	if err := p.Validate(); err != nil {
		t.Fatalf("open selection rejected: %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	if c, err := ParseCategory("dialogue_structure"); err != nil || c != DialogueStructure {
		t.Fatalf("unexpected parse %q %v", c, err)
	}
	if _, err := ParseCategory("tempo"); err == nil {
		t.Fatal("expected error")
	}
}
