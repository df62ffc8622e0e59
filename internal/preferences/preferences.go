package preferences

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

// Engine identifies a speech-synthesis backend.
type Engine string

const (
	EngineGeminiMulti Engine = "geminimulti"
	EngineEdge        Engine = "edge"
	EngineOpenAI      Engine = "openai"
	EngineElevenLabs  Engine = "elevenlabs"
)

// Engines lists every supported engine in display order.
func Engines() []Engine {
	return []Engine{EngineGeminiMulti, EngineEdge, EngineOpenAI, EngineElevenLabs}
}

func (e Engine) Valid() bool {
	switch e {
	case EngineGeminiMulti, EngineEdge, EngineOpenAI, EngineElevenLabs:
		return true
	}
	return false
}

func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("unknown tts engine %q", s)
	}
	return e, nil
}

// Preferences is a snapshot of the user's generation options. Treat values as
// immutable: use Clone before modifying slices of a shared value.
type Preferences struct {
	Name                 string   `json:"name" yaml:"name"`
	Tagline              string   `json:"tagline" yaml:"tagline"`
	Instructions         string   `json:"instructions" yaml:"instructions"`
	LongForm             bool     `json:"long_form" yaml:"long_form"`
	Creativity           float64  `json:"creativity" yaml:"creativity"`
	RolesPerson1         string   `json:"roles_person1" yaml:"roles_person1"`
	RolesPerson2         string   `json:"roles_person2" yaml:"roles_person2"`
	ConversationStyles   []string `json:"conversation_styles" yaml:"conversation_styles"`
	DialogueStructure    []string `json:"dialogue_structure" yaml:"dialogue_structure"`
	EngagementTechniques []string `json:"engagement_techniques" yaml:"engagement_techniques"`
	Engine               Engine   `json:"tts_model" yaml:"tts_model"`
}

// FromConfig builds the default preferences.
func FromConfig(cfg config.DefaultsConfig) Preferences {
	return Preferences{
		Name:                 cfg.Name,
		Tagline:              cfg.Tagline,
		Instructions:         cfg.Instructions,
		LongForm:             cfg.LongForm,
		Creativity:           cfg.Creativity,
		RolesPerson1:         cfg.RolesPerson1,
		RolesPerson2:         cfg.RolesPerson2,
		ConversationStyles:   normalize(cfg.ConversationStyles),
		DialogueStructure:    normalize(cfg.DialogueStructure),
		EngagementTechniques: normalize(cfg.EngagementTechniques),
		Engine:               Engine(cfg.TTSModel),
	}
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	c := p
	c.ConversationStyles = append([]string(nil), p.ConversationStyles...)
	c.DialogueStructure = append([]string(nil), p.DialogueStructure...)
	c.EngagementTechniques = append([]string(nil), p.EngagementTechniques...)
	return c
}

// Normalized trims and deduplicates the category selections.
func (p Preferences) Normalized() Preferences {
	c := p.Clone()
	c.ConversationStyles = normalize(c.ConversationStyles)
	c.DialogueStructure = normalize(c.DialogueStructure)
	c.EngagementTechniques = normalize(c.EngagementTechniques)
	c.RolesPerson1 = strings.TrimSpace(c.RolesPerson1)
	c.RolesPerson2 = strings.TrimSpace(c.RolesPerson2)
	return c
}

// FieldError names the preference that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

// Validate checks the invariants the wire schema depends on.
func (p Preferences) Validate() error {
	if !(p.Creativity >= 0 && p.Creativity <= 1) {
		return &FieldError{Field: "creativity", Reason: "must be between 0 and 1"}
	}
	if !p.Engine.Valid() {
		return &FieldError{Field: "tts_model", Reason: fmt.Sprintf("must be one of geminimulti|edge|openai|elevenlabs, got %q", p.Engine)}
	}
	if strings.TrimSpace(p.RolesPerson1) == "" {
		return &FieldError{Field: "roles_person1", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.RolesPerson2) == "" {
		return &FieldError{Field: "roles_person2", Reason: "must not be empty"}
	}
	if len(normalize(p.ConversationStyles)) == 0 {
		return &FieldError{Field: "conversation_style", Reason: "must select at least one entry"}
	}
	if len(normalize(p.DialogueStructure)) == 0 {
		return &FieldError{Field: "dialogue_structure", Reason: "must select at least one entry"}
	}
	if len(normalize(p.EngagementTechniques)) == 0 {
		return &FieldError{Field: "engagement_techniques", Reason: "must select at least one entry"}
	}
	return nil
}

func normalize(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
