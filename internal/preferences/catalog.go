package preferences

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

// Category names one of the open multi-select lists.
type Category string

const (
	ConversationStyle    Category = "conversation_style"
	DialogueStructure    Category = "dialogue_structure"
	EngagementTechniques Category = "engagement_techniques"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.TrimSpace(s)); c {
	case ConversationStyle, DialogueStructure, EngagementTechniques:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Options is an ordered list of choices: a fixed seed followed by user-added
// entries. Nothing closes the set; selections outside it are still legal.
type Options struct {
	Seed   []string `json:"seed" yaml:"seed"`
	Custom []string `json:"custom" yaml:"custom"`
}

func (o Options) All() []string {
	return normalize(append(append([]string(nil), o.Seed...), o.Custom...))
}

func (o Options) Contains(v string) bool {
	for _, s := range o.All() {
		if s == v {
			return true
		}
	}
	return false
}

// Catalog holds the options offered for each category.
type Catalog struct {
	ConversationStyles   Options `json:"conversation_styles" yaml:"conversation_styles"`
	DialogueStructure    Options `json:"dialogue_structure" yaml:"dialogue_structure"`
	EngagementTechniques Options `json:"engagement_techniques" yaml:"engagement_techniques"`
}

func CatalogFromConfig(cfg config.CatalogConfig) Catalog {
	return Catalog{
		ConversationStyles:   Options{Seed: normalize(cfg.ConversationStyles)},
		DialogueStructure:    Options{Seed: normalize(cfg.DialogueStructure)},
		EngagementTechniques: Options{Seed: normalize(cfg.EngagementTechniques)},
	}
}

func (c *Catalog) options(cat Category) *Options {
	switch cat {
	case ConversationStyle:
		return &c.ConversationStyles
	case DialogueStructure:
		return &c.DialogueStructure
	case EngagementTechniques:
		return &c.EngagementTechniques
	}
	return nil
}

// Add appends a user entry; it reports false when the value is blank or
// already offered.
func (c *Catalog) Add(cat Category, value string) (bool, error) {
	opts := c.options(cat)
	if opts == nil {
		return false, fmt.Errorf("unknown category %q", cat)
	}
	value = strings.TrimSpace(value)
	if value == "" || opts.Contains(value) {
		return false, nil
	}
	opts.Custom = append(opts.Custom, value)
	return true, nil
}

// Options returns every choice of a category in display order.
func (c Catalog) Options(cat Category) []string {
	opts := c.options(cat)
	if opts == nil {
		return nil
	}
	return opts.All()
}

// Clone returns a copy that shares no slices with c.
func (c Catalog) Clone() Catalog {
	clone := func(o Options) Options {
		return Options{Seed: append([]string(nil), o.Seed...), Custom: append([]string(nil), o.Custom...)}
	}
	return Catalog{
		ConversationStyles:   clone(c.ConversationStyles),
		DialogueStructure:    clone(c.DialogueStructure),
		EngagementTechniques: clone(c.EngagementTechniques),
	}
}
