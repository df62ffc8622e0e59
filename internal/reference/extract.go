package reference

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Kind classifies a reference.
type Kind int

const (
	Content Kind = iota
	Image
)

func (k Kind) String() string {
	switch k {
	case Content:
		return "content"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "content", "":
		return Content, true
	case "image":
		return Image, true
	}
	return Content, false
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("unknown reference kind %q", text)
	}
	*k = parsed
	return nil
}

// Reference is a classified URL. Two references are the same when their URLs
// are byte-for-byte equal.
type Reference struct {
	URL  string `json:"url" yaml:"url"`
	Kind Kind   `json:"kind" yaml:"kind"`
}

// Extraction is the result of scanning one piece of text.
type Extraction struct {
	Content []Reference
	Image   []Reference
}

// Empty reports whether nothing was found.
func (e Extraction) Empty() bool {
	return len(e.Content) == 0 && len(e.Image) == 0
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// imageHints are substrings that mark a URL as image-hosted when no URL in the
// same extraction carries an image extension.
var imageHints = []string{
	"images",
	"img",
	"photos",
	"imgur",
	"cloudinary",
	"imagekit",
	"uploadcare",
	"cdn",
	"media",
	"image=",
	"type=image",
}

// Extract scans text for http(s) URLs. Every match is a content reference;
// matches whose path ends in a raster image extension are also image
// references. When no match has such an extension, matches containing an
// image-hosting hint are used as image references instead. Results are
// deduplicated and keep first-seen order.
func Extract(text string) Extraction {
	matches := dedupe(urlPattern.FindAllString(text, -1))
	if len(matches) == 0 {
		return Extraction{}
	}

	out := Extraction{Content: make([]Reference, 0, len(matches))}
	for _, m := range matches {
		out.Content = append(out.Content, Reference{URL: m, Kind: Content})
	}

	for _, m := range matches {
		if hasImageExtension(m) {
			out.Image = append(out.Image, Reference{URL: m, Kind: Image})
		}
	}
	if len(out.Image) > 0 {
		return out
	}
	for _, m := range matches {
		if hasImageHint(m) {
			out.Image = append(out.Image, Reference{URL: m, Kind: Image})
		}
	}
	return out
}

func hasImageExtension(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		p = raw[:i]
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

func hasImageHint(raw string) bool {
	lower := strings.ToLower(raw)
	for _, hint := range imageHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// URLs returns the URL strings of refs in order.
func URLs(refs []Reference) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.URL)
	}
	return dedupe(out)
}
