// Package artifact locates and downloads the audio produced by a completed
// session.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

var ErrEmptyReference = errors.New("artifact: empty audio reference")

// Info describes a downloaded artifact.
type Info struct {
	Path       string        `json:"path"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate,omitempty"`
	// Decoded is false when the file could not be read as MP3.
	Decoded bool `json:"decoded"`
}

// Resolve turns the audio reference of a completion into an absolute HTTP
// URL. Relative references resolve against base; websocket schemes map to
// their HTTP equivalents.
func Resolve(base, audioRef string) (string, error) {
	audioRef = strings.TrimSpace(audioRef)
	if audioRef == "" {
		return "", ErrEmptyReference
	}
	ref, err := url.Parse(audioRef)
	if err != nil {
		return "", fmt.Errorf("parse audio reference: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch b.Scheme {
	case "ws":
		b.Scheme = "http"
	case "wss":
		b.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("cannot resolve %q against base %q", audioRef, base)
	}
	b.RawQuery = ""
	b.Fragment = ""
	return b.ResolveReference(ref).String(), nil
}

// Fetch downloads src to dest and inspects it. The file is written to a
// temporary sibling first, so dest is either complete or untouched.
func Fetch(ctx context.Context, client *http.Client, src, dest string) (Info, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return Info{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("download %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Info{}, fmt.Errorf("download %s: unexpected status %s", src, resp.Status)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".podcast-*.part")
	if err != nil {
		return Info{}, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Info{}, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return Info{}, err
	}

	info := Info{Path: dest, Bytes: n}
	if d, rate, err := Inspect(dest); err == nil {
		info.Duration, info.SampleRate, info.Decoded = d, rate, true
	}
	return info, nil
}

// Inspect reports the play time and sample rate of an MP3 file.
func Inspect(path string) (time.Duration, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode mp3: %w", err)
	}
	rate := dec.SampleRate()
	if rate <= 0 || dec.Length() < 0 {
		return 0, rate, errors.New("decode mp3: unknown length")
	}
	// decoded PCM is 16-bit stereo
	samples := dec.Length() / 4
	return time.Duration(samples) * time.Second / time.Duration(rate), rate, nil
}
