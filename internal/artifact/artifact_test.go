package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/backend"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		base, ref, want string
	}{
		{"ws://localhost:8080/generate", "/audio/podcast_1.mp3", "http://localhost:8080/audio/podcast_1.mp3"},
		{"wss://gen.example.com/generate?session=x", "/audio/a.mp3", "https://gen.example.com/audio/a.mp3"},
		{"http://localhost:8780/", "audio/b.mp3", "http://localhost:8780/audio/b.mp3"},
		{"", "https://cdn.example.com/c.mp3", "https://cdn.example.com/c.mp3"},
	}
	for _, tc := range cases {
		got, err := Resolve(tc.base, tc.ref)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", tc.base, tc.ref, err)
		}
		if got != tc.want {
			t.Fatalf("Resolve(%q, %q) = %q, want %q", tc.base, tc.ref, got, tc.want)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	if _, err := Resolve("ws://x", "  "); !errors.Is(err, ErrEmptyReference) {
		t.Fatalf("expected ErrEmptyReference, got %v", err)
	}
	if _, err := Resolve("nats://localhost:4222", "/audio/a.mp3"); err == nil {
		t.Fatal("expected error for a base that cannot serve files")
	}
}

func TestFetchInspectsMP3(t *testing.T) {
	data := backend.SilentMP3(10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/podcast_1.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "out", "episode.mp3")
	info, err := Fetch(context.Background(), srv.Client(), srv.URL+"/audio/podcast_1.mp3", dest)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Bytes != int64(len(data)) {
		t.Fatalf("bytes = %d, want %d", info.Bytes, len(data))
	}
	if !info.Decoded || info.SampleRate != 44100 {
		t.Fatalf("expected decoded 44.1kHz audio, got %+v", info)
	}
	// 10 frames of 1152 samples
	want := time.Duration(11520) * time.Second / 44100
	if info.Duration != want {
		t.Fatalf("duration = %v, want %v", info.Duration, want)
	}
	if st, err := os.Stat(dest); err != nil || st.Size() != int64(len(data)) {
		t.Fatalf("file not written: %v", err)
	}
}

func TestFetchKeepsUndecodableFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not audio"))
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "x.mp3")
	info, err := Fetch(context.Background(), nil, srv.URL, dest)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Decoded || info.Bytes != 9 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "missing.mp3")
	if _, err := Fetch(context.Background(), srv.Client(), srv.URL+"/audio/none.mp3", dest); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("destination must not exist after a failed download")
	}
}
