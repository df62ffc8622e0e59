package i18n

import (
	"testing"

	"github.com/loqalabs/loqa-podcast/internal/session"
)

func TestEnglishMatchesSessionDefaults(t *testing.T) {
	cat, err := New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	got := cat.Localizer("en").SessionMessages()
	if got != session.DefaultMessages() {
		t.Fatalf("english messages drifted: %+v", got)
	}
}

func TestIndonesian(t *testing.T) {
	cat, err := New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	l := cat.Localizer("id")
	if got := l.Text(MsgConnected, nil); got != "Terhubung ke server" {
		t.Fatalf("unexpected translation %q", got)
	}
	if got := l.Text(MsgMissingCredential, map[string]any{"Provider": "google"}); got != "Silakan atur kunci API google sebelum membuat podcast" {
		t.Fatalf("unexpected template output %q", got)
	}
}

func TestFallbacks(t *testing.T) {
	cat, err := New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if got := cat.Localizer("fr").Text(MsgConnecting, nil); got != "Connecting to server..." {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if got := cat.Localizer("en").Text("no_such_message", nil); got != "no_such_message" {
		t.Fatalf("expected id fallback, got %q", got)
	}
	if len(cat.Languages()) != 2 {
		t.Fatalf("expected two bundled languages, got %v", cat.Languages())
	}
}
