package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/backend"
	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/natsserver"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var edgeRequest = protocol.PodcastRequest{URLs: []string{"https://a.example/1"}, TTSModel: "edge", RolesPerson2: "Expert"}

// drive opens ch, sends req once connected and collects events up to the
// first terminal one.
func drive(t *testing.T, ch Channel, req protocol.Outbound) []protocol.Inbound {
	t.Helper()
	events, err := ch.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var got []protocol.Inbound
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
			if ev.Kind == protocol.EventConnect {
				if err := ch.Send(context.Background(), req); err != nil {
					t.Fatalf("send: %v", err)
				}
			}
			if ev.Terminal() {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out, events so far: %+v", got)
		}
	}
}

func kinds(events []protocol.Inbound) string {
	var out []string
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return strings.Join(out, ",")
}

func TestMockChannelRunsSimulator(t *testing.T) {
	d := &MockDialer{Simulator: backend.NewSimulator(config.BackendConfig{})}
	ch := d.Dial("s1")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	if got := kinds(events); got != "connect,status,status,progress,status,progress,progress,complete" {
		t.Fatalf("sequence = %s", got)
	}
}

func TestSendBeforeConnect(t *testing.T) {
	d := &WebsocketDialer{URL: "ws://127.0.0.1:1/generate", Timeout: time.Second, Logger: newLogger()}
	ch := d.Dial("s1")
	if err := ch.Send(context.Background(), edgeRequest); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	ch.Close()
	if err := ch.Send(context.Background(), edgeRequest); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := ch.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Open after Close, got %v", err)
	}
}

func TestOpenTwice(t *testing.T) {
	d := &MockDialer{Simulator: backend.NewSimulator(config.BackendConfig{})}
	ch := d.Dial("s1")
	defer ch.Close()
	if _, err := ch.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ch.Open(context.Background()); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestCloseEndsStream(t *testing.T) {
	d := &MockDialer{Simulator: backend.NewSimulator(config.BackendConfig{StepMS: 60000})}
	ch := d.Dial("s1")
	events, err := ch.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	<-events // connect
	if err := ch.Send(context.Background(), edgeRequest); err != nil {
		t.Fatalf("send: %v", err)
	}
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()
	ch.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after Close")
	}
}

func TestWebsocketChannel(t *testing.T) {
	sim := backend.NewSimulator(config.BackendConfig{StepMS: 1})
	srv := httptest.NewServer(backend.Handler(sim, newLogger()))
	defer srv.Close()

	d := &WebsocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/generate", Timeout: 2 * time.Second, Logger: newLogger()}
	ch := d.Dial("ws-session")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	last := events[len(events)-1]
	if last.Kind != protocol.EventComplete || !strings.HasPrefix(last.AudioURL, "/audio/podcast_") {
		t.Fatalf("unexpected last event %+v (all: %s)", last, kinds(events))
	}
	if events[0].Kind != protocol.EventConnect {
		t.Fatalf("first event = %s", events[0].Kind)
	}
}

func TestWebsocketConnectTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// never answer the handshake
			defer conn.Close()
		}
	}()

	d := &WebsocketDialer{URL: "ws://" + ln.Addr().String() + "/generate", Timeout: 100 * time.Millisecond, Logger: newLogger()}
	ch := d.Dial("slow")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	if len(events) != 1 || events[0].Kind != protocol.EventDisconnect {
		t.Fatalf("expected a single disconnect, got %s", kinds(events))
	}
	if !errors.Is(events[0].Err, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", events[0].Err)
	}
}

func TestWebsocketRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := &WebsocketDialer{URL: "ws://" + addr, Timeout: time.Second, Logger: newLogger()}
	ch := d.Dial("refused")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	if len(events) != 1 || events[0].Kind != protocol.EventDisconnect || events[0].Err == nil {
		t.Fatalf("expected disconnect with cause, got %+v", events)
	}
	if errors.Is(events[0].Err, ErrConnectTimeout) {
		t.Fatal("refused connection must not be reported as timeout")
	}
}

func TestSessionURL(t *testing.T) {
	if got := sessionURL("ws://host/generate?lang=en", "abc"); got != "ws://host/generate?lang=en&session=abc" {
		t.Fatalf("sessionURL = %q", got)
	}
}

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, newLogger())
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestNATSChannel(t *testing.T) {
	client := startBus(t)
	cfg := config.BackendConfig{Enabled: true, StepMS: 1}
	svc := backend.NewService(context.Background(), cfg, "podcast.session", client, backend.NewSimulator(cfg), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start backend: %v", err)
	}
	t.Cleanup(svc.Close)

	dialer, err := NewDialer(config.ChannelConfig{Transport: "nats", SubjectPrefix: "podcast.session", ConnectTimeout: 2000}, cfg, client, newLogger())
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	ch := dialer.Dial("nats-session")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	if got := kinds(events); got != "connect,status,status,progress,status,progress,progress,complete" {
		t.Fatalf("sequence = %s", got)
	}
}

func TestNATSDialerNeedsBus(t *testing.T) {
	if _, err := NewDialer(config.ChannelConfig{Transport: "nats"}, config.BackendConfig{}, nil, newLogger()); err == nil {
		t.Fatal("expected error without bus")
	}
	if _, err := NewDialer(config.ChannelConfig{Transport: "pigeon"}, config.BackendConfig{}, nil, newLogger()); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestExecChannel(t *testing.T) {
	d, err := NewExecDialer("sh testdata/service.sh", newLogger())
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	ch := d.Dial("exec-1")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	if got := kinds(events); got != "connect,status,progress,complete" {
		t.Fatalf("sequence = %s", got)
	}
	if events[2].Message != "working exec-1" {
		t.Fatalf("session id not passed to command: %q", events[2].Message)
	}
	if events[3].Transcript != "hi" {
		t.Fatalf("transcript = %q", events[3].Transcript)
	}
}

func TestExecChannelCrash(t *testing.T) {
	d, err := NewExecDialer("sh testdata/crash.sh", newLogger())
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	ch := d.Dial("exec-2")
	defer ch.Close()
	events := drive(t, ch, edgeRequest)
	if got := kinds(events); got != "connect,status,disconnect" {
		t.Fatalf("sequence = %s", got)
	}
	if events[2].Err == nil {
		t.Fatal("disconnect must carry the exit cause")
	}
}

func TestExecDialerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecDialer("   ", newLogger()); err == nil {
		t.Fatal("expected error")
	}
}
