package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

// Emit receives every event the simulator produces, in order.
type Emit func(protocol.Envelope)

// Simulator imitates the generation service: it walks a request through the
// same status and progress events and finishes with a fake audio reference.
type Simulator struct {
	step        time.Duration
	audioPrefix string
}

func NewSimulator(cfg config.BackendConfig) *Simulator {
	prefix := strings.TrimRight(cfg.AudioPrefix, "/")
	if prefix == "" {
		prefix = "/audio"
	}
	return &Simulator{
		step:        time.Duration(cfg.StepMS) * time.Millisecond,
		audioPrefix: prefix,
	}
}

type frame struct {
	event   string
	payload any
}

// Run processes one request envelope. Failures the service would report are
// emitted as error events and also returned.
func (s *Simulator) Run(ctx context.Context, env protocol.Envelope, emit Emit) error {
	req, err := protocol.DecodeRequest(env)
	if err != nil {
		s.send(emit, protocol.EventError, protocol.Failure{Message: err.Error()})
		return err
	}

	var script []frame
	switch r := req.(type) {
	case protocol.PodcastRequest:
		script, err = s.podcastScript(r, emit)
	case protocol.NewsRequest:
		script, err = s.newsScript(r, emit)
	}
	if err != nil {
		s.send(emit, protocol.EventError, protocol.Failure{Message: err.Error()})
		return err
	}

	for _, f := range script {
		if f.event == protocol.EventStatus {
			if err := s.wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.send(emit, f.event, f.payload)
	}
	return nil
}

func (s *Simulator) podcastScript(r protocol.PodcastRequest, emit Emit) ([]frame, error) {
	s.send(emit, protocol.EventStatus, "Starting podcast generation...")
	if (r.TTSModel == "geminimulti" || r.TTSModel == "gemini" || r.TTSModel == "") && r.GoogleKey == "" {
		return nil, errors.New("Missing Google API key")
	}
	if len(r.URLs) == 0 {
		return nil, errors.New("No URLs provided")
	}
	audio, err := s.audioURL("podcast")
	if err != nil {
		return nil, err
	}
	return []frame{
		{protocol.EventStatus, "Generating podcast content..."},
		{protocol.EventProgress, protocol.Progress{Progress: 30, Message: "Generating podcast content..."}},
		{protocol.EventStatus, "Processing audio..."},
		{protocol.EventProgress, protocol.Progress{Progress: 90, Message: "Processing final audio..."}},
		{protocol.EventProgress, protocol.Progress{Progress: 100, Message: "Podcast generation complete!"}},
		{protocol.EventComplete, protocol.Complete{AudioURL: audio, Transcript: transcript(r)}},
	}, nil
}

func (s *Simulator) newsScript(r protocol.NewsRequest, emit Emit) ([]frame, error) {
	s.send(emit, protocol.EventStatus, "Starting news podcast generation...")
	if r.GoogleKey == "" {
		return nil, errors.New("Missing Google API key")
	}
	if strings.TrimSpace(r.Topics) == "" {
		return nil, errors.New("No topics provided")
	}
	audio, err := s.audioURL("news_podcast")
	if err != nil {
		return nil, err
	}
	return []frame{
		{protocol.EventStatus, "Generating news podcast..."},
		{protocol.EventProgress, protocol.Progress{Progress: 30, Message: "Generating content..."}},
		{protocol.EventStatus, "Processing audio..."},
		{protocol.EventProgress, protocol.Progress{Progress: 90, Message: "Processing final audio..."}},
		{protocol.EventProgress, protocol.Progress{Progress: 100, Message: "Podcast generation complete!"}},
		{protocol.EventComplete, protocol.Complete{AudioURL: audio}},
	}, nil
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.step <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.step)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Simulator) audioURL(stem string) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("audio name: %w", err)
	}
	return fmt.Sprintf("%s/%s_%s.mp3", s.audioPrefix, stem, hex.EncodeToString(b[:])), nil
}

func (s *Simulator) send(emit Emit, event string, payload any) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return
	}
	emit(env)
}

func transcript(r protocol.PodcastRequest) string {
	name := r.Name
	if name == "" {
		name = "this episode"
	}
	return fmt.Sprintf("<Person1>Welcome to %s. Today we cover %d sources.</Person1><Person2>Glad to be here as the %s.</Person2>",
		name, len(r.URLs), strings.ToLower(r.RolesPerson2))
}
