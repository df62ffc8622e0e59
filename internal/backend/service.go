package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/nats-io/nats.go"
)

const requestTimeout = 10 * time.Minute

// Service answers generation requests published on the bus by running the
// simulator and publishing its events to the session's events subject.
type Service struct {
	cfg    config.BackendConfig
	prefix string
	bus    *bus.Client
	sim    *Simulator
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.BackendConfig, prefix string, busClient *bus.Client, sim *Simulator, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		prefix: prefix,
		bus:    busClient,
		sim:    sim,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "backend-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.RequestWildcard(s.prefix), s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("simulated generation service listening", slog.String("subject", sub.Subject))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	sessionID := sessionFromSubject(s.prefix, msg.Subject)
	if sessionID == "" {
		s.logger.Warn("request on unexpected subject", slog.String("subject", msg.Subject))
		return
	}
	env, err := protocol.DecodeEnvelope(msg.Data)
	if err != nil {
		s.logger.Warn("failed to decode request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		defer cancel()

		subject := protocol.EventsSubject(s.prefix, sessionID)
		logger := s.logger.With(slog.String("session_id", sessionID))
		err := s.sim.Run(ctx, env, func(out protocol.Envelope) {
			data, err := json.Marshal(out)
			if err != nil {
				logger.Warn("failed to marshal event", slogError(err))
				return
			}
			if err := s.bus.Conn().Publish(subject, data); err != nil {
				logger.Warn("failed to publish event", slogError(err))
			}
		})
		if err != nil {
			logger.Info("generation ended with error", slogError(err))
		}
	}()
}

func sessionFromSubject(prefix, subject string) string {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, ".request")
	if !ok || id == "" || strings.Contains(id, ".") {
		return ""
	}
	return id
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
