package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/backend"
	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/channel"
	"github.com/loqalabs/loqa-podcast/internal/client"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/draft"
	"github.com/loqalabs/loqa-podcast/internal/eventstore"
	"github.com/loqalabs/loqa-podcast/internal/i18n"
	"github.com/loqalabs/loqa-podcast/internal/natsserver"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/session"
)

// Stack is every long-lived component of a client process, wired from
// configuration. podcastd builds one per process.
type Stack struct {
	Config      config.Config
	Localizer   *i18n.Localizer
	Credentials *credential.MemoryStore
	Simulator   *backend.Simulator
	Manager     *session.Manager
	History     *eventstore.Store
	Drafts      *draft.Store
	Client      *client.Client

	natsServer *natsserver.EmbeddedServer
	bus        *bus.Client
	backend    *backend.Service
	recorder   *eventstore.Recorder
	log        *slog.Logger
}

// Build assembles the stack. On error everything already started is closed.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	st := &Stack{Config: cfg, log: logger}
	built := false
	defer func() {
		if !built {
			st.Close()
		}
	}()

	catalog, err := i18n.New()
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	st.Localizer = catalog.Localizer(cfg.Locale.Language)

	if cfg.NeedsBus() {
		busCfg := cfg.Bus
		st.natsServer, err = natsserver.Start(busCfg, logger)
		if err != nil {
			return nil, err
		}
		if url := st.natsServer.ClientURL(); url != "" {
			busCfg.Servers = []string{url}
		}
		st.bus, err = bus.Connect(ctx, busCfg, logger.With(slog.String("component", "bus")))
		if err != nil {
			return nil, fmt.Errorf("connect bus: %w", err)
		}
	}

	st.Simulator = backend.NewSimulator(cfg.Backend)
	if cfg.Backend.Enabled {
		st.backend = backend.NewService(ctx, cfg.Backend, cfg.Channel.SubjectPrefix, st.bus, st.Simulator, logger)
		if err = st.backend.Start(); err != nil {
			return nil, fmt.Errorf("start backend: %w", err)
		}
	}

	dialer, err := channel.NewDialer(cfg.Channel, cfg.Backend, st.bus, logger)
	if err != nil {
		return nil, err
	}

	surface := session.NewSurface()
	st.Manager, err = session.NewManager(ctx, dialer, surface, logger,
		session.WithMessages(st.Localizer.SessionMessages()),
		session.WithSendTimeout(time.Duration(cfg.Channel.ConnectTimeout)*time.Millisecond))
	if err != nil {
		return nil, err
	}

	st.History, err = eventstore.Open(ctx, cfg.EventStore, logger.With(slog.String("component", "history")))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	st.recorder = eventstore.NewRecorder(ctx, st.History, surface, logger)
	st.recorder.Start()

	st.Drafts, err = draft.Open(ctx, cfg.Drafts, logger)
	if err != nil {
		return nil, fmt.Errorf("open drafts: %w", err)
	}

	st.Credentials = credential.NewMemoryStore()
	seeded, err := credential.SeedFromEnv(st.Credentials, cfg.Credentials.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("seed credentials: %w", err)
	}
	if len(seeded) > 0 {
		logger.Info("credentials seeded from environment", slog.Any("providers", seeded))
	}

	st.Client, err = client.New(ctx, client.Options{
		Defaults:    preferences.FromConfig(cfg.Defaults),
		Catalog:     preferences.CatalogFromConfig(cfg.Catalog),
		Credentials: st.Credentials,
		Drafts:      st.Drafts,
		Manager:     st.Manager,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	built = true
	return st, nil
}

// Healthy reports whether the transports the stack depends on are up.
func (s *Stack) Healthy() bool {
	if s.bus != nil && !s.bus.Healthy() {
		return false
	}
	if s.backend != nil && !s.backend.Healthy() {
		return false
	}
	return true
}

// Close stops the components in reverse start order. It is safe on a
// partially built stack.
func (s *Stack) Close() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			s.log.Warn("close history", slogError(err))
		}
	}
	if s.Drafts != nil {
		if err := s.Drafts.Close(); err != nil {
			s.log.Warn("close drafts", slogError(err))
		}
	}
	if s.backend != nil {
		s.backend.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	s.natsServer.Shutdown()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
