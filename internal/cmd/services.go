package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/gateway"
	"github.com/jdev09/woodshed/internal/outbox"
	"github.com/jdev09/woodshed/internal/plan"
	"github.com/jdev09/woodshed/internal/practicelog"
	"github.com/jdev09/woodshed/internal/report"
	"github.com/jdev09/woodshed/internal/settings"
	"github.com/jdev09/woodshed/internal/timer/session"
)

// Services holds the wired application graph.
type Services struct {
	Manager     *session.Manager
	Gateway     *gateway.Service
	Plans       *plan.Service
	Settings    *settings.Service
	PracticeLog *practicelog.Service
	Reports     *report.Service

	// Relay is nil when NATS is disabled; timers then run without
	// cross-device fanout.
	Relay     *outbox.Listener
	publisher *outbox.JetStreamPublisher
}

// setupServices wires the dependency chain:
// pool -> repositories -> apps -> HTTP services, plus the session manager
// and the outbox relay.
func setupServices(ctx context.Context, pool *pgxpool.Pool, dsn string, cfg *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	// Outbox
	outboxRepo := outbox.NewRepository(pool)

	// Practice log
	logRepo := practicelog.NewRepository(pool)
	recorder := practicelog.NewRecorder(pool, logRepo, outboxRepo, clock)
	logService := practicelog.NewService(logRepo)

	// Settings: stored defaults seed every new session
	settingsRepo := settings.NewRepository(pool)
	defaults, err := settingsRepo.GetSettings(ctx, settings.DefaultProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Sessions
	manager := session.NewManager(clock, recorder, defaults)

	settingsApp := settings.NewApp(pool, settingsRepo, outboxRepo, manager)
	settingsService := settings.NewService(settingsApp)

	// Plans
	planRepo := plan.NewRepository(pool)
	planApp := plan.NewApp(planRepo)
	planService := plan.NewService(planApp)

	// Reports
	reportRepo := report.NewRepository(pool)
	reportApp := report.NewApp(pool, reportRepo, logRepo, planRepo, outboxRepo, clock)
	reportService := report.NewService(reportApp)

	// Gateway
	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.Consumer.URL = cfg.NATS.URL
	gatewayCfg.RelayEnabled = cfg.NATS.Enabled
	gatewayService, err := gateway.NewService(gatewayCfg, manager)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}

	services := &Services{
		Manager:     manager,
		Gateway:     gatewayService,
		Plans:       planService,
		Settings:    settingsService,
		PracticeLog: logService,
		Reports:     reportService,
	}

	// Outbox relay: publisher plus LISTEN/NOTIFY listener
	if cfg.NATS.Enabled {
		publisherCfg := outbox.DefaultJetStreamConfig()
		publisherCfg.URL = cfg.NATS.URL
		publisher, err := outbox.NewJetStreamPublisher(publisherCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}

		listenerCfg := outbox.DefaultListenerConfig()
		listenerCfg.DatabaseURL = dsn
		listener, err := outbox.NewListener(outboxRepo, publisher, listenerCfg)
		if err != nil {
			publisher.Close()
			return nil, fmt.Errorf("failed to create outbox listener: %w", err)
		}

		services.Relay = listener
		services.publisher = publisher
	} else {
		log.Info().Msg("NATS disabled, running without event relay")
	}

	return services, nil
}

// Close releases everything setupServices started.
func (s *Services) Close() {
	s.Manager.CloseAll()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close publisher")
		}
	}
}
