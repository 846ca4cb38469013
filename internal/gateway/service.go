package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/protocol"
	"github.com/jdev09/woodshed/internal/timer/session"
)

// Config holds gateway configuration.
type Config struct {
	Connection ConnectionConfig
	Consumer   ConsumerConfig
	// RelayEnabled controls the JetStream consumer; without NATS the
	// gateway still serves its own sessions.
	RelayEnabled bool
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Connection: DefaultConnectionConfig(),
		Consumer:   DefaultConsumerConfig(),
	}
}

// Service composes the connection manager, the HTTP handler, and the
// optional JetStream consumer, and wires itself into the session manager's
// broadcast path.
type Service struct {
	connectionManager *ConnectionManager
	handler           *Handler
	eventConsumer     *EventConsumer
}

// NewService builds the gateway and registers its broadcast function with
// the session manager.
func NewService(config Config, manager *session.Manager) (*Service, error) {
	cm := NewConnectionManager(config.Connection, manager)
	handler := NewHandler(manager, cm)

	s := &Service{connectionManager: cm, handler: handler}

	if config.RelayEnabled {
		consumer, err := NewEventConsumer(cm, config.Consumer)
		if err != nil {
			return nil, fmt.Errorf("create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}

	manager.SetBroadcast(func(sessionID uuid.UUID, env protocol.Envelope) {
		cm.Broadcast(WireEvent{
			SessionID: sessionID.String(),
			Timestamp: time.Now(),
			Envelope:  env,
		})
	})
	return s, nil
}

// Start runs the broadcast loop and, when enabled, the relay consumer, until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	go s.connectionManager.Start(ctx)
	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}
	<-ctx.Done()
	if s.eventConsumer != nil {
		s.eventConsumer.Stop()
	}
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes attaches the gateway's HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
}
