package grpc_control

import (
	"context"
	"time"

	"stock-exchange/src/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names reported next to the overall "" entry.
const (
	ServiceLedger = "exchange.Ledger"
	ServiceFeed   = "exchange.QuoteFeed"
)

// Pinger is the slice of the ledger store the control service probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedHealth reports whether the broadcast loop completed a cycle recently.
type FeedHealth interface {
	Healthy(maxAge time.Duration) bool
}

// -----------------------------------------------------------------------------

// ControlService publishes the exchange's health over the standard gRPC health
// protocol for orchestrators and grpcurl.
type ControlService struct {
	Health   *health.Server
	Store    Pinger
	Feed     FeedHealth
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(store Pinger, feed FeedHealth, interval time.Duration, log *logger.Logger) *ControlService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &ControlService{
		Health:   health.NewServer(),
		Store:    store,
		Feed:     feed,
		MaxAge:   10 * interval,
		Interval: interval,
		Logger:   log,
	}
	for _, name := range []string{"", ServiceLedger, ServiceFeed} {
		s.Health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// -----------------------------------------------------------------------------

// Register attaches the health and reflection services to srv.
func (s *ControlService) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.Health)
	reflection.Register(srv)
}

// -----------------------------------------------------------------------------

// Refresh probes the store and the feed once and updates every status.
func (s *ControlService) Refresh(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ledgerUp := true
	if err := s.Store.Ping(pingCtx); err != nil {
		s.Logger.Warning("gRPC health: store ping failed: %v", err)
		ledgerUp = false
	}
	feedUp := s.Feed.Healthy(s.MaxAge)

	s.Health.SetServingStatus(ServiceLedger, servingStatus(ledgerUp))
	s.Health.SetServingStatus(ServiceFeed, servingStatus(feedUp))
	s.Health.SetServingStatus("", servingStatus(ledgerUp && feedUp))
}

func servingStatus(up bool) healthpb.HealthCheckResponse_ServingStatus {
	if up {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// -----------------------------------------------------------------------------

// Run refreshes on Interval until ctx is done, then reports every service as
// not serving so watchers drain.
func (s *ControlService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Health.Shutdown()
			return nil
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
