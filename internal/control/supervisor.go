// Package control wires configuration into reporters, boundaries and
// the health server, and manages their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/brahim-guaali/error-boundary/internal/boundary"
	"github.com/brahim-guaali/error-boundary/internal/core/config"
	"github.com/brahim-guaali/error-boundary/internal/core/domain"
	"github.com/brahim-guaali/error-boundary/internal/health"
	"github.com/brahim-guaali/error-boundary/internal/infra/grpccollect"
	redisclient "github.com/brahim-guaali/error-boundary/internal/infra/redis"
	"github.com/brahim-guaali/error-boundary/internal/infra/storage/postgres"
	"github.com/brahim-guaali/error-boundary/internal/recovery"
	"github.com/brahim-guaali/error-boundary/internal/report"
)

// Supervisor owns the reporter group, the configured boundaries and the
// health server.
type Supervisor struct {
	cfg          config.AppConfig
	reporters    *report.Group
	boundaries   map[string]*boundary.Controller
	monitor      *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewSupervisor builds all dependencies from configuration.
func NewSupervisor(cfg config.AppConfig) (*Supervisor, error) {
	log := slog.Default()

	group := report.NewGroup(log, report.NewSlogReporter(log))

	var minSeverity domain.Severity
	if cfg.Reporters.MinSeverity != "" {
		var err error
		minSeverity, err = domain.ParseSeverity(cfg.Reporters.MinSeverity)
		if err != nil {
			return nil, fmt.Errorf("invalid reporter min_severity: %w", err)
		}
	}

	s := &Supervisor{
		cfg:        cfg,
		reporters:  group,
		boundaries: make(map[string]*boundary.Controller),
		monitor:    health.NewMonitor(),
		log:        log,
	}

	// Redis journal sink
	if cfg.Reporters.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Reporters.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redisClient = client
		journal := redisclient.NewJournal(client, "boundaries", cfg.Reporters.Redis.MaxEntries)
		group.Add(report.NewFiltered(journal, minSeverity, nil))
	}

	// Postgres sink
	if cfg.Reporters.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Reporters.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.db = db

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		group.Add(report.NewFiltered(postgres.NewReportRepo(db), minSeverity, nil))
	}

	// Remote gRPC collector sink
	if cfg.Reporters.Collector.Endpoint != "" {
		collector, err := grpccollect.NewCollector(context.Background(), cfg.Reporters.Collector)
		if err != nil {
			return nil, fmt.Errorf("failed to init collector: %w", err)
		}
		group.Add(report.NewFiltered(collector, minSeverity, nil))
	}

	// Boundaries
	for _, bc := range cfg.Boundaries {
		ctrl := boundary.New(boundary.Options{
			Name:     bc.Name,
			Policy:   policyFromConfig(bc.Policy),
			Reporter: group,
			Logger:   log,
		})
		s.boundaries[bc.Name] = ctrl
		s.monitor.Register(ctrl)
	}

	s.healthServer = health.NewServer(s.monitor, cfg.Server.Port)
	return s, nil
}

// policyFromConfig maps a policy section onto a recovery variant.
// Custom policies carry code and cannot be configured declaratively.
func policyFromConfig(pc config.PolicyConfig) recovery.Policy {
	switch pc.Type {
	case "retry":
		useBackoff := true
		if pc.UseBackoff != nil {
			useBackoff = *pc.UseBackoff
		}
		return recovery.NewRetry(pc.MaxAttempts, pc.BaseDelay, useBackoff)
	case "reset":
		return recovery.Reset{}
	default:
		return recovery.None{}
	}
}

// Boundary returns the named controller, or nil.
func (s *Supervisor) Boundary(name string) *boundary.Controller {
	return s.boundaries[name]
}

// Reporters returns the shared reporter group so hosts can broadcast
// user identity and custom keys.
func (s *Supervisor) Reporters() *report.Group {
	return s.reporters
}

// Start launches the health server.
func (s *Supervisor) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()
	s.log.Info("Supervisor started",
		"boundaries", len(s.boundaries),
		"reporters", s.reporters.Len(),
		"port", s.cfg.Server.Port)
	return nil
}

// Stop disposes all boundaries and releases shared resources.
func (s *Supervisor) Stop(ctx context.Context) error {
	for _, ctrl := range s.boundaries {
		ctrl.Dispose()
	}

	if err := s.healthServer.Stop(ctx); err != nil {
		s.log.Warn("Health server shutdown failed", "error", err)
	}

	if err := s.reporters.Close(); err != nil {
		s.log.Warn("Reporter close failed", "error", err)
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Database close failed", "error", err)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Redis close failed", "error", err)
		}
	}

	// Give in-flight reporter goroutines a moment to drain.
	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
	}

	s.log.Info("Supervisor stopped")
	return nil
}
