package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Syncer is driven by the scheduler.
type Syncer interface {
	SyncToTip(ctx context.Context) error
	LogStatus()
}

// SyncScheduler runs the sync step every block time. Steps run in singleton
// mode: a step that overruns the interval delays the next one instead of
// running alongside it.
type SyncScheduler struct {
	syncer         Syncer
	interval       time.Duration
	statusInterval time.Duration
	scheduler      gocron.Scheduler
	logger         zerolog.Logger
}

func NewSyncScheduler(syncer Syncer, interval time.Duration, logger zerolog.Logger) (*SyncScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &SyncScheduler{
		syncer:         syncer,
		interval:       interval,
		statusInterval: time.Minute,
		scheduler:      s,
		logger:         logger.With().Str("component", "sync-scheduler").Logger(),
	}, nil
}

func (s *SyncScheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.runSync, ctx),
		gocron.WithName("sync-to-tip"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(s.statusInterval),
		gocron.NewTask(s.syncer.LogStatus),
		gocron.WithName("sync-status"),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("Sync scheduler started")
	s.scheduler.Start()
	return nil
}

func (s *SyncScheduler) Stop() {
	s.logger.Info().Msg("Stopping sync scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

func (s *SyncScheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.syncer.SyncToTip(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Failed to sync to tip")
	}
}
