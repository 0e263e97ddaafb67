package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"gymhub/api/internal/repository"
)

const defaultSessionCleanupSpec = "0 0 3 * * *"

// Scheduler runs periodic maintenance against the store.
type Scheduler struct {
	cron     *cron.Cron
	sessions repository.SessionStore
	spec     string
	now      func() time.Time
	log      zerolog.Logger
}

func NewScheduler(sessions repository.SessionStore, spec string, log zerolog.Logger) *Scheduler {
	if spec == "" {
		spec = defaultSessionCleanupSpec
	}
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		sessions: sessions,
		spec:     spec,
		now:      time.Now,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.sessions == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.pruneSessions); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs, up to five seconds.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) pruneSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.PruneSessions(ctx); err != nil {
		s.log.Error().Err(err).Msg("prune expired sessions failed")
	}
}

// PruneSessions deletes refresh sessions that have expired.
func (s *Scheduler) PruneSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("deleted", n).Msg("expired sessions pruned")
	return n, nil
}
