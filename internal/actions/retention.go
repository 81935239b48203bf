package actions

import (
	"context"
	"time"

	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/models"
	"go.uber.org/zap"
)

// DefaultRetention is how long actions are kept before the sweeper
// deletes them.
const DefaultRetention = 7 * 24 * time.Hour

// Purge deletes actions older than the given age and returns how many
// rows went away. It is idempotent: a second call with the same cutoff
// deletes nothing.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Action{})
	return res.RowsAffected, res.Error
}

// Sweeper runs Purge on a fixed interval
type Sweeper struct {
	service   *Service
	interval  time.Duration
	retention time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSweeper creates a retention sweeper. interval is how often it
// runs, retention is the age cutoff it passes to Purge.
func NewSweeper(service *Service, interval, retention time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		service:   service,
		interval:  interval,
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	logger.Log.Info("Starting action retention sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("retention", s.retention),
	)
	go s.run()
}

// Stop stops the sweeper
func (s *Sweeper) Stop() {
	s.cancel()
}

func (s *Sweeper) run() {
	// Run immediately on startup
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep() {
	deleted, err := s.service.Purge(s.ctx, s.retention)
	if err != nil {
		logger.Log.Error("Action retention sweep failed", zap.Error(err))
		return
	}
	logger.Log.Info("Action retention sweep completed", zap.Int64("deleted", deleted))
}
