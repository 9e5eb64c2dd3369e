// Package scheduler runs the expiry sweeper: past-deadline holds are expired,
// slot counters reconciled, and old notes scrubbed. Each item is processed
// independently so one failure never blocks the rest of the sweep.
package scheduler

import (
	"context"
	"errors"
	"time"

	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/internal/clock"
	"github.com/mentorlane/mentorlane/internal/observability/metrics"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Summary reports one sweep run.
type Summary struct {
	ProcessedExpired    int `json:"processedExpired"`
	CleanedBookings     int `json:"cleanedBookings"`
	StripeErrors        int `json:"stripeErrors"`
	ArchivedOldBookings int `json:"archivedOldBookings"`
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	BookingSvc bookingdomain.Service
	Repo       bookingdomain.Repository
	SlotRepo   slotdomain.Repository
	Config     Config           `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

type Sweeper struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	bookingSvc bookingdomain.Service
	repo       bookingdomain.Repository
	slotRepo   slotdomain.Repository
	metrics    *metrics.Metrics
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.BookingSvc == nil || p.Repo == nil || p.SlotRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "sweeper")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		bookingSvc: p.BookingSvc,
		repo:       p.Repo,
		slotRepo:   p.SlotRepo,
		metrics:    p.Metrics,
	}, nil
}

// RunOnce executes every job and aggregates their failures. The summary is
// valid even when err is non-nil.
func (s *Sweeper) RunOnce(parent context.Context) (Summary, error) {
	var summary Summary
	var err error

	jobs := []struct {
		Name string
		Run  func(ctx context.Context) error
	}{
		{"expire_holds", func(ctx context.Context) error {
			return s.expireHolds(ctx, &summary)
		}},
		{"cleanup_orphaned_slots", func(ctx context.Context) error {
			return s.cleanupOrphanedSlots(ctx, &summary)
		}},
		{"scrub_old_notes", func(ctx context.Context) error {
			return s.scrubOldNotes(ctx, &summary)
		}},
	}

	for _, job := range jobs {
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return summary, err
}

// RunForever drives RunOnce on the configured interval until ctx is done.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	err := fn(ctx)
	if err != nil {
		log.Error("job failed", zap.Duration("elapsed", s.clock.Now().Sub(start)), zap.Error(err))
		return err
	}
	log.Debug("job completed", zap.Duration("elapsed", s.clock.Now().Sub(start)))
	return nil
}

// expireHolds expires bookings whose held_until passed before approval. Each
// booking is its own unit: a failed expiry is counted and the sweep moves on.
func (s *Sweeper) expireHolds(ctx context.Context, summary *Summary) error {
	now := s.clock.Now()
	candidates, err := s.repo.ExpiredCandidates(ctx, s.db, now, s.cfg.ExpireBatchSize)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if _, err := s.bookingSvc.Expire(ctx, candidate.ID); err != nil {
			if errors.Is(err, bookingdomain.ErrWrongStatus) {
				// Lost the race against a late approval or cancel; fine.
				continue
			}
			summary.StripeErrors++
			s.metrics.RecordSweeperError()
			s.log.Warn("expiring booking failed",
				zap.Int64("booking_id", int64(candidate.ID)),
				zap.Time("held_until", candidate.HeldUntil),
				zap.Error(err))
			continue
		}
		summary.ProcessedExpired++
	}
	s.metrics.RecordSweeperExpired(summary.ProcessedExpired)
	return nil
}

func (s *Sweeper) cleanupOrphanedSlots(ctx context.Context, summary *Summary) error {
	corrected, err := s.slotRepo.ReleaseOrphans(ctx, s.db, s.cfg.OrphanBatchSize)
	summary.CleanedBookings += corrected
	if err != nil {
		return err
	}
	if corrected > 0 {
		s.log.Info("reconciled orphaned slot counters", zap.Int("corrected", corrected))
	}
	return nil
}

func (s *Sweeper) scrubOldNotes(ctx context.Context, summary *Summary) error {
	cutoff := s.clock.Now().Add(-s.cfg.NotesRetention)
	scrubbed, err := s.repo.ScrubNotes(ctx, s.db, cutoff, s.cfg.ScrubBatchSize)
	summary.ArchivedOldBookings += scrubbed
	if err != nil {
		return err
	}
	if scrubbed > 0 {
		s.log.Info("scrubbed notes from old bookings", zap.Int("scrubbed", scrubbed))
	}
	return nil
}
