// Package scheduler runs the periodic subscription sweeps that webhooks
// cannot cover: a cancelled subscription keeps its access until the paid
// period lapses, and nothing from the provider marks that moment.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fabriko/fabriko/internal/clock"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
)

var ErrInvalidConfig = errors.New("scheduler requires db, log, clock and subscription service")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	Repo            subscriptiondomain.Repository
	Config          Config `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	repo            subscriptiondomain.Repository
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		repo:            p.Repo,
	}, nil
}

// RunOnce executes one sweep pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.ExpireLapsedJob(ctx)
}

// ExpireLapsedJob walks CANCELLED subscriptions whose paid period has ended
// and moves them to EXPIRED, suspending the company. Each subscription is
// expired through the service layer so the usual transition guards apply;
// a row that changed underneath the sweep is simply picked up next pass.
func (s *Scheduler) ExpireLapsedJob(ctx context.Context) error {
	var jobErr error

	for {
		now := s.clock.Now()
		subscriptions, err := s.repo.FindLapsedCancelled(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(subscriptions) == 0 {
			break
		}

		expired := 0
		for i := range subscriptions {
			sub := &subscriptions[i]
			if _, err := s.subscriptionSvc.Expire(ctx, sub.ID); err != nil {
				if errors.Is(err, subscriptiondomain.ErrStaleSubscription) {
					continue
				}
				s.log.Warn("expire lapsed subscription failed",
					zap.String("subscription_id", sub.ID.String()),
					zap.Error(err),
				)
				jobErr = errors.Join(jobErr, err)
				continue
			}
			expired++
		}

		s.log.Info("expired lapsed subscriptions",
			zap.Int("batch", len(subscriptions)),
			zap.Int("expired", expired),
		)

		if expired == 0 {
			// every row in the batch failed; bail out instead of spinning
			break
		}
		if len(subscriptions) < s.cfg.BatchSize {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
