// Package sweep periodically re-runs verification for workers whose two
// documents are stored but whose status is still pending.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docverify/internal/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Lister interface {
	ListPendingComplete(ctx context.Context) ([]string, error)
}

type Reverifier interface {
	Reverify(ctx context.Context, workerID string) (domain.WorkerDocumentState, *domain.VerificationResult, error)
}

// Result summarises one pass.
type Result struct {
	Checked    int
	Verified   int
	Mismatched int
	Pending    int
	Failed     int
}

func (r Result) String() string {
	return fmt.Sprintf("checked=%d verified=%d mismatched=%d pending=%d failed=%d",
		r.Checked, r.Verified, r.Mismatched, r.Pending, r.Failed)
}

type Sweeper struct {
	lister     Lister
	reverifier Reverifier
	logger     *zap.Logger
	location   *time.Location
	schedule   cron.Schedule
	expr       string
	now        func() time.Time
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New parses expr as a standard five-field cron expression. An empty expr
// yields a Sweeper that can only be driven through RunOnce.
func New(expr string, loc *time.Location, lister Lister, reverifier Reverifier, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Sweeper{
		lister:     lister,
		reverifier: reverifier,
		logger:     logger,
		location:   loc,
		expr:       strings.TrimSpace(expr),
		now:        time.Now,
	}
	if s.expr != "" {
		sched, err := parser.Parse(s.expr)
		if err != nil {
			return nil, fmt.Errorf("invalid reverify schedule '%s': %w", s.expr, err)
		}
		s.schedule = sched
	}
	return s, nil
}

func (s *Sweeper) Scheduled() bool {
	return s.schedule != nil
}

// Next returns the next run after the current time in the configured zone.
func (s *Sweeper) Next() time.Time {
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(s.now().In(s.location))
}

// Start runs the sweep on its schedule until ctx is cancelled. It returns
// immediately when no schedule is configured.
func (s *Sweeper) Start(ctx context.Context) {
	if s.schedule == nil {
		s.logger.Info("re-verification sweep disabled (reverify_schedule not set)")
		return
	}
	s.logger.Info("re-verification sweep scheduled", zap.String("cron", s.expr), zap.String("timezone", s.location.String()))

	go func() {
		for {
			now := s.now().In(s.location)
			next := s.schedule.Next(now)
			wait := next.Sub(now)
			s.logger.Debug("next re-verification sweep", zap.Time("at", next), zap.Duration("in", wait.Round(time.Second)))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("re-verification sweep stopped")
				return
			case <-timer.C:
			}

			result, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("re-verification sweep failed", zap.Error(err))
				continue
			}
			s.logger.Info("re-verification sweep complete", zap.Stringer("result", result))
		}
	}()
}

// RunOnce re-verifies every pending worker with both documents. A failure
// for one worker is logged and counted; the pass continues.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	ids, err := s.lister.ListPendingComplete(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list pending workers: %w", err)
	}

	var result Result
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		_, verification, err := s.reverifier.Reverify(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return result, err
			}
			result.Failed++
			s.logger.Warn("re-verification failed", zap.String("worker_id", id), zap.Error(err))
			continue
		}
		if verification == nil {
			result.Pending++
			continue
		}
		switch verification.Status {
		case domain.StatusVerified:
			result.Verified++
		case domain.StatusMismatched:
			result.Mismatched++
		default:
			result.Pending++
		}
	}
	return result, nil
}
