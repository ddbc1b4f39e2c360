// Package matching drives match runs: it picks the candidates a user has not
// been evaluated against, runs one proving session per candidate on a
// bounded pool and commits the outcome to the registry.
package matching

import (
	"context"
	"errors"
	"fmt"
	"mpc_match/internal/config"
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc"
	"mpc_match/internal/utils/log"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type (
	Registry interface {
		GetUser(ctx context.Context, id string) (*model.User, error)
		ListUsers(ctx context.Context) ([]*model.User, error)
		MarkChecked(ctx context.Context, id string, newlyChecked []string) error
		MarkCheckedMany(ctx context.Context, ids []string, newlyChecked []string) error
		UnmarkChecked(ctx context.Context, id string, ids []string) error
		RecordMatch(ctx context.Context, userA, userB string) (*model.Match, error)
		Lock(userID string) func()
	}

	Shares interface {
		Fetch(ctx context.Context, userID string) (model.ShareSet, error)
	}

	Runner interface {
		RunSession(ctx context.Context, merged *model.MergedShareSet) (bool, error)
	}

	// Notifier learns about every newly recorded match.
	Notifier interface {
		MatchRecorded(ctx context.Context, m *model.Match)
	}

	Result struct {
		Candidates []string `json:"candidates"`
		Verified   []string `json:"matched"`
		// Failed holds candidates whose session errored, as opposed to
		// finishing unverified.
		Failed map[string]error `json:"-"`
	}

	Scheduler struct {
		registry Registry
		shares   Shares
		engine   mpc.Engine
		runner   Runner
		notifier Notifier

		workers int
		retry   bool
	}

	outcome struct {
		candidate string
		verified  bool
		err       error
	}
)

func NewScheduler(cfg *config.MatchingConfig, registry Registry, shares Shares, engine mpc.Engine, runner Runner) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		registry: registry,
		shares:   shares,
		engine:   engine,
		runner:   runner,
		workers:  workers,
		retry:    cfg.FailurePolicy == config.FailurePolicyRetry,
	}
}

func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// RunMatches evaluates userID against every user it has not been evaluated
// against yet and blocks until all sessions finish. Failing to read the
// initiating user or the user list aborts the run. Session failures only
// drop the candidate. Errors while committing outcomes are returned together
// with the result.
func (s *Scheduler) RunMatches(ctx context.Context, userID string) (*Result, error) {
	start := time.Now()
	logger := log.With(zap.String("user", userID))

	candidates, err := s.claimCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &Result{Candidates: candidates, Verified: []string{}, Failed: map[string]error{}}
	if len(candidates) == 0 {
		logger.Debug("no new candidates")
		return res, nil
	}

	outcomes := s.evaluate(ctx, userID, candidates)
	errs := s.commit(ctx, userID, outcomes, res)

	logger.Info("match run finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("verified", len(res.Verified)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, errs
}

// claimCandidates computes the unseen candidates and marks them checked
// before any session starts, so a concurrent or repeated run for the same
// user cannot pick them again.
func (s *Scheduler) claimCandidates(ctx context.Context, userID string) ([]string, error) {
	unlock := s.registry.Lock(userID)
	defer unlock()

	user, err := s.registry.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.registry.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	checked := user.CheckedSet()
	candidates := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := checked[u.ID]; ok || u.ID == userID {
			continue
		}
		candidates = append(candidates, u.ID)
	}
	sort.Strings(candidates)

	if len(candidates) > 0 {
		if err := s.registry.MarkChecked(ctx, userID, candidates); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

func (s *Scheduler) evaluate(ctx context.Context, userID string, candidates []string) []outcome {
	outcomes := make([]outcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, candidate := range candidates {
		g.Go(func() error {
			ok, err := s.session(ctx, userID, candidate)
			if err != nil {
				log.Warn("candidate session failed",
					zap.String("user", userID),
					zap.String("candidate", candidate),
					zap.Error(err),
				)
			}
			outcomes[i] = outcome{candidate: candidate, verified: ok, err: err}
			// one failed candidate never stops the others
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (s *Scheduler) session(ctx context.Context, userID, candidate string) (bool, error) {
	a, err := s.shares.Fetch(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("fetch shares of %s: %w", userID, err)
	}
	b, err := s.shares.Fetch(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("fetch shares of %s: %w", candidate, err)
	}

	merged, err := mpc.Merge(s.engine, userID, a, candidate, b)
	if err != nil {
		return false, fmt.Errorf("%w: merge shares: %v", model.ErrProtocol, err)
	}
	return s.runner.RunSession(ctx, merged)
}

func (s *Scheduler) commit(ctx context.Context, userID string, outcomes []outcome, res *Result) error {
	var errs error

	mark := make([]string, 0, len(outcomes))
	var unmark []string
	for _, o := range outcomes {
		switch {
		case o.verified:
			res.Verified = append(res.Verified, o.candidate)
		case o.err != nil:
			res.Failed[o.candidate] = o.err
			if s.retry {
				unmark = append(unmark, o.candidate)
				continue
			}
		}
		mark = append(mark, o.candidate)
	}

	if err := s.registry.MarkCheckedMany(ctx, mark, []string{userID}); err != nil {
		errs = multierr.Append(errs, err)
	}
	if len(unmark) > 0 {
		unlock := s.registry.Lock(userID)
		err := s.registry.UnmarkChecked(ctx, userID, unmark)
		unlock()
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	for _, candidate := range res.Verified {
		m, err := s.registry.RecordMatch(ctx, userID, candidate)
		if errors.Is(err, model.ErrDuplicate) {
			// the candidate's own run got there first
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if s.notifier != nil {
			s.notifier.MatchRecorded(ctx, m)
		}
	}

	return errs
}
